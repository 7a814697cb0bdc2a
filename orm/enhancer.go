package orm

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"log/slog"
	"reflect"
	"strconv"
	"strings"

	"gorm.io/gorm/schema"

	annoparser "github.com/example/entitybug/parser"
)

// naming derives table and column names the way gorm does by default.
var naming schema.Namer = schema.NamingStrategy{}

// Enhancer analyzes the types named by additional models.
type Enhancer struct {
	Resolver ArtifactResolver
	Logger   *slog.Logger
}

// Enhance returns an entity model for each of the given models, in order. It
// fails on the first type whose artifact cannot be read or analyzed.
func (e *Enhancer) Enhance(ctx context.Context, models []AdditionalModel) ([]EntityModel, error) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	res := make([]EntityModel, 0, len(models))
	for _, m := range models {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := e.Resolver.ReadArtifact(ctx, m.ClassName)
		if err != nil {
			return nil, fmt.Errorf("failed to enhance entity %s: %w", m.ClassName, err)
		}
		em, err := AnalyzeEntity(m.ClassName, data)
		if err != nil {
			return nil, fmt.Errorf("failed to enhance entity %s: %w", m.ClassName, err)
		}
		em.PersistenceUnits = m.PersistenceUnits
		logger.Debug("enhanced entity", "class", m.ClassName, "table", em.Table, "columns", len(em.Columns))
		res = append(res, em)
	}
	return res, nil
}

// AnalyzeEntity builds the model of the struct type named by className from
// the source that declares it.
//
// The table name is taken from a TableName method that returns a string
// literal, then from an @entitybug.Table annotation on the type, and otherwise
// derived from the type name by gorm's naming strategy. Columns are the exported fields of the struct;
// gorm tags may rename them, set their type or mark the primary key, and
// fields tagged gorm:"-" are skipped.
func AnalyzeEntity(className string, src []byte) (EntityModel, error) {
	_, name, ok := SplitClassName(className)
	if !ok {
		return EntityModel{}, fmt.Errorf("invalid class name %q", className)
	}
	file, err := parser.ParseFile(token.NewFileSet(), name+".go", src, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return EntityModel{}, err
	}
	ts := findType(file, name)
	if ts == nil {
		return EntityModel{}, fmt.Errorf("type %s is not declared in artifact", name)
	}
	st, ok := ts.Type.(*ast.StructType)
	if !ok {
		return EntityModel{}, fmt.Errorf("type %s is not a struct", name)
	}

	em := EntityModel{ClassName: className}
	for _, f := range st.Fields.List {
		var tag reflect.StructTag
		if f.Tag != nil {
			if s, err := strconv.Unquote(f.Tag.Value); err == nil {
				tag = reflect.StructTag(s)
			}
		}
		settings := schema.ParseTagSetting(tag.Get("gorm"), ";")
		if _, skip := settings["-"]; skip {
			continue
		}
		for _, id := range f.Names {
			if !id.IsExported() {
				continue
			}
			col := Column{
				Name:    naming.ColumnName("", id.Name),
				Field:   id.Name,
				SQLType: sqlType(f.Type),
			}
			if v, ok := settings["COLUMN"]; ok && v != "" {
				col.Name = v
			}
			if v, ok := settings["TYPE"]; ok && v != "" {
				col.SQLType = strings.ToUpper(v)
			}
			_, pk := settings["PRIMARYKEY"]
			_, pk2 := settings["PRIMARY_KEY"]
			col.PrimaryKey = pk || pk2
			_, col.NotNull = settings["NOT NULL"]
			em.Columns = append(em.Columns, col)
		}
	}
	if len(em.Columns) == 0 {
		return EntityModel{}, fmt.Errorf("type %s has no mapped fields", name)
	}
	if _, ok := em.PrimaryKey(); !ok {
		for i := range em.Columns {
			if em.Columns[i].Field == "ID" {
				em.Columns[i].PrimaryKey = true
				break
			}
		}
	}

	em.Table = tableNameMethod(file, name)
	if em.Table == "" {
		doc := ts.Doc
		if doc == nil {
			doc = genDeclDoc(file, ts)
		}
		em.Table = tableAnnotation(doc)
	}
	if em.Table == "" {
		em.Table = naming.TableName(name)
	}
	return em, nil
}

func genDeclDoc(file *ast.File, ts *ast.TypeSpec) *ast.CommentGroup {
	for _, decl := range file.Decls {
		if gen, ok := decl.(*ast.GenDecl); ok {
			for _, spec := range gen.Specs {
				if spec == ts {
					return gen.Doc
				}
			}
		}
	}
	return nil
}

// tableNameMethod returns the literal returned by a TableName method of the
// named type, or "" if there is no such method.
func tableNameMethod(file *ast.File, typeName string) string {
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Name.Name != "TableName" || fn.Recv == nil || len(fn.Recv.List) != 1 || fn.Body == nil {
			continue
		}
		recv := fn.Recv.List[0].Type
		if star, ok := recv.(*ast.StarExpr); ok {
			recv = star.X
		}
		if id, ok := recv.(*ast.Ident); !ok || id.Name != typeName {
			continue
		}
		if len(fn.Body.List) != 1 {
			continue
		}
		ret, ok := fn.Body.List[0].(*ast.ReturnStmt)
		if !ok || len(ret.Results) != 1 {
			continue
		}
		if lit, ok := ret.Results[0].(*ast.BasicLit); ok && lit.Kind == token.STRING {
			if s, err := strconv.Unquote(lit.Value); err == nil {
				return s
			}
		}
	}
	return ""
}

// tableAnnotation returns the value of an @entitybug.Table annotation in doc.
func tableAnnotation(doc *ast.CommentGroup) string {
	if doc == nil {
		return ""
	}
	for _, line := range strings.Split(doc.Text(), "\n") {
		if !strings.HasPrefix(line, "@entitybug.Table") {
			continue
		}
		anno, err := annoparser.ParseAnnotation("doc", strings.NewReader(line))
		if err != nil {
			continue
		}
		if lit, ok := anno.Value.(annoparser.LiteralNode); ok && lit.Val != nil {
			if s, err := strconv.Unquote(lit.Val.ExactString()); err == nil {
				return s
			}
		}
	}
	return ""
}

func sqlType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		switch t.Name {
		case "string":
			return "TEXT"
		case "bool", "int", "int8", "int16", "int32", "int64", "uint", "uint8", "uint16", "uint32", "uint64":
			return "INTEGER"
		case "float32", "float64":
			return "REAL"
		}
	case *ast.SelectorExpr:
		if x, ok := t.X.(*ast.Ident); ok {
			switch x.Name + "." + t.Sel.Name {
			case "uuid.UUID":
				return "UUID"
			case "time.Time":
				return "DATETIME"
			}
		}
	case *ast.StarExpr:
		return sqlType(t.X)
	case *ast.ArrayType:
		if id, ok := t.Elt.(*ast.Ident); ok && id.Name == "byte" && t.Len == nil {
			return "BLOB"
		}
	}
	return "BLOB"
}
