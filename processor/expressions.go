package processor

import (
	"fmt"
	"go/ast"
	"go/constant"
	"go/token"
	"math"

	"golang.org/x/tools/go/packages"

	"github.com/example/entitybug"
	"github.com/example/entitybug/parser"
)

// constants of the annotations package that annotations may refer to
var annotationConstants = map[string]constant.Value{
	"DefaultPersistenceUnit": constant.MakeString(entitybug.DefaultPersistenceUnit),
	"GeneratedTable":         constant.MakeString(entitybug.GeneratedTable),
}

func (c *Context) convertExpression(file *ast.File, node parser.ExpressionNode, srcMap sourceMap) (AnnotationValue, error) {
	pos := srcMap.position(node.Pos())
	switch node := node.(type) {
	case parser.LiteralNode:
		if node.IsNil() {
			return AnnotationValue{Kind: KindNil, Pos: pos}, nil
		}
		return constantValue(node.Val, pos)

	case parser.RefNode:
		v, err := c.resolveConstant(file, node.Ident)
		if err != nil {
			return AnnotationValue{}, NewErrorWithPosition(pos, err)
		}
		return constantValue(v, pos)

	case parser.AggregateNode:
		av := AnnotationValue{Kind: KindAggregate, Pos: pos}
		for _, el := range node.Contents {
			var entry AnnotationEntry
			if el.HasKey {
				if ref, ok := el.Key.(parser.RefNode); ok && ref.Ident.PackageAlias == "" {
					entry.Name = ref.Ident.Name
				} else {
					k, err := c.convertExpression(file, el.Key, srcMap)
					if err != nil {
						return AnnotationValue{}, err
					}
					entry.Key = &k
				}
			}
			v, err := c.convertExpression(file, el.Value, srcMap)
			if err != nil {
				return AnnotationValue{}, err
			}
			entry.Value = v
			av.elements = append(av.elements, entry)
		}
		return av, nil

	default:
		return AnnotationValue{}, NewErrorWithPosition(pos, fmt.Errorf("unsupported expression %T", node))
	}
}

func constantValue(v constant.Value, pos token.Position) (AnnotationValue, error) {
	switch v.Kind() {
	case constant.Bool:
		return AnnotationValue{Kind: KindBool, Pos: pos, val: constant.BoolVal(v)}, nil
	case constant.String:
		return AnnotationValue{Kind: KindString, Pos: pos, val: constant.StringVal(v)}, nil
	case constant.Int:
		i, exact := constant.Int64Val(v)
		if !exact {
			return AnnotationValue{}, NewErrorWithPosition(pos, fmt.Errorf("integer %v overflows int64", v))
		}
		return AnnotationValue{Kind: KindInt, Pos: pos, val: i}, nil
	case constant.Float:
		f, _ := constant.Float64Val(v)
		if math.IsInf(f, 0) {
			return AnnotationValue{}, NewErrorWithPosition(pos, fmt.Errorf("float %v overflows float64", v))
		}
		return AnnotationValue{Kind: KindFloat, Pos: pos, val: f}, nil
	default:
		return AnnotationValue{}, NewErrorWithPosition(pos, fmt.Errorf("unsupported constant %v", v))
	}
}

func (c *Context) resolveConstant(file *ast.File, id parser.Identifier) (constant.Value, error) {
	if id.PackageAlias == "" {
		if v, ok := c.consts.lookup(id.Name); ok {
			return v, nil
		}
		return nil, fmt.Errorf("%s is not a constant declared in package %s", id.Name, c.Package.PkgPath)
	}
	pkgPath, ok := c.resolvePackage(file, id.PackageAlias)
	if !ok {
		return nil, fmt.Errorf("unknown package %s", id.PackageAlias)
	}
	if pkgPath == annotationsPkgPath {
		if v, ok := annotationConstants[id.Name]; ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("cannot resolve %v: only constants of this package or of %s may be referenced", id, annotationsPkgName)
}

// constPool holds the values of the package-level constants of a package that
// are declared with literal values (or in terms of other such constants).
type constPool struct {
	pkg    *packages.Package
	specs  map[string]ast.Expr
	values map[string]constant.Value
	busy   map[string]bool
}

func newConstPool(pkg *packages.Package) *constPool {
	return &constPool{pkg: pkg}
}

func (p *constPool) lookup(name string) (constant.Value, bool) {
	if p.specs == nil {
		p.specs = map[string]ast.Expr{}
		p.values = map[string]constant.Value{}
		p.busy = map[string]bool{}
		for _, file := range p.pkg.Syntax {
			for _, decl := range file.Decls {
				gen, ok := decl.(*ast.GenDecl)
				if !ok || gen.Tok != token.CONST {
					continue
				}
				for _, s := range gen.Specs {
					spec := s.(*ast.ValueSpec)
					for i, n := range spec.Names {
						if i < len(spec.Values) {
							p.specs[n.Name] = spec.Values[i]
						}
					}
				}
			}
		}
	}
	if v, ok := p.values[name]; ok {
		return v, v != nil
	}
	expr, ok := p.specs[name]
	if !ok || p.busy[name] {
		return nil, false
	}
	p.busy[name] = true
	v := p.eval(expr)
	p.busy[name] = false
	p.values[name] = v
	return v, v != nil
}

func (p *constPool) eval(expr ast.Expr) constant.Value {
	switch expr := expr.(type) {
	case *ast.BasicLit:
		v := constant.MakeFromLiteral(expr.Value, expr.Kind, 0)
		if v.Kind() == constant.Unknown {
			return nil
		}
		return v
	case *ast.ParenExpr:
		return p.eval(expr.X)
	case *ast.Ident:
		switch expr.Name {
		case "true":
			return constant.MakeBool(true)
		case "false":
			return constant.MakeBool(false)
		}
		v, _ := p.lookup(expr.Name)
		return v
	case *ast.UnaryExpr:
		x := p.eval(expr.X)
		if x == nil || (expr.Op != token.SUB && expr.Op != token.ADD) {
			return nil
		}
		return constant.UnaryOp(expr.Op, x, 0)
	case *ast.BinaryExpr:
		if expr.Op != token.ADD {
			return nil
		}
		x, y := p.eval(expr.X), p.eval(expr.Y)
		if x == nil || y == nil || x.Kind() != y.Kind() {
			return nil
		}
		return constant.BinaryOp(x, token.ADD, y)
	case *ast.CallExpr:
		// typed constants, e.g. Table("orders")
		if len(expr.Args) == 1 {
			return p.eval(expr.Args[0])
		}
	}
	return nil
}
