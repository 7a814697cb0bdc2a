// Package generator synthesizes entity types for types annotated with
// @entitybug.GenerateEntity.
//
// For a request with entity name "MyTest" in package "example.com/app", the
// generator emits example.com/app.MyTestGeneratedEntity into the file
// mytest_generated_entity.go. The generated type carries the
// @entitybug.GeneratedEntityMarker annotation, with the request's name and
// persistence unit, and registers the same marker at init time.
package generator

import (
	"bytes"
	"fmt"
	"go/token"
	"path"
	"reflect"
	"strings"

	"github.com/jhump/gopoet"

	"github.com/example/entitybug"
	"github.com/example/entitybug/manifest"
	"github.com/example/entitybug/processor"
)

// Suffix is appended to the entity name to form the generated type's name.
const Suffix = "GeneratedEntity"

const header = "// Code generated by entitybug. DO NOT EDIT.\n\n"

var (
	annosPkg = gopoet.NewPackage(reflect.TypeOf(entitybug.GenerateEntity{}).PkgPath())
	uuidPkg  = gopoet.NewPackage("github.com/google/uuid")

	reflectTypeOf = gopoet.NewPackage("reflect").Symbol("TypeOf")
	uuidType      = gopoet.NamedType(uuidPkg.Symbol("UUID"))
	stringType    = gopoet.NamedType(gopoet.Symbol{Name: "string"})
)

// Request describes one entity to generate.
type Request struct {
	// PackagePath and PackageName identify the package that requested the
	// entity. The entity is generated into the same package.
	PackagePath string
	PackageName string
	// EntityName is the prefix of the generated type's name.
	EntityName string
	// PersistenceUnit is copied verbatim into the generated marker. It may be
	// empty.
	PersistenceUnit string
	// Origin is the qualified name of the type that requested generation. It
	// is informational only.
	Origin string
}

// TypeName returns the unqualified name of the generated type.
func (r Request) TypeName() string {
	return r.EntityName + Suffix
}

// QualifiedName returns the qualified name of the generated type.
func (r Request) QualifiedName() string {
	return r.PackagePath + "." + r.TypeName()
}

// FileName returns the name of the generated source file.
func (r Request) FileName() string {
	return strings.ToLower(r.EntityName) + "_generated_entity.go"
}

// Marker returns the marker that the generated type carries.
func (r Request) Marker() entitybug.GeneratedEntityMarker {
	return entitybug.GeneratedEntityMarker{Name: r.EntityName, PersistenceUnit: r.PersistenceUnit}
}

// Validate checks that the request can produce a valid Go type. Entity names
// starting with a lower-case letter yield unexported types.
func (r Request) Validate() error {
	if r.PackagePath == "" || r.PackageName == "" {
		return fmt.Errorf("entity %q has no package", r.EntityName)
	}
	if r.EntityName == "" {
		return fmt.Errorf("entity name must not be empty")
	}
	if !token.IsIdentifier(r.EntityName) {
		return fmt.Errorf("entity name %q is not a valid identifier", r.EntityName)
	}
	return nil
}

// NewFile builds the generated source file for the given request.
func NewFile(r Request) *gopoet.GoFile {
	file := gopoet.NewGoFile(r.FileName(), r.PackagePath, r.PackageName)

	typ := gopoet.NewStructTypeSpec(r.TypeName(),
		&gopoet.FieldSpec{Name: "ID", Type: uuidType, Tag: `gorm:"type:uuid;primaryKey" json:"id"`},
		&gopoet.FieldSpec{Name: "Payload", Type: stringType, Tag: `json:"payload"`},
	)
	var doc string
	if r.Origin != "" {
		doc = fmt.Sprintf("%s is the entity generated for %s.\n\n", r.TypeName(), r.Origin)
	} else {
		doc = fmt.Sprintf("%s is a generated entity.\n\n", r.TypeName())
	}
	doc += fmt.Sprintf("@entitybug.GeneratedEntityMarker{Name: %q, PersistenceUnit: %q}\n", r.EntityName, r.PersistenceUnit)
	doc += fmt.Sprintf("@entitybug.Table(%q)", entitybug.GeneratedTable)
	typ.SetComment(doc)
	file.AddType(typ)

	rcvr := gopoet.NewPointerReceiverForType("e", typ)

	getID := gopoet.NewMethod(rcvr, "GetID").AddResult("", uuidType)
	getID.Println("return e.ID")
	file.AddElement(getID)

	setID := gopoet.NewMethod(rcvr, "SetID").AddArg("id", uuidType)
	setID.Println("e.ID = id")
	file.AddElement(setID)

	getPayload := gopoet.NewMethod(rcvr, "GetPayload").AddResult("", stringType)
	getPayload.Println("return e.Payload")
	file.AddElement(getPayload)

	setPayload := gopoet.NewMethod(rcvr, "SetPayload").AddArg("payload", stringType)
	setPayload.Println("e.Payload = payload")
	file.AddElement(setPayload)

	tableName := gopoet.NewMethod(rcvr, "TableName").AddResult("", stringType)
	tableName.Printlnf("return %q", entitybug.GeneratedTable)
	file.AddElement(tableName)

	initFunc := gopoet.NewFunc("init")
	initFunc.Printlnf("%s(%s((*%s)(nil)).Elem(), %s{", annosPkg.Symbol("RegisterGeneratedEntity"),
		reflectTypeOf, r.TypeName(), annosPkg.Symbol("GeneratedEntityMarker"))
	initFunc.Printlnf("Name: %q,", r.EntityName)
	initFunc.Printlnf("PersistenceUnit: %q,", r.PersistenceUnit)
	initFunc.Println("})")
	file.AddElement(initFunc)

	return file
}

// Render returns the formatted source of the generated file. The result only
// depends on the request, so rendering the same request twice yields identical
// bytes.
func Render(r Request) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(header)
	if err := gopoet.WriteGoFile(&buf, NewFile(r)); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", r.QualifiedName(), err)
	}
	return buf.Bytes(), nil
}

// Generate renders the entity for the given package path, entity name and
// persistence unit, without any annotation being involved. The package name is
// derived from the last element of the package path.
func Generate(pkgPath, entityName, persistenceUnit string) ([]byte, error) {
	return Render(Request{
		PackagePath:     pkgPath,
		PackageName:     packageNameForPath(pkgPath),
		EntityName:      entityName,
		PersistenceUnit: persistenceUnit,
	})
}

func packageNameForPath(pkgPath string) string {
	name := path.Base(pkgPath)
	// strip major version suffixes, like "v2"
	if len(name) > 1 && name[0] == 'v' && strings.Trim(name[1:], "0123456789") == "" {
		name = path.Base(path.Dir(pkgPath))
	}
	name = strings.Map(func(r rune) rune {
		if r == '-' || r == '.' {
			return '_'
		}
		return r
	}, name)
	return name
}

// ManifestFor returns the manifest that describes the given requests, which
// must all belong to the same package.
func ManifestFor(pkgPath string, reqs []Request) *manifest.Manifest {
	m := &manifest.Manifest{Version: manifest.Version, Package: pkgPath}
	for _, r := range reqs {
		m.Entities = append(m.Entities, manifest.Entry{
			Type:            r.QualifiedName(),
			Name:            r.EntityName,
			PersistenceUnit: r.PersistenceUnit,
			Table:           entitybug.GeneratedTable,
			Source:          r.FileName(),
			Origin:          r.Origin,
		})
	}
	m.Sort()
	return m
}

type unit struct {
	req  Request
	path string
	data []byte
}

// Processor generates an entity for every @entitybug.GenerateEntity
// annotation in the package, followed by the package's manifest. All sources
// are rendered before anything is written, so an invalid request leaves no
// partial output behind.
func Processor(ctx *processor.Context, output processor.OutputFactory) error {
	pkgPath := processor.AnnotationsPackage()
	elems := ctx.ElementsAnnotatedWith(pkgPath, "GenerateEntity")
	if len(elems) == 0 {
		return nil
	}

	var reqs []Request
	seen := map[string]token.Position{}
	for _, el := range elems {
		for _, mirror := range el.FindAnnotations(pkgPath, "GenerateEntity") {
			var anno entitybug.GenerateEntity
			if err := mirror.Reify(&anno); err != nil {
				return err
			}
			req := Request{
				PackagePath:     ctx.Package.PkgPath,
				PackageName:     ctx.Package.Name,
				EntityName:      anno.Value,
				PersistenceUnit: anno.PersistenceUnit,
				Origin:          el.QualifiedName(),
			}
			if err := req.Validate(); err != nil {
				return processor.NewErrorWithPosition(mirror.Pos, err)
			}
			if prev, ok := seen[req.FileName()]; ok {
				return processor.NewErrorWithPosition(mirror.Pos,
					fmt.Errorf("entity %s would overwrite %s, already generated for the request at %v", req.QualifiedName(), req.FileName(), prev))
			}
			if other, ok := ctx.AllElementsByName[req.TypeName()]; ok && len(other.FindAnnotations(pkgPath, "GeneratedEntityMarker")) == 0 {
				return processor.NewErrorWithPosition(mirror.Pos,
					fmt.Errorf("entity %s conflicts with annotated type declared at %v", req.QualifiedName(), other.Pos()))
			}
			seen[req.FileName()] = mirror.Pos
			reqs = append(reqs, req)
		}
	}

	units := make([]unit, 0, len(reqs))
	for _, req := range reqs {
		data, err := Render(req)
		if err != nil {
			return fmt.Errorf("failed to generate entity %s: %w", req.QualifiedName(), err)
		}
		units = append(units, unit{req: req, path: path.Join(req.PackagePath, req.FileName()), data: data})
	}
	mdata, err := manifest.Marshal(ManifestFor(ctx.Package.PkgPath, reqs))
	if err != nil {
		return err
	}

	for _, u := range units {
		if err := writeOutput(output, u.path, u.data); err != nil {
			return fmt.Errorf("failed to generate entity %s: %w", u.req.QualifiedName(), err)
		}
		ctx.Logger.Info("generated entity", "type", u.req.QualifiedName(), "file", u.req.FileName())
	}
	if err := writeOutput(output, path.Join(ctx.Package.PkgPath, manifest.FileName), mdata); err != nil {
		return fmt.Errorf("failed to write manifest for %s: %w", ctx.Package.PkgPath, err)
	}
	return nil
}

func writeOutput(output processor.OutputFactory, p string, data []byte) error {
	w, err := output(p)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
