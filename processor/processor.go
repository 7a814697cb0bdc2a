package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/token"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"text/scanner"

	"golang.org/x/tools/go/packages"

	"github.com/example/entitybug"
	"github.com/example/entitybug/parser"
)

// LoadMode is the information loaded for every package that is processed.
// Annotations live in comments, so syntax is needed but type-checking is not.
const LoadMode = packages.NeedName |
	packages.NeedFiles |
	packages.NeedCompiledGoFiles |
	packages.NeedSyntax |
	packages.NeedImports

var (
	annotationsPkgPath, annotationsPkgName string

	// annotation types defined in the entitybug package, by name
	knownAnnotations = map[string]reflect.Type{}
)

func init() {
	for _, rt := range []reflect.Type{
		reflect.TypeOf(entitybug.GenerateEntity{}),
		reflect.TypeOf(entitybug.GeneratedEntityMarker{}),
		reflect.TypeOf(entitybug.Table("")),
	} {
		knownAnnotations[rt.Name()] = rt
		annotationsPkgPath = rt.PkgPath()
	}
	annotationsPkgName = path.Base(annotationsPkgPath)
}

// AnnotationsPackage returns the import path of the package that defines the
// annotation types understood by this processor.
func AnnotationsPackage() string {
	return annotationsPkgPath
}

// OutputFactory opens a generated file for writing. The path is an import
// path followed by a file name, like "example.com/app/order_generated_entity.go".
type OutputFactory func(path string) (io.WriteCloser, error)

// Processor handles the annotations of one package. It is called once per
// processed package and usually validates annotation values and writes
// generated sources through the OutputFactory.
type Processor func(ctx *Context, output OutputFactory) error

// DirOutputFactory returns an OutputFactory that writes files under the given
// root directory, organized by package path: the file for path "a/b/c.go" is
// <rootDir>/a/b/c.go. Directories are created as needed.
//
// Files are opened with os.OpenFile, creating the file if necessary and
// truncating it if it already exists.
func DirOutputFactory(rootDir string) OutputFactory {
	return func(p string) (io.WriteCloser, error) {
		dest := filepath.Join(rootDir, filepath.FromSlash(path.Dir(p)))
		if err := os.MkdirAll(dest, os.ModePerm); err != nil {
			return nil, fmt.Errorf("could not create output directory %s: %w", dest, err)
		}
		return os.OpenFile(filepath.Join(dest, path.Base(p)), os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0666)
	}
}

// SourceOutputFactory returns an OutputFactory that writes files into the
// source directory of their package, so they are compiled together with the
// package's hand-written sources. The given map is keyed by package path.
func SourceOutputFactory(pkgDirs map[string]string) OutputFactory {
	return func(p string) (io.WriteCloser, error) {
		pkgPath := path.Dir(p)
		dir, ok := pkgDirs[pkgPath]
		if !ok {
			return nil, fmt.Errorf("could not determine output directory for package %q", pkgPath)
		}
		return os.OpenFile(filepath.Join(dir, path.Base(p)), os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0666)
	}
}

// Config describes a processing run: which packages to load, which
// processors to call and where their output goes.
type Config struct {
	// Patterns are package patterns, as accepted by "go list".
	Patterns []string
	// Dir is the directory in which patterns are resolved. If empty, the
	// current working directory is used.
	Dir string
	// Tests indicates whether test files are processed, too.
	Tests         bool
	Processors    []Processor
	OutputFactory OutputFactory
	Logger        *slog.Logger
}

// Execute invokes the configured processors for the configured packages,
// writing outputs using the configured OutputFactory. If no OutputFactory is
// configured, a SourceOutputFactory for the loaded packages is used.
func (cfg *Config) Execute(ctx context.Context) error {
	pkgs, fset, err := cfg.load(ctx)
	if err != nil {
		return err
	}

	output := cfg.OutputFactory
	if output == nil {
		dirs := map[string]string{}
		for _, pkg := range pkgs {
			if d := packageDir(pkg); d != "" {
				dirs[pkg.PkgPath] = d
			}
		}
		output = SourceOutputFactory(dirs)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for _, pkg := range pkgs {
		c := newContext(pkg, fset, logger)
		if err := c.computeAllAnnotations(); err != nil {
			return err
		}
		logger.Debug("processing package", "package", pkg.PkgPath, "elements", c.NumElements())
		for _, proc := range cfg.Processors {
			if err := proc(c, output); err != nil {
				return err
			}
		}
	}
	return nil
}

func (cfg *Config) load(ctx context.Context) ([]*packages.Package, *token.FileSet, error) {
	fset := token.NewFileSet()
	conf := &packages.Config{
		Context: ctx,
		Mode:    LoadMode,
		Dir:     cfg.Dir,
		Tests:   cfg.Tests,
		Fset:    fset,
	}
	pkgs, err := packages.Load(conf, cfg.Patterns...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load packages: %w", err)
	}

	var errs []string
	for _, pkg := range pkgs {
		for _, e := range pkg.Errors {
			errs = append(errs, e.Error())
		}
	}
	if len(errs) > 0 {
		return nil, nil, fmt.Errorf("package errors: %s", strings.Join(errs, "; "))
	}

	return selectPackages(pkgs), fset, nil
}

// selectPackages drops synthesized test mains and, when a package was loaded
// both with and without its tests, keeps only the variant with tests.
func selectPackages(pkgs []*packages.Package) []*packages.Package {
	byPath := map[string]*packages.Package{}
	var order []string
	for _, pkg := range pkgs {
		if strings.HasSuffix(pkg.PkgPath, ".test") {
			continue
		}
		existing, ok := byPath[pkg.PkgPath]
		if !ok {
			order = append(order, pkg.PkgPath)
			byPath[pkg.PkgPath] = pkg
		} else if len(pkg.Syntax) > len(existing.Syntax) {
			byPath[pkg.PkgPath] = pkg
		}
	}
	sort.Strings(order)
	res := make([]*packages.Package, len(order))
	for i, p := range order {
		res[i] = byPath[p]
	}
	return res
}

func packageDir(pkg *packages.Package) string {
	if len(pkg.GoFiles) > 0 {
		return filepath.Dir(pkg.GoFiles[0])
	}
	if len(pkg.CompiledGoFiles) > 0 {
		return filepath.Dir(pkg.CompiledGoFiles[0])
	}
	return ""
}

// Context is what a Processor sees of one package: the loaded package and
// the annotated top-level declarations found in it.
type Context struct {
	// Package is the loaded package, including the syntax trees of its files.
	Package *packages.Package
	Fset    *token.FileSet
	// Dir is the package's source directory.
	Dir    string
	Logger *slog.Logger

	// AllElementsByName holds the annotated declarations of the package by
	// name.
	AllElementsByName map[string]*AnnotatedElement
	// AllAnnotationTypes lists, per annotation package path, the sorted names
	// of the annotation types used in the package.
	AllAnnotationTypes map[string][]string

	allElements  []*AnnotatedElement
	byAnnotation map[AnnotationType][]*AnnotatedElement
	consts       *constPool
}

func newContext(pkg *packages.Package, fset *token.FileSet, logger *slog.Logger) *Context {
	return &Context{
		Package:            pkg,
		Fset:               fset,
		Dir:                packageDir(pkg),
		Logger:             logger,
		AllElementsByName:  map[string]*AnnotatedElement{},
		AllAnnotationTypes: map[string][]string{},
		byAnnotation:       map[AnnotationType][]*AnnotatedElement{},
		consts:             newConstPool(pkg),
	}
}

// NumElements is the number of annotated declarations in the package.
func (c *Context) NumElements() int {
	return len(c.allElements)
}

// ElementsAnnotatedWith returns the declarations that carry at least one
// annotation of the given type.
func (c *Context) ElementsAnnotatedWith(packagePath, typeName string) []*AnnotatedElement {
	return c.byAnnotation[AnnotationType{PackagePath: packagePath, Name: typeName}]
}

func (c *Context) computeAllAnnotations() error {
	for _, file := range c.Package.Syntax {
		if err := c.computeAnnotationsFromFile(file); err != nil {
			return err
		}
	}

	for at := range c.byAnnotation {
		c.AllAnnotationTypes[at.PackagePath] = append(c.AllAnnotationTypes[at.PackagePath], at.Name)
	}
	for _, names := range c.AllAnnotationTypes {
		sort.Strings(names)
	}
	return nil
}

func (c *Context) computeAnnotationsFromFile(file *ast.File) error {
	decls, docs := topLevelDecls(file)
	for _, d := range decls {
		if err := c.addElement(file, d); err != nil {
			return err
		}
	}
	return c.checkNestedAnnotations(file, docs)
}

// decl is a top-level declaration together with the doc comment that applies
// to it. Specs without their own doc comment use the one of their GenDecl.
type decl struct {
	kind entitybug.ElementType
	id   *ast.Ident
	node ast.Node
	doc  *ast.CommentGroup
}

// topLevelDecls lists the declarations of file in source order. The returned
// set holds every doc comment attached at the top level.
func topLevelDecls(file *ast.File) ([]decl, map[*ast.CommentGroup]bool) {
	var decls []decl
	docs := map[*ast.CommentGroup]bool{}
	for _, d := range file.Decls {
		if fn, ok := d.(*ast.FuncDecl); ok {
			docs[fn.Doc] = true
			decls = append(decls, decl{kind: entitybug.Functions, id: fn.Name, node: fn, doc: fn.Doc})
			continue
		}
		gen, ok := d.(*ast.GenDecl)
		if !ok {
			continue
		}
		docs[gen.Doc] = true
		for _, spec := range gen.Specs {
			switch spec := spec.(type) {
			case *ast.TypeSpec:
				docs[spec.Doc] = true
				decls = append(decls, decl{kind: entitybug.Types, id: spec.Name, node: spec, doc: specDoc(spec.Doc, gen)})
			case *ast.ValueSpec:
				docs[spec.Doc] = true
				kind := entitybug.Variables
				if gen.Tok == token.CONST {
					kind = entitybug.Constants
				}
				for _, id := range spec.Names {
					decls = append(decls, decl{kind: kind, id: id, node: spec, doc: specDoc(spec.Doc, gen)})
				}
			}
		}
	}
	return decls, docs
}

func specDoc(doc *ast.CommentGroup, gen *ast.GenDecl) *ast.CommentGroup {
	if doc != nil && len(doc.List) > 0 {
		return doc
	}
	return gen.Doc
}

func (c *Context) addElement(file *ast.File, d decl) error {
	annos, err := c.parseAnnotations(file, d.doc)
	if err != nil || len(annos) == 0 {
		return err
	}
	if d.kind != entitybug.Types {
		return NewErrorWithPosition(annos[0].Pos, fmt.Errorf("@%s is not allowed on %v; only on types", annos[0].Type.Name, d.kind))
	}
	if _, dup := c.AllElementsByName[d.id.Name]; dup {
		return nil
	}

	ae := &AnnotatedElement{
		Context:         c,
		Ident:           d.id,
		File:            file,
		Node:            d.node,
		ApplicableTypes: []entitybug.ElementType{d.kind},
		Annotations:     annos,
	}
	c.AllElementsByName[d.id.Name] = ae
	c.allElements = append(c.allElements, ae)
	indexed := map[AnnotationType]bool{}
	for _, a := range annos {
		if !indexed[a.Type] {
			indexed[a.Type] = true
			c.byAnnotation[a.Type] = append(c.byAnnotation[a.Type], ae)
		}
	}
	return nil
}

// checkNestedAnnotations fails if a doc comment below the top level, such as
// the one of a struct field, holds annotations of this module.
func (c *Context) checkNestedAnnotations(file *ast.File, topLevel map[*ast.CommentGroup]bool) error {
	var err error
	ast.Inspect(file, func(n ast.Node) bool {
		doc := nodeDoc(n)
		if err != nil || doc == nil || topLevel[doc] {
			return err == nil
		}
		var annos []AnnotationMirror
		annos, err = c.parseAnnotations(file, doc)
		if err == nil && len(annos) > 0 {
			err = NewErrorWithPosition(annos[0].Pos, errors.New("annotations are only allowed on top-level types"))
		}
		return err == nil
	})
	return err
}

func nodeDoc(n ast.Node) *ast.CommentGroup {
	switch n := n.(type) {
	case *ast.File:
		return n.Doc
	case *ast.GenDecl:
		return n.Doc
	case *ast.TypeSpec:
		return n.Doc
	case *ast.ValueSpec:
		return n.Doc
	case *ast.Field:
		return n.Doc
	}
	return nil
}

// parseAnnotations extracts the annotations in doc and converts those that
// belong to this module's annotation package into mirrors. Annotations of
// other packages are left for other tools and skipped.
func (c *Context) parseAnnotations(file *ast.File, doc *ast.CommentGroup) ([]AnnotationMirror, error) {
	buf, srcMap := c.annotationText(doc)
	if buf == nil {
		return nil, nil
	}

	annos, perr := parser.ParseAnnotations("", buf)
	if perr != nil {
		pos := srcMap.position(perr.Pos())
		return nil, NewErrorWithPosition(pos, perr.Underlying())
	}

	var mirrors []AnnotationMirror
	for _, anno := range annos {
		pkgPath, ok := c.resolvePackage(file, anno.Type.PackageAlias)
		if !ok || pkgPath != annotationsPkgPath {
			continue
		}
		pos := srcMap.position(anno.Pos)
		rt, ok := knownAnnotations[anno.Type.Name]
		if !ok {
			return nil, NewErrorWithPosition(pos, fmt.Errorf("%v is not an annotation type", anno.Type))
		}
		var val AnnotationValue
		if anno.Value != nil {
			v, err := c.convertExpression(file, anno.Value, srcMap)
			if err != nil {
				return nil, err
			}
			val = v
		} else {
			val = AnnotationValue{Kind: KindNone, Pos: pos}
		}
		mirror := AnnotationMirror{
			Type:  AnnotationType{PackagePath: pkgPath, Name: anno.Type.Name},
			Value: val,
			Pos:   pos,
			rtype: rt,
		}
		// validate eagerly so that problems are reported with positions even
		// when no processor reads this annotation
		if _, err := mirror.reified(); err != nil {
			return nil, err
		}
		mirrors = append(mirrors, mirror)
	}

	// repeated annotations end up adjacent, in source order
	sort.SliceStable(mirrors, func(i, j int) bool {
		return mirrors[i].Type.Name < mirrors[j].Type.Name
	})
	return mirrors, nil
}

// resolvePackage resolves the package qualifier of an annotation to an import
// path, using the imports of the given file. An empty alias refers to the
// package being processed. The name of the annotations package resolves to it
// even when the file does not import it, since Go does not allow imports that
// are only used from comments.
func (c *Context) resolvePackage(file *ast.File, alias string) (string, bool) {
	if alias == "" {
		return c.Package.PkgPath, true
	}
	for _, imp := range file.Imports {
		impPath, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		var name string
		if imp.Name != nil && imp.Name.Name != "_" && imp.Name.Name != "." {
			name = imp.Name.Name
		} else if p := c.Package.Imports[impPath]; p != nil && p.Name != "" {
			name = p.Name
		} else {
			name = path.Base(impPath)
		}
		if name == alias {
			return impPath, true
		}
	}
	if alias == annotationsPkgName {
		return annotationsPkgPath, true
	}
	return "", false
}

// annotationText returns the doc comment text from the first annotation line
// onwards, with a source map back to the comment. It returns nil when doc has
// no annotations.
func (c *Context) annotationText(doc *ast.CommentGroup) (*bytes.Buffer, sourceMap) {
	if doc == nil {
		return nil, nil
	}
	var (
		buf     bytes.Buffer
		lines   sourceMap
		started bool
		block   bool
		end     token.Position
	)
	for i, comment := range doc.List {
		text, isBlock := commentText(comment.Text)
		// annotations cannot span line and block comments
		if i > 0 && isBlock != block {
			buf.Reset()
			lines = nil
			started = false
		}
		block = isBlock

		pos := c.Fset.Position(comment.Slash)
		pos.Offset += 2
		pos.Column += 2
		for _, line := range strings.Split(text, "\n") {
			started = started || isAnnotationLine(line)
			if started {
				lines = append(lines, sourceLine{offset: buf.Len(), pos: pos})
				buf.WriteString(line)
				buf.WriteByte('\n')
			}
			pos.Offset += len(line) + 1
			pos.Line++
			pos.Column = 1
		}
		end = c.Fset.Position(comment.End())
	}
	if !started {
		return nil, nil
	}
	return &buf, append(lines, sourceLine{offset: buf.Len(), pos: end})
}

// commentText strips the comment markers from s and reports whether it is a
// block comment.
func commentText(s string) (string, bool) {
	if rest, ok := strings.CutPrefix(s, "//"); ok {
		return rest, false
	}
	return strings.TrimSuffix(strings.TrimPrefix(s, "/*"), "*/"), true
}

// isAnnotationLine reports whether a comment line starts an annotation. The
// '@' may be preceded by at most one space, so that indented code blocks in
// doc comments are never mistaken for annotations.
func isAnnotationLine(line string) bool {
	return strings.HasPrefix(strings.TrimPrefix(line, " "), "@")
}

// sourceMap maps positions in extracted annotation text back to the file.
// Entry i describes line i+1 of the text. The last entry marks the end of the
// comment and is used for positions past the end of the text.
type sourceMap []sourceLine

type sourceLine struct {
	offset int // in the extracted text
	pos    token.Position
}

func (m sourceMap) position(pos scanner.Position) token.Position {
	if pos.Line < 1 || pos.Line > len(m) {
		return m[len(m)-1].pos
	}
	l := m[pos.Line-1]
	res := l.pos
	res.Column += pos.Column - 1
	res.Offset += pos.Offset - l.offset
	return res
}
