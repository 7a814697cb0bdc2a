package orm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/tools/go/packages"

	"github.com/example/entitybug/processor"
)

// ErrArtifactNotFound is matched, via errors.Is, by every
// *ArtifactNotFoundError.
var ErrArtifactNotFound = errors.New("artifact not found")

// ArtifactNotFoundError is returned by an ArtifactResolver that cannot see the
// named type.
type ArtifactNotFoundError struct {
	ClassName string
	// Scope describes what the resolver could see, like "tool" or "module".
	Scope string
}

func (e *ArtifactNotFoundError) Error() string {
	return fmt.Sprintf("artifact for %s not found in %s scope", e.ClassName, e.Scope)
}

// Is reports whether target is ErrArtifactNotFound.
func (e *ArtifactNotFoundError) Is(target error) bool {
	return target == ErrArtifactNotFound
}

// ArtifactResolver reads the artifact that defines a type. For Go types, the
// artifact is the source file that declares the type.
type ArtifactResolver interface {
	ReadArtifact(ctx context.Context, className string) ([]byte, error)
}

// SplitClassName splits a qualified type name into its package path and type
// name.
func SplitClassName(className string) (pkgPath, name string, ok bool) {
	slash := strings.LastIndex(className, "/")
	dot := strings.LastIndex(className, ".")
	if dot <= slash || dot == len(className)-1 || dot == 0 {
		return "", "", false
	}
	return className[:dot], className[dot+1:], true
}

// PackageResolver resolves types from the packages matching its patterns.
// Packages are loaded on first use.
type PackageResolver struct {
	// Dir is the directory in which patterns are resolved.
	Dir      string
	Patterns []string
	Tests    bool
	// OutputDir holds generated sources that were written outside the package
	// directories, laid out by package path as processor.DirOutputFactory
	// does. It is searched after the loaded packages.
	OutputDir string
	scope     string

	once  sync.Once
	files map[string][]string
	err   error
}

var _ ArtifactResolver = (*PackageResolver)(nil)

// ModuleResolver returns a resolver that sees the application's packages, as
// selected by the given patterns.
func ModuleResolver(dir string, tests bool, patterns ...string) *PackageResolver {
	return &PackageResolver{Dir: dir, Patterns: patterns, Tests: tests, scope: "module"}
}

// ToolResolver returns a resolver that sees only the packages of the build
// tool itself. Application types, generated or not, are invisible to it, so
// every lookup of such a type fails with ErrArtifactNotFound.
func ToolResolver() *PackageResolver {
	return &PackageResolver{Patterns: []string{processor.AnnotationsPackage()}, scope: "tool"}
}

// Scope returns the name of the resolver's scope.
func (r *PackageResolver) Scope() string {
	return r.scope
}

func (r *PackageResolver) load(ctx context.Context) error {
	r.once.Do(func() {
		cfg := &packages.Config{
			Context: ctx,
			Mode:    packages.NeedName | packages.NeedFiles,
			Dir:     r.Dir,
			Tests:   r.Tests,
		}
		pkgs, err := packages.Load(cfg, r.Patterns...)
		if err != nil {
			r.err = fmt.Errorf("failed to load %s scope: %w", r.scope, err)
			return
		}
		r.files = map[string][]string{}
		packages.Visit(pkgs, nil, func(pkg *packages.Package) {
			if len(pkg.Errors) > 0 {
				return
			}
			r.files[pkg.PkgPath] = append(r.files[pkg.PkgPath], pkg.GoFiles...)
		})
	})
	return r.err
}

// ReadArtifact returns the source of the file that declares className.
func (r *PackageResolver) ReadArtifact(ctx context.Context, className string) ([]byte, error) {
	pkgPath, name, ok := SplitClassName(className)
	if !ok {
		return nil, fmt.Errorf("invalid class name %q", className)
	}
	if err := r.load(ctx); err != nil {
		return nil, err
	}
	files := r.files[pkgPath]
	if r.OutputDir != "" {
		generated, err := filepath.Glob(filepath.Join(r.OutputDir, filepath.FromSlash(pkgPath), "*.go"))
		if err != nil {
			return nil, err
		}
		files = append(append([]string(nil), files...), generated...)
	}
	for _, fn := range files {
		data, err := os.ReadFile(fn)
		if err != nil {
			return nil, err
		}
		if declaresType(fn, data, name) {
			return data, nil
		}
	}
	return nil, &ArtifactNotFoundError{ClassName: className, Scope: r.scope}
}

func declaresType(filename string, data []byte, name string) bool {
	// cheap check before parsing
	if !bytes.Contains(data, []byte(name)) {
		return false
	}
	file, err := parser.ParseFile(token.NewFileSet(), filename, data, parser.SkipObjectResolution)
	if err != nil {
		return false
	}
	return findType(file, name) != nil
}

func findType(file *ast.File, name string) *ast.TypeSpec {
	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.TYPE {
			continue
		}
		for _, spec := range gen.Specs {
			if ts := spec.(*ast.TypeSpec); ts.Name.Name == name {
				return ts
			}
		}
	}
	return nil
}

// MapResolver resolves artifacts from memory. It is keyed by class name.
type MapResolver map[string][]byte

// ReadArtifact implements ArtifactResolver.
func (m MapResolver) ReadArtifact(_ context.Context, className string) ([]byte, error) {
	if data, ok := m[className]; ok {
		return data, nil
	}
	return nil, &ArtifactNotFoundError{ClassName: className, Scope: "memory"}
}
