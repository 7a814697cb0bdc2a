// Package index provides a whole-program view of annotated types. An index is
// built once per build, either by scanning package sources or from the
// manifests the generator leaves next to generated code, and is then queried
// by annotation name.
package index

import (
	"context"
	"fmt"
	"go/token"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/example/entitybug/manifest"
	"github.com/example/entitybug/processor"
)

// DotName is the fully qualified name of an annotation type: the package path
// and the type name, joined by a dot.
type DotName string

// NewDotName returns the DotName for the given package path and type name.
func NewDotName(pkgPath, name string) DotName {
	return DotName(pkgPath + "." + name)
}

// Names of the annotations declared by the entitybug package.
var (
	GenerateEntity        = NewDotName(processor.AnnotationsPackage(), "GenerateEntity")
	GeneratedEntityMarker = NewDotName(processor.AnnotationsPackage(), "GeneratedEntityMarker")
	Table                 = NewDotName(processor.AnnotationsPackage(), "Table")
)

// ClassInfo describes the type that carries an annotation.
type ClassInfo struct {
	// Name is the qualified name of the type.
	Name    string
	Package string
	// File is the file that declares the type, if known.
	File string
	Pos  token.Position
}

// AnnotationInstance is one occurrence of an annotation on a type.
type AnnotationInstance struct {
	Name   DotName
	Target ClassInfo
	// Values holds the explicitly written attributes of the annotation. A
	// lone value, as in @entitybug.Table("t"), is stored under "Value".
	Values map[string]string
}

// Value returns the named attribute. The second result is false when the
// attribute was not written, which is different from an empty value.
func (a AnnotationInstance) Value(name string) (string, bool) {
	v, ok := a.Values[name]
	return v, ok
}

// Index answers queries about annotated types.
type Index interface {
	// Annotations returns every occurrence of the named annotation. The order
	// of results is unspecified.
	Annotations(name DotName) []AnnotationInstance
}

// MemoryIndex is an Index held in memory. It is safe for concurrent use.
type MemoryIndex struct {
	mu     sync.RWMutex
	byName map[DotName][]AnnotationInstance
}

var _ Index = (*MemoryIndex)(nil)

// New returns an index that contains the given instances.
func New(instances ...AnnotationInstance) *MemoryIndex {
	idx := &MemoryIndex{byName: map[DotName][]AnnotationInstance{}}
	idx.Add(instances...)
	return idx
}

// Add adds instances to the index.
func (idx *MemoryIndex) Add(instances ...AnnotationInstance) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, inst := range instances {
		idx.byName[inst.Name] = append(idx.byName[inst.Name], inst)
	}
}

// Annotations implements Index.
func (idx *MemoryIndex) Annotations(name DotName) []AnnotationInstance {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	res := make([]AnnotationInstance, len(idx.byName[name]))
	copy(res, idx.byName[name])
	return res
}

// Len returns the number of instances in the index.
func (idx *MemoryIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	n := 0
	for _, v := range idx.byName {
		n += len(v)
	}
	return n
}

// Names returns the annotation names present in the index, sorted.
func (idx *MemoryIndex) Names() []DotName {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	names := make([]DotName, 0, len(idx.byName))
	for n := range idx.byName {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Scan loads the packages described by cfg and indexes every entitybug
// annotation found on their types. The processors and output factory of cfg
// are ignored.
func Scan(ctx context.Context, cfg processor.Config) (*MemoryIndex, error) {
	idx := New()
	cfg.OutputFactory = noOutput
	cfg.Processors = []processor.Processor{func(pctx *processor.Context, _ processor.OutputFactory) error {
		pkgPath := processor.AnnotationsPackage()
		for _, name := range pctx.AllAnnotationTypes[pkgPath] {
			for _, el := range pctx.ElementsAnnotatedWith(pkgPath, name) {
				target := ClassInfo{
					Name:    el.QualifiedName(),
					Package: pctx.Package.PkgPath,
					File:    el.GetDeclaringFilename(),
					Pos:     el.Pos(),
				}
				for _, m := range el.FindAnnotations(pkgPath, name) {
					idx.Add(AnnotationInstance{
						Name:   NewDotName(pkgPath, name),
						Target: target,
						Values: valuesOf(m),
					})
				}
			}
		}
		return nil
	}}
	if err := cfg.Execute(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func noOutput(p string) (io.WriteCloser, error) {
	return nil, fmt.Errorf("index scan does not produce output (%s)", p)
}

func valuesOf(m processor.AnnotationMirror) map[string]string {
	vals := map[string]string{}
	for name, v := range m.Fields() {
		if s, ok := scalarString(v); ok {
			vals[name] = s
		}
	}
	return vals
}

func scalarString(v processor.AnnotationValue) (string, bool) {
	switch v.Kind {
	case processor.KindString:
		return v.AsString(), true
	case processor.KindBool:
		return strconv.FormatBool(v.AsBool()), true
	case processor.KindInt:
		return strconv.FormatInt(v.AsInt(), 10), true
	case processor.KindFloat:
		return strconv.FormatFloat(v.AsFloat(), 'g', -1, 64), true
	default:
		return "", false
	}
}

// FromManifests builds an index from every manifest under root. Each manifest
// entry yields a GeneratedEntityMarker instance and, when the entry names a
// table, a Table instance.
func FromManifests(root string) (*MemoryIndex, error) {
	found, err := manifest.Find(root)
	if err != nil {
		return nil, err
	}
	idx := New()
	for _, m := range found {
		for _, e := range m.Entities {
			target := ClassInfo{
				Name:    e.Type,
				Package: m.Package,
				File:    filepath.Join(m.Dir(), e.Source),
			}
			marker := AnnotationInstance{
				Name:   GeneratedEntityMarker,
				Target: target,
				Values: map[string]string{"Name": e.Name},
			}
			if e.PersistenceUnit != "" {
				marker.Values["PersistenceUnit"] = e.PersistenceUnit
			}
			idx.Add(marker)
			if e.Table != "" {
				idx.Add(AnnotationInstance{
					Name:   Table,
					Target: target,
					Values: map[string]string{"Value": e.Table},
				})
			}
		}
	}
	return idx, nil
}
