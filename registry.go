package entitybug

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

var (
	registryLock sync.RWMutex
	registry     = map[reflect.Type]GeneratedEntityMarker{}
)

// RegisteredEntity is a generated type together with the marker that was
// registered for it.
type RegisteredEntity struct {
	Type   reflect.Type
	Marker GeneratedEntityMarker
}

// QualifiedName returns the type's package path and name, joined by a dot.
func (e RegisteredEntity) QualifiedName() string {
	return QualifiedName(e.Type)
}

// RegisterGeneratedEntity records the marker for a generated type. Generated
// code calls this from an init function, which is what makes the marker
// visible at runtime. Registering the same type twice with different markers
// panics.
func RegisterGeneratedEntity(t reflect.Type, m GeneratedEntityMarker) {
	if t.Name() == "" {
		panic(fmt.Sprintf("cannot register unnamed type %v", t))
	}
	registryLock.Lock()
	defer registryLock.Unlock()
	if existing, ok := registry[t]; ok && existing != m {
		panic(fmt.Sprintf("conflicting registration for %s: %+v != %+v", QualifiedName(t), existing, m))
	}
	registry[t] = m
}

// LookupGeneratedEntity returns the marker registered for the given type.
func LookupGeneratedEntity(t reflect.Type) (GeneratedEntityMarker, bool) {
	registryLock.RLock()
	defer registryLock.RUnlock()
	m, ok := registry[t]
	return m, ok
}

// GeneratedEntities returns all registered generated types, sorted by
// qualified name.
func GeneratedEntities() []RegisteredEntity {
	registryLock.RLock()
	ents := make([]RegisteredEntity, 0, len(registry))
	for t, m := range registry {
		ents = append(ents, RegisteredEntity{Type: t, Marker: m})
	}
	registryLock.RUnlock()
	sort.Slice(ents, func(i, j int) bool {
		return ents[i].QualifiedName() < ents[j].QualifiedName()
	})
	return ents
}

// QualifiedName returns "<package path>.<name>" for a named type. Pointer
// types are dereferenced first.
func QualifiedName(t reflect.Type) string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.PkgPath() == "" {
		return t.Name()
	}
	return t.PkgPath() + "." + t.Name()
}

func resetRegistry() {
	registryLock.Lock()
	defer registryLock.Unlock()
	registry = map[reflect.Type]GeneratedEntityMarker{}
}
