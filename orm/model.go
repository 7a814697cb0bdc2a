// Package orm is the data-mapping layer that generated entities are handed to.
// It turns registered type names into entity models, by reading and analyzing
// the artifact that declares each type, and it manages one sqlite database per
// persistence unit.
package orm

import "sort"

// AdditionalModel asks the data-mapping layer to manage an extra entity type
// in the given persistence units.
type AdditionalModel struct {
	// ClassName is the qualified name of the entity type.
	ClassName        string
	PersistenceUnits []string
}

// NewAdditionalModel returns a model for className. Persistence units are
// de-duplicated and sorted.
func NewAdditionalModel(className string, units ...string) AdditionalModel {
	seen := map[string]struct{}{}
	var pus []string
	for _, u := range units {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		pus = append(pus, u)
	}
	sort.Strings(pus)
	return AdditionalModel{ClassName: className, PersistenceUnits: pus}
}

// Column is one mapped field of an entity.
type Column struct {
	// Name is the column name.
	Name string
	// Field is the name of the Go struct field.
	Field string
	// SQLType is the declared type of the column.
	SQLType    string
	PrimaryKey bool
	NotNull    bool
}

// EntityModel is the result of enhancing an AdditionalModel.
type EntityModel struct {
	ClassName        string
	Table            string
	Columns          []Column
	PersistenceUnits []string
}

// PrimaryKey returns the entity's primary key column, if it has one.
func (m EntityModel) PrimaryKey() (Column, bool) {
	for _, c := range m.Columns {
		if c.PrimaryKey {
			return c, true
		}
	}
	return Column{}, false
}
