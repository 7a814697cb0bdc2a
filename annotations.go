package entitybug

// DefaultPersistenceUnit is the persistence unit that entities belong to when
// their annotations do not name one.
const DefaultPersistenceUnit = "<default>"

// GeneratedTable is the table that every generated entity is mapped to.
const GeneratedTable = "generated_entity"

// GenerateEntity is an annotation that requests a companion entity type. It is
// placed in the doc comment of a top-level type:
//
//    // @entitybug.GenerateEntity("MyTest")
//    type MyService struct{}
//
// Running the generator on the package containing this type produces a type
// named MyTestGeneratedEntity in the same package. The long form also accepts
// a persistence unit:
//
//    // @entitybug.GenerateEntity{Value: "Order", PersistenceUnit: "orders-pu"}
//
// When the annotation's value is a lone string (the short form above), it is
// assigned to Value.
type GenerateEntity struct {
	// Value is the base name of the generated type. The generated type is
	// named Value + "GeneratedEntity", so Value must be a Go identifier. A
	// lower-case first letter makes the generated type unexported.
	Value string `annotation:"required"`

	// PersistenceUnit names the group the generated entity is registered
	// with. Empty means DefaultPersistenceUnit.
	PersistenceUnit string
}

// GeneratedEntityMarker is stamped onto every generated type. Its values are
// copied from the GenerateEntity annotation that produced the type, and it is
// the only thing the discovery step relies on to find generated types.
//
// Unlike GenerateEntity, the marker is retained at runtime: generated files
// register it with RegisterGeneratedEntity from an init function.
type GeneratedEntityMarker struct {
	Name string `annotation:"required"`

	PersistenceUnit string
}

// Table is a relational-mapping annotation that names the table an entity
// type is stored in.
type Table string

// ResolvePersistenceUnit returns pu, or DefaultPersistenceUnit if pu is empty.
func ResolvePersistenceUnit(pu string) string {
	if pu == "" {
		return DefaultPersistenceUnit
	}
	return pu
}

// ElementType is the kind of declaration an annotation was found on.
type ElementType int

const (
	// Types are top-level, named type declarations. They are the only
	// elements this package's annotations may be placed on.
	Types ElementType = iota
	// Functions are top-level functions and methods.
	Functions
	// Variables are package-level variables.
	Variables
	// Constants are package-level constants.
	Constants
	// Fields are fields of top-level struct types.
	Fields
)

func (et ElementType) String() string {
	switch et {
	case Types:
		return "types"
	case Functions:
		return "functions"
	case Variables:
		return "variables"
	case Constants:
		return "constants"
	case Fields:
		return "fields"
	default:
		return "?"
	}
}
