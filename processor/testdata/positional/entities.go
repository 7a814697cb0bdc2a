package positional

// OrderGeneratedEntity has its marker written with positional values.
//
// @entitybug.GeneratedEntityMarker{"Order", "orders-pu"}
type OrderGeneratedEntity struct{}

// MyTestGeneratedEntity only names the entity.
//
// @entitybug.GeneratedEntityMarker{"MyTest"}
type MyTestGeneratedEntity struct{}
