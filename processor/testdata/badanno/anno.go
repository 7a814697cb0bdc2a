package badanno

// Thing uses an annotation that does not exist.
//
// @entitybug.NoSuchThing("x")
type Thing struct{}
