package badfield

// Thing has an annotated field.
type Thing struct {
	// @entitybug.Table("things")
	Name string
}
