package badfunc

// Helper cannot be annotated.
//
// @entitybug.GenerateEntity("Helper")
func Helper() {}
