package clash

// Invoices asks for an unexported entity.
//
// @entitybug.GenerateEntity("invoice")
type Invoices struct{}

// Bills asks for the same entity spelled differently.
//
// @entitybug.GenerateEntity("Invoice")
type Bills struct{}
