package badvalue

// Thing leaves out the required entity name.
//
// @entitybug.GenerateEntity{PersistenceUnit: "orders-pu"}
type Thing struct{}
