// Package generated is an application whose entities have already been
// generated.
package generated

// MyService asks for an entity in the default persistence unit.
//
// @entitybug.GenerateEntity("MyTest")
type MyService struct{}

// OrderService asks for an entity in the orders persistence unit.
//
// @entitybug.GenerateEntity{Value: "Order", PersistenceUnit: "orders-pu"}
type OrderService struct{}
