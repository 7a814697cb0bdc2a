// Package app is an application that asks for generated entities.
package app

import "fmt"

// MyService is annotated with the short form.
//
// @entitybug.GenerateEntity("MyTest")
type MyService struct{}

// OrderService refers to a constant for its persistence unit.
//
// @entitybug.GenerateEntity{Value: "Order", PersistenceUnit: ordersUnit}
// @schema.Name("orders")
type OrderService struct{}

const ordersUnit = "orders-pu"

// Greeting is not annotated; the indented code below is not an annotation:
//
//    @entitybug.GenerateEntity("NotMe")
func Greeting() string {
	return fmt.Sprint("hello")
}
