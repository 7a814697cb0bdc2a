package parser

import (
	"go/constant"
	"text/scanner"
)

// Annotation is one parsed "@pkg.Name(...)" or "@pkg.Name{...}" occurrence.
// Value is nil for a bare annotation. A brace-delimited value is always an
// AggregateNode.
type Annotation struct {
	Type  Identifier
	Value ExpressionNode
	Pos   scanner.Position
}

// Identifier is a possibly package-qualified name.
type Identifier struct {
	PackageAlias string
	Name         string
	Pos          scanner.Position
}

func (id Identifier) String() string {
	if id.PackageAlias != "" {
		return id.PackageAlias + "." + id.Name
	}
	return id.Name
}

// ExpressionNode is the value of an annotation or of one of its elements.
// Implementations are LiteralNode, RefNode and AggregateNode.
type ExpressionNode interface {
	Pos() scanner.Position
}

// LiteralNode holds a string, number or boolean literal. Val is nil for the
// nil literal.
type LiteralNode struct {
	Val constant.Value
	pos scanner.Position
}

func (n LiteralNode) Pos() scanner.Position { return n.pos }

func (n LiteralNode) IsNil() bool { return n.Val == nil }

// RefNode names a constant, declared either in the annotated package or in an
// imported one.
type RefNode struct {
	Ident Identifier
}

func (n RefNode) Pos() scanner.Position { return n.Ident.Pos }

// AggregateNode is a composite value in braces. It becomes a struct, a slice
// or a map depending on the type it is assigned to.
type AggregateNode struct {
	Contents []Element
	pos      scanner.Position
}

func (n AggregateNode) Pos() scanner.Position { return n.pos }

// HasKeys reports whether at least one element is written as "key: value".
func (n AggregateNode) HasKeys() bool {
	for _, e := range n.Contents {
		if e.HasKey {
			return true
		}
	}
	return false
}

// Element is an entry of an aggregate. Key is only set when HasKey is true.
type Element struct {
	Key    ExpressionNode
	HasKey bool
	Value  ExpressionNode
}

func (e Element) Pos() scanner.Position {
	if !e.HasKey {
		return e.Value.Pos()
	}
	return e.Key.Pos()
}
