package processor

import (
	"fmt"
	"go/token"
)

// ErrorWithPosition reports a problem at a specific place in a source file,
// usually an annotation that is malformed or used where it is not allowed.
type ErrorWithPosition struct {
	err error
	pos token.Position
}

// NewErrorWithPosition attaches pos to err.
func NewErrorWithPosition(pos token.Position, err error) *ErrorWithPosition {
	return &ErrorWithPosition{err: err, pos: pos}
}

// Error formats the error as "file:line:col: message".
func (e *ErrorWithPosition) Error() string {
	return fmt.Sprintf("%v: %v", e.pos, e.err)
}

// Pos is the location of the problem.
func (e *ErrorWithPosition) Pos() token.Position {
	return e.pos
}

// Underlying is the error without position information.
func (e *ErrorWithPosition) Underlying() error {
	return e.err
}

func (e *ErrorWithPosition) Unwrap() error {
	return e.err
}
