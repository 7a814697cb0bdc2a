// Package parser parses the annotation syntax used in doc comments.
//
// An annotation starts with '@' followed by the (optionally package-qualified)
// name of the annotation type and an optional value. The value is either a
// single expression in parentheses or an aggregate in braces:
//
//    @NoValue
//    @pkg.SimpleValue("foo")
//    @pkg.StructValue{Name: "foo", Count: 3}
//    @pkg.SliceValue{1, 2, 3}
//
// Each annotation ends at the end of its line, though an aggregate value may
// span multiple lines.
package parser

import (
	"errors"
	"fmt"
	"go/constant"
	"go/token"
	"io"
	"text/scanner"
)

// ParseError describes a syntax error in annotation source.
type ParseError struct {
	err error
	pos scanner.Position
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", e.pos.Line, e.pos.Column, e.err)
}

func (e *ParseError) Underlying() error {
	return e.err
}

func (e *ParseError) Unwrap() error {
	return e.err
}

func (e *ParseError) Pos() scanner.Position {
	return e.pos
}

type annoParser struct {
	l     *lexer
	cur   lexeme
	depth int
	err   *ParseError
}

// ParseAnnotations parses all annotations in the given input. The filename is
// only used for positions in the returned AST and errors.
func ParseAnnotations(filename string, r io.Reader) ([]Annotation, *ParseError) {
	p := &annoParser{l: newLexer(filename, r)}
	p.advance()

	var res []Annotation
	for {
		for p.cur.tok == tokEOL {
			p.advance()
		}
		if p.cur.tok == tokEOF {
			return res, nil
		}
		a, ok := p.parseAnnotation()
		if !ok {
			return nil, p.err
		}
		res = append(res, a)
	}
}

func (p *annoParser) advance() {
	for {
		p.cur = p.l.lex()
		// inside of braces and parentheses, line breaks are not significant
		if p.cur.tok != tokEOL || p.depth == 0 {
			break
		}
	}
	if p.cur.tok == tokError && p.err == nil {
		p.err = &ParseError{err: p.l.err, pos: p.cur.pos}
	}
}

func (p *annoParser) fail(format string, args ...interface{}) bool {
	if p.err == nil {
		p.err = &ParseError{err: fmt.Errorf(format, args...), pos: p.cur.pos}
	}
	return false
}

func (p *annoParser) unexpected(want string) bool {
	if p.cur.tok == tokError {
		return false
	}
	got := tokenName(p.cur.tok)
	if p.cur.tok == tokIdent || p.cur.val != nil {
		got = fmt.Sprintf("%s %s", got, p.cur.text)
	}
	return p.fail("syntax error: unexpected %s, expecting %s", got, want)
}

func (p *annoParser) expect(tok int) bool {
	if p.cur.tok != tok {
		return p.unexpected(tokenName(tok))
	}
	p.advance()
	return true
}

func (p *annoParser) parseAnnotation() (Annotation, bool) {
	var a Annotation
	a.Pos = p.cur.pos
	if !p.expect('@') {
		return a, false
	}
	id, ok := p.parseIdentifier()
	if !ok {
		return a, false
	}
	a.Type = id

	switch p.cur.tok {
	case '(':
		p.depth++
		p.advance()
		v, ok := p.parseValue()
		if !ok {
			return a, false
		}
		p.depth--
		if !p.expect(')') {
			return a, false
		}
		a.Value = v
	case '{':
		v, ok := p.parseAggregate()
		if !ok {
			return a, false
		}
		a.Value = v
	}

	switch p.cur.tok {
	case tokEOL:
		p.advance()
	case tokEOF:
	default:
		return a, p.unexpected(tokenName(tokEOL))
	}
	return a, true
}

func (p *annoParser) parseIdentifier() (Identifier, bool) {
	var id Identifier
	if p.cur.tok != tokIdent {
		return id, p.unexpected(tokenName(tokIdent))
	}
	id.Pos = p.cur.pos
	id.Name = p.cur.text
	p.advance()
	if p.cur.tok == '.' {
		p.advance()
		if p.cur.tok != tokIdent {
			return id, p.unexpected(tokenName(tokIdent))
		}
		id.PackageAlias = id.Name
		id.Name = p.cur.text
		p.advance()
	}
	return id, true
}

func (p *annoParser) parseValue() (ExpressionNode, bool) {
	switch p.cur.tok {
	case tokString, tokRawString, tokInt, tokFloat, tokRune:
		n := LiteralNode{Val: p.cur.val, pos: p.cur.pos}
		p.advance()
		return n, true

	case '-':
		pos := p.cur.pos
		p.advance()
		if p.cur.tok != tokInt && p.cur.tok != tokFloat {
			return nil, p.unexpected("numeric literal")
		}
		n := LiteralNode{Val: constant.UnaryOp(token.SUB, p.cur.val, 0), pos: pos}
		p.advance()
		return n, true

	case tokIdent:
		switch p.cur.text {
		case "true", "false":
			n := LiteralNode{Val: constant.MakeBool(p.cur.text == "true"), pos: p.cur.pos}
			p.advance()
			return n, true
		case "nil":
			n := LiteralNode{pos: p.cur.pos}
			p.advance()
			return n, true
		}
		id, ok := p.parseIdentifier()
		if !ok {
			return nil, false
		}
		return RefNode{Ident: id}, true

	case '{':
		return p.parseAggregate()

	default:
		return nil, p.unexpected("value")
	}
}

func (p *annoParser) parseAggregate() (ExpressionNode, bool) {
	agg := AggregateNode{pos: p.cur.pos}
	p.depth++
	if !p.expect('{') {
		return nil, false
	}
	for p.cur.tok != '}' {
		var el Element
		v, ok := p.parseValue()
		if !ok {
			return nil, false
		}
		if p.cur.tok == ':' {
			p.advance()
			el.Key = v
			el.HasKey = true
			if v, ok = p.parseValue(); !ok {
				return nil, false
			}
		}
		el.Value = v
		agg.Contents = append(agg.Contents, el)

		if p.cur.tok == ',' {
			p.advance()
			continue
		}
		if p.cur.tok != '}' {
			return nil, p.unexpected("',' or '}'")
		}
	}
	p.depth--
	if !p.expect('}') {
		return nil, false
	}
	return agg, true
}

// ErrNoAnnotations is returned by ParseAnnotation when the input holds no
// annotation at all.
var ErrNoAnnotations = errors.New("no annotations found")

// ParseAnnotation parses input that must contain exactly one annotation.
func ParseAnnotation(filename string, r io.Reader) (Annotation, error) {
	annos, err := ParseAnnotations(filename, r)
	if err != nil {
		return Annotation{}, err
	}
	switch len(annos) {
	case 0:
		return Annotation{}, ErrNoAnnotations
	case 1:
		return annos[0], nil
	default:
		return Annotation{}, fmt.Errorf("expecting one annotation, found %d", len(annos))
	}
}
