package parser

import (
	"errors"
	"go/constant"
	"go/token"
	"io"
	"strings"
	"text/scanner"
)

// Token kinds. Punctuation is represented by the rune itself, so these are all
// negative.
const (
	tokEOF = scanner.EOF
	tokEOL = -(iota + 100)
	tokIdent
	tokString
	tokRawString
	tokInt
	tokFloat
	tokRune
	tokError
)

func tokenName(tok int) string {
	switch tok {
	case tokEOF:
		return "end of input"
	case tokEOL:
		return "end-of-line"
	case tokIdent:
		return "identifier"
	case tokString:
		return "string literal"
	case tokRawString:
		return "raw string literal"
	case tokInt:
		return "int literal"
	case tokFloat:
		return "float literal"
	case tokRune:
		return "rune literal"
	}
	return "'" + string(rune(tok)) + "'"
}

// literalKinds maps scanner tokens to token kinds and the go/token kind
// used to evaluate their text.
var literalKinds = map[rune]struct {
	tok  int
	kind token.Token
}{
	scanner.Int:       {tokInt, token.INT},
	scanner.Float:     {tokFloat, token.FLOAT},
	scanner.Char:      {tokRune, token.CHAR},
	scanner.String:    {tokString, token.STRING},
	scanner.RawString: {tokRawString, token.STRING},
}

// continuationRunes are the tokens after which a line break does not end the
// annotation.
const continuationRunes = ",.{([:-"

type lexeme struct {
	tok  int
	text string
	val  constant.Value
	pos  scanner.Position
}

type lexer struct {
	s    scanner.Scanner
	err  error
	prev int
}

func newLexer(filename string, r io.Reader) *lexer {
	l := &lexer{}
	l.s.Init(r)
	l.s.Filename = filename
	l.s.Mode &^= scanner.ScanComments | scanner.SkipComments
	// whitespace is skipped in lex, so that Pos reports where tokens start
	l.s.Whitespace = 0
	l.s.Error = func(_ *scanner.Scanner, msg string) {
		l.err = errors.New(msg)
	}
	return l
}

func (l *lexer) lex() lexeme {
	for l.err == nil {
		pos := l.s.Pos()
		r := l.s.Scan()
		if l.err != nil {
			return lexeme{tok: tokError, pos: pos}
		}
		text := l.s.TokenText()

		var lx lexeme
		switch r {
		case ' ', '\t', '\r':
			continue
		case '\n':
			if l.prev > 0 && strings.ContainsRune(continuationRunes, rune(l.prev)) {
				continue
			}
			lx = lexeme{tok: tokEOL, text: text, pos: pos}
		case scanner.EOF:
			return lexeme{tok: tokEOF, pos: pos}
		case scanner.Ident:
			lx = lexeme{tok: tokIdent, text: text, pos: pos}
		default:
			lx = lexeme{tok: int(r), text: text, pos: pos}
			if k, ok := literalKinds[r]; ok {
				lx.tok = k.tok
				lx.val = constant.MakeFromLiteral(text, k.kind, 0)
				if lx.val.Kind() == constant.Unknown {
					l.err = errors.New("malformed literal " + text)
					return lexeme{tok: tokError, pos: pos}
				}
			}
		}
		l.prev = lx.tok
		return lx
	}
	return lexeme{tok: tokError, pos: l.s.Pos()}
}
