package nanoql

import (
	"strings"
	"unicode"
)

// TokenType represents the type of a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIllegal
	TokenIdent
	TokenString
	TokenColon
	TokenLParen
	TokenRParen
	TokenComma
	TokenAnd
	TokenOr
	TokenNot
	TokenIn
	TokenEq  // =
	TokenNeq // !=
	TokenGt  // >
	TokenGte // >=
	TokenLt  // <
	TokenLte // <=
)

// Token represents a lexical token.
type Token struct {
	Type  TokenType
	Value string
	Pos   int
}

// Lexer tokenizes NanoQL input.
type Lexer struct {
	input string
	pos   int
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, pos: 0}
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: l.pos}
	}

	start := l.pos
	ch := l.input[l.pos]

	switch ch {
	case ':':
		l.pos++
		return Token{Type: TokenColon, Value: ":", Pos: start}
	case '(':
		l.pos++
		return Token{Type: TokenLParen, Value: "(", Pos: start}
	case ')':
		l.pos++
		return Token{Type: TokenRParen, Value: ")", Pos: start}
	case ',':
		l.pos++
		return Token{Type: TokenComma, Value: ",", Pos: start}
	case '=':
		l.pos++
		return Token{Type: TokenEq, Value: "=", Pos: start}
	case '!':
		if l.peek('=') {
			l.pos += 2
			return Token{Type: TokenNeq, Value: "!=", Pos: start}
		}
	case '>':
		if l.peek('=') {
			l.pos += 2
			return Token{Type: TokenGte, Value: ">=", Pos: start}
		}
		l.pos++
		return Token{Type: TokenGt, Value: ">", Pos: start}
	case '<':
		if l.peek('=') {
			l.pos += 2
			return Token{Type: TokenLte, Value: "<=", Pos: start}
		}
		l.pos++
		return Token{Type: TokenLt, Value: "<", Pos: start}
	case '"':
		return l.readString()
	}

	if isIdentChar(ch) {
		return l.readIdent()
	}

	l.pos++
	return Token{Type: TokenIllegal, Value: string(ch), Pos: start}
}

func (l *Lexer) peek(ch byte) bool {
	return l.pos+1 < len(l.input) && l.input[l.pos+1] == ch
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
}

// readString reads a double-quoted string. A backslash escapes the next byte.
// An unterminated string is returned as TokenIllegal.
func (l *Lexer) readString() Token {
	start := l.pos
	l.pos++ // skip opening quote
	var sb strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case ch == '"':
			l.pos++
			return Token{Type: TokenString, Value: sb.String(), Pos: start}
		case ch == '\\' && l.pos+1 < len(l.input):
			sb.WriteByte(l.input[l.pos+1])
			l.pos += 2
		default:
			sb.WriteByte(ch)
			l.pos++
		}
	}
	return Token{Type: TokenIllegal, Value: l.input[start:], Pos: start}
}

func (l *Lexer) readIdent() Token {
	start := l.pos
	for l.pos < len(l.input) && isIdentChar(l.input[l.pos]) {
		l.pos++
	}
	value := l.input[start:l.pos]

	switch upper := strings.ToUpper(value); upper {
	case "AND":
		return Token{Type: TokenAnd, Value: upper, Pos: start}
	case "OR":
		return Token{Type: TokenOr, Value: upper, Pos: start}
	case "NOT":
		return Token{Type: TokenNot, Value: upper, Pos: start}
	case "IN":
		return Token{Type: TokenIn, Value: upper, Pos: start}
	}

	return Token{Type: TokenIdent, Value: value, Pos: start}
}

func isIdentChar(ch byte) bool {
	r := rune(ch)
	return unicode.IsLetter(r) || unicode.IsDigit(r) || ch == '_' || ch == '-' || ch == '.' || ch >= 0x80
}
