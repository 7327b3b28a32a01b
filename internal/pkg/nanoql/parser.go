package nanoql

import (
	"errors"
	"fmt"
)

// ErrSyntax is wrapped by every parse error.
var ErrSyntax = errors.New("nanoql syntax error")

// Parser parses NanoQL queries into an AST.
type Parser struct {
	lexer   *Lexer
	current Token
}

// Parse parses the input string and returns the AST root node. Blank input
// yields a nil node.
func Parse(input string) (Node, error) {
	p := &Parser{lexer: NewLexer(input)}
	p.advance()
	if p.current.Type == TokenEOF {
		return nil, nil
	}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.current.Type != TokenEOF {
		return nil, p.errorf("unexpected %s", describe(p.current))
	}
	return node, nil
}

func (p *Parser) advance() {
	p.current = p.lexer.NextToken()
}

func (p *Parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", ErrSyntax, p.current.Pos, fmt.Sprintf(format, args...))
}

// parseOr handles OR expressions (lowest precedence).
func (p *Parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.current.Type == TokenOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: "OR", Left: left, Right: right}
	}

	return left, nil
}

// parseAnd handles AND expressions. Juxtaposed terms are an implicit AND.
func (p *Parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}

	for {
		switch p.current.Type {
		case TokenAnd:
			p.advance()
		case TokenIdent, TokenString, TokenLParen, TokenNot:
		default:
			return left, nil
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: "AND", Left: left, Right: right}
	}
}

// parseNot handles NOT expressions.
func (p *Parser) parseNot() (Node, error) {
	if p.current.Type == TokenNot {
		p.advance()
		expr, err := p.parseNot() // NOT is right-associative
		if err != nil {
			return nil, err
		}
		return NotExpr{Expr: expr}, nil
	}
	return p.parsePrimary()
}

// parsePrimary handles (expr), key:value, key op value, key IN (...) and
// bare full-text terms.
func (p *Parser) parsePrimary() (Node, error) {
	switch p.current.Type {
	case TokenLParen:
		p.advance()
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.current.Type != TokenRParen {
			return nil, p.errorf("expected ')' but got %s", describe(p.current))
		}
		p.advance()
		return expr, nil

	case TokenString:
		value := p.current.Value
		p.advance()
		return MatchExpr{Value: Literal{Text: value, Quoted: true}, Op: "CONTAINS"}, nil

	case TokenIdent:
		key := p.current.Value
		p.advance()

		switch p.current.Type {
		case TokenColon, TokenEq:
			p.advance()
			return p.parseValue(key, "=")
		case TokenNeq, TokenGt, TokenGte, TokenLt, TokenLte:
			op := p.current.Value
			p.advance()
			return p.parseValue(key, op)
		case TokenIn:
			p.advance()
			return p.parseList(key)
		}

		return MatchExpr{Value: Literal{Text: key}, Op: "CONTAINS"}, nil

	case TokenEOF:
		return nil, p.errorf("unexpected end of query")

	default:
		return nil, p.errorf("unexpected %s", describe(p.current))
	}
}

// parseValue parses the value part after key: or key op.
func (p *Parser) parseValue(key, op string) (Node, error) {
	lit, err := p.parseLiteral()
	if err != nil {
		return nil, p.errorf("expected value after '%s%s' but got %s", key, op, describe(p.current))
	}
	return MatchExpr{Key: key, Value: lit, Op: op}, nil
}

// parseList parses (v1, v2, ...) after key IN. The list may be empty.
func (p *Parser) parseList(key string) (Node, error) {
	if p.current.Type != TokenLParen {
		return nil, p.errorf("expected '(' after '%s IN' but got %s", key, describe(p.current))
	}
	p.advance()

	in := InExpr{Key: key, Values: []Literal{}}
	if p.current.Type == TokenRParen {
		p.advance()
		return in, nil
	}
	for {
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, p.errorf("expected value in list but got %s", describe(p.current))
		}
		in.Values = append(in.Values, lit)

		switch p.current.Type {
		case TokenComma:
			p.advance()
		case TokenRParen:
			p.advance()
			return in, nil
		default:
			return nil, p.errorf("expected ',' or ')' but got %s", describe(p.current))
		}
	}
}

func (p *Parser) parseLiteral() (Literal, error) {
	switch p.current.Type {
	case TokenString:
		lit := Literal{Text: p.current.Value, Quoted: true}
		p.advance()
		return lit, nil
	case TokenIdent:
		lit := Literal{Text: p.current.Value}
		p.advance()
		return lit, nil
	}
	return Literal{}, ErrSyntax
}

func describe(t Token) string {
	switch t.Type {
	case TokenEOF:
		return "end of query"
	case TokenIllegal:
		return fmt.Sprintf("illegal input %q", t.Value)
	}
	return fmt.Sprintf("%q", t.Value)
}
