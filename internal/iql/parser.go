package iql

import (
	"fmt"
	"strconv"
	"strings"
)

// Parser parses query tokens into an AST.
type Parser struct {
	lexer   *Lexer
	current Token
	peek    Token
}

// NewParser creates a parser for the input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses and validates the input.
func Parse(input string) (*Query, error) {
	q, err := NewParser(input).Parse()
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if err := Validate(q); err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	return q, nil
}

// Parse parses the input and returns the Query AST.
func (p *Parser) Parse() (*Query, error) {
	query := &Query{}

	if p.current.Type != TokenOrder && p.current.Type != TokenEOF {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		query.Filter = expr
	}

	if p.current.Type == TokenOrder {
		orderBy, err := p.parseOrderBy()
		if err != nil {
			return nil, err
		}
		query.OrderBy = orderBy
	}

	if p.current.Type != TokenEOF {
		return nil, fmt.Errorf("unexpected token %q at position %d", p.current.Literal, p.current.Pos)
	}
	return query, nil
}

func (p *Parser) nextToken() {
	p.current = p.peek
	p.peek = p.lexer.NextToken()
}

// expression = term { "or" term }
func (p *Parser) parseExpression() (Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.current.Type == TokenOr {
		p.nextToken()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Left: left, Op: TokenOr, Right: right}
	}
	return left, nil
}

// term = factor { "and" factor }
func (p *Parser) parseTerm() (Expr, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.current.Type == TokenAnd {
		p.nextToken()
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Left: left, Op: TokenAnd, Right: right}
	}
	return left, nil
}

// factor = "not" factor | "(" expression ")" | comparison
func (p *Parser) parseFactor() (Expr, error) {
	switch p.current.Type {
	case TokenNot:
		p.nextToken()
		expr, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return &NotExpr{Expr: expr}, nil

	case TokenLParen:
		p.nextToken()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if p.current.Type != TokenRParen {
			return nil, fmt.Errorf("expected ')' at position %d, got %q", p.current.Pos, p.current.Literal)
		}
		p.nextToken()
		return expr, nil

	default:
		return p.parseComparison()
	}
}

// comparison = field op value
//
//	| field ["not"] "in" "(" values ")"
//	| field "is" ["not"] "empty"
func (p *Parser) parseComparison() (Expr, error) {
	if p.current.Type != TokenIdent {
		return nil, fmt.Errorf("expected field name at position %d, got %q", p.current.Pos, p.current.Literal)
	}
	field := strings.ToLower(p.current.Literal)
	p.nextToken()

	switch {
	case p.current.Type == TokenNot && p.peek.Type == TokenIn:
		p.nextToken()
		p.nextToken()
		return p.parseInExpr(field, true)
	case p.current.Type == TokenIn:
		p.nextToken()
		return p.parseInExpr(field, false)
	case p.current.Type == TokenIs:
		return p.parseEmptyExpr(field)
	}

	if !p.current.Type.IsComparisonOp() {
		return nil, fmt.Errorf("expected operator at position %d, got %q", p.current.Pos, p.current.Literal)
	}
	op := p.current.Type
	p.nextToken()

	value, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return &CompareExpr{Field: field, Op: op, Value: value}, nil
}

func (p *Parser) parseEmptyExpr(field string) (Expr, error) {
	p.nextToken() // IS
	not := false
	if p.current.Type == TokenNot {
		not = true
		p.nextToken()
	}
	if p.current.Type != TokenEmpty {
		return nil, fmt.Errorf("expected 'empty' at position %d, got %q", p.current.Pos, p.current.Literal)
	}
	p.nextToken()
	return &EmptyExpr{Field: field, Not: not}, nil
}

func (p *Parser) parseInExpr(field string, not bool) (Expr, error) {
	if p.current.Type != TokenLParen {
		return nil, fmt.Errorf("expected '(' at position %d, got %q", p.current.Pos, p.current.Literal)
	}
	p.nextToken()

	var values []Value
	for {
		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		values = append(values, value)

		if p.current.Type == TokenComma {
			p.nextToken()
			continue
		}
		break
	}

	if p.current.Type != TokenRParen {
		return nil, fmt.Errorf("expected ')' at position %d, got %q", p.current.Pos, p.current.Literal)
	}
	p.nextToken()

	return &InExpr{Field: field, Values: values, Not: not}, nil
}

func (p *Parser) parseValue() (Value, error) {
	var v Value

	switch p.current.Type {
	case TokenString:
		v = Value{Type: ValueString, Raw: p.current.Literal, String: p.current.Literal}
	case TokenNumber:
		v = parseNumberValue(p.current.Literal)
	case TokenIdent:
		v = parseIdentValue(p.current.Literal)
	case TokenIllegal:
		return v, fmt.Errorf("unterminated or illegal value at position %d", p.current.Pos)
	default:
		return v, fmt.Errorf("expected value at position %d, got %q", p.current.Pos, p.current.Literal)
	}

	p.nextToken()
	return v, nil
}

func parseNumberValue(literal string) Value {
	if n, err := strconv.Atoi(literal); err == nil {
		return Value{Type: ValueInt, Raw: literal, String: literal, Int: n}
	}
	return Value{Type: ValueDate, Raw: literal, String: strings.ToLower(literal)}
}

func parseIdentValue(literal string) Value {
	switch lower := strings.ToLower(literal); lower {
	case "today", "yesterday":
		return Value{Type: ValueDate, Raw: literal, String: lower}
	}
	return Value{Type: ValueString, Raw: literal, String: literal}
}

func (p *Parser) parseOrderBy() ([]OrderTerm, error) {
	p.nextToken() // ORDER

	if p.current.Type != TokenBy {
		return nil, fmt.Errorf("expected 'by' at position %d, got %q", p.current.Pos, p.current.Literal)
	}
	p.nextToken()

	var terms []OrderTerm
	for {
		if p.current.Type != TokenIdent {
			return nil, fmt.Errorf("expected field name at position %d, got %q", p.current.Pos, p.current.Literal)
		}
		term := OrderTerm{Field: strings.ToLower(p.current.Literal)}
		p.nextToken()

		switch p.current.Type {
		case TokenAsc:
			p.nextToken()
		case TokenDesc:
			term.Desc = true
			p.nextToken()
		}
		terms = append(terms, term)

		if p.current.Type == TokenComma {
			p.nextToken()
			continue
		}
		break
	}
	return terms, nil
}
