// Package iql implements the issue query language served by local sites:
// a small JQL-like filter language over issue fields, compiled to SQLite.
//
//	project = CORE and type in (story, bug) and parent is empty order by updated desc
package iql

import "strings"

// TokenType represents the type of lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIllegal

	// Literals
	TokenIdent  // field names, unquoted values, issue keys
	TokenString // "quoted" or 'quoted'
	TokenNumber // integers and relative dates (-7d)

	// Delimiters
	TokenLParen
	TokenRParen
	TokenComma

	// Comparison operators
	TokenEq          // =
	TokenNeq         // !=
	TokenLt          // <
	TokenGt          // >
	TokenLte         // <=
	TokenGte         // >=
	TokenContains    // ~
	TokenNotContains // !~

	// Keywords
	TokenAnd
	TokenOr
	TokenNot
	TokenIn
	TokenIs
	TokenEmpty
	TokenOrder
	TokenBy
	TokenAsc
	TokenDesc
)

var tokenNames = map[TokenType]string{
	TokenEOF:         "EOF",
	TokenIllegal:     "ILLEGAL",
	TokenIdent:       "IDENT",
	TokenString:      "STRING",
	TokenNumber:      "NUMBER",
	TokenLParen:      "(",
	TokenRParen:      ")",
	TokenComma:       ",",
	TokenEq:          "=",
	TokenNeq:         "!=",
	TokenLt:          "<",
	TokenGt:          ">",
	TokenLte:         "<=",
	TokenGte:         ">=",
	TokenContains:    "~",
	TokenNotContains: "!~",
	TokenAnd:         "AND",
	TokenOr:          "OR",
	TokenNot:         "NOT",
	TokenIn:          "IN",
	TokenIs:          "IS",
	TokenEmpty:       "EMPTY",
	TokenOrder:       "ORDER",
	TokenBy:          "BY",
	TokenAsc:         "ASC",
	TokenDesc:        "DESC",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int // byte offset in the input
}

var keywords = map[string]TokenType{
	"and":   TokenAnd,
	"or":    TokenOr,
	"not":   TokenNot,
	"in":    TokenIn,
	"is":    TokenIs,
	"empty": TokenEmpty,
	"null":  TokenEmpty,
	"order": TokenOrder,
	"by":    TokenBy,
	"asc":   TokenAsc,
	"desc":  TokenDesc,
}

// LookupKeyword returns the keyword token for ident, or TokenIdent.
// Keywords are case-insensitive.
func LookupKeyword(ident string) TokenType {
	if tok, ok := keywords[strings.ToLower(ident)]; ok {
		return tok
	}
	return TokenIdent
}

// IsComparisonOp reports whether t is a comparison operator.
func (t TokenType) IsComparisonOp() bool {
	switch t {
	case TokenEq, TokenNeq, TokenLt, TokenGt, TokenLte, TokenGte, TokenContains, TokenNotContains:
		return true
	}
	return false
}
