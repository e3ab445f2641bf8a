package iql

// Expr is a filter expression node.
type Expr interface {
	expr()
}

// Query is a parsed query.
type Query struct {
	Filter  Expr        // nil for ORDER BY only queries
	OrderBy []OrderTerm // may be empty
}

// BinaryExpr represents "expr AND/OR expr".
type BinaryExpr struct {
	Left  Expr
	Op    TokenType // TokenAnd or TokenOr
	Right Expr
}

// NotExpr represents "NOT expr".
type NotExpr struct {
	Expr Expr
}

// CompareExpr represents "field op value".
type CompareExpr struct {
	Field string
	Op    TokenType
	Value Value
}

// InExpr represents "field [NOT] IN (values)".
type InExpr struct {
	Field  string
	Values []Value
	Not    bool
}

// EmptyExpr represents "field IS [NOT] EMPTY".
type EmptyExpr struct {
	Field string
	Not   bool
}

func (*BinaryExpr) expr()  {}
func (*NotExpr) expr()     {}
func (*CompareExpr) expr() {}
func (*InExpr) expr()      {}
func (*EmptyExpr) expr()   {}

// ValueType indicates the type of a Value.
type ValueType int

const (
	ValueString ValueType = iota
	ValueInt
	ValueDate // today, yesterday, -7d, -2w, ISO dates
)

// Value is a literal in a query.
type Value struct {
	Type   ValueType
	Raw    string
	String string
	Int    int
}

// OrderTerm is one ORDER BY term.
type OrderTerm struct {
	Field string
	Desc  bool
}
