package nanoql

// Node is the interface implemented by all AST nodes.
type Node interface {
	node() // marker method
}

// BinaryExpr represents a binary logical expression (AND, OR).
type BinaryExpr struct {
	Op    string // "AND" or "OR"
	Left  Node
	Right Node
}

func (BinaryExpr) node() {}

// Literal is a value as written in the query. Quoted literals are always
// strings; bare ones may read as numbers, booleans or null.
type Literal struct {
	Text   string
	Quoted bool
}

// MatchExpr represents a key/value comparison.
// If Key is empty, it represents a full-text search.
type MatchExpr struct {
	Key   string  // dotted field path. Empty for full-text.
	Value Literal // The value to compare against.
	Op    string  // "=", "!=", ">", ">=", "<", "<=" or "CONTAINS"
}

func (MatchExpr) node() {}

// InExpr represents key IN (v1, v2, ...).
type InExpr struct {
	Key    string
	Values []Literal
}

func (InExpr) node() {}

// NotExpr represents a NOT expression that negates its inner expression.
type NotExpr struct {
	Expr Node
}

func (NotExpr) node() {}
