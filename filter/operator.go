package filter

// Operator selects how a leaf compares a resolved document value against its
// literal. It doubles as the compiler's current comparison mode.
type Operator uint8

const (
	OpEq Operator = iota
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpIn
	OpNin
	OpAnd
)

var operatorKeywords = [...]string{
	OpEq:  "$eq",
	OpNe:  "$ne",
	OpGt:  "$gt",
	OpGte: "$gte",
	OpLt:  "$lt",
	OpLte: "$lte",
	OpIn:  "$in",
	OpNin: "$nin",
	OpAnd: "$and",
}

// String returns the operator keyword, e.g. "$gte".
func (op Operator) String() string {
	if int(op) < len(operatorKeywords) {
		return operatorKeywords[op]
	}
	return "$?"
}

// IsOrdering reports whether op is one of $gt, $gte, $lt or $lte.
func (op Operator) IsOrdering() bool {
	return op >= OpGt && op <= OpLte
}

var operatorsByKeyword = func() map[string]Operator {
	m := make(map[string]Operator, len(operatorKeywords))
	for op, kw := range operatorKeywords {
		m[kw] = Operator(op)
	}
	return m
}()

// unsupportedOperators are reserved keywords without matching behaviour.
// They are never treated as field names.
var unsupportedOperators = map[string]struct{}{
	"$or":        {},
	"$nor":       {},
	"$not":       {},
	"$exists":    {},
	"$type":      {},
	"$regex":     {},
	"$where":     {},
	"$elemMatch": {},
	"$all":       {},
	"$size":      {},
	"$mod":       {},
}

// ParseOperator maps a supported keyword to its Operator.
func ParseOperator(keyword string) (Operator, bool) {
	op, ok := operatorsByKeyword[keyword]
	return op, ok
}

// IsReserved reports whether key is an operator keyword, supported or not.
func IsReserved(key string) bool {
	if _, ok := operatorsByKeyword[key]; ok {
		return true
	}
	_, ok := unsupportedOperators[key]
	return ok
}

// IsUnsupported reports whether key is reserved but has no matching behaviour.
func IsUnsupported(key string) bool {
	_, ok := unsupportedOperators[key]
	return ok
}
