// Package filter implements a declarative, multi-predicate filter engine for
// in-memory records. Records are arbitrarily nested documents (the shapes
// produced by encoding/json), rules are a closed set of predicate kinds, and
// the engine keeps the records that carry every rule's target field and
// satisfy every rule.
package filter

// Kind discriminates the rule variants.
type Kind string

// Supported rule kinds.
const (
	KindEquality   Kind = "equality"
	KindComparison Kind = "comparison"
	KindString     Kind = "string"
	KindRange      Kind = "range"
	KindBoolean    Kind = "boolean"
)

// Operator is the operator of a rule. Each kind accepts a fixed subset; an
// operator outside that subset never matches.
type Operator string

// Equality operators.
const (
	OperatorEq  Operator = "="
	OperatorNeq Operator = "!="
)

// Comparison operators.
const (
	OperatorGt  Operator = ">"
	OperatorLt  Operator = "<"
	OperatorGte Operator = ">="
	OperatorLte Operator = "<="
)

// String operators.
const (
	OperatorContains    Operator = "contains"
	OperatorNotContains Operator = "notContains"
	OperatorStartsWith  Operator = "startsWith"
	OperatorEndsWith    Operator = "endsWith"
)

// Range operators.
const (
	OperatorBetween    Operator = "between"
	OperatorNotBetween Operator = "notBetween"
)

// Boolean operators.
const (
	OperatorIsTrue    Operator = "isTrue"
	OperatorIsFalse   Operator = "isFalse"
	OperatorIsNull    Operator = "isNull"
	OperatorIsNotNull Operator = "isNotNull"
)

// operatorSets lists the operators each kind understands.
var operatorSets = map[Kind]map[Operator]struct{}{
	KindEquality:   {OperatorEq: {}, OperatorNeq: {}},
	KindComparison: {OperatorGt: {}, OperatorLt: {}, OperatorGte: {}, OperatorLte: {}},
	KindString:     {OperatorContains: {}, OperatorNotContains: {}, OperatorStartsWith: {}, OperatorEndsWith: {}},
	KindRange:      {OperatorBetween: {}, OperatorNotBetween: {}},
	KindBoolean:    {OperatorIsTrue: {}, OperatorIsFalse: {}, OperatorIsNull: {}, OperatorIsNotNull: {}},
}

// Supports reports whether op belongs to the operator set of kind k.
func (k Kind) Supports(op Operator) bool {
	_, ok := operatorSets[k][op]
	return ok
}

// IsKnown reports whether k is one of the five rule kinds.
func (k Kind) IsKnown() bool {
	_, ok := operatorSets[k]
	return ok
}

// Document is a structured record. Values may be scalars, nested documents,
// or sequences.
type Document map[string]any

// Rule is a single filter condition. The set of implementations is closed:
// EqualityRule, ComparisonRule, StringRule, RangeRule, BooleanRule and
// UnknownRule.
type Rule interface {
	// Kind returns the discriminator of the rule.
	Kind() Kind
	// Target returns the path the rule reads: Path when set, else Field
	// split on ".".
	Target() Path
	isRule()
}

// Selector holds the location a rule reads from. Path takes precedence over
// Field.
type Selector struct {
	Field string `json:"field,omitempty"`
	Path  Path   `json:"path,omitempty"`
}

// Target returns the effective path of the selector.
func (s Selector) Target() Path {
	if len(s.Path) > 0 {
		return s.Path
	}
	return ParsePath(s.Field)
}

// EqualityRule matches when the target equals (or, for !=, differs from)
// Value.
type EqualityRule struct {
	Selector
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// ComparisonRule orders a numeric target against a numeric Value.
type ComparisonRule struct {
	Selector
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// StringRule tests a string target against Value. Matching folds case unless
// CaseSensitive is set.
type StringRule struct {
	Selector
	Operator      Operator `json:"operator"`
	Value         string   `json:"value"`
	CaseSensitive bool     `json:"caseSensitive,omitempty"`
}

// RangeRule tests whether the target lies between MinValue and MaxValue.
// Bounds and target may be numbers, times or parsable strings. Inclusive
// defaults to true when nil.
type RangeRule struct {
	Selector
	Operator  Operator `json:"operator"`
	MinValue  any      `json:"minValue"`
	MaxValue  any      `json:"maxValue"`
	Inclusive *bool    `json:"inclusive,omitempty"`
}

// IsInclusive reports whether the bounds count as matches.
func (r RangeRule) IsInclusive() bool {
	return r.Inclusive == nil || *r.Inclusive
}

// BooleanRule tests the target for true, false, or null.
type BooleanRule struct {
	Selector
	Operator Operator `json:"operator"`
}

// UnknownRule carries a rule whose kind is not recognised. It never matches.
type UnknownRule struct {
	Selector
	Type     Kind     `json:"type"`
	Operator Operator `json:"operator,omitempty"`
}

func (EqualityRule) Kind() Kind   { return KindEquality }
func (ComparisonRule) Kind() Kind { return KindComparison }
func (StringRule) Kind() Kind     { return KindString }
func (RangeRule) Kind() Kind      { return KindRange }
func (BooleanRule) Kind() Kind    { return KindBoolean }
func (r UnknownRule) Kind() Kind  { return r.Type }

func (EqualityRule) isRule()   {}
func (ComparisonRule) isRule() {}
func (StringRule) isRule()     {}
func (RangeRule) isRule()      {}
func (BooleanRule) isRule()    {}
func (UnknownRule) isRule()    {}

// BoolPtr returns a pointer to b, for RangeRule.Inclusive.
func BoolPtr(b bool) *bool {
	return &b
}
