package filter

// ApplyRule reports whether record satisfies rule. The target value is read
// from the rule's path, or its field when no path is set. Nil rules and
// unrecognised kinds never match.
func ApplyRule(record any, rule Rule) bool {
	rule = indirect(rule)
	if rule == nil {
		return false
	}
	value, found := Resolve(record, rule.Target())

	switch r := rule.(type) {
	case EqualityRule:
		return evaluateEquality(value, found, r)
	case ComparisonRule:
		return evaluateComparison(value, found, r)
	case StringRule:
		return evaluateString(value, found, r)
	case RangeRule:
		return evaluateRange(value, found, r)
	case BooleanRule:
		return evaluateBoolean(value, found, r)
	default:
		return false
	}
}

// indirect turns pointer variants into values so callers may pass either.
// A nil pointer becomes a nil Rule.
func indirect(rule Rule) Rule {
	switch r := rule.(type) {
	case *EqualityRule:
		if r == nil {
			return nil
		}
		return *r
	case *ComparisonRule:
		if r == nil {
			return nil
		}
		return *r
	case *StringRule:
		if r == nil {
			return nil
		}
		return *r
	case *RangeRule:
		if r == nil {
			return nil
		}
		return *r
	case *BooleanRule:
		if r == nil {
			return nil
		}
		return *r
	case *UnknownRule:
		if r == nil {
			return nil
		}
		return *r
	default:
		return rule
	}
}

// target returns the path a rule reads, or nil for a nil rule.
func target(rule Rule) Path {
	rule = indirect(rule)
	if rule == nil {
		return nil
	}
	return rule.Target()
}
