package filter

import "strings"

// The evaluators below receive the resolved value (found is false when the
// target path did not resolve) and never panic. Operators outside a kind's
// set evaluate to false.

func evaluateEquality(value any, found bool, rule EqualityRule) bool {
	var equal bool
	if found {
		equal = valuesEqual(value, rule.Value)
	}
	switch rule.Operator {
	case OperatorEq:
		return equal
	case OperatorNeq:
		return !equal
	default:
		return false
	}
}

func evaluateComparison(value any, found bool, rule ComparisonRule) bool {
	if !found {
		return false
	}
	actual, ok := ToFloat64(value)
	if !ok {
		return false
	}
	expected, ok := ToFloat64(rule.Value)
	if !ok {
		return false
	}
	switch rule.Operator {
	case OperatorGt:
		return actual > expected
	case OperatorLt:
		return actual < expected
	case OperatorGte:
		return actual >= expected
	case OperatorLte:
		return actual <= expected
	default:
		return false
	}
}

func evaluateString(value any, found bool, rule StringRule) bool {
	if !found {
		return false
	}
	target, ok := value.(string)
	if !ok {
		return false
	}
	match := rule.Value
	if !rule.CaseSensitive {
		target = strings.ToLower(target)
		match = strings.ToLower(match)
	}
	switch rule.Operator {
	case OperatorContains:
		return strings.Contains(target, match)
	case OperatorNotContains:
		return !strings.Contains(target, match)
	case OperatorStartsWith:
		return strings.HasPrefix(target, match)
	case OperatorEndsWith:
		return strings.HasSuffix(target, match)
	default:
		return false
	}
}

func evaluateRange(value any, found bool, rule RangeRule) bool {
	if !found {
		return false
	}
	v, lo, hi := Normalize(value), Normalize(rule.MinValue), Normalize(rule.MaxValue)
	if !v.Comparable() || !lo.Comparable() || !hi.Comparable() {
		return false
	}
	minCmp, maxCmp := Compare(v, lo), Compare(v, hi)

	var within bool
	if rule.IsInclusive() {
		within = minCmp >= 0 && maxCmp <= 0
	} else {
		within = minCmp > 0 && maxCmp < 0
	}

	switch rule.Operator {
	case OperatorBetween:
		return within
	case OperatorNotBetween:
		return !within
	default:
		return false
	}
}

func evaluateBoolean(value any, found bool, rule BooleanRule) bool {
	null := !found || value == nil
	switch rule.Operator {
	case OperatorIsTrue:
		b, ok := value.(bool)
		return found && ok && b
	case OperatorIsFalse:
		b, ok := value.(bool)
		return found && ok && !b
	case OperatorIsNull:
		return null
	case OperatorIsNotNull:
		return !null
	default:
		return false
	}
}
