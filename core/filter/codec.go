package filter

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
)

// operatorAliases maps legacy operator spellings to their canonical form.
var operatorAliases = map[Operator]Operator{
	"not_between": OperatorNotBetween,
}

// DecodeRule builds a rule from untyped input such as a decoded JSON object.
// The kind is read from "type" (or "kind"); "path" may be a dotted string or
// an array of keys. Unknown kinds decode to UnknownRule and unknown
// operators are kept as-is; both simply never match.
func DecodeRule(input map[string]any) (Rule, error) {
	if input == nil {
		return nil, fmt.Errorf("rule cannot be nil")
	}

	fields := make(map[string]any, len(input))
	for k, v := range input {
		fields[k] = v
	}

	kind, err := takeKind(fields)
	if err != nil {
		return nil, err
	}
	path, err := pathFromAny(fields["path"])
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", kind, err)
	}
	delete(fields, "path")

	var rule Rule
	switch kind {
	case KindEquality:
		var r EqualityRule
		err = decodeInto(fields, &r)
		r.Path = path
		rule = r
	case KindComparison:
		var r ComparisonRule
		err = decodeInto(fields, &r)
		r.Path = path
		rule = r
	case KindString:
		var r StringRule
		err = decodeInto(fields, &r)
		r.Path = path
		rule = r
	case KindRange:
		var r RangeRule
		err = decodeInto(fields, &r)
		r.Path = path
		if alias, ok := operatorAliases[r.Operator]; ok {
			r.Operator = alias
		}
		rule = r
	case KindBoolean:
		var r BooleanRule
		err = decodeInto(fields, &r)
		r.Path = path
		rule = r
	default:
		r := UnknownRule{Type: kind}
		err = decodeInto(fields, &r)
		r.Type = kind
		r.Path = path
		rule = r
	}
	if err != nil {
		return nil, fmt.Errorf("decode %q rule: %w", kind, err)
	}
	return rule, nil
}

// DecodeRules decodes every input and reports all failures together.
func DecodeRules(inputs []map[string]any) ([]Rule, error) {
	rules := make([]Rule, 0, len(inputs))
	var result *multierror.Error
	for i, input := range inputs {
		rule, err := DecodeRule(input)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("rule %d: %w", i, err))
			continue
		}
		rules = append(rules, rule)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return rules, nil
}

// EncodeRule renders a rule as a map carrying its "type" tag; DecodeRule
// accepts the result.
func EncodeRule(rule Rule) (map[string]any, error) {
	rule = indirect(rule)
	if rule == nil {
		return nil, fmt.Errorf("rule cannot be nil")
	}
	data, err := json.Marshal(rule)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	out["type"] = string(rule.Kind())
	return out, nil
}

// Rules is a rule list with a JSON form: an array of objects tagged with
// "type".
type Rules []Rule

// MarshalJSON encodes each rule with its kind tag.
func (rs Rules) MarshalJSON() ([]byte, error) {
	encoded := make([]map[string]any, 0, len(rs))
	for i, rule := range rs {
		m, err := EncodeRule(rule)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		encoded = append(encoded, m)
	}
	return json.Marshal(encoded)
}

// UnmarshalJSON decodes an array of tagged rule objects.
func (rs *Rules) UnmarshalJSON(data []byte) error {
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	rules, err := DecodeRules(raw)
	if err != nil {
		return err
	}
	*rs = rules
	return nil
}

// ParseRules decodes a JSON array of rules.
func ParseRules(data []byte) (Rules, error) {
	var rs Rules
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, err
	}
	return rs, nil
}

func takeKind(fields map[string]any) (Kind, error) {
	raw, ok := fields["type"]
	if !ok {
		raw, ok = fields["kind"]
	}
	delete(fields, "type")
	delete(fields, "kind")
	if !ok {
		return "", fmt.Errorf("rule has no type")
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("rule type must be a string, got %T", raw)
	}
	return Kind(s), nil
}

func decodeInto(fields map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Squash:  true,
		Result:  out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(fields)
}
