package filter

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// ValueType tags a normalized value.
type ValueType int

const (
	// Incomparable marks a value that cannot take part in ordering.
	Incomparable ValueType = iota
	// Number marks a numeric value.
	Number
	// Date marks an instant in time.
	Date
)

// Normalized is a value coerced into an orderable form.
type Normalized struct {
	Type   ValueType
	Number float64
	Time   time.Time
}

// Comparable reports whether n can be ordered.
func (n Normalized) Comparable() bool {
	return n.Type != Incomparable
}

// epochMillis returns the numeric form used when a date meets a number.
func (n Normalized) epochMillis() float64 {
	if n.Type == Date {
		return float64(n.Time.UnixMilli())
	}
	return n.Number
}

// dateLayouts are tried in order when a string is normalized.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006-01",
	"2006",
	"2006/01/02",
	"01/02/2006",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.ANSIC,
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

// Normalize coerces v for ordering. Numbers and times pass through; strings
// are parsed as a date first and as a number second; everything else is
// Incomparable.
func Normalize(v any) Normalized {
	if f, ok := ToFloat64(v); ok {
		return Normalized{Type: Number, Number: f}
	}
	switch val := v.(type) {
	case time.Time:
		return Normalized{Type: Date, Time: val}
	case *time.Time:
		if val == nil {
			return Normalized{}
		}
		return Normalized{Type: Date, Time: *val}
	case string:
		if t, ok := parseDate(val); ok {
			return Normalized{Type: Date, Time: t}
		}
		if f, ok := parseNumber(val); ok {
			return Normalized{Type: Number, Number: f}
		}
	}
	return Normalized{}
}

// Compare orders two comparable values: negative when a < b, zero when equal,
// positive when a > b. Mixed operands compare on epoch milliseconds.
func Compare(a, b Normalized) float64 {
	if a.Type == Date && b.Type == Date {
		return float64(a.Time.UnixMilli() - b.Time.UnixMilli())
	}
	return a.epochMillis() - b.epochMillis()
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// ToFloat64 converts a Go numeric value to float64. Strings and other types
// are rejected; use Normalize for string coercion.
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case float32:
		return float64(val), true
	case float64:
		return val, true
	default:
		return 0, false
	}
}
