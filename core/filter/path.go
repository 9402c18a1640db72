package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Path locates a value inside a nested record. Integer keys are stored in
// decimal form; they address sequence elements as well as map keys.
type Path []string

// ParsePath splits a dotted path such as "address.city" into its keys. An
// empty string yields an empty path.
func ParsePath(s string) Path {
	if s == "" {
		return nil
	}
	return Path(strings.Split(s, "."))
}

// PathOf builds a path from string and integer keys. Other key types are
// formatted with fmt.
func PathOf(keys ...any) Path {
	p := make(Path, 0, len(keys))
	for _, k := range keys {
		p = append(p, keyString(k))
	}
	return p
}

// Field returns a selector that reads the named field.
func Field(name string) Selector {
	return Selector{Field: name}
}

// At returns a selector that reads the given key path.
func At(keys ...any) Selector {
	return Selector{Path: PathOf(keys...)}
}

// String renders the path in dotted form.
func (p Path) String() string {
	return strings.Join(p, ".")
}

// UnmarshalJSON accepts either a dotted string or an array of string and
// integer keys.
func (p *Path) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = nil
		return nil
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := pathFromAny(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// pathFromAny converts decoded path input (string or array) to a Path.
func pathFromAny(v any) (Path, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return ParsePath(val), nil
	case Path:
		return val, nil
	case []string:
		return Path(val), nil
	case []any:
		p := make(Path, 0, len(val))
		for i, k := range val {
			switch key := k.(type) {
			case string:
				p = append(p, key)
			case float64:
				if key != float64(int64(key)) {
					return nil, fmt.Errorf("path key %d: %v is not an integer index", i, key)
				}
				p = append(p, strconv.FormatInt(int64(key), 10))
			case int, int64, json.Number:
				p = append(p, keyString(key))
			default:
				return nil, fmt.Errorf("path key %d: unsupported type %T", i, k)
			}
		}
		return p, nil
	default:
		return nil, fmt.Errorf("path must be a string or an array of keys, got %T", v)
	}
}

func keyString(k any) string {
	switch key := k.(type) {
	case string:
		return key
	case int:
		return strconv.Itoa(key)
	case int64:
		return strconv.FormatInt(key, 10)
	case json.Number:
		return key.String()
	default:
		return fmt.Sprint(k)
	}
}

// Resolve walks record along path. It returns false when the path is empty or
// any key is absent; a key present with a nil value resolves to (nil, true).
// Maps are descended by key and sequences by in-range integer index.
// Resolution never fails with an error.
func Resolve(record any, path Path) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	current := record
	for _, key := range path {
		next, ok := child(current, key)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// Lookup resolves a dotted path against record.
func Lookup(record any, dotted string) (any, bool) {
	return Resolve(record, ParsePath(dotted))
}

func child(container any, key string) (any, bool) {
	switch c := container.(type) {
	case Document:
		v, ok := c[key]
		return v, ok
	case map[string]any:
		v, ok := c[key]
		return v, ok
	case map[string]string:
		v, ok := c[key]
		return v, ok
	case []any:
		i, ok := index(key, len(c))
		if !ok {
			return nil, false
		}
		return c[i], true
	case []map[string]any:
		i, ok := index(key, len(c))
		if !ok {
			return nil, false
		}
		return c[i], true
	case []Document:
		i, ok := index(key, len(c))
		if !ok {
			return nil, false
		}
		return c[i], true
	case []string:
		i, ok := index(key, len(c))
		if !ok {
			return nil, false
		}
		return c[i], true
	default:
		return nil, false
	}
}

func index(key string, n int) (int, bool) {
	i, err := strconv.Atoi(key)
	// "01" or "+1" name properties, not elements.
	if err != nil || i < 0 || i >= n || strconv.Itoa(i) != key {
		return 0, false
	}
	return i, true
}
