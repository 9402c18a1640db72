// Package utils converts between Go structs and the map-based documents the
// filter engine and stores operate on.
package utils

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// StructToDocument converts a struct (or pointer to struct) into a
// map[string]any by round-tripping it through encoding/json. JSON tags are
// honoured, nested structs become nested maps and slices become []any, so
// the result can be walked with dotted paths. Numbers decode as float64.
//
// Example:
//
//	type Address struct {
//		City string `json:"city"`
//	}
//	type User struct {
//		ID      string  `json:"id"`
//		Address Address `json:"address"`
//	}
//	doc, err := StructToDocument(User{ID: "u-1", Address: Address{City: "Nairobi"}})
//	// doc == map[string]any{"id": "u-1", "address": map[string]any{"city": "Nairobi"}}
func StructToDocument[T any](record T) (map[string]any, error) {
	val := reflect.ValueOf(record)

	if !val.IsValid() {
		return nil, fmt.Errorf("input record cannot be nil")
	}

	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil, fmt.Errorf("input record cannot be a nil pointer to a struct")
		}
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return nil, fmt.Errorf("input record must be a struct or a pointer to a struct, got %s", val.Kind())
	}

	jsonBytes, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("StructToDocument: failed to marshal input record to JSON: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		return nil, fmt.Errorf("StructToDocument: failed to unmarshal JSON to map[string]any: %w", err)
	}
	return doc, nil
}

// DocumentToStruct is the inverse of StructToDocument: it decodes a document
// into a new value of struct type T (or *T).
//
// Example:
//
//	user, err := DocumentToStruct[User](map[string]any{"id": "u-1"})
func DocumentToStruct[T any](input map[string]any) (T, error) {
	var zero T

	if input == nil {
		return zero, fmt.Errorf("DocumentToStruct: input map cannot be nil")
	}

	typ := reflect.TypeOf(zero)
	if typ == nil {
		return zero, fmt.Errorf("DocumentToStruct: generic type T must be a struct type, got an interface")
	}
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return zero, fmt.Errorf("DocumentToStruct: generic type T must be a struct type (or pointer to struct), got %s", typ.Kind())
	}

	jsonBytes, err := json.Marshal(input)
	if err != nil {
		return zero, fmt.Errorf("DocumentToStruct: failed to marshal input map to JSON: %w", err)
	}

	var result T
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return zero, fmt.Errorf("DocumentToStruct: failed to unmarshal JSON to target struct: %w", err)
	}
	return result, nil
}
