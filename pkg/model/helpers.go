package model

import "fmt"

// asList normalizes a decoded JSON value to a list: nil stays nil, a slice
// is returned as-is, anything else becomes a single-element list. FHIR
// fields with cardinality 0..* arrive either way.
func asList(v any) []any {
	if v == nil {
		return nil
	}
	if list, ok := v.([]any); ok {
		return list
	}
	return []any{v}
}

// asMap returns the value as an object, nil when it is not one.
func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// getString returns the named field as a string, empty when absent or not a
// string.
func getString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// mergedWith returns a copy of base with extra merged over it.
func mergedWith(base, extra map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

// numberedKey implements the flattening convention for repeated values: the
// first occurrence keeps the bare key, later ones get a 1-based ordinal
// suffix starting at 2 (key, key2, key3, ...). This naming is a persisted
// contract, properties already loaded depend on it.
func numberedKey(key string, n int) string {
	if n == 0 {
		return key
	}
	return fmt.Sprintf("%s%d", key, n+1)
}
