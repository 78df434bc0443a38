// Package jsonquery evaluates a JSONPath expression against an arbitrary
// document, used by the report plugin contract's optional scope filter —
// plugins narrow the rows they fold over without the core needing to know
// the plugin's internal field names.
package jsonquery

import (
	"encoding/json"

	"github.com/PaesslerAG/jsonpath"
)

// Filter reports whether expr, evaluated against row, yields a truthy
// result. row is marshalled to a generic map first so callers can pass
// any typed struct (ReportDocument rows, tranlog documents, ...).
func Filter(row any, expr string) (bool, error) {
	value, err := Eval(row, expr)
	if err != nil {
		return false, err
	}
	return truthy(value), nil
}

// Eval evaluates a JSONPath expression against row and returns the raw result.
func Eval(row any, expr string) (any, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return jsonpath.Get(expr, doc)
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0
	case []any:
		return len(val) > 0
	default:
		return true
	}
}
