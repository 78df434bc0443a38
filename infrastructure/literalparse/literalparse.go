// Package literalparse parses configuration values that may arrive as a
// JSON string, a Python-style literal (single-quoted), or already-decoded
// Go values — settings pushed through mixed tooling show up in all three.
package literalparse

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// Parse applies, in order: pass-through for already-decoded slices/maps,
// standard JSON decoding, a goja-evaluated literal (covers single-quoted
// strings and bare identifiers the way Python's ast.literal_eval does for
// its own literal syntax), and finally a naive single→double quote swap
// re-decoded as JSON. It returns an error only once every strategy fails.
func Parse(value any) (any, error) {
	switch v := value.(type) {
	case []any:
		return v, nil
	case map[string]any:
		return v, nil
	case nil:
		return nil, nil
	}

	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("literalparse: unsupported type %T", value)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("literalparse: empty value")
	}

	var jsonResult any
	if err := json.Unmarshal([]byte(s), &jsonResult); err == nil {
		return jsonResult, nil
	}

	if literal, err := evalLiteral(s); err == nil {
		return literal, nil
	}

	swapped := strings.ReplaceAll(s, "'", `"`)
	var swappedResult any
	if err := json.Unmarshal([]byte(swapped), &swappedResult); err == nil {
		return swappedResult, nil
	}

	return nil, fmt.Errorf("literalparse: could not parse value %q as JSON or literal", s)
}

// evalLiteral evaluates s as a single JavaScript expression in a fresh,
// sandboxed goja runtime — no builtins beyond literal syntax are needed,
// so array/object/string/number literals round-trip the same way Python's
// ast.literal_eval handles list/dict/str/int literals.
func evalLiteral(s string) (any, error) {
	vm := goja.New()
	value, err := vm.RunString("(" + s + ")")
	if err != nil {
		return nil, err
	}
	exported := value.Export()
	if exported == nil && value != goja.Null() && value != goja.Undefined() {
		return nil, fmt.Errorf("literalparse: could not export literal")
	}
	return exported, nil
}
