package literalparse

import (
	"reflect"
	"testing"
)

func TestParseStandardJSON(t *testing.T) {
	got, err := Parse(`[{"text": "Thank you", "align": "center"}]`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	list, ok := got.([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("Parse() = %#v, want one-element list", got)
	}
}

func TestParseSingleQuotedLiteral(t *testing.T) {
	got, err := Parse(`[{'text': 'Thank you', 'align': 'center'}]`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	list, ok := got.([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("Parse() = %#v, want one-element list", got)
	}
}

func TestParseAlreadyDecodedPassesThrough(t *testing.T) {
	in := []any{map[string]any{"text": "hi"}}
	got, err := Parse(in)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("Parse() = %#v, want pass-through %#v", got, in)
	}
}

func TestParseNestedSingleQuotedLiteral(t *testing.T) {
	got, err := Parse(`{'a': 1, 'b': [1, 2, 'x\\y']}`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("Parse() = %#v, want map", got)
	}
	if m["a"] != int64(1) {
		t.Fatalf("Parse()[a] = %#v, want 1", m["a"])
	}
}

func TestParseUnparseableReturnsError(t *testing.T) {
	if _, err := Parse("not json nor literal {{{"); err == nil {
		t.Fatal("expected error for unparseable input")
	}
}

func TestParseEmptyStringReturnsError(t *testing.T) {
	if _, err := Parse("   "); err == nil {
		t.Fatal("expected error for empty value")
	}
}
