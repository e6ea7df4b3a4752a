package llm

import (
	"errors"
	"testing"
)

func TestExtractJSONDirect(t *testing.T) {
	var out map[string]int
	if err := ExtractJSON(`  {"a":1}  `, &out); err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}
	if out["a"] != 1 {
		t.Fatalf("unexpected value: %v", out)
	}
}

func TestExtractJSONFenced(t *testing.T) {
	input := "Here is the result you asked for:\n```json\n{\"candidates\":[{\"title\":\"A\"}]}\n```\nLet me know if you need more."
	var out struct {
		Candidates []struct {
			Title string `json:"title"`
		} `json:"candidates"`
	}
	if err := ExtractJSON(input, &out); err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}
	if len(out.Candidates) != 1 || out.Candidates[0].Title != "A" {
		t.Fatalf("unexpected value: %+v", out)
	}
}

func TestExtractJSONSurroundingProse(t *testing.T) {
	input := `Sure! The object is {"a":{"b":2}} as requested.`
	var out map[string]map[string]int
	if err := ExtractJSON(input, &out); err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}
	if out["a"]["b"] != 2 {
		t.Fatalf("unexpected value: %v", out)
	}
}

func TestExtractJSONTrailingComma(t *testing.T) {
	var out map[string]int
	if err := ExtractJSON(`{"a":1,}`, &out); err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}
	if len(out) != 1 || out["a"] != 1 {
		t.Fatalf("unexpected value: %v", out)
	}
}

func TestExtractJSONControlCharacters(t *testing.T) {
	var out map[string]string
	if err := ExtractJSON("{\"a\":\"x\",\x01\"b\":\"y\",}", &out); err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}
	if out["a"] != "x" || out["b"] != "y" {
		t.Fatalf("unexpected value: %v", out)
	}
}

func TestExtractJSONNoObject(t *testing.T) {
	var out map[string]any
	err := ExtractJSON("there is no JSON here at all", &out)
	if err == nil {
		t.Fatal("expected error")
	}
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %T: %v", err, err)
	}
}

func TestExtractJSONExcerptTruncated(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	var out map[string]any
	err := ExtractJSON(string(long), &out)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if len(pe.Excerpt) > excerptLimit+3 {
		t.Fatalf("excerpt not truncated: %d bytes", len(pe.Excerpt))
	}
}
