package util

import (
	"strings"
	"testing"
)

func TestNormalizeInputFlattensNewlines(t *testing.T) {
	got := NormalizeInput("first\nsecond\nthird")
	if strings.Contains(got, "\n") {
		t.Errorf("Expected newlines to be flattened, got %q", got)
	}
	if got != "first second third" {
		t.Errorf("Unexpected result %q", got)
	}
}

func TestNormalizeInputEscapesHTML(t *testing.T) {
	got := NormalizeInput(`<script>alert("hi")</script>`)
	if strings.Contains(got, "<script>") {
		t.Errorf("Expected HTML to be escaped, got %q", got)
	}
	if !strings.Contains(got, "&lt;script&gt;") {
		t.Errorf("Expected escaped entities, got %q", got)
	}
}

func TestPrettyPrint(t *testing.T) {
	type sample struct {
		Name string
	}

	got := PrettyPrint(sample{Name: "aurabloom"})
	if !strings.Contains(got, `"Name": "aurabloom"`) {
		t.Errorf("Unexpected output %q", got)
	}
}
