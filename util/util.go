package util

import (
	"encoding/json"
	"html"
	"strings"
)

// NormalizeInput flattens newlines and escapes HTML in user-provided text
// before it is stored as chat message content.
func NormalizeInput(text string) string {
	normalized := strings.Replace(text, "\n", " ", -1)
	normalized = html.EscapeString(normalized)
	return normalized
}

func PrettyPrint(i interface{}) string {
	s, _ := json.MarshalIndent(i, "", " ")
	return string(s)
}
