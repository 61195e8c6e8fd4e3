package ingest

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// The portal occasionally returns markup fragments inside text fields.
// StrictPolicy strips all tags; entities are decoded afterwards so
// "Aquisi&ccedil;&atilde;o" comes out readable.
var textPolicy = bluemonday.StrictPolicy()

// CleanText normalizes one portal text field for storage.
func CleanText(s string) string {
	s = textPolicy.Sanitize(s)
	s = html.UnescapeString(s)
	s = sanitizeUTF8(s)
	return strings.Join(strings.Fields(s), " ")
}

// sanitizeUTF8 removes invalid byte sequences that PostgreSQL rejects.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}
