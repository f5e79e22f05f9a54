package sparql

import (
	"fmt"
	"strings"
)

// stringEscaper rewrites the characters that terminate or alter a SPARQL
// string literal, per the SPARQL 1.1 grammar's ECHAR production.
var stringEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
	"\b", `\b`,
	"\f", `\f`,
)

// EscapeString renders s as a quoted SPARQL string literal. The value is
// bound structurally, so user input can never break out of the literal.
func EscapeString(s string) string {
	return `"` + stringEscaper.Replace(s) + `"`
}

// EscapeURI renders s as a SPARQL IRI reference. Characters that are
// illegal inside an IRIREF (and would otherwise allow closing the
// reference early) are percent-encoded.
func EscapeURI(s string) string {
	var b strings.Builder
	b.WriteByte('<')
	for _, r := range s {
		switch {
		case r <= 0x20, r == '<', r == '>', r == '"', r == '{', r == '}', r == '|', r == '^', r == '`', r == '\\':
			for _, byt := range []byte(string(r)) {
				fmt.Fprintf(&b, "%%%02X", byt)
			}
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('>')

	return b.String()
}
