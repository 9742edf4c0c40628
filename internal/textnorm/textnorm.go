// Package textnorm builds canonical comparison keys from free-text names.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	stripAccents = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	nonLetterRe  = regexp.MustCompile(`[^A-Z\s]`)
	spacesRe     = regexp.MustCompile(`\s+`)
)

// Key returns the canonical technician key: accents removed, upper case,
// only A-Z and single spaces. An empty result means "unknown technician".
func Key(s string) string {
	out, _, err := transform.String(stripAccents, s)
	if err != nil {
		out = s
	}
	out = strings.ToUpper(out)
	out = nonLetterRe.ReplaceAllString(out, "")
	out = spacesRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}
