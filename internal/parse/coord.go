package parse

import (
	"strconv"
	"strings"
)

// Coordinate parses a latitude or longitude cell. Decimal commas are accepted.
// ok is false for empty or malformed input.
func Coordinate(val string) (float64, bool) {
	// Replace comma with dot for Spanish locales
	val = strings.TrimSpace(strings.ReplaceAll(val, ",", "."))
	if val == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
