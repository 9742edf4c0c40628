package parse

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	layout12h = "2/1/2006 3:04:05 PM"
	layout24h = "2/1/2006 15:04:05"
)

var (
	// "a. m.", "p.m.", "am", "P. M." ...
	meridiemRe   = regexp.MustCompile(`(^|\s)([ap])\s*\.?\s*m\s*\.?(\s|$)`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

func normalizeMeridiem(val string) string {
	val = strings.ToLower(strings.TrimSpace(val))
	val = meridiemRe.ReplaceAllStringFunc(val, func(m string) string {
		if strings.Contains(m, "a") {
			return " AM "
		}
		return " PM "
	})
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(val, " "))
}

// DateTime parses a day-first creation date. 12-hour values with a localized
// AM/PM marker are tried first, then 24-hour values. Returns nil when neither
// layout matches.
func DateTime(val string) *time.Time {
	clean := normalizeMeridiem(val)
	if clean == "" {
		return nil
	}
	for _, layout := range []string{layout12h, layout24h} {
		if t, err := time.Parse(layout, clean); err == nil {
			return &t
		}
	}
	return nil
}

// Timestamp is DateTime with a fallback for workbook number cells that hold
// an Excel serial date. Text values such as "7" are never read as serials.
func Timestamp(val string, numeric bool) *time.Time {
	if t := DateTime(val); t != nil {
		return t
	}
	if !numeric {
		return nil
	}
	serial, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	if err != nil || serial <= 0 {
		return nil
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return nil
	}
	// serial dates carry sub-second float noise
	t = t.Round(time.Second)
	return &t
}
