package filter

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"mapa-rutas/internal/models"
)

var dateLayouts = []string{DateLayout, "2006-01-02", "2/1/2006"}

// ParseQuery reads technician (repeatable or comma separated), ot, node,
// date and hour parameters. Empty parameters are ignored.
func ParseQuery(v url.Values) (models.FilterQuery, error) {
	var q models.FilterQuery
	for _, raw := range v["technician"] {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				q.Technicians = append(q.Technicians, t)
			}
		}
	}
	q.WorkOrder = v.Get("ot")
	q.Node = v.Get("node")

	if s := strings.TrimSpace(v.Get("date")); s != "" {
		d, err := ParseDate(s)
		if err != nil {
			return q, err
		}
		q.Date = &d
	}
	if s := strings.TrimSpace(v.Get("hour")); s != "" {
		c, err := ParseClock(s)
		if err != nil {
			return q, err
		}
		q.Time = &c
	}
	return q, nil
}

func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected dd/mm/yyyy", s)
}

func ParseClock(s string) (models.ClockTime, error) {
	t, err := time.Parse(HourLayout, s)
	if err != nil {
		return models.ClockTime{}, fmt.Errorf("invalid hour %q, expected HH:MM", s)
	}
	return models.ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}
