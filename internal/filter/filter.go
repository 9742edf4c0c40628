// Package filter applies ad-hoc queries to a dataset and derives the option
// lists a map UI offers for them.
package filter

import (
	"sort"
	"strings"
	"time"

	"mapa-rutas/internal/models"
)

const (
	DateLayout = "02/01/2006"
	HourLayout = "15:04"
)

// Apply returns the records matching every predicate set in q, in dataset
// order. The returned slice shares record pointers with the dataset.
func Apply(records []*models.InstallationRecord, q models.FilterQuery) []*models.InstallationRecord {
	var techs map[string]struct{}
	if len(q.Technicians) > 0 {
		techs = make(map[string]struct{}, len(q.Technicians))
		for _, t := range q.Technicians {
			techs[t] = struct{}{}
		}
	}

	out := make([]*models.InstallationRecord, 0, len(records))
	for _, r := range records {
		if techs != nil {
			if _, ok := techs[r.TechnicianKey]; !ok {
				continue
			}
		}
		if q.WorkOrder != "" && !strings.Contains(r.WorkOrder, q.WorkOrder) {
			continue
		}
		if q.Node != "" && !strings.Contains(r.Node, q.Node) {
			continue
		}
		if q.Date != nil {
			if r.Created == nil || !sameDay(*r.Created, *q.Date) {
				continue
			}
			// hour only narrows an active date filter
			if q.Time != nil && (r.Created.Hour() != q.Time.Hour || r.Created.Minute() != q.Time.Minute) {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Technicians lists the distinct known technician keys, sorted.
func Technicians(records []*models.InstallationRecord) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, r := range records {
		if r.TechnicianKey == "" {
			continue
		}
		if _, ok := seen[r.TechnicianKey]; !ok {
			seen[r.TechnicianKey] = struct{}{}
			out = append(out, r.TechnicianKey)
		}
	}
	sort.Strings(out)
	return out
}

// Dates lists the distinct calendar dates of view in chronological order,
// formatted dd/mm/yyyy. Records without a timestamp are skipped.
func Dates(view []*models.InstallationRecord) []string {
	seen := make(map[time.Time]struct{})
	var days []time.Time
	for _, r := range view {
		if r.Created == nil {
			continue
		}
		y, m, d := r.Created.Date()
		day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		if _, ok := seen[day]; !ok {
			seen[day] = struct{}{}
			days = append(days, day)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = d.Format(DateLayout)
	}
	return out
}

// Hours lists the distinct HH:MM values of view, sorted.
func Hours(view []*models.InstallationRecord) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, r := range view {
		if r.Created == nil {
			continue
		}
		h := r.Created.Format(HourLayout)
		if _, ok := seen[h]; !ok {
			seen[h] = struct{}{}
			out = append(out, h)
		}
	}
	sort.Strings(out)
	return out
}

// Range returns the earliest and latest creation timestamps, or nils when no
// record has one.
func Range(records []*models.InstallationRecord) (first, last *time.Time) {
	for _, r := range records {
		if r.Created == nil {
			continue
		}
		if first == nil || r.Created.Before(*first) {
			first = r.Created
		}
		if last == nil || r.Created.After(*last) {
			last = r.Created
		}
	}
	return first, last
}
