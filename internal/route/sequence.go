// Package route orders filtered records into per-technician visit sequences
// and renders them for a map.
package route

import (
	"sort"

	"mapa-rutas/internal/models"
)

// Sequence stable-sorts view by technician key, then creation time with
// missing timestamps last, and numbers each technician's stops from 1.
// The input slice is not modified.
func Sequence(view []*models.InstallationRecord) []models.Stop {
	sorted := make([]*models.InstallationRecord, len(view))
	copy(sorted, view)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.TechnicianKey != b.TechnicianKey {
			return a.TechnicianKey < b.TechnicianKey
		}
		switch {
		case a.Created == nil:
			return false
		case b.Created == nil:
			return true
		default:
			return a.Created.Before(*b.Created)
		}
	})

	stops := make([]models.Stop, len(sorted))
	counts := make(map[string]int)
	for i, r := range sorted {
		counts[r.TechnicianKey]++
		stops[i] = models.Stop{Record: r, Seq: counts[r.TechnicianKey]}
	}
	return stops
}
