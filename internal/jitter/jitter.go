// Package jitter separates markers that share the exact same coordinate.
package jitter

import (
	"math"
	"math/rand/v2"

	"mapa-rutas/internal/geo"
	"mapa-rutas/internal/models"
)

// Radius is the marker separation distance in meters.
const Radius = 5.0

// Resolver displaces a duplicated point for display.
type Resolver interface {
	Offset(lat, lon float64) (float64, float64)
}

// Equirectangular offsets by a fixed radius in a uniformly random direction.
type Equirectangular struct {
	Radius float64
	Rand   *rand.Rand // nil uses the global unseeded source
}

func NewEquirectangular() *Equirectangular {
	return &Equirectangular{Radius: Radius}
}

func (e *Equirectangular) Offset(lat, lon float64) (float64, float64) {
	var u float64
	if e.Rand != nil {
		u = e.Rand.Float64()
	} else {
		u = rand.Float64()
	}
	return geo.Offset(lat, lon, e.Radius, u*2*math.Pi)
}

type groupKey struct {
	lat, lon string
}

// Apply groups records by their raw coordinate cells and moves every member
// after the first by r. Loc is never modified. Returns the number of
// displaced records.
func Apply(records []*models.InstallationRecord, r Resolver) int {
	groups := make(map[groupKey][]*models.InstallationRecord)
	var order []groupKey
	for _, rec := range records {
		k := groupKey{rec.RawLat, rec.RawLon}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], rec)
	}

	moved := 0
	for _, k := range order {
		members := groups[k]
		if len(members) < 2 {
			continue
		}
		members[0].Adj = members[0].Loc
		for _, rec := range members[1:] {
			lat, lon := r.Offset(rec.Loc.Lat, rec.Loc.Lon)
			rec.Adj = models.Coordinate{Lat: lat, Lon: lon}
			moved++
		}
	}
	return moved
}
