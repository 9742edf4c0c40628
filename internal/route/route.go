package route

import (
	"mapa-rutas/internal/geo"
	"mapa-rutas/internal/models"
)

// Route is one technician's polyline through the sequenced stops.
type Route struct {
	TechnicianKey string
	Color         models.RGB
	Stops         []models.Stop
	LengthMeters  float64 // measured on original coordinates
}

// Routes groups sequenced stops by technician, keeping sequence order.
func Routes(stops []models.Stop, colors models.ColorAssignment) []Route {
	var out []Route
	index := make(map[string]int)
	for _, s := range stops {
		k := s.Record.TechnicianKey
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, Route{TechnicianKey: k, Color: colors.For(k)})
		}
		out[i].Stops = append(out[i].Stops, s)
	}

	for i := range out {
		lats := make([]float64, len(out[i].Stops))
		lons := make([]float64, len(out[i].Stops))
		for j, s := range out[i].Stops {
			lats[j] = s.Record.Loc.Lat
			lons[j] = s.Record.Loc.Lon
		}
		out[i].LengthMeters = geo.PathLength(lats, lons)
	}
	return out
}

// View is the initial map center and zoom level.
type View struct {
	Center models.Coordinate `json:"center"`
	Zoom   int               `json:"zoom"`
}

const (
	ZoomSingle = 14
	ZoomMany   = 12
)

// MapView centers on a single stop, on the centroid of several, or on
// fallback when there is nothing to show.
func MapView(stops []models.Stop, fallback View) View {
	switch len(stops) {
	case 0:
		return fallback
	case 1:
		return View{Center: stops[0].Record.Loc, Zoom: ZoomSingle}
	}
	var lat, lon float64
	for _, s := range stops {
		lat += s.Record.Loc.Lat
		lon += s.Record.Loc.Lon
	}
	n := float64(len(stops))
	return View{Center: models.Coordinate{Lat: lat / n, Lon: lon / n}, Zoom: ZoomMany}
}
