package route

import (
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"mapa-rutas/internal/models"
)

const (
	hoverDateLayout = "02/01/2006 15:04"
	noDate          = "sin fecha"
)

// FeatureCollection renders stops as point markers at their adjusted
// coordinates, labelled with the sequence index. With withRoutes each
// technician with at least two stops also gets a LineString through them in
// sequence order.
func FeatureCollection(stops []models.Stop, colors models.ColorAssignment, withRoutes bool) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, s := range stops {
		r := s.Record
		f := geojson.NewFeature(orb.Point{r.Adj.Lon, r.Adj.Lat})
		f.ID = r.ID
		f.Properties["kind"] = "stop"
		f.Properties["id"] = r.ID
		f.Properties["label"] = strconv.Itoa(s.Seq)
		f.Properties["seq"] = s.Seq
		f.Properties["technician"] = r.TechnicianKey
		f.Properties["color"] = colors.For(r.TechnicianKey).String()
		f.Properties["work_order"] = r.WorkOrder
		f.Properties["node"] = r.Node
		f.Properties["created"] = formatCreated(r)
		f.Properties["lat"] = r.Loc.Lat
		f.Properties["lon"] = r.Loc.Lon
		f.Properties["link"] = r.Link
		f.Properties["hover"] = HoverText(r)
		fc.Append(f)
	}

	if !withRoutes {
		return fc
	}
	for _, rt := range Routes(stops, colors) {
		if len(rt.Stops) < 2 {
			continue
		}
		line := make(orb.LineString, len(rt.Stops))
		for i, s := range rt.Stops {
			line[i] = orb.Point{s.Record.Adj.Lon, s.Record.Adj.Lat}
		}
		f := geojson.NewFeature(line)
		f.Properties["kind"] = "route"
		f.Properties["name"] = "Ruta " + rt.TechnicianKey
		f.Properties["technician"] = rt.TechnicianKey
		f.Properties["color"] = rt.Color.String()
		f.Properties["stops"] = len(rt.Stops)
		f.Properties["length_m"] = rt.LengthMeters
		fc.Append(f)
	}
	return fc
}

// HoverText is the marker tooltip. Coordinates are the original ones.
func HoverText(r *models.InstallationRecord) string {
	return fmt.Sprintf("Técnico: %s<br>OT: %s<br>Nodo: %s<br>Fecha Creación: %s<br>Latitud: %.5f<br>Longitud: %.5f",
		r.TechnicianKey, r.WorkOrder, r.Node, formatCreated(r), r.Loc.Lat, r.Loc.Lon)
}

func formatCreated(r *models.InstallationRecord) string {
	if r.Created == nil {
		return noDate
	}
	return r.Created.Format(hoverDateLayout)
}
