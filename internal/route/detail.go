package route

import (
	"mapa-rutas/internal/models"
)

const (
	LinkLabel       = "Ver en Google Maps"
	LinkUnavailable = "Ubicación no disponible"
)

// Detail is the read-only view of one selected record.
type Detail struct {
	ID         int     `json:"id"`
	Technician string  `json:"technician"`
	Name       string  `json:"name"`
	WorkOrder  string  `json:"work_order"`
	Node       string  `json:"node"`
	Created    string  `json:"created"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Link       string  `json:"link,omitempty"`
	LinkText   string  `json:"link_text"`
}

func NewDetail(r *models.InstallationRecord) Detail {
	d := Detail{
		ID:         r.ID,
		Technician: r.TechnicianKey,
		Name:       r.Technician,
		WorkOrder:  r.WorkOrder,
		Node:       r.Node,
		Created:    formatCreated(r),
		Lat:        r.Loc.Lat,
		Lon:        r.Loc.Lon,
		Link:       r.Link,
		LinkText:   LinkLabel,
	}
	if r.Link == "" {
		d.LinkText = LinkUnavailable
	}
	return d
}
