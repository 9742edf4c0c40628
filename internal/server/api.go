package server

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb/geojson"

	"mapa-rutas/internal/excel"
	"mapa-rutas/internal/filter"
	"mapa-rutas/internal/models"
	"mapa-rutas/internal/route"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// query parses the filter parameters, writing a 400 problem on failure.
func query(c *gin.Context) (models.FilterQuery, bool) {
	q, err := filter.ParseQuery(c.Request.URL.Query())
	if err != nil {
		writeProblem(c, http.StatusBadRequest, "invalid filter", err.Error())
		return q, false
	}
	return q, true
}

func (s *Server) datasetInfo(c *gin.Context) {
	ds := currentDataset(c)
	c.JSON(http.StatusOK, gin.H{
		"source":      ds.Source,
		"built_at":    ds.BuiltAt,
		"records":     len(ds.Records),
		"technicians": len(filter.Technicians(ds.Records)),
		"stats":       ds.Stats,
	})
}

func (s *Server) technicians(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"technicians": filter.Technicians(currentDataset(c).Records)})
}

// dates lists the dates of the view selected by the non-temporal filters.
func (s *Server) dates(c *gin.Context) {
	q, ok := query(c)
	if !ok {
		return
	}
	q.Date, q.Time = nil, nil
	c.JSON(http.StatusOK, gin.H{"dates": filter.Dates(filter.Apply(currentDataset(c).Records, q))})
}

// hours lists the times on the selected date. Without a date there are none.
func (s *Server) hours(c *gin.Context) {
	q, ok := query(c)
	if !ok {
		return
	}
	hours := []string{}
	if q.Date != nil {
		q.Time = nil
		hours = filter.Hours(filter.Apply(currentDataset(c).Records, q))
	}
	c.JSON(http.StatusOK, gin.H{"hours": hours})
}

func (s *Server) dateRange(c *gin.Context) {
	first, last := filter.Range(currentDataset(c).Records)
	c.JSON(http.StatusOK, gin.H{"first": formatTime(first), "last": formatTime(last)})
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(excel.DateLayout)
	return &s
}

type routeSummary struct {
	Technician   string  `json:"technician"`
	Color        string  `json:"color"`
	Stops        int     `json:"stops"`
	LengthMeters float64 `json:"length_m"`
}

type mapResponse struct {
	View     route.View                 `json:"view"`
	Count    int                        `json:"count"`
	Routes   []routeSummary             `json:"routes"`
	Features *geojson.FeatureCollection `json:"geojson"`
}

func (s *Server) mapView(c *gin.Context) {
	q, ok := query(c)
	if !ok {
		return
	}

	var withRoutes bool
	switch c.DefaultQuery("routes", "individual") {
	case "individual":
		withRoutes = true
	case "none":
	default:
		writeProblem(c, http.StatusBadRequest, "invalid filter", "routes must be individual or none")
		return
	}

	ds := currentDataset(c)
	stops := route.Sequence(filter.Apply(ds.Records, q))

	resp := mapResponse{
		View:     route.MapView(stops, s.fallbackView()),
		Count:    len(stops),
		Routes:   []routeSummary{},
		Features: route.FeatureCollection(stops, ds.Colors, withRoutes),
	}
	if withRoutes {
		for _, rt := range route.Routes(stops, ds.Colors) {
			resp.Routes = append(resp.Routes, routeSummary{
				Technician:   rt.TechnicianKey,
				Color:        rt.Color.String(),
				Stops:        len(rt.Stops),
				LengthMeters: rt.LengthMeters,
			})
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) record(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		writeProblem(c, http.StatusBadRequest, "invalid record id", err.Error())
		return
	}
	rec := currentDataset(c).Record(id)
	if rec == nil {
		writeProblem(c, http.StatusNotFound, "record not found", "")
		return
	}
	c.JSON(http.StatusOK, route.NewDetail(rec))
}

func (s *Server) export(c *gin.Context) {
	q, ok := query(c)
	if !ok {
		return
	}
	stops := route.Sequence(filter.Apply(currentDataset(c).Records, q))

	var buf bytes.Buffer
	if err := excel.WriteStops(&buf, stops, "Rutas"); err != nil {
		writeProblem(c, http.StatusInternalServerError, "export failed", err.Error())
		return
	}
	c.Header("Content-Disposition", `attachment; filename="rutas.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
