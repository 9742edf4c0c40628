package excel

import (
	"io"

	"github.com/xuri/excelize/v2"

	"mapa-rutas/internal/models"
)

const DateLayout = "02/01/2006 15:04"

// WriteStops writes a sequenced view as a single-sheet workbook.
func WriteStops(w io.Writer, data []models.Stop, sheetName string) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return err
	}

	// Use Stream Writer for performance
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return err
	}

	headers := []interface{}{
		"Secuencia", "Técnico", "Técnico (original)", "OT", "Nodo",
		"Fecha Creación", "Latitud", "Longitud", "Ubicación",
	}
	if err := sw.SetRow("A1", headers); err != nil {
		return err
	}

	for i, s := range data {
		r := s.Record
		created := ""
		if r.Created != nil {
			created = r.Created.Format(DateLayout)
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{
			s.Seq, r.TechnicianKey, r.Technician, r.WorkOrder, r.Node,
			created, r.Loc.Lat, r.Loc.Lon, r.Link,
		}
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}

	if err := sw.Flush(); err != nil {
		return err
	}

	f.SetActiveSheet(index)
	// Delete default sheet if exists
	if sheetName != "Sheet1" {
		f.DeleteSheet("Sheet1")
	}

	_, err = f.WriteTo(w)
	return err
}
