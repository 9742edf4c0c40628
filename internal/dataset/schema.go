package dataset

import (
	"errors"
	"fmt"
	"strings"

	"mapa-rutas/internal/textnorm"
)

// ErrUploadRejected marks every failure that aborts a build as a whole.
var ErrUploadRejected = errors.New("upload rejected")

// SchemaError reports an upload that is not a readable table or lacks
// required columns.
type SchemaError struct {
	Missing []string
	Err     error
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upload rejected: unreadable spreadsheet: %v", e.Err)
	}
	return fmt.Sprintf("upload rejected: missing required columns: %s", strings.Join(e.Missing, ", "))
}

func (e *SchemaError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUploadRejected, e.Err}
	}
	return []error{ErrUploadRejected}
}

type column struct {
	name     string
	aliases  []string
	required bool
}

// Header names are compared after textnorm.Key, so numbering prefixes,
// punctuation and accents in the spreadsheet header do not matter.
var schema = []column{
	{name: "4.Nombre del Técnico Instalador", aliases: []string{"NOMBRE DEL TECNICO INSTALADOR", "TECNICO INSTALADOR", "TECNICO"}, required: true},
	{name: "2.Nro de O.T.", aliases: []string{"NRO DE OT", "NUMERO DE OT", "OT"}, required: true},
	{name: "1.NODO DEL POSTE.", aliases: []string{"NODO DEL POSTE", "NODO"}, required: true},
	{name: "Latitud", aliases: []string{"LATITUD"}, required: true},
	{name: "Longitud", aliases: []string{"LONGITUD"}, required: true},
	{name: "FechaCreacion", aliases: []string{"FECHACREACION", "FECHA CREACION"}, required: true},
	{name: "Ubicacion", aliases: []string{"UBICACION"}},
}

const (
	colTechnician = iota
	colWorkOrder
	colNode
	colLat
	colLon
	colCreated
	colLink
)

// columns maps each schema entry to its header index, -1 when absent.
type columns [colLink + 1]int

func resolveColumns(header []string) (columns, error) {
	var cols columns
	for i := range cols {
		cols[i] = -1
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		k := textnorm.Key(h)
		if _, dup := index[k]; !dup {
			index[k] = i
		}
	}

	var missing []string
	for i, c := range schema {
		for _, alias := range c.aliases {
			if idx, ok := index[alias]; ok {
				cols[i] = idx
				break
			}
		}
		if cols[i] < 0 && c.required {
			missing = append(missing, c.name)
		}
	}
	if len(missing) > 0 {
		return cols, &SchemaError{Missing: missing}
	}
	return cols, nil
}
