package models

import (
	"fmt"
	"time"
)

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// InstallationRecord is one cleaned spreadsheet row.
type InstallationRecord struct {
	ID            int // source row number, 1-based including the header
	Technician    string
	TechnicianKey string
	WorkOrder     string
	Node          string
	Loc           Coordinate // authoritative
	Adj           Coordinate // marker placement only
	Created       *time.Time
	Link          string

	// raw coordinate cells, used to group overlapping points
	RawLat string
	RawLon string
}

type RGB struct {
	R, G, B uint8
}

func (c RGB) String() string {
	return fmt.Sprintf("rgb(%d,%d,%d)", c.R, c.G, c.B)
}

// Grey is used for keys missing from a ColorAssignment.
var Grey = RGB{128, 128, 128}

type ColorAssignment map[string]RGB

func (c ColorAssignment) For(key string) RGB {
	if rgb, ok := c[key]; ok {
		return rgb
	}
	return Grey
}

type BuildStats struct {
	RowsRead       int `json:"rows_read"`
	RowsKept       int `json:"rows_kept"`
	DroppedParse   int `json:"dropped_parse"`
	DroppedRange   int `json:"dropped_range"`
	NullTimestamps int `json:"null_timestamps"`
}

// Dataset is built once per successful upload and never mutated afterwards.
type Dataset struct {
	Records []*InstallationRecord
	Colors  ColorAssignment
	Source  string
	BuiltAt time.Time
	Stats   BuildStats
}

func (d *Dataset) Record(id int) *InstallationRecord {
	for _, r := range d.Records {
		if r.ID == id {
			return r
		}
	}
	return nil
}

type ClockTime struct {
	Hour   int
	Minute int
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// FilterQuery is rebuilt on every request; zero value matches everything.
type FilterQuery struct {
	Technicians []string
	WorkOrder   string
	Node        string
	Date        *time.Time
	Time        *ClockTime
}

type Stop struct {
	Record *InstallationRecord
	Seq    int
}
