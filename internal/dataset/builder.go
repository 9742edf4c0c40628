package dataset

import (
	"fmt"
	"io"
	"math/rand/v2"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"mapa-rutas/internal/excel"
	"mapa-rutas/internal/jitter"
	"mapa-rutas/internal/models"
	"mapa-rutas/internal/parse"
	"mapa-rutas/internal/textnorm"
)

type ProgressCallback func(current, total int, msg string)
type LoggerCallback func(msg string)

// progressEvery is the row interval between progress callbacks.
const progressEvery = 500

// Builder turns an uploaded table into a Dataset.
type Builder struct {
	Resolver   jitter.Resolver
	Rand       *rand.Rand // color source, nil uses the global unseeded source
	Workers    int        // 0 means runtime.NumCPU()
	OnProgress ProgressCallback
	OnLog      LoggerCallback
	Logger     *zap.Logger
}

func NewBuilder(logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{Resolver: jitter.NewEquirectangular(), Logger: logger}
}

func (b *Builder) log(msg string) {
	if b.OnLog != nil {
		b.OnLog(msg)
	}
}

// Load reads an upload and builds it. Unreadable input is a SchemaError.
func (b *Builder) Load(r io.Reader, filename string) (*models.Dataset, error) {
	tbl, err := excel.ReadTable(r, filename)
	if err != nil {
		return nil, &SchemaError{Err: err}
	}
	return b.Build(tbl, filename)
}

type cleanRow struct {
	rec     *models.InstallationRecord
	valid   bool // both coordinates parsed
	kept    bool
	created string
	serial  bool // created came from a workbook number cell
}

// Build validates the header and produces a complete Dataset, or an error
// and no dataset at all.
func (b *Builder) Build(tbl excel.Table, source string) (*models.Dataset, error) {
	cols, err := resolveColumns(tbl.Header)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	stats := models.BuildStats{RowsRead: len(tbl.Rows)}

	b.log(fmt.Sprintf("%d filas leídas.", len(tbl.Rows)))
	rows := b.cleanRows(tbl, cols)

	var parsed []*models.InstallationRecord
	for _, row := range rows {
		if row.valid {
			parsed = append(parsed, row.rec)
		}
	}
	moved := jitter.Apply(parsed, b.resolver())
	b.log(fmt.Sprintf("%d puntos superpuestos desplazados.", moved))

	records := make([]*models.InstallationRecord, 0, len(parsed))
	for i := range rows {
		row := &rows[i]
		switch {
		case !row.valid:
			stats.DroppedParse++
		case row.rec.Loc.Lat <= 0 || row.rec.Loc.Lon >= 0:
			stats.DroppedRange++
		default:
			row.kept = true
			records = append(records, row.rec)
		}
	}
	stats.RowsKept = len(records)

	for _, row := range rows {
		if !row.kept {
			continue
		}
		row.rec.Created = parse.Timestamp(row.created, row.serial)
		if row.rec.Created == nil {
			stats.NullTimestamps++
		}
	}

	colors := AssignColors(records, b.Rand)

	b.Logger.Debug("dataset built",
		zap.String("source", source),
		zap.Int("rows", stats.RowsRead),
		zap.Int("kept", stats.RowsKept),
		zap.Int("dropped_parse", stats.DroppedParse),
		zap.Int("dropped_range", stats.DroppedRange),
		zap.Int("null_timestamps", stats.NullTimestamps),
		zap.Duration("elapsed", time.Since(start)),
	)
	b.log(fmt.Sprintf("%d registros válidos, %d descartados.", stats.RowsKept, stats.DroppedParse+stats.DroppedRange))

	return &models.Dataset{
		Records: records,
		Colors:  colors,
		Source:  source,
		BuiltAt: time.Now(),
		Stats:   stats,
	}, nil
}

func (b *Builder) resolver() jitter.Resolver {
	if b.Resolver == nil {
		return jitter.NewEquirectangular()
	}
	return b.Resolver
}

// cleanRows normalizes names and parses coordinates in parallel chunks.
// Output order matches the input rows.
func (b *Builder) cleanRows(tbl excel.Table, cols columns) []cleanRow {
	total := len(tbl.Rows)
	results := make([]cleanRow, total)

	numCPU := b.Workers
	if numCPU < 1 {
		numCPU = runtime.NumCPU()
	}
	chunkSize := (total + numCPU - 1) / numCPU

	var wg sync.WaitGroup
	var processedCount int64

	for i := 0; i < numCPU; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if start >= total {
			break
		}
		if end > total {
			end = total
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()

			for idx := s; idx < e; idx++ {
				results[idx] = cleanOne(tbl, idx, cols)

				count := atomic.AddInt64(&processedCount, 1)
				if count%progressEvery == 0 && b.OnProgress != nil {
					b.OnProgress(int(count), total, "")
				}
			}
		}(start, end)
	}

	wg.Wait()

	if b.OnProgress != nil {
		b.OnProgress(total, total, "")
	}
	return results
}

func cleanOne(tbl excel.Table, idx int, cols columns) cleanRow {
	row, id := tbl.Rows[idx], idx+2
	technician := tbl.Cell(row, cols[colTechnician])
	rawLat := tbl.Cell(row, cols[colLat])
	rawLon := tbl.Cell(row, cols[colLon])

	rec := &models.InstallationRecord{
		ID:            id,
		Technician:    technician,
		TechnicianKey: textnorm.Key(technician),
		WorkOrder:     tbl.Cell(row, cols[colWorkOrder]),
		Node:          tbl.Cell(row, cols[colNode]),
		Link:          strings.TrimSpace(tbl.Cell(row, cols[colLink])),
		RawLat:        rawLat,
		RawLon:        rawLon,
	}

	lat, latOK := parse.Coordinate(rawLat)
	lon, lonOK := parse.Coordinate(rawLon)
	rec.Loc = models.Coordinate{Lat: lat, Lon: lon}
	rec.Adj = rec.Loc
	return cleanRow{
		rec:     rec,
		valid:   latOK && lonOK,
		created: tbl.Cell(row, cols[colCreated]),
		serial:  tbl.IsNumeric(idx, cols[colCreated]),
	}
}

// AssignColors gives every distinct technician key, in sorted order, one
// random color.
func AssignColors(records []*models.InstallationRecord, rnd *rand.Rand) models.ColorAssignment {
	seen := make(map[string]struct{})
	var keys []string
	for _, r := range records {
		if _, ok := seen[r.TechnicianKey]; !ok {
			seen[r.TechnicianKey] = struct{}{}
			keys = append(keys, r.TechnicianKey)
		}
	}
	sort.Strings(keys)

	intN := rand.IntN
	if rnd != nil {
		intN = rnd.IntN
	}
	colors := make(models.ColorAssignment, len(keys))
	for _, k := range keys {
		colors[k] = models.RGB{R: uint8(intN(256)), G: uint8(intN(256)), B: uint8(intN(256))}
	}
	return colors
}
