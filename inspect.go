package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mapa-rutas/internal/dataset"
	"mapa-rutas/internal/excel"
	"mapa-rutas/internal/filter"
	"mapa-rutas/internal/jitter"
	"mapa-rutas/internal/route"
)

var inspectOpts struct {
	technicians []string
	workOrder   string
	node        string
	date        string
	hour        string
	geojsonOut  string
	xlsxOut     string
}

var inspectCmd = &cobra.Command{
	Use:   "inspect FILE",
	Short: "Build a dataset offline and print the routes it yields",
	Long: `Reads an installation spreadsheet (.xlsx, .xls or .csv), applies the
same cleaning and filtering as the server and prints a route summary.

Example:
  mapa-rutas inspect instalaciones.xlsx --technician "ANA MARIA" --date 15/03/2024 --geojson rutas.json`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	f := inspectCmd.Flags()
	f.StringSliceVar(&inspectOpts.technicians, "technician", nil, "Technician key (repeatable)")
	f.StringVar(&inspectOpts.workOrder, "ot", "", "Work-order substring")
	f.StringVar(&inspectOpts.node, "node", "", "Node substring")
	f.StringVar(&inspectOpts.date, "date", "", "Creation date (dd/mm/yyyy)")
	f.StringVar(&inspectOpts.hour, "hour", "", "Creation time (HH:MM), requires --date")
	f.StringVar(&inspectOpts.geojsonOut, "geojson", "", "Write the map as GeoJSON to this file")
	f.StringVar(&inspectOpts.xlsxOut, "xlsx", "", "Write the sequenced stops to this workbook")
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := args[0]
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	b := dataset.NewBuilder(logger)
	b.Resolver = &jitter.Equirectangular{Radius: cfg.Jitter.RadiusMeters}
	ds, err := b.Load(in, filepath.Base(path))
	if err != nil {
		return err
	}

	v := url.Values{}
	for _, t := range inspectOpts.technicians {
		v.Add("technician", t)
	}
	v.Set("ot", inspectOpts.workOrder)
	v.Set("node", inspectOpts.node)
	v.Set("date", inspectOpts.date)
	v.Set("hour", inspectOpts.hour)
	q, err := filter.ParseQuery(v)
	if err != nil {
		return err
	}

	stops := route.Sequence(filter.Apply(ds.Records, q))
	routes := route.Routes(stops, ds.Colors)
	logger.Debug("inspect", zap.String("file", path), zap.Int("stops", len(stops)), zap.Int("routes", len(routes)))

	out := cmd.OutOrStdout()
	st := ds.Stats
	fmt.Fprintf(out, "%s: %d rows, %d kept (%d unparseable, %d out of range), %d without date\n",
		ds.Source, st.RowsRead, st.RowsKept, st.DroppedParse, st.DroppedRange, st.NullTimestamps)
	fmt.Fprintf(out, "%d stops in view\n\n", len(stops))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TECHNICIAN\tSTOPS\tKM\tCOLOR")
	for _, rt := range routes {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%s\n", rt.TechnicianKey, len(rt.Stops), rt.LengthMeters/1000, rt.Color)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if inspectOpts.geojsonOut != "" {
		data, err := json.MarshalIndent(route.FeatureCollection(stops, ds.Colors, true), "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(inspectOpts.geojsonOut, data, 0644); err != nil {
			return fmt.Errorf("failed to write geojson: %w", err)
		}
	}

	if inspectOpts.xlsxOut != "" {
		f, err := os.Create(inspectOpts.xlsxOut)
		if err != nil {
			return err
		}
		if err := excel.WriteStops(f, stops, "Rutas"); err != nil {
			f.Close()
			return fmt.Errorf("failed to write workbook: %w", err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
