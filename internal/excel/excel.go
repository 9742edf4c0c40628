package excel

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// maxXLSRows bounds legacy .xls reads.
const maxXLSRows = 200000

var ErrEmpty = errors.New("worksheet is empty")

// Table is the first worksheet of an upload: a header row plus data rows.
// Data rows may be shorter than the header.
type Table struct {
	Header []string
	Rows   [][]string

	numeric map[cellRef]bool // data cells stored as numbers in the workbook
}

type cellRef struct {
	row, col int
}

// IsNumeric reports whether data cell (row, col) was a number cell in the
// source .xlsx workbook. Cells read from CSV or .xls never are.
func (t Table) IsNumeric(row, col int) bool {
	return t.numeric[cellRef{row, col}]
}

// Cell returns row[col] or "" when the row is short.
func (t Table) Cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}

// ReadTable reads the first worksheet of an .xlsx, .xls or .csv upload.
// The format is chosen by file extension; unknown extensions are read as xlsx.
func ReadTable(r io.Reader, filename string) (Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Table{}, err
	}

	var (
		rows    [][]string
		numeric map[cellRef]bool
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		rows, err = readCSV(data)
	case ".xls":
		rows, err = readXLS(data)
	default:
		rows, numeric, err = readXLSX(data)
	}
	if err != nil {
		return Table{}, err
	}

	rows = trimTrailingEmpty(rows)
	if len(rows) == 0 {
		return Table{}, ErrEmpty
	}

	// shift sheet coordinates past the header row
	shifted := make(map[cellRef]bool, len(numeric))
	for ref := range numeric {
		if ref.row > 0 {
			shifted[cellRef{ref.row - 1, ref.col}] = true
		}
	}
	return Table{Header: rows[0], Rows: rows[1:], numeric: shifted}, nil
}

func readXLSX(data []byte) ([][]string, map[cellRef]bool, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = f.Close() }()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, nil, fmt.Errorf("no worksheet found")
	}
	// Raw values keep full coordinate precision and expose date serials
	// regardless of the cell number format.
	rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, nil, err
	}

	numeric := make(map[cellRef]bool)
	for r, row := range rows {
		for c, v := range row {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				continue
			}
			typ, err := f.GetCellType(sheetName, cell)
			if err != nil {
				continue
			}
			switch typ {
			case excelize.CellTypeUnset, excelize.CellTypeNumber, excelize.CellTypeDate:
				numeric[cellRef{r, c}] = true
			}
		}
	}
	return rows, numeric, nil
}

// readXLS reads the first sheet of a legacy workbook. Its cells are all
// rendered as text, so none are reported as numeric.
func readXLS(data []byte) ([][]string, error) {
	workbook, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	if workbook == nil || workbook.NumSheets() == 0 {
		return nil, fmt.Errorf("no worksheet found")
	}
	all := workbook.ReadAllCells(maxXLSRows)
	return firstSheetRows(all, workbook.GetSheet(0).MaxRow), nil
}

// firstSheetRows cuts the first sheet out of ReadAllCells output, which
// concatenates every sheet. ReadAllCells skips sheets whose MaxRow is 0,
// so such a first sheet yields no rows.
func firstSheetRows(all [][]string, maxRow uint16) [][]string {
	if maxRow == 0 {
		return nil
	}
	n := int(maxRow) + 1
	if n > len(all) {
		n = len(all)
	}
	return all[:n]
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.Comma = sniffDelimiter(data)
	return reader.ReadAll()
}

// sniffDelimiter picks ';' when the header line uses it. Spreadsheets
// exported with decimal commas usually separate fields with semicolons.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}

func trimTrailingEmpty(rows [][]string) [][]string {
	for len(rows) > 0 && isBlank(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}
	return rows
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
