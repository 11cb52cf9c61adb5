package calib

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Column names expected in a calibration table file. Files are exported
// from the measurement spreadsheets one sheet per LED set.
const (
	colWell      = "Well"
	colDevice    = "LPA"
	colRow       = "Row"
	colCol       = "Col"
	colChannel   = "Channel"
	colDC        = "DC"
	colGCal      = "GS Cal"
	colIntensity = "Intensity (umol/m2/s)"
)

// ParseChannel maps the channel spellings found in calibration files to
// a zero-based channel index. Accepted: "1", "c1", "Top" for channel 0
// and "2", "c2", "Bot", "Bottom" for channel 1.
func ParseChannel(s string) (int, error) {
	switch strings.TrimSpace(s) {
	case "1", "c1", "Top":
		return 0, nil
	case "2", "c2", "Bot", "Bottom":
		return 1, nil
	}
	return 0, fmt.Errorf("channel %q not recognized", s)
}

// Load reads a calibration table from a CSV file.
//
// Every row describes one well. The device name and channel must be
// consistent across rows, well numbers (1-based) must be unique, and
// the number of rows must match the plate geometry implied by the
// maximum Row and Col values.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read calibration table %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("calibration table %s: no data rows", path)
	}

	idx, err := headerIndex(records[0], colWell, colDevice, colRow, colCol, colChannel, colDC, colGCal, colIntensity)
	if err != nil {
		return nil, fmt.Errorf("calibration table %s: %w", path, err)
	}

	type rawRow struct {
		well int
		m    Measurement
	}

	var (
		device   string
		chanText string
		maxRow   int
		maxCol   int
		rows     []rawRow
	)
	for i, rec := range records[1:] {
		get := func(name string) string { return strings.TrimSpace(rec[idx[name]]) }

		well, err := parseInt(get(colWell))
		if err != nil {
			return nil, fmt.Errorf("calibration table %s, row %d: well: %w", path, i+2, err)
		}
		row, err := parseInt(get(colRow))
		if err != nil {
			return nil, fmt.Errorf("calibration table %s, row %d: row: %w", path, i+2, err)
		}
		col, err := parseInt(get(colCol))
		if err != nil {
			return nil, fmt.Errorf("calibration table %s, row %d: col: %w", path, i+2, err)
		}
		dc, err := parseInt(get(colDC))
		if err != nil {
			return nil, fmt.Errorf("calibration table %s, row %d: dc: %w", path, i+2, err)
		}
		gcal, err := parseInt(get(colGCal))
		if err != nil {
			return nil, fmt.Errorf("calibration table %s, row %d: gcal: %w", path, i+2, err)
		}
		intensity, err := strconv.ParseFloat(get(colIntensity), 64)
		if err != nil {
			return nil, fmt.Errorf("calibration table %s, row %d: intensity: %w", path, i+2, err)
		}

		if i == 0 {
			device = get(colDevice)
			chanText = get(colChannel)
		} else {
			if get(colDevice) != device {
				return nil, fmt.Errorf("calibration table %s: device name is not consistent", path)
			}
			if get(colChannel) != chanText {
				return nil, fmt.Errorf("calibration table %s: channel is not consistent", path)
			}
		}
		if row > maxRow {
			maxRow = row
		}
		if col > maxCol {
			maxCol = col
		}
		rows = append(rows, rawRow{well: well, m: Measurement{DC: dc, GCal: gcal, Intensity: intensity}})
	}

	channel, err := ParseChannel(chanText)
	if err != nil {
		return nil, fmt.Errorf("calibration table %s: %w", path, err)
	}
	if len(rows) != maxRow*maxCol {
		return nil, &DimensionMismatchError{
			What: fmt.Sprintf("calibration table %s", path),
			Want: maxRow * maxCol,
			Got:  len(rows),
		}
	}

	wells := make([]Measurement, maxRow*maxCol)
	seen := make([]bool, maxRow*maxCol)
	for _, rr := range rows {
		if rr.well < 1 || rr.well > len(wells) {
			return nil, fmt.Errorf("calibration table %s: well %d out of range 1..%d", path, rr.well, len(wells))
		}
		if seen[rr.well-1] {
			return nil, fmt.Errorf("calibration table %s: duplicate well %d", path, rr.well)
		}
		seen[rr.well-1] = true
		wells[rr.well-1] = rr.m
	}

	return NewTable(device, channel, maxRow, maxCol, wells)
}

// parseInt accepts plain integers as well as the float-formatted
// integers spreadsheet exports tend to produce ("9.0").
func parseInt(s string) (int, error) {
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

func headerIndex(header []string, names ...string) (map[string]int, error) {
	idx := make(map[string]int, len(names))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, name := range names {
		if _, ok := idx[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	return idx, nil
}
