package calib

import "fmt"

// Measurement holds the photometric calibration of one well: the dot
// correction and grayscale calibration values the LED set was measured
// at, and the intensity (umol/m^2/s) it produced at full-scale
// grayscale under those conditions.
type Measurement struct {
	DC        int
	GCal      int
	Intensity float64
}

// DimensionMismatchError reports an array or table whose size does not
// match the plate geometry it is supposed to cover.
type DimensionMismatchError struct {
	What string
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: want %d, got %d", e.What, e.Want, e.Got)
}

// Table is the measured calibration of one LED set on one device
// channel. It is immutable after construction: one Measurement per
// well, indexed row-major.
type Table struct {
	Device  string
	Channel int
	Rows    int
	Cols    int

	wells []Measurement
}

// NewTable builds a Table from a dense row-major slice of measurements.
// The slice length must equal rows*cols.
func NewTable(device string, channel, rows, cols int, wells []Measurement) (*Table, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("calibration table for %q: invalid geometry %dx%d", device, rows, cols)
	}
	if len(wells) != rows*cols {
		return nil, &DimensionMismatchError{
			What: fmt.Sprintf("calibration table for %q", device),
			Want: rows * cols,
			Got:  len(wells),
		}
	}
	t := &Table{
		Device:  device,
		Channel: channel,
		Rows:    rows,
		Cols:    cols,
		wells:   make([]Measurement, len(wells)),
	}
	copy(t.wells, wells)
	return t, nil
}

// NumWells returns rows*cols.
func (t *Table) NumWells() int { return t.Rows * t.Cols }

// WellIndex maps a zero-based (row, col) pair to a well index.
func (t *Table) WellIndex(row, col int) int { return row*t.Cols + col }

// At returns the measurement for the given well index.
func (t *Table) At(well int) Measurement { return t.wells[well] }
