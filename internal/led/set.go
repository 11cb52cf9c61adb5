// Package led converts between physical light intensities and the
// 12-bit grayscale / 6-bit dot correction units an LED driver chip
// understands, using the photometric calibration of one LED set.
package led

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/openlpa/lightprog/internal/calib"
)

// Hardware ranges of the LED driver.
const (
	MaxGrayscale     = 4095 // 12-bit grayscale command
	MaxDotCorrection = 63   // 6-bit per-LED gain trim
	MaxGrayscaleCal  = 255  // grayscale calibration register
)

// Set is one LED set: the LEDs populating one channel of every well of
// a device, measured together into a single calibration table.
//
// The conversion methods are vectorized over a selection of wells.
// Selections are given as parallel rows/cols index slices; if either is
// nil, all wells are selected in well order. Value arguments (gs, dc,
// gcal, intensity) must have either one element, which applies to every
// selected well, or exactly one element per selected well.
type Set struct {
	Name  string
	Table *calib.Table
}

// NewSet wraps a calibration table as a usable LED set.
func NewSet(name string, table *calib.Table) *Set {
	return &Set{Name: name, Table: table}
}

// Intensity computes the physical intensity (umol/m^2/s) emitted at the
// given grayscale, dot correction, and grayscale calibration settings:
//
//	intensity = measured * (dc/measuredDC) * (gcal/measuredGCal) * (gs/4095)
//
// Pure arithmetic: a zero measured dc or gcal in the table propagates
// as Inf/NaN rather than failing here.
func (s *Set) Intensity(gs, dc, gcal []float64, rows, cols []int) ([]float64, error) {
	wells, err := s.selectWells(rows, cols)
	if err != nil {
		return nil, err
	}
	gs, dc, gcal, err = s.operands(len(wells), gs, dc, gcal)
	if err != nil {
		return nil, err
	}
	mdc, mgcal, mi := s.measured(wells)

	out := make([]float64, len(wells))
	copy(out, gs)
	floats.Scale(1.0/MaxGrayscale, out)
	floats.Mul(out, dc)
	floats.Div(out, mdc)
	floats.Mul(out, gcal)
	floats.Div(out, mgcal)
	floats.Mul(out, mi)
	return out, nil
}

// Grayscale computes the grayscale values producing the given
// intensities, rounded to the nearest integer. If any well would need a
// value outside 0..MaxGrayscale the whole call fails with a RangeError:
// the intensity is not reachable at the given dot correction (negative
// values can only come from a negative requested intensity).
func (s *Set) Grayscale(intensity, dc, gcal []float64, rows, cols []int) ([]uint16, error) {
	wells, err := s.selectWells(rows, cols)
	if err != nil {
		return nil, err
	}
	intensity, dc, gcal, err = s.operands(len(wells), intensity, dc, gcal)
	if err != nil {
		return nil, err
	}
	mdc, mgcal, mi := s.measured(wells)

	out := make([]uint16, len(wells))
	for i, w := range wells {
		gs := math.Round(MaxGrayscale * (intensity[i] / mi[i]) * (mdc[i] / dc[i]) * (mgcal[i] / gcal[i]))
		if !(gs >= 0 && gs <= MaxGrayscale) {
			return nil, &RangeError{What: "grayscale", Limit: MaxGrayscale, Well: w, Value: gs}
		}
		out[i] = uint16(gs)
	}
	return out, nil
}

// Discretize maps intensities to the nearest values actually
// representable at 12-bit grayscale resolution, by converting to
// grayscale and back. Fails like Grayscale when an intensity is out of
// range.
func (s *Set) Discretize(intensity, dc, gcal []float64, rows, cols []int) ([]float64, error) {
	gs, err := s.Grayscale(intensity, dc, gcal, rows, cols)
	if err != nil {
		return nil, err
	}
	gsf := make([]float64, len(gs))
	for i, v := range gs {
		gsf[i] = float64(v)
	}
	return s.Intensity(gsf, dc, gcal, rows, cols)
}

// OptimizeDC returns, per selected well, the smallest dot correction at
// which the given intensity is reachable at full-scale grayscale,
// floored at minDC. Smaller dot correction means finer grayscale
// resolution, so this maximizes resolution while keeping the peak
// intensity representable. With uniform set, every returned value is
// the maximum over the selection. A value above MaxDotCorrection fails
// with a RangeError.
func (s *Set) OptimizeDC(intensity, gcal []float64, minDC int, uniform bool, rows, cols []int) ([]int, error) {
	wells, err := s.selectWells(rows, cols)
	if err != nil {
		return nil, err
	}
	intensity, err = broadcast("intensity", intensity, len(wells))
	if err != nil {
		return nil, err
	}
	gcal, err = broadcast("gcal", gcal, len(wells))
	if err != nil {
		return nil, err
	}
	mdc, mgcal, mi := s.measured(wells)

	out := make([]int, len(wells))
	maxDC := minDC
	for i, w := range wells {
		dcf := math.Ceil(mdc[i] * (intensity[i] / mi[i]) * (mgcal[i] / gcal[i]))
		if !(dcf <= MaxDotCorrection) {
			return nil, &RangeError{What: "dot correction", Limit: MaxDotCorrection, Well: w, Value: dcf}
		}
		dc := int(dcf)
		if dc < minDC {
			dc = minDC
		}
		if dc > maxDC {
			maxDC = dc
		}
		out[i] = dc
	}
	if uniform {
		for i := range out {
			out[i] = maxDC
		}
	}
	return out, nil
}

// selectWells resolves a rows/cols selection to well indices. Either
// slice being nil selects every well.
func (s *Set) selectWells(rows, cols []int) ([]int, error) {
	t := s.Table
	if rows == nil || cols == nil {
		wells := make([]int, t.NumWells())
		for i := range wells {
			wells[i] = i
		}
		return wells, nil
	}
	n := len(rows)
	if len(cols) > n {
		n = len(cols)
	}
	rows, err := broadcastInts("rows", rows, n)
	if err != nil {
		return nil, err
	}
	cols, err = broadcastInts("cols", cols, n)
	if err != nil {
		return nil, err
	}
	wells := make([]int, n)
	for i := range wells {
		if rows[i] < 0 || rows[i] >= t.Rows || cols[i] < 0 || cols[i] >= t.Cols {
			return nil, fmt.Errorf("well (%d, %d) outside %dx%d plate", rows[i], cols[i], t.Rows, t.Cols)
		}
		wells[i] = t.WellIndex(rows[i], cols[i])
	}
	return wells, nil
}

// operands broadcasts the three per-well value slices to the selection
// length.
func (s *Set) operands(n int, a, b, c []float64) ([]float64, []float64, []float64, error) {
	a, err := broadcast("values", a, n)
	if err != nil {
		return nil, nil, nil, err
	}
	b, err = broadcast("dc", b, n)
	if err != nil {
		return nil, nil, nil, err
	}
	c, err = broadcast("gcal", c, n)
	if err != nil {
		return nil, nil, nil, err
	}
	return a, b, c, nil
}

// measured gathers the calibration columns for a well selection.
func (s *Set) measured(wells []int) (mdc, mgcal, mi []float64) {
	mdc = make([]float64, len(wells))
	mgcal = make([]float64, len(wells))
	mi = make([]float64, len(wells))
	for i, w := range wells {
		m := s.Table.At(w)
		mdc[i] = float64(m.DC)
		mgcal[i] = float64(m.GCal)
		mi[i] = m.Intensity
	}
	return mdc, mgcal, mi
}

func broadcast(what string, v []float64, n int) ([]float64, error) {
	switch len(v) {
	case n:
		return v, nil
	case 1:
		out := make([]float64, n)
		for i := range out {
			out[i] = v[0]
		}
		return out, nil
	}
	return nil, &calib.DimensionMismatchError{What: what, Want: n, Got: len(v)}
}

func broadcastInts(what string, v []int, n int) ([]int, error) {
	switch len(v) {
	case n:
		return v, nil
	case 1:
		out := make([]int, n)
		for i := range out {
			out[i] = v[0]
		}
		return out, nil
	}
	return nil, &calib.DimensionMismatchError{What: what, Want: n, Got: len(v)}
}
