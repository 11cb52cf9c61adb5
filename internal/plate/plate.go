// Package plate holds the in-memory program for one Light Plate
// Apparatus: target intensities over time for every well and channel,
// plus the per-well dot correction and grayscale calibration grids, and
// the operations that compile them into a device-ready grayscale
// program.
package plate

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/openlpa/lightprog/internal/calib"
	"github.com/openlpa/lightprog/internal/led"
)

// DefaultStepMS is the step duration a new plate starts with.
const DefaultStepMS = 1000

// StepChannelError wraps a conversion failure with the time step and
// channel it happened on.
type StepChannelError struct {
	Step    int
	Channel int
	Err     error
}

func (e *StepChannelError) Error() string {
	return fmt.Sprintf("on step %d, channel %d: %v", e.Step, e.Channel, e.Err)
}

func (e *StepChannelError) Unwrap() error { return e.Err }

// Plate is the program buffer for one device. Row, column and channel
// extents are fixed at construction from the LED sets' calibration
// tables; only the step extent of the intensity array changes over the
// plate's lifetime. Intensities are physical (umol/m^2/s); conversion
// to grayscale happens against the dc and gcal grids via the LED sets.
type Plate struct {
	Name     string
	Sets     []*led.Set
	Rows     int
	Cols     int
	Channels int
	StepMS   uint32

	dc        []int     // (r*Cols+c)*Channels+ch
	gcal      []int     // same layout
	intensity []float64 // ((step*Rows+r)*Cols+c)*Channels+ch
	steps     int
}

// New builds a plate from one LED set per channel (1 or 2 channels
// supported). Geometry comes from the first set's table; a set whose
// table disagrees on geometry is an error, while device-name or channel
// mismatches are logged and tolerated.
func New(name string, sets []*led.Set) (*Plate, error) {
	if len(sets) < 1 || len(sets) > 2 {
		return nil, fmt.Errorf("plate %q: %d channels not supported (want 1 or 2)", name, len(sets))
	}
	rows, cols := sets[0].Table.Rows, sets[0].Table.Cols
	for i, s := range sets {
		if s.Table.Device != name {
			log.Warn().Str("plate", name).Str("set", s.Name).Str("device", s.Table.Device).
				Msg("device name does not match calibration table")
		}
		if s.Table.Channel != i {
			log.Warn().Str("plate", name).Str("set", s.Name).Int("channel", i).
				Int("measured", s.Table.Channel).Msg("channel does not match calibration table")
		}
		if s.Table.Rows != rows || s.Table.Cols != cols {
			return nil, &calib.DimensionMismatchError{
				What: fmt.Sprintf("calibration table for set %q", s.Name),
				Want: rows * cols,
				Got:  s.Table.Rows * s.Table.Cols,
			}
		}
	}

	p := &Plate{
		Name:     name,
		Sets:     sets,
		Rows:     rows,
		Cols:     cols,
		Channels: len(sets),
		StepMS:   DefaultStepMS,
		dc:       make([]int, rows*cols*len(sets)),
		gcal:     make([]int, rows*cols*len(sets)),
		steps:    1,
	}
	p.intensity = make([]float64, p.wellChannels())
	for i := range p.gcal {
		p.gcal[i] = led.MaxGrayscaleCal
	}
	return p, nil
}

// wellChannels is the total channel count of the device:
// rows * cols * channels per well.
func (p *Plate) wellChannels() int { return p.Rows * p.Cols * p.Channels }

func (p *Plate) gridIndex(row, col, channel int) int {
	return (row*p.Cols+col)*p.Channels + channel
}

func (p *Plate) stepIndex(step, row, col, channel int) int {
	return ((step*p.Rows+row)*p.Cols+col)*p.Channels + channel
}

// NumSteps returns the current step extent of the intensity array.
func (p *Plate) NumSteps() int { return p.steps }

// DC returns the dot correction for one well channel.
func (p *Plate) DC(row, col, channel int) int { return p.dc[p.gridIndex(row, col, channel)] }

// SetDC sets the dot correction for one well channel.
func (p *Plate) SetDC(row, col, channel, value int) { p.dc[p.gridIndex(row, col, channel)] = value }

// GCal returns the grayscale calibration for one well channel.
func (p *Plate) GCal(row, col, channel int) int { return p.gcal[p.gridIndex(row, col, channel)] }

// SetGCal sets the grayscale calibration for one well channel.
func (p *Plate) SetGCal(row, col, channel, value int) { p.gcal[p.gridIndex(row, col, channel)] = value }

// Intensity returns the target intensity at one step and well channel.
func (p *Plate) Intensity(step, row, col, channel int) float64 {
	return p.intensity[p.stepIndex(step, row, col, channel)]
}

// SetIntensity sets the target intensity at one step and well channel.
func (p *Plate) SetIntensity(step, row, col, channel int, value float64) {
	p.intensity[p.stepIndex(step, row, col, channel)] = value
}

// SetAllDC sets the dot correction of every well on the given channel,
// or on all channels if channel is negative.
func (p *Plate) SetAllDC(value, channel int) { p.fillGrid(p.dc, value, channel) }

// SetAllGCal sets the grayscale calibration of every well on the given
// channel, or on all channels if channel is negative.
func (p *Plate) SetAllGCal(value, channel int) { p.fillGrid(p.gcal, value, channel) }

func (p *Plate) fillGrid(grid []int, value, channel int) {
	if channel < 0 {
		for i := range grid {
			grid[i] = value
		}
		return
	}
	for i := channel; i < len(grid); i += p.Channels {
		grid[i] = value
	}
}

// SetAllIntensity sets every step of every well on the given channel to
// a constant intensity (all channels if channel is negative).
func (p *Plate) SetAllIntensity(value float64, channel int) {
	if channel < 0 {
		for i := range p.intensity {
			p.intensity[i] = value
		}
		return
	}
	for i := channel; i < len(p.intensity); i += p.Channels {
		p.intensity[i] = value
	}
}

// SetNumSteps resizes the step extent of the intensity array. Growing
// repeats the last step's values; shrinking drops trailing steps.
// n = 0 yields an empty (degenerate but valid) program.
func (p *Plate) SetNumSteps(n int) {
	if n < 0 {
		n = 0
	}
	if n == p.steps {
		return
	}
	block := p.wellChannels()
	next := make([]float64, n*block)
	copy(next, p.intensity[:min(n, p.steps)*block])
	if n > p.steps && p.steps > 0 {
		last := p.intensity[(p.steps-1)*block : p.steps*block]
		for step := p.steps; step < n; step++ {
			copy(next[step*block:(step+1)*block], last)
		}
	}
	p.intensity = next
	p.steps = n
}

// SetStaggeredTimecourse lays the same intensity waveform onto many
// wells of one channel, each with its own start offset, so that when
// the program ends well i has run through the first samplingSteps[i]
// waveform samples. Steps before a well's start hold pre. All wells
// stop together, which emulates destructive sampling of a single
// timecourse at per-well durations.
//
// If rows or cols is nil, all wells are used in well order. The buffer
// is first grown to hold the whole waveform if needed; wells, cols and
// samplingSteps must have matching lengths and every sampling offset
// must fit both the waveform and the buffer.
func (p *Plate) SetStaggeredTimecourse(waveform []float64, pre float64, samplingSteps []int, channel int, rows, cols []int) error {
	if channel < 0 || channel >= p.Channels {
		return fmt.Errorf("channel %d out of range (%d channels)", channel, p.Channels)
	}
	if rows == nil || cols == nil {
		rows = make([]int, 0, p.Rows*p.Cols)
		cols = make([]int, 0, p.Rows*p.Cols)
		for r := 0; r < p.Rows; r++ {
			for c := 0; c < p.Cols; c++ {
				rows = append(rows, r)
				cols = append(cols, c)
			}
		}
	}
	if len(rows) != len(cols) {
		return &calib.DimensionMismatchError{What: "rows and cols", Want: len(rows), Got: len(cols)}
	}
	if len(samplingSteps) != len(rows) {
		return &calib.DimensionMismatchError{What: "sampling steps", Want: len(rows), Got: len(samplingSteps)}
	}

	// Validate before growing so a rejected call leaves the step
	// extent alone. The buffer ends up at least waveform-sized, so
	// the waveform length is the binding limit on offsets.
	for _, k := range samplingSteps {
		if k < 0 || k > len(waveform) {
			return &calib.DimensionMismatchError{What: "sampling step", Want: len(waveform), Got: k}
		}
	}
	if p.steps < len(waveform) {
		p.SetNumSteps(len(waveform))
	}
	n := p.steps

	for i := range rows {
		start := n - samplingSteps[i]
		for step := 0; step < n; step++ {
			v := pre
			if step >= start {
				v = waveform[step-start]
			}
			p.SetIntensity(step, rows[i], cols[i], channel, v)
		}
	}
	return nil
}

// DiscretizeIntensity replaces every intensity with the nearest value
// representable at 12-bit grayscale resolution under the current dc and
// gcal grids. The computation runs into a scratch array and the plate's
// array is swapped in only after every step and channel converted, so a
// failure leaves the plate untouched.
func (p *Plate) DiscretizeIntensity() error {
	scratch := make([]float64, len(p.intensity))
	for channel := 0; channel < p.Channels; channel++ {
		dc, gcal := p.gridColumn(channel)
		for step := 0; step < p.steps; step++ {
			values := p.channelStep(step, channel)
			out, err := p.Sets[channel].Discretize(values, dc, gcal, nil, nil)
			if err != nil {
				return &StepChannelError{Step: step, Channel: channel, Err: err}
			}
			for w, v := range out {
				scratch[p.stepIndex(step, w/p.Cols, w%p.Cols, channel)] = v
			}
		}
	}
	p.intensity = scratch
	return nil
}

// OptimizeDC sets the channel's dot correction grid to the smallest
// per-well values (floored at minDC) that keep the channel's peak
// intensity across all steps representable. With uniform set the whole
// channel gets one value.
func (p *Plate) OptimizeDC(channel, minDC int, uniform bool) error {
	if channel < 0 || channel >= p.Channels {
		return fmt.Errorf("channel %d out of range (%d channels)", channel, p.Channels)
	}
	peak := make([]float64, p.Rows*p.Cols)
	for step := 0; step < p.steps; step++ {
		for w, v := range p.channelStep(step, channel) {
			if step == 0 || v > peak[w] {
				peak[w] = v
			}
		}
	}
	_, gcal := p.gridColumn(channel)
	dc, err := p.Sets[channel].OptimizeDC(peak, gcal, minDC, uniform, nil, nil)
	if err != nil {
		return err
	}
	for w, v := range dc {
		p.dc[p.gridIndex(w/p.Cols, w%p.Cols, channel)] = v
	}
	return nil
}

// GrayscaleProgram converts the whole intensity array into the flat
// grayscale program the file format stores: step-major, then well in
// row-major order, then channel. Conversion failures carry step and
// channel context.
func (p *Plate) GrayscaleProgram() ([]uint16, error) {
	total := p.wellChannels()
	out := make([]uint16, p.steps*total)
	for channel := 0; channel < p.Channels; channel++ {
		dc, gcal := p.gridColumn(channel)
		for step := 0; step < p.steps; step++ {
			values := p.channelStep(step, channel)
			gs, err := p.Sets[channel].Grayscale(values, dc, gcal, nil, nil)
			if err != nil {
				return nil, &StepChannelError{Step: step, Channel: channel, Err: err}
			}
			for w, v := range gs {
				out[step*total+w*p.Channels+channel] = v
			}
		}
	}
	return out, nil
}

// gridColumn extracts one channel of the dc and gcal grids as float
// slices in well order.
func (p *Plate) gridColumn(channel int) (dc, gcal []float64) {
	n := p.Rows * p.Cols
	dc = make([]float64, n)
	gcal = make([]float64, n)
	for w := 0; w < n; w++ {
		dc[w] = float64(p.dc[w*p.Channels+channel])
		gcal[w] = float64(p.gcal[w*p.Channels+channel])
	}
	return dc, gcal
}

// channelStep extracts the intensities of one step and channel in well
// order.
func (p *Plate) channelStep(step, channel int) []float64 {
	n := p.Rows * p.Cols
	out := make([]float64, n)
	for w := 0; w < n; w++ {
		out[w] = p.intensity[step*p.wellChannels()+w*p.Channels+channel]
	}
	return out
}
