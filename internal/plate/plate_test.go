package plate

import (
	"errors"
	"math"
	"testing"

	"github.com/openlpa/lightprog/internal/calib"
	"github.com/openlpa/lightprog/internal/led"
)

// testPlate builds a 4x6, 2-channel plate. Channel 0 was measured at
// dc 8 / gcal 215, channel 1 at dc 8 / gcal 190, with per-well measured
// intensities varying slightly.
func testPlate(t *testing.T) *Plate {
	t.Helper()
	mk := func(channel, mdc, mgcal int, base, slope float64) *led.Set {
		wells := make([]calib.Measurement, 24)
		for w := range wells {
			wells[w] = calib.Measurement{DC: mdc, GCal: mgcal, Intensity: base + slope*float64(w)}
		}
		tbl, err := calib.NewTable("Tiffani", channel, 4, 6, wells)
		if err != nil {
			t.Fatal(err)
		}
		return led.NewSet("set", tbl)
	}
	p, err := New("Tiffani", []*led.Set{
		mk(0, 8, 215, 40, 0.25),
		mk(1, 8, 190, 30, 0.1),
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestNewDefaults(t *testing.T) {
	p := testPlate(t)
	if p.Rows != 4 || p.Cols != 6 || p.Channels != 2 {
		t.Fatalf("unexpected geometry: %dx%dx%d", p.Rows, p.Cols, p.Channels)
	}
	if p.NumSteps() != 1 || p.StepMS != DefaultStepMS {
		t.Fatalf("unexpected defaults: %d steps, %d ms", p.NumSteps(), p.StepMS)
	}
	for r := 0; r < 4; r++ {
		for c := 0; c < 6; c++ {
			for ch := 0; ch < 2; ch++ {
				if p.DC(r, c, ch) != 0 || p.GCal(r, c, ch) != 255 {
					t.Fatalf("well (%d,%d,%d): dc=%d gcal=%d", r, c, ch, p.DC(r, c, ch), p.GCal(r, c, ch))
				}
				if p.Intensity(0, r, c, ch) != 0 {
					t.Fatalf("well (%d,%d,%d): intensity not zero", r, c, ch)
				}
			}
		}
	}
}

func TestNewRejectsGeometryMismatch(t *testing.T) {
	wellsA := make([]calib.Measurement, 24)
	wellsB := make([]calib.Measurement, 4)
	for w := range wellsA {
		wellsA[w] = calib.Measurement{DC: 8, GCal: 255, Intensity: 40}
	}
	for w := range wellsB {
		wellsB[w] = calib.Measurement{DC: 8, GCal: 255, Intensity: 40}
	}
	a, _ := calib.NewTable("x", 0, 4, 6, wellsA)
	b, _ := calib.NewTable("x", 1, 2, 2, wellsB)
	_, err := New("x", []*led.Set{led.NewSet("a", a), led.NewSet("b", b)})
	var dme *calib.DimensionMismatchError
	if !errors.As(err, &dme) {
		t.Fatalf("want DimensionMismatchError, got %v", err)
	}
}

func TestSetAllDC(t *testing.T) {
	p := testPlate(t)
	p.SetAllDC(9, 0)
	p.SetAllDC(7, 1)
	if p.DC(2, 3, 0) != 9 || p.DC(2, 3, 1) != 7 {
		t.Fatalf("per-channel fill failed: %d, %d", p.DC(2, 3, 0), p.DC(2, 3, 1))
	}
	p.SetAllDC(5, -1)
	if p.DC(0, 0, 0) != 5 || p.DC(3, 5, 1) != 5 {
		t.Fatal("all-channel fill failed")
	}
}

func TestSetAllGCal(t *testing.T) {
	p := testPlate(t)
	p.SetAllGCal(215, 0)
	if p.GCal(1, 1, 0) != 215 || p.GCal(1, 1, 1) != 255 {
		t.Fatalf("per-channel fill leaked: %d, %d", p.GCal(1, 1, 0), p.GCal(1, 1, 1))
	}
}

func TestSetNumStepsGrowRepeatsLast(t *testing.T) {
	p := testPlate(t)
	p.SetIntensity(0, 1, 2, 0, 7.5)
	p.SetNumSteps(4)
	if p.NumSteps() != 4 {
		t.Fatalf("steps = %d, want 4", p.NumSteps())
	}
	for step := 0; step < 4; step++ {
		if p.Intensity(step, 1, 2, 0) != 7.5 {
			t.Fatalf("step %d not repeated from last", step)
		}
	}

	// Change the new tail and grow again: the tail is what repeats.
	p.SetIntensity(3, 1, 2, 0, 9)
	p.SetNumSteps(6)
	if p.Intensity(4, 1, 2, 0) != 9 || p.Intensity(5, 1, 2, 0) != 9 {
		t.Fatal("grow did not repeat the final step")
	}
	if p.Intensity(2, 1, 2, 0) != 7.5 {
		t.Fatal("grow touched existing steps")
	}
}

func TestSetNumStepsShrinkTruncates(t *testing.T) {
	p := testPlate(t)
	p.SetNumSteps(5)
	p.SetIntensity(4, 0, 0, 0, 3)
	p.SetIntensity(1, 0, 0, 0, 2)
	p.SetNumSteps(2)
	if p.NumSteps() != 2 {
		t.Fatalf("steps = %d, want 2", p.NumSteps())
	}
	if p.Intensity(1, 0, 0, 0) != 2 {
		t.Fatal("shrink touched surviving steps")
	}
	p.SetNumSteps(0)
	if p.NumSteps() != 0 {
		t.Fatal("empty resize rejected")
	}
	p.SetNumSteps(3)
	for step := 0; step < 3; step++ {
		if p.Intensity(step, 0, 0, 0) != 0 {
			t.Fatal("growth from empty should zero-fill")
		}
	}
}

func TestStaggeredTimecourse(t *testing.T) {
	p := testPlate(t)
	waveform := []float64{10, 11, 12, 13, 14, 15}
	rows := []int{0, 0, 0}
	cols := []int{0, 1, 2}
	sampling := []int{6, 4, 0}
	if err := p.SetStaggeredTimecourse(waveform, 1, sampling, 0, rows, cols); err != nil {
		t.Fatalf("stagger: %v", err)
	}
	if p.NumSteps() != 6 {
		t.Fatalf("buffer not grown: %d steps", p.NumSteps())
	}

	// Well (0,0): offset 6 == len(waveform), sees the whole waveform.
	for step := 0; step < 6; step++ {
		if got := p.Intensity(step, 0, 0, 0); got != waveform[step] {
			t.Fatalf("well (0,0) step %d = %v, want %v", step, got, waveform[step])
		}
	}
	// Well (0,1): offset 4, pre for 2 steps then waveform[0:4].
	want01 := []float64{1, 1, 10, 11, 12, 13}
	for step, w := range want01 {
		if got := p.Intensity(step, 0, 1, 0); got != w {
			t.Fatalf("well (0,1) step %d = %v, want %v", step, got, w)
		}
	}
	// Well (0,2): offset 0, pre throughout.
	for step := 0; step < 6; step++ {
		if got := p.Intensity(step, 0, 2, 0); got != 1 {
			t.Fatalf("well (0,2) step %d = %v, want pre", step, got)
		}
	}
	// Untouched channel stays zero.
	if p.Intensity(3, 0, 0, 1) != 0 {
		t.Fatal("stagger leaked into other channel")
	}
}

func TestStaggeredEndpointAlignment(t *testing.T) {
	p := testPlate(t)
	p.SetNumSteps(10)
	waveform := []float64{1, 2, 3, 4, 5, 6}
	rows := []int{1, 1, 1}
	cols := []int{0, 1, 2}
	sampling := []int{6, 3, 1}
	if err := p.SetStaggeredTimecourse(waveform, 0, sampling, 0, rows, cols); err != nil {
		t.Fatalf("stagger: %v", err)
	}
	// The final step of well i shows waveform[k-1].
	for i, k := range sampling {
		got := p.Intensity(9, 1, cols[i], 0)
		if got != waveform[k-1] {
			t.Fatalf("well %d final value = %v, want %v", i, got, waveform[k-1])
		}
	}
}

func TestStaggeredAllWells(t *testing.T) {
	p := testPlate(t)
	waveform := make([]float64, 24)
	sampling := make([]int, 24)
	for i := range waveform {
		waveform[i] = float64(i)
		sampling[i] = i + 1
	}
	if err := p.SetStaggeredTimecourse(waveform, 0, sampling, 1, nil, nil); err != nil {
		t.Fatalf("stagger: %v", err)
	}
	// Wells are taken in row-major order: well w has offset w+1 and
	// ends at waveform[w].
	for r := 0; r < 4; r++ {
		for c := 0; c < 6; c++ {
			w := r*6 + c
			if got := p.Intensity(23, r, c, 1); got != waveform[w] {
				t.Fatalf("well (%d,%d) final value = %v, want %v", r, c, got, waveform[w])
			}
		}
	}
}

func TestStaggeredLengthMismatch(t *testing.T) {
	p := testPlate(t)
	err := p.SetStaggeredTimecourse([]float64{1, 2}, 0, []int{1, 2}, 0, []int{0}, []int{0})
	var dme *calib.DimensionMismatchError
	if !errors.As(err, &dme) {
		t.Fatalf("want DimensionMismatchError, got %v", err)
	}
}

func TestStaggeredOffsetTooLarge(t *testing.T) {
	p := testPlate(t)
	err := p.SetStaggeredTimecourse([]float64{1, 2}, 0, []int{3}, 0, []int{0}, []int{0})
	var dme *calib.DimensionMismatchError
	if !errors.As(err, &dme) {
		t.Fatalf("want DimensionMismatchError, got %v", err)
	}
	// A rejected call must not have resized the buffer.
	if p.NumSteps() != 1 {
		t.Fatalf("failed call grew the buffer to %d steps", p.NumSteps())
	}
}

func TestDiscretizeIntensity(t *testing.T) {
	p := testPlate(t)
	p.SetAllDC(9, 0)
	p.SetAllDC(7, 1)
	p.SetNumSteps(3)
	p.SetAllIntensity(11.31, 0)
	p.SetAllIntensity(5.07, 1)

	if err := p.DiscretizeIntensity(); err != nil {
		t.Fatalf("discretize: %v", err)
	}

	// Every value must now be exactly representable: a second pass is
	// a no-op.
	before := make([]float64, len(p.intensity))
	copy(before, p.intensity)
	if err := p.DiscretizeIntensity(); err != nil {
		t.Fatalf("second discretize: %v", err)
	}
	for i := range before {
		if p.intensity[i] != before[i] {
			t.Fatalf("index %d changed on second discretize", i)
		}
	}

	// Spot check well (0,0,0): gs = round(4095 * 11.31/40 * 8/9 * 215/255).
	m := p.Sets[0].Table.At(0)
	gs := math.Round(4095 * (11.31 / m.Intensity) * (float64(m.DC) / 9) * (float64(m.GCal) / 255))
	want := m.Intensity * (9 / float64(m.DC)) * (255 / float64(m.GCal)) * (gs / 4095)
	if math.Abs(p.Intensity(0, 0, 0, 0)-want) > 1e-9 {
		t.Fatalf("well (0,0,0) = %v, want %v", p.Intensity(0, 0, 0, 0), want)
	}
}

func TestDiscretizeFailureLeavesBufferUnmodified(t *testing.T) {
	p := testPlate(t)
	p.SetAllDC(9, -1)
	p.SetNumSteps(3)
	p.SetAllIntensity(10, 0)
	p.SetAllIntensity(10, 1)
	// Unreachable at step 2, channel 1.
	p.SetIntensity(2, 3, 5, 1, 1e6)

	before := make([]float64, len(p.intensity))
	copy(before, p.intensity)

	err := p.DiscretizeIntensity()
	var sce *StepChannelError
	if !errors.As(err, &sce) {
		t.Fatalf("want StepChannelError, got %v", err)
	}
	if sce.Step != 2 || sce.Channel != 1 {
		t.Fatalf("context step=%d channel=%d, want 2/1", sce.Step, sce.Channel)
	}
	var re *led.RangeError
	if !errors.As(err, &re) {
		t.Fatalf("cause should be a RangeError, got %v", err)
	}
	for i := range before {
		if p.intensity[i] != before[i] {
			t.Fatal("failed discretize modified the buffer")
		}
	}
}

func TestOptimizeDCUsesPeakAcrossSteps(t *testing.T) {
	p := testPlate(t)
	p.SetAllGCal(215, 0)
	p.SetNumSteps(4)
	p.SetAllIntensity(5, 0)
	// Well (0,0) peaks at step 2.
	p.SetIntensity(2, 0, 0, 0, 50)

	if err := p.OptimizeDC(0, 2, false); err != nil {
		t.Fatalf("optimize: %v", err)
	}
	// ceil(8 * 50/40 * 215/215) = 10 for well (0,0).
	if got := p.DC(0, 0, 0); got != 10 {
		t.Fatalf("well (0,0) dc = %d, want 10", got)
	}
	// A low-intensity well gets the floor.
	if got := p.DC(3, 5, 0); got != 2 {
		t.Fatalf("well (3,5) dc = %d, want 2", got)
	}
	// Other channel untouched.
	if p.DC(0, 0, 1) != 0 {
		t.Fatal("optimize leaked into other channel")
	}
}

func TestGrayscaleProgramLayout(t *testing.T) {
	p := testPlate(t)
	p.SetAllDC(9, 0)
	p.SetAllDC(7, 1)
	p.SetNumSteps(2)
	p.SetAllIntensity(11.31, 0)
	p.SetAllIntensity(5.07, 1)

	gs, err := p.GrayscaleProgram()
	if err != nil {
		t.Fatalf("grayscale program: %v", err)
	}
	total := 4 * 6 * 2
	if len(gs) != 2*total {
		t.Fatalf("program has %d words, want %d", len(gs), 2*total)
	}
	// Word order is step-major, then well row-major, then channel.
	for ch := 0; ch < 2; ch++ {
		m := p.Sets[ch].Table.At(7) // well (1,1)
		dc := float64(p.DC(1, 1, ch))
		val := []float64{11.31, 5.07}[ch]
		want := uint16(math.Round(4095 * (val / m.Intensity) * (float64(m.DC) / dc) * (float64(m.GCal) / 255)))
		if got := gs[1*total+7*2+ch]; got != want {
			t.Fatalf("step 1, well 7, channel %d = %d, want %d", ch, got, want)
		}
	}
}

func TestGrayscaleProgramRangeContext(t *testing.T) {
	p := testPlate(t)
	p.SetAllDC(9, -1)
	p.SetNumSteps(2)
	p.SetIntensity(1, 0, 0, 0, 1e6)

	_, err := p.GrayscaleProgram()
	var sce *StepChannelError
	if !errors.As(err, &sce) {
		t.Fatalf("want StepChannelError, got %v", err)
	}
	if sce.Step != 1 || sce.Channel != 0 {
		t.Fatalf("context step=%d channel=%d, want 1/0", sce.Step, sce.Channel)
	}
}
