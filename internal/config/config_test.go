package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleExperiment = `name: stagger-053
calibration_root: calibrations
steps: 720
channels:
  - layout: 520-2-KB
    optimize_dc: true
    min_dc: 3
    signal:
      type: logramp
      from: 0.1
      to: 50
      steps: 360
      staggered: true
      sampling_interval: 15
  - led_set: EO_12
    dc: 7
    signal:
      type: constant
      value: 5
`

func TestLoadDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experiment.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleExperiment), 0o644))

	e, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "stagger-053", e.Name)
	assert.Equal(t, uint32(1000), e.StepMS)
	assert.Equal(t, 720, e.Steps)
	require.Len(t, e.Channels, 2)

	assert.Equal(t, "520-2-KB", e.Channels[0].Layout)
	assert.True(t, e.Channels[0].OptimizeDC)
	assert.Equal(t, 3, e.Channels[0].MinDC)
	assert.Equal(t, 255, e.Channels[0].GCal)

	assert.Equal(t, "EO_12", e.Channels[1].LEDSet)
	assert.Equal(t, 7, e.Channels[1].DC)
	assert.Equal(t, 1, e.Channels[1].MinDC)
	assert.Equal(t, "constant", e.Channels[1].Signal.Type)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	e := &Experiment{
		Name:            "roundtrip",
		CalibrationRoot: "cal",
		StepMS:          60000,
		Steps:           10,
		Channels: []Channel{
			{LEDSet: "LF_10", DC: 9, GCal: 215, MinDC: 1,
				Signal: Signal{Type: "ramp", From: 1, To: 10, Steps: 10}},
		},
	}
	path := filepath.Join(t.TempDir(), "experiment.yaml")
	require.NoError(t, Save(path, e))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestWaveformConstant(t *testing.T) {
	w, err := Signal{Type: "constant", Value: 4.5}.Waveform()
	require.NoError(t, err)
	assert.Equal(t, []float64{4.5}, w)

	w, err = Signal{Type: "constant", Value: 2, Steps: 3}.Waveform()
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2, 2}, w)
}

func TestWaveformRamp(t *testing.T) {
	w, err := Signal{Type: "ramp", From: 0, To: 10, Steps: 5}.Waveform()
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 2.5, 5, 7.5, 10}, w)
}

func TestWaveformLogRamp(t *testing.T) {
	w, err := Signal{Type: "logramp", From: 0.1, To: 100, Steps: 4}.Waveform()
	require.NoError(t, err)
	require.Len(t, w, 4)
	assert.Equal(t, 0.1, w[0])
	assert.Equal(t, 100.0, w[3])
	// Geometric spacing: constant step ratio.
	assert.InDelta(t, w[1]/w[0], w[2]/w[1], 1e-9)
	assert.InDelta(t, 1.0, w[1], 1e-9)
	assert.InDelta(t, 10.0, w[2], 1e-9)
}

func TestWaveformErrors(t *testing.T) {
	_, err := Signal{Type: "ramp", From: 0, To: 1, Steps: 1}.Waveform()
	assert.Error(t, err)
	_, err = Signal{Type: "logramp", From: 0, To: 1, Steps: 5}.Waveform()
	assert.Error(t, err)
	_, err = Signal{Type: "square", Value: 1}.Waveform()
	assert.Error(t, err)
}

func TestWaveformRampEndpointExact(t *testing.T) {
	w, err := Signal{Type: "ramp", From: 0.1, To: 0.7, Steps: 7}.Waveform()
	require.NoError(t, err)
	if w[6] != 0.7 {
		t.Fatalf("endpoint %v is not exactly 0.7", w[6])
	}
	if math.Abs(w[3]-0.4) > 1e-12 {
		t.Fatalf("midpoint %v, want 0.4", w[3])
	}
}

func TestSamplingSteps(t *testing.T) {
	s := Signal{SamplingStart: 2, SamplingInterval: 15}
	assert.Equal(t, []int{2, 17, 32, 47}, s.SamplingSteps(4))
}
