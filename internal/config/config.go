// Package config defines the yaml experiment file the lpfgen tool
// compiles into a device folder.
package config

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Signal describes the intensity timecourse of one channel.
type Signal struct {
	Type  string  `yaml:"type"` // "constant" | "ramp" | "logramp"
	Value float64 `yaml:"value,omitempty"`
	From  float64 `yaml:"from,omitempty"`
	To    float64 `yaml:"to,omitempty"`
	Steps int     `yaml:"steps,omitempty"`
	Pre   float64 `yaml:"pre,omitempty"`

	// Staggered layout: well i starts so that it has seen
	// SamplingStart + i*SamplingInterval waveform steps when the
	// program ends.
	Staggered        bool `yaml:"staggered,omitempty"`
	SamplingStart    int  `yaml:"sampling_start,omitempty"`
	SamplingInterval int  `yaml:"sampling_interval,omitempty"`
}

// Channel configures one LED channel of the experiment.
type Channel struct {
	LEDSet string `yaml:"led_set,omitempty"` // explicit LED set name
	Layout string `yaml:"layout,omitempty"`  // or a layout resolved via the archive

	GCal       int  `yaml:"gcal,omitempty"` // default 255
	DC         int  `yaml:"dc,omitempty"`   // fixed dot correction
	OptimizeDC bool `yaml:"optimize_dc,omitempty"`
	MinDC      int  `yaml:"min_dc,omitempty"` // default 1
	UniformDC  bool `yaml:"uniform_dc,omitempty"`

	Signal Signal `yaml:"signal"`
}

// Experiment is the top-level document.
type Experiment struct {
	Name            string    `yaml:"name"`
	CalibrationRoot string    `yaml:"calibration_root"`
	StepMS          uint32    `yaml:"step_ms,omitempty"` // default 1000
	Steps           int       `yaml:"steps,omitempty"`   // total program length
	Channels        []Channel `yaml:"channels"`
}

// Load reads an experiment definition.
func Load(path string) (*Experiment, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var e Experiment
	if err := yaml.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("parse experiment %s: %w", path, err)
	}
	if e.StepMS == 0 {
		e.StepMS = 1000
	}
	for i := range e.Channels {
		if e.Channels[i].GCal == 0 {
			e.Channels[i].GCal = 255
		}
		if e.Channels[i].MinDC == 0 {
			e.Channels[i].MinDC = 1
		}
	}
	return &e, nil
}

// Save writes an experiment definition.
func Save(path string, e *Experiment) error {
	b, err := yaml.Marshal(e)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// Waveform materializes the signal as one intensity per step.
func (s Signal) Waveform() ([]float64, error) {
	switch s.Type {
	case "constant":
		if s.Steps <= 0 {
			return []float64{s.Value}, nil
		}
		out := make([]float64, s.Steps)
		for i := range out {
			out[i] = s.Value
		}
		return out, nil
	case "ramp":
		return ramp(s.From, s.To, s.Steps, false)
	case "logramp":
		if s.From <= 0 || s.To <= 0 {
			return nil, fmt.Errorf("logramp endpoints must be positive, got %g..%g", s.From, s.To)
		}
		return ramp(s.From, s.To, s.Steps, true)
	}
	return nil, fmt.Errorf("signal type %q not recognized", s.Type)
}

func ramp(from, to float64, steps int, geometric bool) ([]float64, error) {
	if steps < 2 {
		return nil, fmt.Errorf("ramp needs at least 2 steps, got %d", steps)
	}
	out := make([]float64, steps)
	if geometric {
		r := math.Pow(to/from, 1/float64(steps-1))
		v := from
		for i := range out {
			out[i] = v
			v *= r
		}
	} else {
		d := (to - from) / float64(steps-1)
		for i := range out {
			out[i] = from + float64(i)*d
		}
	}
	out[steps-1] = to
	return out, nil
}

// SamplingSteps returns the per-well sampling offsets for a staggered
// signal, one per well in well order.
func (s Signal) SamplingSteps(wells int) []int {
	out := make([]int, wells)
	for i := range out {
		out[i] = s.SamplingStart + i*s.SamplingInterval
	}
	return out
}
