package plate

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/openlpa/lightprog/internal/calib"
	"github.com/openlpa/lightprog/internal/lpf"
)

// File names making up a device folder.
const (
	DCFileName   = "dc.txt"
	GCalFileName = "gcal.txt"
	LPFFileName  = "program.lpf"
)

// SaveDC writes the dot correction grid as tab-separated text, one line
// per plate row, channels concatenated per well. This is the format the
// device firmware reads.
func (p *Plate) SaveDC(path string) error { return p.saveGrid(path, p.dc) }

// SaveGCal writes the grayscale calibration grid in the same format as
// SaveDC.
func (p *Plate) SaveGCal(path string) error { return p.saveGrid(path, p.gcal) }

// LoadDC reads a dot correction grid written by SaveDC (or by the
// device's calibration tooling).
func (p *Plate) LoadDC(path string) error { return p.loadGrid(path, p.dc) }

// LoadGCal reads a grayscale calibration grid.
func (p *Plate) LoadGCal(path string) error { return p.loadGrid(path, p.gcal) }

func (p *Plate) saveGrid(path string, grid []int) error {
	var b strings.Builder
	perLine := p.Cols * p.Channels
	for i, v := range grid {
		b.WriteString(strconv.Itoa(v))
		if (i+1)%perLine == 0 {
			b.WriteByte('\n')
		} else {
			b.WriteByte('\t')
		}
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func (p *Plate) loadGrid(path string, grid []int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	fields := strings.Fields(string(data))
	if len(fields) != len(grid) {
		return &calib.DimensionMismatchError{What: fmt.Sprintf("grid file %s", path), Want: len(grid), Got: len(fields)}
	}
	parsed := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return fmt.Errorf("grid file %s, value %d: %w", path, i+1, err)
		}
		parsed[i] = v
	}
	copy(grid, parsed)
	return nil
}

// SaveLPF compiles the intensity array to grayscale and writes it as a
// light program file.
func (p *Plate) SaveLPF(path string) error {
	gs, err := p.GrayscaleProgram()
	if err != nil {
		return err
	}
	f := lpf.New()
	f.NumChannels = uint32(p.wellChannels())
	f.StepMS = p.StepMS
	f.NumSteps = uint32(p.steps)
	f.Grayscale = gs
	return f.Save(path)
}

// LoadLPF reads a light program file and reconstructs the intensity
// array from its grayscale values through each channel's LED set,
// using the plate's current dc and gcal grids. The plate adopts the
// file's step count and step duration.
func (p *Plate) LoadLPF(path string) error {
	f, err := lpf.Load(path)
	if err != nil {
		return err
	}
	total := p.wellChannels()
	if int(f.NumChannels) != total {
		return &calib.DimensionMismatchError{What: fmt.Sprintf("channels in %s", path), Want: total, Got: int(f.NumChannels)}
	}

	steps := int(f.NumSteps)
	next := make([]float64, steps*total)
	wells := p.Rows * p.Cols
	for channel := 0; channel < p.Channels; channel++ {
		dc, gcal := p.gridColumn(channel)
		gsf := make([]float64, wells)
		for step := 0; step < steps; step++ {
			for w := 0; w < wells; w++ {
				gsf[w] = float64(f.Grayscale[step*total+w*p.Channels+channel])
			}
			values, err := p.Sets[channel].Intensity(gsf, dc, gcal, nil, nil)
			if err != nil {
				return &StepChannelError{Step: step, Channel: channel, Err: err}
			}
			for w, v := range values {
				next[step*total+w*p.Channels+channel] = v
			}
		}
	}

	p.intensity = next
	p.steps = steps
	p.StepMS = f.StepMS
	return nil
}

// SaveFiles writes the complete device folder under dir: a folder named
// after the plate containing dc.txt, gcal.txt, program.lpf, and an
// empty marker file carrying the plate's name.
func (p *Plate) SaveFiles(dir string) error {
	out := filepath.Join(dir, p.Name)
	if err := os.MkdirAll(out, 0o755); err != nil {
		return err
	}
	if err := p.SaveDC(filepath.Join(out, DCFileName)); err != nil {
		return err
	}
	if err := p.SaveGCal(filepath.Join(out, GCalFileName)); err != nil {
		return err
	}
	if err := p.SaveLPF(filepath.Join(out, LPFFileName)); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(out, p.Name+".txt"), nil, 0o644)
}

// LoadFiles reads dc.txt, gcal.txt and program.lpf from a device
// folder. The grids are loaded first so the program's grayscale values
// convert back to intensities under the settings they were written
// with.
func (p *Plate) LoadFiles(dir string) error {
	if err := p.LoadDC(filepath.Join(dir, DCFileName)); err != nil {
		return err
	}
	if err := p.LoadGCal(filepath.Join(dir, GCalFileName)); err != nil {
		return err
	}
	return p.LoadLPF(filepath.Join(dir, LPFFileName))
}
