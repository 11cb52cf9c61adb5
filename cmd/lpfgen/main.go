// Command lpfgen compiles a yaml experiment definition into the file
// set a Light Plate Apparatus consumes: dc.txt, gcal.txt and
// program.lpf in a folder named after the device.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openlpa/lightprog/internal/calib"
	"github.com/openlpa/lightprog/internal/config"
	"github.com/openlpa/lightprog/internal/led"
	"github.com/openlpa/lightprog/internal/plate"
	"github.com/openlpa/lightprog/internal/report"
)

func main() {
	var (
		expPath = flag.String("experiment", "experiment.yaml", "path to the experiment definition")
		outDir  = flag.String("out", ".", "directory to write the device folder into")
		plots   = flag.Bool("plots", false, "also render intensity and dc plots")
		debug   = flag.Bool("debug", false, "verbose logging")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	if !*debug {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if err := run(*expPath, *outDir, *plots); err != nil {
		log.Fatal().Err(err).Msg("compile failed")
	}
}

func run(expPath, outDir string, plots bool) error {
	exp, err := config.Load(expPath)
	if err != nil {
		return err
	}
	log.Info().Str("experiment", exp.Name).Int("channels", len(exp.Channels)).Msg("loaded experiment")

	archive, err := calib.OpenArchive(exp.CalibrationRoot)
	if err != nil {
		return err
	}

	sets := make([]*led.Set, len(exp.Channels))
	for i, ch := range exp.Channels {
		name := ch.LEDSet
		if name == "" {
			if ch.Layout == "" {
				return fmt.Errorf("channel %d: led_set or layout must be given", i)
			}
			name, err = archive.Resolve(ch.Layout, exp.Name, i)
			if err != nil {
				return err
			}
			log.Debug().Str("layout", ch.Layout).Str("set", name).Int("channel", i).Msg("resolved layout")
		}
		table, err := archive.LoadSet(name, exp.Name, i)
		if err != nil {
			return err
		}
		sets[i] = led.NewSet(name, table)
	}

	p, err := plate.New(exp.Name, sets)
	if err != nil {
		return err
	}
	p.StepMS = exp.StepMS
	if exp.Steps > 0 {
		p.SetNumSteps(exp.Steps)
	}

	for i, ch := range exp.Channels {
		p.SetAllGCal(ch.GCal, i)
		if err := applySignal(p, i, ch.Signal); err != nil {
			return fmt.Errorf("channel %d: %w", i, err)
		}
	}

	// Dot correction after the signals: optimization looks at the
	// per-well peak intensity.
	for i, ch := range exp.Channels {
		if ch.OptimizeDC {
			if err := p.OptimizeDC(i, ch.MinDC, ch.UniformDC); err != nil {
				return fmt.Errorf("channel %d: %w", i, err)
			}
		} else {
			p.SetAllDC(ch.DC, i)
		}
	}

	if err := p.DiscretizeIntensity(); err != nil {
		return err
	}
	if err := p.SaveFiles(outDir); err != nil {
		return err
	}
	log.Info().Str("dir", filepath.Join(outDir, p.Name)).Int("steps", p.NumSteps()).Msg("wrote device folder")

	if plots {
		for i := range exp.Channels {
			png := filepath.Join(outDir, p.Name, fmt.Sprintf("channel_%d.png", i))
			if err := report.IntensitySteps(p, i, png, report.IntensityOptions{XUnits: "min"}); err != nil {
				return err
			}
			heat := filepath.Join(outDir, p.Name, fmt.Sprintf("dc_%d.png", i))
			if err := report.GainHeatmap(p, report.KindDC, i, heat); err != nil {
				return err
			}
		}
		log.Info().Msg("wrote plots")
	}
	return nil
}

func applySignal(p *plate.Plate, channel int, s config.Signal) error {
	wave, err := s.Waveform()
	if err != nil {
		return err
	}
	if s.Type == "constant" && !s.Staggered {
		p.SetAllIntensity(s.Value, channel)
		return nil
	}

	wells := p.Rows * p.Cols
	var sampling []int
	if s.Staggered {
		sampling = s.SamplingSteps(wells)
	} else {
		// Every well runs the full waveform, finishing at the end.
		sampling = make([]int, wells)
		for i := range sampling {
			sampling[i] = len(wave)
		}
	}
	return p.SetStaggeredTimecourse(wave, s.Pre, sampling, channel, nil, nil)
}
