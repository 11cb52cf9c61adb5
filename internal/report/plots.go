// Package report renders static figures of a plate program: per-well
// intensity timecourses and gain-grid heatmaps. Purely diagnostic; the
// device consumes none of this.
package report

import (
	"fmt"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/openlpa/lightprog/internal/plate"
)

// IntensityOptions controls IntensitySteps rendering.
type IntensityOptions struct {
	XUnits string // "step", "ms", "s" (default), or "min"
	LogY   bool
	YMin   float64 // y axis limits; both zero means auto
	YMax   float64
}

// IntensitySteps writes a PNG with one step plot per well, laid out in
// the plate's row/column grid, showing the intensity timecourse of the
// given channel.
func IntensitySteps(p *plate.Plate, channel int, path string, opts IntensityOptions) error {
	scale, label, err := xAxis(opts.XUnits, p.StepMS)
	if err != nil {
		return err
	}

	plots := make([][]*plot.Plot, p.Rows)
	for r := 0; r < p.Rows; r++ {
		plots[r] = make([]*plot.Plot, p.Cols)
		for c := 0; c < p.Cols; c++ {
			sp := plot.New()
			sp.Title.Text = fmt.Sprintf("%c%d", 'A'+r, c+1)
			sp.X.Label.Text = label
			sp.Y.Label.Text = "Intensity (umol/m2/s)"
			pts := make(plotter.XYs, p.NumSteps())
			for step := 0; step < p.NumSteps(); step++ {
				pts[step].X = float64(step) * scale
				pts[step].Y = p.Intensity(step, r, c, channel)
			}
			line, err := plotter.NewLine(pts)
			if err != nil {
				return fmt.Errorf("well (%d, %d): %w", r, c, err)
			}
			line.StepStyle = plotter.PostStep
			sp.Add(line)

			// Axis limits are set after Add so the data range cannot
			// widen them; a log axis needs a positive floor anyway.
			if opts.LogY {
				sp.Y.Scale = plot.LogScale{}
				sp.Y.Tick.Marker = plot.LogTicks{Prec: -1}
				if opts.YMin == 0 && opts.YMax == 0 {
					opts.YMin, opts.YMax = 0.1, 200
				}
			}
			if opts.YMin != 0 || opts.YMax != 0 {
				sp.Y.Min = opts.YMin
				sp.Y.Max = opts.YMax
			}
			plots[r][c] = sp
		}
	}

	img := vgimg.New(vg.Points(float64(p.Cols)*160), vg.Points(float64(p.Rows)*120))
	canvases := plot.Align(plots, draw.Tiles{
		Rows: p.Rows,
		Cols: p.Cols,
		PadX: vg.Points(4),
		PadY: vg.Points(4),
	}, draw.New(img))
	for r := range plots {
		for c := range plots[r] {
			plots[r][c].Draw(canvases[r][c])
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(f); err != nil {
		return err
	}
	return f.Close()
}

func xAxis(units string, stepMS uint32) (scale float64, label string, err error) {
	switch units {
	case "step":
		return 1, "Time (steps)", nil
	case "ms":
		return float64(stepMS), "Time (ms)", nil
	case "s", "":
		return float64(stepMS) / 1000, "Time (s)", nil
	case "min":
		return float64(stepMS) / 60000, "Time (min)", nil
	}
	return 0, "", fmt.Errorf("units %q for x axis not recognized", units)
}

// Grid kinds accepted by GainHeatmap.
const (
	KindDC   = "dc"
	KindGCal = "gcal"
)

// GainHeatmap writes a PNG heatmap of the dot correction or grayscale
// calibration grid of one channel, row A at the top like a bench
// plate.
func GainHeatmap(p *plate.Plate, kind string, channel int, path string) error {
	g := gainGrid{p: p, kind: kind, channel: channel}
	switch kind {
	case KindDC, KindGCal:
	default:
		return fmt.Errorf("grid kind %q not recognized", kind)
	}

	hp := plot.New()
	hp.Title.Text = fmt.Sprintf("%s %s, channel %d", p.Name, kind, channel)
	hp.X.Label.Text = "Column"
	hp.Y.Label.Text = "Row"
	hm := plotter.NewHeatMap(g, palette.Heat(48, 1))
	hp.Add(hm)

	return hp.Save(vg.Points(float64(p.Cols)*60), vg.Points(float64(p.Rows)*60), path)
}

// gainGrid adapts a plate grid to plotter.GridXYZ. Y is flipped so row
// 0 (well A1) draws at the top.
type gainGrid struct {
	p       *plate.Plate
	kind    string
	channel int
}

func (g gainGrid) Dims() (int, int) { return g.p.Cols, g.p.Rows }
func (g gainGrid) X(c int) float64  { return float64(c + 1) }
func (g gainGrid) Y(r int) float64  { return float64(g.p.Rows - r) }

func (g gainGrid) Z(c, r int) float64 {
	if g.kind == KindDC {
		return float64(g.p.DC(r, c, g.channel))
	}
	return float64(g.p.GCal(r, c, g.channel))
}
