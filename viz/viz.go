// Package viz renders diffusion schedules, restoration snapshots and
// training losses with gonum/plot. The output format follows the file
// extension (.png, .svg, .pdf).
package viz

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/diffusion/core/tensor"
	"github.com/YuminosukeSato/diffusion/diffusion"
	"github.com/YuminosukeSato/diffusion/pkg/errors"
)

// Default figure size.
var (
	Width  = 6 * vg.Inch
	Height = 4 * vg.Inch
)

// SnapshotStats summarizes one restoration snapshot.
type SnapshotStats struct {
	Index int
	Mean  float64
	Std   float64
	Min   float64
	Max   float64
}

// Stats computes per-snapshot statistics over every element of the batch.
func Stats(snapshots []*tensor.Tensor) ([]SnapshotStats, error) {
	if len(snapshots) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "viz.Stats")
	}
	out := make([]SnapshotStats, len(snapshots))
	for i, s := range snapshots {
		if s == nil || len(s.Data) == 0 {
			return nil, errors.NewValueError("viz.Stats", "snapshot has no data")
		}
		mean, std := stat.MeanStdDev(s.Data, nil)
		out[i] = SnapshotStats{
			Index: i,
			Mean:  mean,
			Std:   std,
			Min:   floats.Min(s.Data),
			Max:   floats.Max(s.Data),
		}
	}
	return out, nil
}

// PlotSchedule draws betas, the cumulative signal fraction and the
// posterior variance against the timestep.
func PlotSchedule(c *diffusion.Coefficients, path string) error {
	if c == nil || c.NumTimesteps() == 0 {
		return errors.Wrap(errors.ErrEmptyData, "viz.PlotSchedule")
	}
	p := plot.New()
	p.Title.Text = "Noise schedule"
	p.X.Label.Text = "timestep"
	p.Y.Min, p.Y.Max = 0, 1
	p.Add(plotter.NewGrid())

	if err := plotutil.AddLines(p,
		"beta", series(c.Betas),
		"gamma", series(c.Gammas),
		"posterior variance", series(c.PosteriorVariance),
	); err != nil {
		return errors.Wrap(err, "viz.PlotSchedule")
	}
	return save(p, path)
}

// PlotSnapshotStats draws the mean, standard deviation and range of every
// restoration snapshot. The first snapshot is the initial noise.
func PlotSnapshotStats(snapshots []*tensor.Tensor, path string) error {
	st, err := Stats(snapshots)
	if err != nil {
		return err
	}
	mean := make(plotter.XYs, len(st))
	std := make(plotter.XYs, len(st))
	lo := make(plotter.XYs, len(st))
	hi := make(plotter.XYs, len(st))
	for i, s := range st {
		x := float64(s.Index)
		mean[i] = plotter.XY{X: x, Y: s.Mean}
		std[i] = plotter.XY{X: x, Y: s.Std}
		lo[i] = plotter.XY{X: x, Y: s.Min}
		hi[i] = plotter.XY{X: x, Y: s.Max}
	}

	p := plot.New()
	p.Title.Text = "Restoration snapshots"
	p.X.Label.Text = "snapshot"
	p.Add(plotter.NewGrid())
	if err := plotutil.AddLinePoints(p, "mean", mean, "std", std, "min", lo, "max", hi); err != nil {
		return errors.Wrap(err, "viz.PlotSnapshotStats")
	}
	return save(p, path)
}

// PlotLoss draws a training loss curve.
func PlotLoss(losses []float64, path string) error {
	if len(losses) == 0 {
		return errors.Wrap(errors.ErrEmptyData, "viz.PlotLoss")
	}
	p := plot.New()
	p.Title.Text = "Training loss"
	p.X.Label.Text = "step"
	p.Y.Label.Text = "loss"
	p.Add(plotter.NewGrid())
	if err := plotutil.AddLines(p, "loss", series(losses)); err != nil {
		return errors.Wrap(err, "viz.PlotLoss")
	}
	return save(p, path)
}

func series(ys []float64) plotter.XYs {
	pts := make(plotter.XYs, len(ys))
	for i, y := range ys {
		pts[i] = plotter.XY{X: float64(i), Y: y}
	}
	return pts
}

func save(p *plot.Plot, path string) error {
	if err := p.Save(Width, Height, path); err != nil {
		return errors.Wrapf(err, "save plot %s", path)
	}
	return nil
}
