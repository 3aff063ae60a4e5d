package diffusion

import (
	"context"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/diffusion/core/tensor"
	"github.com/YuminosukeSato/diffusion/pkg/errors"
	"github.com/YuminosukeSato/diffusion/pkg/log"
)

// Restore runs the reverse process from t = T-1 down to 0.
//
// The chain starts at yT, or at fresh Gaussian noise shaped like the sample
// when yT is nil. When mask is given, every step is composited as
// known*(1-mask) + mask*y_t so only the masked region evolves; known is
// then required. Every T/numSnapshots steps the current sample is recorded.
//
// The returned snapshots begin with the initial noise, so a run with
// T = 1000 and numSnapshots = 10 yields 11 entries.
func (e *Engine) Restore(cond, yT, known, mask *tensor.Tensor, numSnapshots int) (*tensor.Tensor, []*tensor.Tensor, error) {
	const op = "Engine.Restore"
	if err := e.requireSchedule(op); err != nil {
		return nil, nil, err
	}
	if cond == nil {
		return nil, nil, errors.NewConfigurationError(op, "condition", "condition image is required", nil)
	}
	T := e.coeffs.NumTimesteps()
	if numSnapshots < 1 {
		return nil, nil, errors.NewConfigurationError(op, "sample_num", "must be at least 1", numSnapshots)
	}
	if T <= numSnapshots {
		return nil, nil, errors.NewConfigurationError(op, "sample_num",
			"num_timesteps must be greater than sample_num", map[string]int{"num_timesteps": T, "sample_num": numSnapshots})
	}

	channels := e.cfg.SampleChannels
	if channels == 0 {
		channels = cond.Shape.C
	}
	sampleShape := cond.Shape.WithChannels(channels)

	if yT == nil {
		yT = tensor.RandN(sampleShape, e.src)
	} else if err := tensor.SameShape(op, "initial_noisy", sampleShape, yT.Shape); err != nil {
		return nil, nil, err
	}
	if mask != nil {
		if known == nil {
			return nil, nil, errors.NewConfigurationError(op, "known_clean", "a mask requires the known image", nil)
		}
		if err := tensor.SameShape(op, "known_clean", sampleShape, known.Shape); err != nil {
			return nil, nil, err
		}
		if err := tensor.SameShape(op, "mask", sampleShape, mask.Shape); err != nil {
			return nil, nil, err
		}
	}

	interval := T / numSnapshots
	logger := e.logger.With(log.OperationKey, log.OperationRestore, log.PhaseKey, string(e.phase))
	logger.Info("restoration started",
		log.TimestepsKey, T,
		log.SnapshotsKey, numSnapshots,
		log.BatchSizeKey, sampleShape.N,
		log.ShapeKey, sampleShape.String(),
	)
	started := time.Now()

	yt := yT
	snapshots := make([]*tensor.Tensor, 0, numSnapshots+2)
	snapshots = append(snapshots, yt.Clone())

	t := make([]int, sampleShape.N)
	for i := T - 1; i >= 0; i-- {
		for b := range t {
			t[b] = i
		}
		next, err := e.PSample(yt, t, cond)
		if err != nil {
			logger.Error("reverse step failed", err, log.TimestepKey, i)
			return nil, nil, err
		}
		if mask != nil {
			if next, err = tensor.Blend(known, next, mask); err != nil {
				return nil, nil, err
			}
		}
		yt = next

		if i%interval == 0 {
			snapshots = append(snapshots, yt.Clone())
			if logger.Enabled(context.Background(), log.LevelDebug) {
				logger.Debug("sampling progress",
					log.TimestepKey, i,
					log.SnapshotKey, len(snapshots)-1,
					log.SampleStdKey, stat.StdDev(yt.Data, nil),
				)
			}
		}
	}

	logger.Info("restoration finished",
		log.DurationMsKey, time.Since(started).Milliseconds(),
		log.SnapshotsKey, len(snapshots),
	)
	return yt, snapshots, nil
}
