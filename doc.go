// Package diffusion is the root of a conditional diffusion library for image
// restoration in Go.
//
// The library implements the sampling and training mathematics of a
// denoising diffusion model conditioned on a degraded image: beta schedules,
// closed-form posterior coefficients, forward noising, iterative reverse
// sampling and the dual-prediction (dual-x) parameterization that fuses a
// direct clean-image head with a noise-derived one through a learned gate.
// The denoising network is supplied by the caller.
//
// # Quick Start
//
//	cfg := diffusion.DefaultConfig()
//	eng, err := diffusion.New(net, cfg, diffusion.WithSource(rand.NewPCG(1, 2)))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// training harness
//	_ = eng.SetSchedule(diffusion.PhaseTrain)
//	loss, err := eng.ComputeLoss(clean, cond, nil, nil)
//
//	// inference harness
//	_ = eng.SetSchedule(diffusion.PhaseInference)
//	restored, snapshots, err := eng.Restore(cond, nil, nil, nil, 8)
//
// # Packages
//
//   - diffusion: Engine, coefficients, forward process, fusion, reverse step,
//     restoration loop and training loss
//   - diffusion/schedule: beta schedule families
//   - config: JSON configuration loading and validation
//   - core/tensor: dense NCHW tensors
//   - core/parallel: chunked batch parallelism
//   - core/model: fitted-state base for value-range transformers
//   - preprocessing: per-channel scalers mapping pixels to and from the [-1, 1] model range
//   - metrics: per-example MSE and PSNR
//   - viz: schedule, snapshot and loss plots
//   - pkg/errors: structured errors with stack traces
//   - pkg/log: structured logging with slog and zerolog backends
//
// # Error Handling
//
// Errors carry stack traces from cockroachdb/errors and are inspected with
// errors.As:
//
//	_, _, err := eng.Restore(cond, nil, nil, nil, 2000)
//	var cfgErr *errors.ConfigurationError
//	if errors.As(err, &cfgErr) {
//	    // num_timesteps must be greater than sample_num
//	}
package diffusion
