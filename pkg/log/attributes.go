// Package log defines standard attribute keys for diffusion operations.
//
// Keys follow a hierarchical naming convention ("diffusion.timestep",
// "schedule.family") so training and sampling logs can be filtered the same way.

package log

// Operation context
const (
	// ComponentKey identifies which package is logging.
	// Examples: "diffusion", "schedule", "config"
	ComponentKey = "component"

	// OperationKey specifies the operation being performed.
	// Standard values: OperationComputeLoss, OperationRestore, OperationSetSchedule
	OperationKey = "diffusion.operation"

	// PhaseKey indicates which schedule phase is active ("train" or "inference").
	PhaseKey = "diffusion.phase"

	// MeanTypeKey records the model parameterization (xprev, xstart, eps, dualx).
	MeanTypeKey = "diffusion.mean_type"

	// FusionModeKey records the dual-prediction fusion mode (explicit or implicit).
	FusionModeKey = "diffusion.fusion_mode"
)

// Schedule
const (
	// FamilyKey names the beta schedule family.
	FamilyKey = "schedule.family"

	// TimestepsKey is the schedule length T.
	TimestepsKey = "schedule.timesteps"

	// BetaStartKey and BetaEndKey are the first and last betas of a schedule.
	BetaStartKey = "schedule.beta_start"
	BetaEndKey   = "schedule.beta_end"

	// FinalGammaKey is the cumulative signal fraction retained at t = T-1.
	FinalGammaKey = "schedule.final_gamma"

	// WarningKey carries a non-fatal schedule warning.
	WarningKey = "schedule.warning"
)

// Sampling and training progress
const (
	// TimestepKey is the current reverse-process timestep.
	TimestepKey = "diffusion.timestep"

	// SnapshotKey is the index of a recorded restoration snapshot.
	SnapshotKey = "diffusion.snapshot"

	// SnapshotsKey is the number of snapshots requested.
	SnapshotsKey = "diffusion.snapshots"

	// BatchSizeKey is the number of examples in the batch.
	BatchSizeKey = "data.batch_size"

	// ShapeKey is a tensor shape (N, C, H, W).
	ShapeKey = "data.shape"

	// LossKey records the training loss.
	LossKey = "metrics.loss"

	// SampleStdKey is the standard deviation of the current sample.
	SampleStdKey = "metrics.sample_std"

	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Standard attribute values.
const (
	OperationComputeLoss = "compute_loss"
	OperationRestore     = "restore"
	OperationSetSchedule = "set_schedule"

	PhaseTrain     = "train"
	PhaseInference = "inference"
)
