// Package config loads the engine configuration from JSON.
//
// The file layout mirrors the model section of a restoration experiment:
//
//	{
//	  "beta_schedule": {
//	    "train":     {"schedule": "linear", "n_timestep": 2000, "linear_start": 1e-6, "linear_end": 0.01},
//	    "inference": {"schedule": "linear", "n_timestep": 1000, "linear_start": 1e-4, "linear_end": 0.09}
//	  },
//	  "model_mean_type": "dualx",
//	  "clip_denoised": true,
//	  "sample_num": 8
//	}
//
// Keys left out keep the values of Default.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/diffusion/diffusion"
	"github.com/YuminosukeSato/diffusion/diffusion/schedule"
	"github.com/YuminosukeSato/diffusion/pkg/errors"
	"github.com/YuminosukeSato/diffusion/pkg/log"
)

// BetaSchedule holds the schedule of each phase.
type BetaSchedule struct {
	Train     schedule.Params `json:"train"`
	Inference schedule.Params `json:"inference"`
}

// Config is the on-disk configuration.
type Config struct {
	BetaSchedule   BetaSchedule `json:"beta_schedule"`
	MeanType       string       `json:"model_mean_type"`
	ClipDenoised   bool         `json:"clip_denoised"`
	FusionMode     string       `json:"fusion_mode"`
	SampleHead     string       `json:"sample_head"`
	ClassLabels    []int        `json:"class_labels"`
	SampleChannels int          `json:"sample_channels"`

	// SampleNum is the number of restoration snapshots to record.
	SampleNum int `json:"sample_num"`

	// Seed seeds the engine's random source; zero lets the harness choose.
	Seed uint64 `json:"seed"`

	LogLevel string `json:"log_level"`
}

// Default returns the configuration of the reference restoration model.
func Default() *Config {
	d := diffusion.DefaultConfig()
	return &Config{
		BetaSchedule: BetaSchedule{
			Train:     d.Schedules[diffusion.PhaseTrain],
			Inference: d.Schedules[diffusion.PhaseInference],
		},
		MeanType:     d.MeanType.String(),
		ClipDenoised: d.ClipDenoised,
		FusionMode:   d.FusionMode.String(),
		SampleHead:   d.SampleHead.String(),
		ClassLabels:  d.ClassLabels,
		SampleNum:    8,
		LogLevel:     "info",
	}
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.NewConfigurationError("config.Load", "path", "config path is empty", nil)
	}
	clean := filepath.Clean(path)
	data, err := os.ReadFile(clean)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", clean)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", clean)
	}
	return cfg, nil
}

// Parse decodes data over Default and validates the result. Unknown keys
// are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.NewConfigurationError("config.Parse", "json", err.Error(), nil)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Diffusion converts c into the engine configuration.
func (c *Config) Diffusion() (diffusion.Config, error) {
	meanType, err := diffusion.ParseMeanType(c.MeanType)
	if err != nil {
		return diffusion.Config{}, err
	}
	fusion, err := diffusion.ParseFusionMode(c.FusionMode)
	if err != nil {
		return diffusion.Config{}, err
	}
	head, err := diffusion.ParseSampleHead(c.SampleHead)
	if err != nil {
		return diffusion.Config{}, err
	}
	return diffusion.Config{
		Schedules: map[diffusion.Phase]schedule.Params{
			diffusion.PhaseTrain:     c.BetaSchedule.Train,
			diffusion.PhaseInference: c.BetaSchedule.Inference,
		},
		MeanType:       meanType,
		ClipDenoised:   c.ClipDenoised,
		FusionMode:     fusion,
		SampleHead:     head,
		ClassLabels:    append([]int(nil), c.ClassLabels...),
		SampleChannels: c.SampleChannels,
	}, nil
}

// normalize maps schedule family names to their canonical spelling.
func (c *Config) normalize() error {
	for name, p := range map[string]*schedule.Params{"train": &c.BetaSchedule.Train, "inference": &c.BetaSchedule.Inference} {
		f, err := schedule.ParseFamily(string(p.Family))
		if err != nil {
			return errors.Wrapf(err, "beta_schedule.%s", name)
		}
		p.Family = f
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	dc, err := c.Diffusion()
	if err != nil {
		return err
	}
	if err := dc.Validate(); err != nil {
		return err
	}
	if c.SampleNum < 1 {
		return errors.NewConfigurationError("Config.Validate", "sample_num", "must be at least 1", c.SampleNum)
	}
	if T := c.BetaSchedule.Inference.NTimestep; T <= c.SampleNum {
		return errors.NewConfigurationError("Config.Validate", "sample_num",
			"num_timesteps must be greater than sample_num", map[string]int{"num_timesteps": T, "sample_num": c.SampleNum})
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.NewConfigurationError("Config.Validate", "log_level", err.Error(), c.LogLevel)
	}
	return nil
}
