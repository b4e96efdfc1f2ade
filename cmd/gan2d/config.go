package main

import (
	"fmt"
	"os"

	"github.com/LdDl/gan2d"
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gopkg.in/yaml.v3"
)

// Config Knobs of single experiment
type Config struct {
	Dataset       string     `yaml:"dataset"`
	PointsPerMode int        `yaml:"points_per_mode"`
	Seed          uint64     `yaml:"seed"`
	Prior         string     `yaml:"prior"`
	LatentDim     int        `yaml:"latent_dim"`
	Arch          ArchConfig `yaml:"arch"`
	MixPolicy     string     `yaml:"mix_policy"`
	Epochs        int        `yaml:"epochs"`
	BatchSize     int        `yaml:"batch_size"`
	GUpdates      *int       `yaml:"g_updates"`
	DUpdates      *int       `yaml:"d_updates"`
	LearnRate     float64    `yaml:"learn_rate"`
	Beta1         float64    `yaml:"beta1"`
	PretrainEpoch int        `yaml:"pretrain_epochs"`
	ModelDir      string     `yaml:"model_dir"`
	FilePrefix    string     `yaml:"file_prefix"`
	PlotDir       string     `yaml:"plot_dir"`
	TrackEvery    int        `yaml:"track_every"`
	PlotEvery     int        `yaml:"plot_every"`
}

// ArchConfig Architecture shared by generator and discriminator
//
// Preset - one of "mini", "big", "flexible"
// Neurons - width of hidden layers for "flexible"
// Activation - activation of hidden layers, e.g. "leaky_relu"
//
type ArchConfig struct {
	Preset     string `yaml:"preset"`
	Neurons    int    `yaml:"neurons"`
	Activation string `yaml:"activation"`
}

// Overrides Values supplied by flags, zero values and nil pointers are ignored
type Overrides struct {
	Dataset    string
	Epochs     int
	BatchSize  int
	GUpdates   *int
	DUpdates   *int
	Seed       uint64
	MixPolicy  string
	FilePrefix string
	PlotDir    string
}

// DefaultConfig Four blobs of 250 points, mini architecture, 100 epochs
func DefaultConfig() *Config {
	gUpdates, dUpdates := 1, 1
	return &Config{
		PointsPerMode: 250,
		Prior:         "uniform",
		LatentDim:     2,
		Arch:          ArchConfig{Preset: "mini", Activation: "leaky_relu"},
		MixPolicy:     "fake_real",
		Epochs:        100,
		BatchSize:     gan2d.DefaultBatchSize,
		GUpdates:      &gUpdates,
		DUpdates:      &dUpdates,
		LearnRate:     gan2d.DefaultLearnRate,
		Beta1:         gan2d.DefaultBeta1,
		ModelDir:      gan2d.DefaultModelDir,
		PlotDir:       "plots",
		TrackEvery:    1,
		PlotEvery:     10,
	}
}

// Load Reads YAML config on top of DefaultConfig. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "Can't open config")
	}
	defer f.Close()
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrap(err, "Can't parse config")
	}
	return cfg, nil
}

// ApplyOverrides Updates cfg using any non-zero override. Update counts are pointers, so an
// explicit zero is applied too.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.Dataset != "" {
		c.Dataset = o.Dataset
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.GUpdates != nil {
		v := *o.GUpdates
		c.GUpdates = &v
	}
	if o.DUpdates != nil {
		v := *o.DUpdates
		c.DUpdates = &v
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.MixPolicy != "" {
		c.MixPolicy = o.MixPolicy
	}
	if o.FilePrefix != "" {
		c.FilePrefix = o.FilePrefix
	}
	if o.PlotDir != "" {
		c.PlotDir = o.PlotDir
	}
}

// Validate Verifies the config is runnable
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if c.Dataset == "" && c.PointsPerMode <= 0 {
		return fmt.Errorf("points_per_mode must be > 0 when no dataset is given (got %d)", c.PointsPerMode)
	}
	if c.LatentDim <= 0 {
		return fmt.Errorf("latent_dim must be > 0 (got %d)", c.LatentDim)
	}
	if _, err := c.NewPrior(nil); err != nil {
		return err
	}
	if _, err := c.Arch.Architecture(); err != nil {
		return err
	}
	if _, err := gan2d.ParseMixPolicy(c.MixPolicy); err != nil {
		return err
	}
	if c.Epochs < 0 {
		return fmt.Errorf("epochs must be >= 0 (got %d)", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.GUpdates == nil || *c.GUpdates < 0 {
		return fmt.Errorf("g_updates must be >= 0")
	}
	if c.DUpdates == nil || *c.DUpdates < 0 {
		return fmt.Errorf("d_updates must be >= 0")
	}
	if c.LearnRate <= 0 {
		return fmt.Errorf("learn_rate must be > 0 (got %g)", c.LearnRate)
	}
	if c.Beta1 < 0 || c.Beta1 >= 1 {
		return fmt.Errorf("beta1 must be in [0; 1) (got %g)", c.Beta1)
	}
	if c.PretrainEpoch < 0 {
		return fmt.Errorf("pretrain_epochs must be >= 0 (got %d)", c.PretrainEpoch)
	}
	if c.TrackEvery <= 0 {
		c.TrackEvery = 1
	}
	if c.PlotEvery <= 0 {
		c.PlotEvery = 10
	}
	return nil
}

// NewPrior Prior named in config
func (c *Config) NewPrior(src rand.Source) (gan2d.Prior, error) {
	switch c.Prior {
	case "uniform", "":
		return gan2d.NewUniform(c.LatentDim, src), nil
	case "normal":
		return gan2d.NewNormal(c.LatentDim, src), nil
	default:
		return nil, fmt.Errorf("unknown prior '%s'", c.Prior)
	}
}

// Architecture Resolves preset and activation
func (a ArchConfig) Architecture() (gan2d.Architecture, error) {
	var arch gan2d.Architecture
	switch a.Preset {
	case "mini", "":
		arch = gan2d.MiniArch
	case "big":
		arch = gan2d.BigArch
	case "flexible":
		if a.Neurons <= 0 {
			return arch, fmt.Errorf("flexible arch needs neurons > 0 (got %d)", a.Neurons)
		}
		arch = gan2d.FlexibleArch(a.Neurons)
	default:
		return arch, fmt.Errorf("unknown arch preset '%s'", a.Preset)
	}
	if a.Activation != "" {
		activation, err := gan2d.ParseActivation(a.Activation)
		if err != nil {
			return arch, err
		}
		arch.Activation = activation
	}
	return arch, nil
}
