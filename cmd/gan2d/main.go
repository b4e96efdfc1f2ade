package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/LdDl/gan2d"
	"github.com/LdDl/gan2d/web"
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
)

func main() {
	cfgPath := flag.String("config", "", "Path to YAML config (defaults are used when empty)")
	dataset := flag.String("dataset", "", "Override path to .npy dataset")
	epochs := flag.Int("epochs", 0, "Override number of epochs")
	batchSize := flag.Int("batch-size", 0, "Override batch size")
	gUpdates := flag.Int("g-updates", 1, "Override generator updates per step")
	dUpdates := flag.Int("d-updates", 1, "Override discriminator updates per step")
	seed := flag.Uint64("seed", 0, "Override PRNG seed")
	mixPolicy := flag.String("mix-policy", "", "Override mix policy: fake_real or with_noise")
	filePrefix := flag.String("file-prefix", "", "Override model file prefix")
	plotDir := flag.String("plot-dir", "", "Override directory for plots")
	serve := flag.String("serve", "", "Serve plots and metrics on this address after training, e.g. :8080")
	flag.Parse()

	cfg := DefaultConfig()
	if *cfgPath != "" {
		var err error
		cfg, err = Load(*cfgPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	overrides := Overrides{
		Dataset:    *dataset,
		Epochs:     *epochs,
		BatchSize:  *batchSize,
		Seed:       *seed,
		MixPolicy:  *mixPolicy,
		FilePrefix: *filePrefix,
		PlotDir:    *plotDir,
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "g-updates":
			overrides.GUpdates = gUpdates
		case "d-updates":
			overrides.DUpdates = dUpdates
		}
	})
	cfg.ApplyOverrides(overrides)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	run, err := newRun(cfg)
	if err != nil {
		log.Fatalf("failed to prepare run: %v", err)
	}
	if err := run.train(); err != nil {
		log.Fatalf("training failed: %v", err)
	}
	if err := run.report(); err != nil {
		log.Fatalf("failed to report: %v", err)
	}

	if *serve != "" {
		viewer := web.NewViewer("gan2d", cfg.PlotDir)
		viewer.Loss = run.loss
		viewer.Probability = run.probability
		viewer.Trajectory = run.trajectory
		log.Printf("serving plots at http://%s", *serve)
		log.Fatal(http.ListenAndServe(*serve, viewer.Router()))
	}
}

// run Everything single experiment needs
type run struct {
	cfg         *Config
	src         rand.Source
	data        *gan2d.Dataset
	gan         *gan2d.GAN
	trajectory  *gan2d.TrajectoryTracker
	loss        *gan2d.LossTracker
	probability *gan2d.ProbabilityTracker
	landscape   *gan2d.LandscapeRenderer
}

func newRun(cfg *Config) (*run, error) {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	src := rand.NewSource(seed)
	log.Printf("seed=%d", seed)

	var data *gan2d.Dataset
	var err error
	if cfg.Dataset != "" {
		data, err = gan2d.LoadDataset(cfg.Dataset)
	} else {
		data, err = gan2d.GenerateBlobs(cfg.PointsPerMode, gan2d.DefaultBlobRadius, src)
	}
	if err != nil {
		return nil, errors.Wrap(err, "Can't prepare dataset")
	}
	log.Printf("dataset size=%d", data.DataLength)

	prior, err := cfg.NewPrior(src)
	if err != nil {
		return nil, err
	}
	arch, err := cfg.Arch.Architecture()
	if err != nil {
		return nil, err
	}
	generator, err := gan2d.NewGenerator(arch, cfg.LatentDim, gan2d.WithAdam(cfg.LearnRate, cfg.Beta1))
	if err != nil {
		return nil, err
	}
	discriminator, err := gan2d.NewDiscriminator(arch, gan2d.WithAdam(cfg.LearnRate, cfg.Beta1))
	if err != nil {
		return nil, err
	}
	policy, err := gan2d.ParseMixPolicy(cfg.MixPolicy)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.PlotDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "Can't create plot directory")
	}

	if cfg.PretrainEpoch > 0 {
		opts := gan2d.DefaultFitOptions()
		opts.BatchSize = cfg.BatchSize
		log.Printf("pretraining discriminator for %d epochs", cfg.PretrainEpoch)
		if _, err := gan2d.PretrainDiscriminator(discriminator, prior, data, cfg.PretrainEpoch, opts, gan2d.WithSource(src)); err != nil {
			return nil, errors.Wrap(err, "Can't pretrain discriminator")
		}
	}

	gan, err := gan2d.NewGAN(prior, generator, discriminator, gan2d.WithMixPolicy(policy), gan2d.WithSource(src))
	if err != nil {
		return nil, err
	}
	r := &run{cfg: cfg, src: src, data: data, gan: gan}
	if r.trajectory, err = gan2d.NewTrajectoryTracker(gan, data.Samples, gan2d.DefaultTrajectoryPoints); err != nil {
		return nil, err
	}
	if r.loss, err = gan2d.NewLossTracker(gan, data.Samples); err != nil {
		return nil, err
	}
	if r.probability, err = gan2d.NewProbabilityTracker(gan, data.Samples); err != nil {
		return nil, err
	}
	r.landscape = gan2d.NewLandscapeRenderer(gan, data.Samples)
	return r, nil
}

func (r *run) train() error {
	cfg := r.cfg
	if err := gan2d.DLandscape(r.gan.Discriminator().Evaluate, r.data.Samples, "D landscape before training", filepath.Join(cfg.PlotDir, "landscape_before.png")); err != nil {
		return err
	}
	opts := gan2d.DefaultFitOptions()
	opts.Epochs = cfg.Epochs
	opts.BatchSize = cfg.BatchSize
	opts.GUpdates = *cfg.GUpdates
	opts.DUpdates = *cfg.DUpdates
	opts.ModelDir = cfg.ModelDir
	opts.FilePrefix = cfg.FilePrefix
	opts.Callbacks = []gan2d.Callback{
		gan2d.Every(cfg.TrackEvery, "trajectory_track", r.trajectory.Track),
		gan2d.Every(cfg.TrackEvery, "loss_track", r.loss.Track),
		gan2d.Every(cfg.TrackEvery, "probability_track", r.probability.Track),
		gan2d.PlotEvery(cfg.PlotEvery, cfg.PlotDir, "trajectory", r.trajectory.Plot),
		gan2d.PlotEvery(cfg.PlotEvery, cfg.PlotDir, "landscape", r.landscape.Plot),
		gan2d.PlotEvery(cfg.PlotEvery, cfg.PlotDir, "probability", r.probability.Plot),
	}
	summary, err := r.gan.Fit(r.data, opts)
	if err != nil {
		var violation *gan2d.InvariantViolation
		if errors.As(err, &violation) {
			return fmt.Errorf("%v (after %d epochs)", violation, summary.Epochs)
		}
		return err
	}
	log.Printf("done epochs=%d steps=%d", summary.Epochs, summary.Steps)
	return nil
}

func (r *run) report() error {
	dir := r.cfg.PlotDir
	if r.cfg.Epochs > 0 {
		if err := r.loss.Plot(filepath.Join(dir, "loss.png")); err != nil {
			return err
		}
		if err := r.probability.Plot(filepath.Join(dir, "probability.png")); err != nil {
			return err
		}
	}
	d := r.gan.Discriminator().Evaluate
	g := r.gan.Generator().Evaluate
	if err := gan2d.DLandscape(d, r.data.Samples, "D landscape after training", filepath.Join(dir, "landscape_after.png")); err != nil {
		return err
	}
	if err := gan2d.ShowLearnedDistribution(r.gan.Prior(), g, dir); err != nil {
		return err
	}
	if r.gan.Prior().Dim() == gan2d.SampleDim {
		if err := gan2d.ColorPlot(g, "G", filepath.Join(dir, "colors.png")); err != nil {
			return err
		}
		if err := gan2d.ScoreOverZ(g, d, "D(G(z))", filepath.Join(dir, "score_over_z.png")); err != nil {
			return err
		}
	}
	report, err := gan2d.EvaluateDOnUniform(d, r.data.Samples, r.src)
	if err != nil {
		return err
	}
	fmt.Println(report)
	return nil
}
