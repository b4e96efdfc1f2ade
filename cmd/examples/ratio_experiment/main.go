package main

import (
	"fmt"
	"os"
	"path/filepath"

	gan "github.com/LdDl/gan2d"
	"golang.org/x/exp/rand"
)

var (
	dataPath     = "./data/2d.npy"
	outputFolder = "./output/ratio"
	modelFolder  = "./models"
	neurons      = 512
	numEpoches   = 100
	plotEvery    = 10
)

// experiment Number of updates per alternation step
type experiment struct {
	title    string
	gUpdates int
	dUpdates int
}

func main() {
	src := rand.NewSource(1337)
	dataset, err := loadOrGenerate(src)
	if err != nil {
		panic(err)
	}
	experiments := []experiment{
		{"Train only G", 1, 0},
		{"Train only D", 0, 1},
		{"Train G and D", 1, 1},
	}
	for i, exp := range experiments {
		dir := filepath.Join(outputFolder, fmt.Sprintf("%d", i))
		err = os.MkdirAll(dir, 0o755)
		if err != nil {
			panic(err)
		}
		err = ratioExperiment(dataset, exp, dir, src)
		if err != nil {
			panic(err)
		}
	}
}

func ratioExperiment(dataset *gan.Dataset, exp experiment, dir string, src rand.Source) error {
	fmt.Println("================================================")
	fmt.Println(exp.title)
	fmt.Println("================================================")
	arch := gan.FlexibleArch(neurons)
	generator, err := gan.NewGenerator(arch, 2)
	if err != nil {
		return err
	}
	discriminator, err := gan.NewDiscriminator(arch)
	if err != nil {
		return err
	}
	definedGAN, err := gan.NewGAN(gan.NewUniform(2, src), generator, discriminator, gan.WithSource(src))
	if err != nil {
		return err
	}
	err = gan.DLandscape(discriminator.Evaluate, dataset.Samples, exp.title+" D landscape before training", filepath.Join(dir, "landscape_before.png"))
	if err != nil {
		return err
	}

	trajectory, err := gan.NewTrajectoryTracker(definedGAN, dataset.Samples, gan.DefaultTrajectoryPoints)
	if err != nil {
		return err
	}
	probability, err := gan.NewProbabilityTracker(definedGAN, dataset.Samples)
	if err != nil {
		return err
	}
	landscape := gan.NewLandscapeRenderer(definedGAN, dataset.Samples)

	opts := gan.DefaultFitOptions()
	opts.Epochs = numEpoches
	opts.ModelDir = modelFolder
	opts.FilePrefix = "2d_uniform"
	opts.GUpdates = exp.gUpdates
	opts.DUpdates = exp.dUpdates
	opts.Callbacks = []gan.Callback{
		gan.Every(1, "trajectory_track", trajectory.Track),
		gan.PlotEvery(plotEvery, dir, "trajectory", trajectory.Plot),
		gan.PlotEvery(plotEvery, dir, "landscape", landscape.Plot),
		gan.Every(1, "probability_track", probability.Track),
		gan.PlotEvery(plotEvery, dir, "probability", probability.Plot),
	}
	summary, err := definedGAN.Fit(dataset, opts)
	if err != nil {
		return err
	}
	fmt.Printf("Done %d epochs, %d steps\n", summary.Epochs, summary.Steps)
	return gan.DLandscape(discriminator.Evaluate, dataset.Samples, exp.title+" D landscape after training", filepath.Join(dir, "landscape_after.png"))
}

func loadOrGenerate(src rand.Source) (*gan.Dataset, error) {
	if _, err := os.Stat(dataPath); err == nil {
		return gan.LoadDataset(dataPath)
	}
	return gan.GenerateBlobs(250, gan.DefaultBlobRadius, src)
}
