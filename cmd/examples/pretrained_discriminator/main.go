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
	outputFolder = "./output/pretrained"
	modelFolder  = "./models"
	neurons      = 512
	numEpoches   = 100
	plotEvery    = 10
)

func main() {
	src := rand.NewSource(1337)
	var dataset *gan.Dataset
	var err error
	if _, statErr := os.Stat(dataPath); statErr == nil {
		dataset, err = gan.LoadDataset(dataPath)
	} else {
		dataset, err = gan.GenerateBlobs(250, gan.DefaultBlobRadius, src)
	}
	if err != nil {
		panic(err)
	}
	err = os.MkdirAll(outputFolder, 0o755)
	if err != nil {
		panic(err)
	}

	arch := gan.FlexibleArch(neurons)
	generator, err := gan.NewGenerator(arch, 2)
	if err != nil {
		panic(err)
	}
	discriminator, err := gan.NewDiscriminator(arch)
	if err != nil {
		panic(err)
	}
	prior := gan.NewUniform(2, src)

	// Teach D what the data looks like against noise spread over whole region
	_, err = gan.PretrainDiscriminator(discriminator, prior, dataset, gan.PretrainEpochs, gan.DefaultFitOptions(), gan.WithSource(src))
	if err != nil {
		panic(err)
	}
	err = gan.DLandscape(discriminator.Evaluate, dataset.Samples, "Pretrained D landscape", filepath.Join(outputFolder, "landscape_pretrained.png"))
	if err != nil {
		panic(err)
	}

	// Fakes, reals and uniform noise over the batch range in every discriminator batch
	definedGAN, err := gan.NewGAN(prior, generator, discriminator, gan.WithSource(src), gan.WithMixPolicy(gan.MixWithNoise))
	if err != nil {
		panic(err)
	}
	trajectory, err := gan.NewTrajectoryTracker(definedGAN, dataset.Samples, gan.DefaultTrajectoryPoints)
	if err != nil {
		panic(err)
	}
	losses, err := gan.NewLossTracker(definedGAN, dataset.Samples)
	if err != nil {
		panic(err)
	}
	landscape := gan.NewLandscapeRenderer(definedGAN, dataset.Samples)

	opts := gan.DefaultFitOptions()
	opts.Epochs = numEpoches
	opts.ModelDir = modelFolder
	opts.FilePrefix = "2d_pretrained"
	opts.Callbacks = []gan.Callback{
		gan.Every(1, "trajectory_track", trajectory.Track),
		gan.Every(1, "loss_track", losses.Track),
		gan.PlotEvery(plotEvery, outputFolder, "trajectory", trajectory.Plot),
		gan.PlotEvery(plotEvery, outputFolder, "landscape", landscape.Plot),
	}
	summary, err := definedGAN.Fit(dataset, opts)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Done %d epochs, %d steps\n", summary.Epochs, summary.Steps)

	err = losses.Plot(filepath.Join(outputFolder, "loss.png"))
	if err != nil {
		panic(err)
	}
	err = gan.ColorPlot(generator.Evaluate, "Pretrained D", filepath.Join(outputFolder, "colors.png"))
	if err != nil {
		panic(err)
	}
	err = gan.ScoreOverZ(generator.Evaluate, discriminator.Evaluate, "D(G(z))", filepath.Join(outputFolder, "score_over_z.png"))
	if err != nil {
		panic(err)
	}
	err = gan.ShowLearnedDistribution(prior, generator.Evaluate, outputFolder)
	if err != nil {
		panic(err)
	}
}
