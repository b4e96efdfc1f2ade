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
	outputFolder = "./output/identity"
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

	// Generator with nothing to learn: it just stretches prior samples
	generator, err := gan.NewIdentityGenerator(gan.DefaultIdentityScale)
	if err != nil {
		panic(err)
	}
	discriminator, err := gan.NewDiscriminator(gan.FlexibleArch(neurons))
	if err != nil {
		panic(err)
	}
	definedGAN, err := gan.NewGAN(gan.NewUniform(2, src), generator, discriminator, gan.WithSource(src))
	if err != nil {
		panic(err)
	}
	err = gan.DLandscape(discriminator.Evaluate, dataset.Samples, "Big D landscape before training", filepath.Join(outputFolder, "landscape_before.png"))
	if err != nil {
		panic(err)
	}

	landscape := gan.NewLandscapeRenderer(definedGAN, dataset.Samples)
	opts := gan.DefaultFitOptions()
	opts.Epochs = numEpoches
	opts.GUpdates = 0
	opts.DUpdates = 1
	opts.Callbacks = []gan.Callback{
		gan.PlotEvery(plotEvery, outputFolder, "landscape", landscape.Plot),
	}
	_, err = definedGAN.Fit(dataset, opts)
	if err != nil {
		panic(err)
	}

	// Compare with the best possible discriminator against uniform fakes
	err = gan.DLandscape(gan.OptimalDiscriminatorForUniformFakes, dataset.Samples, "Optimal D landscape", filepath.Join(outputFolder, "landscape_optimal.png"))
	if err != nil {
		panic(err)
	}
	report, err := gan.EvaluateDOnUniform(discriminator.Evaluate, dataset.Samples, src)
	if err != nil {
		panic(err)
	}
	fmt.Println(report)
}
