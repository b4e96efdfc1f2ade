package main

import (
	"fmt"
	"os"
	"path/filepath"

	gan "github.com/LdDl/gan2d"
	"golang.org/x/exp/rand"
)

var (
	outputFolder  = "./data"
	pointsPerMode = 250
)

func main() {
	// Initialize source with constant value to reproduce results
	src := rand.NewSource(1337)

	// Four blobs of radius 0.2 around (+-1, +-1)
	dataset, err := gan.GenerateBlobs(pointsPerMode, gan.DefaultBlobRadius, src)
	if err != nil {
		panic(err)
	}
	err = os.MkdirAll(outputFolder, 0o755)
	if err != nil {
		panic(err)
	}
	err = dataset.Save(filepath.Join(outputFolder, "2d.npy"))
	if err != nil {
		panic(err)
	}
	err = gan.Show2D(dataset.Samples, nil, "Real data", "x", filepath.Join(outputFolder, "2d.png"))
	if err != nil {
		panic(err)
	}
	fmt.Printf("Saved %d samples into %s\n", dataset.DataLength, outputFolder)
}
