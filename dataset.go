package gan2d

import (
	"fmt"
	"math"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	"gorgonia.org/tensor"
)

// Dataset Real samples, (N, SampleDim) matrix
type Dataset struct {
	Samples    *tensor.Dense
	DataLength int
}

// NewDataset Wraps (N, SampleDim) float64 matrix
func NewDataset(samples *tensor.Dense) (*Dataset, error) {
	if samples == nil {
		return nil, fmt.Errorf("samples are nil")
	}
	if samples.Dims() != 2 || samples.Shape()[1] != SampleDim {
		return nil, fmt.Errorf("samples must have shape (N, %d), got %v", SampleDim, samples.Shape())
	}
	if samples.Dtype() != tensor.Float64 {
		return nil, fmt.Errorf("samples must be float64, got %v", samples.Dtype())
	}
	return &Dataset{
		Samples:    samples,
		DataLength: samples.Shape()[0],
	}, nil
}

// NewDatasetFromRows Builds dataset from plain points
func NewDatasetFromRows(rows [][SampleDim]float64) (*Dataset, error) {
	data := make([]float64, 0, len(rows)*SampleDim)
	for _, r := range rows {
		data = append(data, r[:]...)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows provided")
	}
	return NewDataset(tensor.New(tensor.WithShape(len(rows), SampleDim), tensor.WithBacking(data)))
}

// Data Returns backing slice, row-major
func (ds *Dataset) Data() []float64 {
	return ds.Samples.Data().([]float64)
}

var (
	// BlobCenters Centers of the four modes of the toy dataset
	BlobCenters = [][SampleDim]float64{{-1, -1}, {-1, 1}, {1, -1}, {1, 1}}
)

// DefaultBlobRadius Radius of every mode of the toy dataset
const DefaultBlobRadius = 0.2

// GenerateBlobs Four Gaussian blobs with exactly nPerMode points each. Points are drawn from
// N(center, radius^2) and only those closer than radius to the center are kept.
func GenerateBlobs(nPerMode int, radius float64, src rand.Source) (*Dataset, error) {
	if nPerMode <= 0 {
		return nil, fmt.Errorf("points per mode must be positive, got %d", nPerMode)
	}
	if radius <= 0 {
		return nil, fmt.Errorf("radius must be positive, got %f", radius)
	}
	data := make([]float64, 0, len(BlobCenters)*nPerMode*SampleDim)
	for _, center := range BlobCenters {
		data = append(data, blobMode(center, nPerMode, radius, src)...)
	}
	return NewDataset(tensor.New(tensor.WithShape(len(BlobCenters)*nPerMode, SampleDim), tensor.WithBacking(data)))
}

func blobMode(center [SampleDim]float64, n int, radius float64, src rand.Source) []float64 {
	dist := distuv.Normal{Mu: 0, Sigma: radius, Src: src}
	out := make([]float64, 0, n*SampleDim)
	for accepted := 0; accepted < n; {
		dx, dy := dist.Rand(), dist.Rand()
		if math.Hypot(dx, dy) >= radius {
			continue
		}
		out = append(out, center[0]+dx, center[1]+dy)
		accepted++
	}
	return out
}

// LoadDataset Reads (N, 2) float64 array stored in numpy's .npy format
func LoadDataset(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "Can't open dataset")
	}
	defer f.Close()
	samples := new(tensor.Dense)
	if err := samples.ReadNpy(f); err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't read npy from '%s'", path))
	}
	return NewDataset(samples)
}

// Save Writes samples in numpy's .npy format
func (ds *Dataset) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "Can't create dataset file")
	}
	if err := ds.Samples.WriteNpy(f); err != nil {
		f.Close()
		return errors.Wrap(err, fmt.Sprintf("Can't write npy to '%s'", path))
	}
	return f.Close()
}
