package gan2d

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
	"gorgonia.org/tensor"
)

// OptimalScale Share of uniform fakes which do not fall into blobs of the toy dataset.
// Measured empirically, it holds for BlobCenters with DefaultBlobRadius only.
const OptimalScale = 0.9208103130755064

// OptimalDiscriminatorForUniformFakes Best discriminator between the toy dataset and uniform
// fakes: OptimalScale inside any blob, 0 elsewhere. Returns (rows, 1) matrix.
func OptimalDiscriminatorForUniformFakes(x *tensor.Dense) (*tensor.Dense, error) {
	if x == nil || x.Dims() != 2 || x.Shape()[1] != SampleDim {
		return nil, fmt.Errorf("optimal discriminator needs (N, %d) matrix", SampleDim)
	}
	rows := x.Shape()[0]
	data := x.Data().([]float64)
	scores := make([]float64, rows)
	for i := 0; i < rows; i++ {
		for _, c := range BlobCenters {
			if math.Hypot(data[i*SampleDim]-c[0], data[i*SampleDim+1]-c[1]) < DefaultBlobRadius {
				scores[i] = OptimalScale
				break
			}
		}
	}
	return tensor.New(tensor.WithShape(rows, 1), tensor.WithBacking(scores)), nil
}

// UniformReport Mean scores of real samples and of uniform fakes
type UniformReport struct {
	Real        float64
	Fake        float64
	OptimalReal float64
	OptimalFake float64
}

func (r UniformReport) String() string {
	return fmt.Sprintf("D: avg real=%.2f fake=%.2f\nOpti   real=%.2f fake=%.2f", r.Real, r.Fake, r.OptimalReal, r.OptimalFake)
}

// EvaluateDOnUniform Scores real samples and as many fakes uniform over [min(real); max(real)]
// (global bounds, same for both axes) with score and with OptimalDiscriminatorForUniformFakes
func EvaluateDOnUniform(score EvalFunc, real *tensor.Dense, src rand.Source) (UniformReport, error) {
	var report UniformReport
	if real == nil || real.Dims() != 2 || real.Shape()[0] == 0 {
		return report, fmt.Errorf("real samples must be non-empty matrix")
	}
	values := real.Data().([]float64)
	dist := distuv.Uniform{Min: floats.Min(values), Max: floats.Max(values), Src: src}
	fakeData := make([]float64, len(values))
	for i := range fakeData {
		fakeData[i] = dist.Rand()
	}
	fake := tensor.New(tensor.WithShape(real.Shape()...), tensor.WithBacking(fakeData))

	means := func(f EvalFunc) (float64, float64, error) {
		yReal, err := f(real)
		if err != nil {
			return 0, 0, errors.Wrap(err, "Can't score real samples")
		}
		yFake, err := f(fake)
		if err != nil {
			return 0, 0, errors.Wrap(err, "Can't score fakes")
		}
		return stat.Mean(yReal.Data().([]float64), nil), stat.Mean(yFake.Data().([]float64), nil), nil
	}
	var err error
	if report.Real, report.Fake, err = means(score); err != nil {
		return report, err
	}
	if report.OptimalReal, report.OptimalFake, err = means(OptimalDiscriminatorForUniformFakes); err != nil {
		return report, err
	}
	return report, nil
}

const (
	// PretrainScale Identity generator scale used for pretraining, covers the whole dataset
	PretrainScale = 3.0
	// PretrainEpochs Default length of discriminator pretraining
	PretrainEpochs = 5
)

// PretrainDiscriminator Trains d alone against an identity generator with PretrainScale applied
// to prior samples, so d learns to separate data from noise spread over the whole region.
// Only BatchSize, Callbacks and the number of epochs are taken from opts.
func PretrainDiscriminator(d *Subnet, prior Prior, data *Dataset, epochs int, opts FitOptions, ganOpts ...GANOption) (*FitSummary, error) {
	identity, err := NewIdentityGenerator(PretrainScale)
	if err != nil {
		return nil, err
	}
	gan, err := NewGAN(prior, identity, d, ganOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "Can't init pretraining GAN")
	}
	opts.Epochs = epochs
	opts.GUpdates = 0
	opts.DUpdates = 1
	opts.FilePrefix = ""
	return gan.Fit(data, opts)
}
