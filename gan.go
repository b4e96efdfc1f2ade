package gan2d

import (
	"fmt"
	"log"
	"math"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gorgonia.org/tensor"
)

// MixPolicy How discriminator batches are put together
type MixPolicy uint16

const (
	// MixFakeReal n fakes (label 0) followed by n reals (label 1)
	MixFakeReal = MixPolicy(iota)
	// MixWithNoise MixFakeReal plus n points uniform over the range of the mixed batch (label 0)
	MixWithNoise
)

func (p MixPolicy) String() string {
	switch p {
	case MixFakeReal:
		return "fake_real"
	case MixWithNoise:
		return "with_noise"
	default:
		return fmt.Sprintf("mix_policy(%d)", uint16(p))
	}
}

// ParseMixPolicy Inverse of MixPolicy.String()
func ParseMixPolicy(name string) (MixPolicy, error) {
	switch name {
	case "fake_real", "":
		return MixFakeReal, nil
	case "with_noise":
		return MixWithNoise, nil
	default:
		return MixFakeReal, fmt.Errorf("unknown mix policy '%s'", name)
	}
}

// GAN Generator and discriminator trained against each other.
//
// prior - source of latent vectors for generator
// generator - compiled against Adversarial objective
// discriminator - compiled against binary cross entropy
// src, rng - randomness for shuffling and noise samples
//
type GAN struct {
	prior         Prior
	generator     *Subnet
	discriminator *Subnet
	policy        MixPolicy

	src    rand.Source
	rng    *rand.Rand
	logger *log.Logger
	steps  int
}

// GANOption Optional settings of GAN
type GANOption func(*GAN)

// WithMixPolicy Sets how discriminator batches are built. Default is MixFakeReal
func WithMixPolicy(policy MixPolicy) GANOption {
	return func(gan *GAN) {
		gan.policy = policy
	}
}

// WithSource Sets random source for shuffling and noise samples
func WithSource(src rand.Source) GANOption {
	return func(gan *GAN) {
		gan.src = src
	}
}

// WithLogger Sets logger for per-epoch progress
func WithLogger(logger *log.Logger) GANOption {
	return func(gan *GAN) {
		gan.logger = logger
	}
}

// NewGAN Compiles discriminator against binary cross entropy and generator against
// discriminator's score of its output.
func NewGAN(prior Prior, generator, discriminator *Subnet, opts ...GANOption) (*GAN, error) {
	if prior == nil || generator == nil || discriminator == nil {
		return nil, fmt.Errorf("prior, generator and discriminator must be provided")
	}
	if prior.Dim() != generator.InputDim() {
		return nil, fmt.Errorf("prior gives %d-vectors but generator expects %d", prior.Dim(), generator.InputDim())
	}
	if generator.OutputDim() != discriminator.InputDim() {
		return nil, fmt.Errorf("generator gives %d-vectors but discriminator expects %d", generator.OutputDim(), discriminator.InputDim())
	}
	if discriminator.OutputDim() != 1 {
		return nil, fmt.Errorf("discriminator must output single score, got %d", discriminator.OutputDim())
	}
	gan := &GAN{
		prior:         prior,
		generator:     generator,
		discriminator: discriminator,
		policy:        MixFakeReal,
	}
	for _, opt := range opts {
		opt(gan)
	}
	if gan.src == nil {
		gan.src = rand.NewSource(uint64(time.Now().UnixNano()))
	}
	if gan.logger == nil {
		gan.logger = log.New(log.Writer(), "gan2d: ", log.LstdFlags)
	}
	gan.rng = rand.New(gan.src)

	discriminator.Compile(Supervised{Kind: LossBinaryCrossEntropy})
	generator.Compile(NewAdversarial(discriminator))
	return gan, nil
}

// Prior Returns latent distribution
func (gan *GAN) Prior() Prior { return gan.prior }

// Generator Returns generator part
func (gan *GAN) Generator() *Subnet { return gan.generator }

// Discriminator Returns discriminator part
func (gan *GAN) Discriminator() *Subnet { return gan.discriminator }

// Policy Returns batch mixing policy
func (gan *GAN) Policy() MixPolicy { return gan.policy }

// Steps Number of alternation steps done so far
func (gan *GAN) Steps() int { return gan.steps }

// Generate Maps n fresh prior samples through generator
func (gan *GAN) Generate(n int) (*tensor.Dense, error) {
	z := gan.prior.Sample(n)
	if z == nil {
		return nil, fmt.Errorf("can't generate %d samples", n)
	}
	return gan.generator.Evaluate(z)
}

// MixedBatch Builds discriminator batch for real samples xReal of n rows:
// [G(z); xReal] with labels [0...0; 1...1]. MixWithNoise appends n more points uniform over the
// per-axis range of that batch, labeled 0.
func (gan *GAN) MixedBatch(xReal *tensor.Dense) (xMix, yTarget *tensor.Dense, err error) {
	if xReal == nil || xReal.Dims() != 2 || xReal.Shape()[0] == 0 {
		return nil, nil, fmt.Errorf("real batch must be non-empty matrix")
	}
	n := xReal.Shape()[0]
	xFake, err := gan.Generate(n)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Can't generate fakes")
	}
	return mixBatch(xFake, xReal, gan.policy, gan.src)
}

// mixBatch [xFake; xReal] labeled [0; 1], plus noise over the range of both for MixWithNoise
func mixBatch(xFake, xReal *tensor.Dense, policy MixPolicy, src rand.Source) (xMix, yTarget *tensor.Dense, err error) {
	n := xReal.Shape()[0]
	xMix, err = concatRows(xFake, xReal)
	if err != nil {
		return nil, nil, err
	}
	yTarget, err = concatRows(constLabels(xFake.Shape()[0], 0), constLabels(n, 1))
	if err != nil {
		return nil, nil, err
	}
	switch policy {
	case MixFakeReal:
		return xMix, yTarget, nil
	case MixWithNoise:
		xUni := uniformOverRange(xMix, n, src)
		if xMix, err = concatRows(xMix, xUni); err != nil {
			return nil, nil, err
		}
		if yTarget, err = concatRows(yTarget, constLabels(n, 0)); err != nil {
			return nil, nil, err
		}
		return xMix, yTarget, nil
	default:
		return nil, nil, fmt.Errorf("mix policy %d is not handled", policy)
	}
}

// StepStats Losses of last updates in alternation step. Loss is NaN when there were no updates.
type StepStats struct {
	GLoss float64
	DLoss float64
}

// TrainStep Single alternation step: gUpdates generator updates, then dUpdates
// discriminator updates. Between them it verifies that updating one part did not change
// the other part's output and returns *InvariantViolation if it did.
func (gan *GAN) TrainStep(xReal *tensor.Dense, gUpdates, dUpdates int) (StepStats, error) {
	stats := StepStats{GLoss: math.NaN(), DLoss: math.NaN()}
	if gUpdates < 0 || dUpdates < 0 {
		return stats, fmt.Errorf("number of updates can't be negative (g=%d, d=%d)", gUpdates, dUpdates)
	}
	if xReal == nil || xReal.Dims() != 2 || xReal.Shape()[0] == 0 {
		return stats, fmt.Errorf("real batch must be non-empty matrix")
	}
	gan.steps++
	n := xReal.Shape()[0]

	testY, err := gan.discriminator.Evaluate(xReal)
	if err != nil {
		return stats, errors.Wrap(err, "Can't score real batch")
	}
	for i := 0; i < gUpdates; i++ {
		z := gan.prior.Sample(n)
		loss, err := gan.generator.Step(z, constLabels(n, 1))
		if err != nil {
			return stats, errors.Wrap(err, "Can't do generator update")
		}
		stats.GLoss = loss
	}
	afterY, err := gan.discriminator.Evaluate(xReal)
	if err != nil {
		return stats, errors.Wrap(err, "Can't score real batch")
	}
	if changed, maxDiff := compareValues(testY, afterY); changed > 0 {
		return stats, &InvariantViolation{Step: gan.steps, Kind: ErrGeneratorAffectsDiscriminator, Changed: changed, MaxDiff: maxDiff}
	}

	z := gan.prior.Sample(n)
	testFakes, err := gan.generator.Evaluate(z)
	if err != nil {
		return stats, errors.Wrap(err, "Can't generate test fakes")
	}
	for i := 0; i < dUpdates; i++ {
		xMix, yTarget, err := gan.MixedBatch(xReal)
		if err != nil {
			return stats, errors.Wrap(err, "Can't build mixed batch")
		}
		loss, err := gan.discriminator.Step(xMix, yTarget)
		if err != nil {
			return stats, errors.Wrap(err, "Can't do discriminator update")
		}
		stats.DLoss = loss
	}
	afterFakes, err := gan.generator.Evaluate(z)
	if err != nil {
		return stats, errors.Wrap(err, "Can't generate test fakes")
	}
	if changed, maxDiff := compareValues(testFakes, afterFakes); changed > 0 {
		return stats, &InvariantViolation{Step: gan.steps, Kind: ErrDiscriminatorAffectsGenerator, Changed: changed, MaxDiff: maxDiff}
	}
	return stats, nil
}

// Callback Observer called after every Every-th epoch with 1-based epoch number
type Callback struct {
	Name  string
	Every int
	Fn    func(epoch int) error
}

// Every Shorthand for Callback{name, n, fn}
func Every(n int, name string, fn func(epoch int) error) Callback {
	return Callback{Name: name, Every: n, Fn: fn}
}

// FitOptions Parameters of GAN.Fit
//
// Epochs - how many epochs to train
// FilePrefix - when set, models are saved as ModelDir/FilePrefix_{g,d} after training
// Callbacks - observers with their cadence in epochs
// GUpdates - so many generator updates happen per train step
// DUpdates - so many discriminator updates happen per train step
// BatchSize - number of real samples per train step
//
type FitOptions struct {
	Epochs     int
	FilePrefix string
	ModelDir   string
	Callbacks  []Callback
	GUpdates   int
	DUpdates   int
	BatchSize  int
}

const (
	DefaultBatchSize = 128
	DefaultModelDir  = "models"
)

// DefaultFitOptions One generator and one discriminator update per step, batches of 128
func DefaultFitOptions() FitOptions {
	return FitOptions{
		Epochs:    1,
		ModelDir:  DefaultModelDir,
		GUpdates:  1,
		DUpdates:  1,
		BatchSize: DefaultBatchSize,
	}
}

func (opts FitOptions) validate() error {
	if opts.Epochs < 0 {
		return fmt.Errorf("epochs can't be negative, got %d", opts.Epochs)
	}
	if opts.GUpdates < 0 || opts.DUpdates < 0 {
		return fmt.Errorf("number of updates can't be negative (g=%d, d=%d)", opts.GUpdates, opts.DUpdates)
	}
	if opts.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", opts.BatchSize)
	}
	for i, cb := range opts.Callbacks {
		if cb.Every <= 0 {
			return fmt.Errorf("callback #%d (%s) must have positive cadence, got %d", i, cb.Name, cb.Every)
		}
		if cb.Fn == nil {
			return fmt.Errorf("callback #%d (%s) has no function", i, cb.Name)
		}
	}
	return nil
}

// FitSummary What Fit has done
type FitSummary struct {
	Epochs int
	Steps  int
}

// Fit Trains on data for opts.Epochs epochs. Every epoch reshuffles data, does one
// alternation step per batch and then runs callbacks whose cadence divides epoch number.
// Invariant violation stops training immediately.
func (gan *GAN) Fit(data *Dataset, opts FitOptions) (*FitSummary, error) {
	if data == nil {
		return nil, fmt.Errorf("dataset is nil")
	}
	if err := opts.validate(); err != nil {
		return nil, errors.Wrap(err, "Bad fit options")
	}
	summary := &FitSummary{}
	if data.DataLength < opts.BatchSize {
		gan.logger.Printf("warning: batch_size=%d exceeds dataset size=%d, epochs will do no steps", opts.BatchSize, data.DataLength)
	}
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		st := time.Now()
		batches, err := Batches(data.Samples, opts.BatchSize, gan.rng)
		if err != nil {
			return summary, errors.Wrap(err, "Can't split dataset into batches")
		}
		var gLoss, dLoss runningMean
		for _, xReal := range batches {
			stats, err := gan.TrainStep(xReal, opts.GUpdates, opts.DUpdates)
			if err != nil {
				return summary, errors.Wrap(err, fmt.Sprintf("epoch %d", epoch+1))
			}
			summary.Steps++
			gLoss.add(stats.GLoss)
			dLoss.add(stats.DLoss)
		}
		summary.Epochs++
		gan.logger.Printf("epoch=%d steps=%d g_loss=%.4f d_loss=%.4f took=%v", epoch+1, len(batches), gLoss.value(), dLoss.value(), time.Since(st))

		for _, cb := range opts.Callbacks {
			if (epoch+1)%cb.Every == 0 {
				if err := cb.Fn(epoch + 1); err != nil {
					return summary, errors.Wrap(err, fmt.Sprintf("callback '%s' at epoch %d", cb.Name, epoch+1))
				}
			}
		}
	}
	if opts.FilePrefix != "" {
		if err := gan.Save(opts.ModelDir, opts.FilePrefix); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// runningMean Mean of non-NaN values
type runningMean struct {
	sum   float64
	count int
}

func (m *runningMean) add(v float64) {
	if math.IsNaN(v) {
		return
	}
	m.sum += v
	m.count++
}

func (m *runningMean) value() float64 {
	if m.count == 0 {
		return math.NaN()
	}
	return m.sum / float64(m.count)
}
