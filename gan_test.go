package gan2d

import (
	"io"
	"log"
	"math"
	"os"
	"testing"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gorgonia.org/tensor"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestGAN(t *testing.T, seed uint64, policy MixPolicy) *GAN {
	t.Helper()
	src := rand.NewSource(seed)
	g, err := NewGenerator(MiniArch, 2)
	if err != nil {
		t.Fatal(err)
	}
	d, err := NewDiscriminator(MiniArch)
	if err != nil {
		t.Fatal(err)
	}
	gan, err := NewGAN(NewUniform(2, src), g, d, WithSource(src), WithMixPolicy(policy), WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	return gan
}

func newIdentityGAN(t *testing.T, seed uint64, policy MixPolicy) *GAN {
	t.Helper()
	src := rand.NewSource(seed)
	g, err := NewIdentityGenerator(DefaultIdentityScale)
	if err != nil {
		t.Fatal(err)
	}
	d, err := NewDiscriminator(MiniArch)
	if err != nil {
		t.Fatal(err)
	}
	gan, err := NewGAN(NewUniform(2, src), g, d, WithSource(src), WithMixPolicy(policy), WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	return gan
}

func testBlobs(t *testing.T, perMode int, seed uint64) *Dataset {
	t.Helper()
	data, err := GenerateBlobs(perMode, DefaultBlobRadius, rand.NewSource(seed))
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestNewGANChecksDims(t *testing.T) {
	g, _ := NewGenerator(MiniArch, 3)
	d, _ := NewDiscriminator(MiniArch)
	if _, err := NewGAN(NewUniform(2, nil), g, d); err == nil {
		t.Error("prior of wrong dimension must be rejected")
	}
	if _, err := NewGAN(NewUniform(3, nil), g, nil); err == nil {
		t.Error("nil discriminator must be rejected")
	}
	if _, err := NewGAN(NewUniform(3, nil), g, g); err == nil {
		t.Error("discriminator with 2 outputs must be rejected")
	}
}

func TestMixPolicyNames(t *testing.T) {
	for _, p := range []MixPolicy{MixFakeReal, MixWithNoise} {
		parsed, err := ParseMixPolicy(p.String())
		if err != nil || parsed != p {
			t.Errorf("%s: parsed as %v, err %v", p, parsed, err)
		}
	}
	if _, err := ParseMixPolicy("fake_only"); err == nil {
		t.Error("unknown policy must be rejected")
	}
}

func TestMixedBatch(t *testing.T) {
	xReal := testBlobs(t, 2, 1).Samples
	n := xReal.Shape()[0]
	realData := xReal.Data().([]float64)

	gan := newIdentityGAN(t, 2, MixFakeReal)
	xMix, yTarget, err := gan.MixedBatch(xReal)
	if err != nil {
		t.Fatal(err)
	}
	if !xMix.Shape().Eq([]int{2 * n, 2}) || !yTarget.Shape().Eq([]int{2 * n, 1}) {
		t.Fatalf("shapes %v and %v", xMix.Shape(), yTarget.Shape())
	}
	labels := yTarget.Data().([]float64)
	mix := xMix.Data().([]float64)
	for i := 0; i < n; i++ {
		if labels[i] != 0 || labels[n+i] != 1 {
			t.Fatalf("labels %v: expected fakes then reals", labels)
		}
		// identity generator scales [-1; 1) prior by 1.5
		if math.Abs(mix[2*i]) > DefaultIdentityScale || math.Abs(mix[2*i+1]) > DefaultIdentityScale {
			t.Errorf("fake %v is out of generator range", mix[2*i:2*i+2])
		}
	}
	for j := range realData {
		if mix[2*n+j] != realData[j] {
			t.Fatalf("second half must be real batch")
		}
	}

	gan = newIdentityGAN(t, 2, MixWithNoise)
	xMix, yTarget, err = gan.MixedBatch(xReal)
	if err != nil {
		t.Fatal(err)
	}
	if !xMix.Shape().Eq([]int{3 * n, 2}) || !yTarget.Shape().Eq([]int{3 * n, 1}) {
		t.Fatalf("shapes %v and %v", xMix.Shape(), yTarget.Shape())
	}
	labels = yTarget.Data().([]float64)
	for i := 0; i < n; i++ {
		if labels[i] != 0 || labels[n+i] != 1 || labels[2*n+i] != 0 {
			t.Fatalf("labels %v: expected fakes, reals, noise", labels)
		}
	}
	mix = xMix.Data().([]float64)
	for j := 0; j < 2; j++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for i := 0; i < 2*n; i++ {
			lo, hi = math.Min(lo, mix[2*i+j]), math.Max(hi, mix[2*i+j])
		}
		for i := 2 * n; i < 3*n; i++ {
			if v := mix[2*i+j]; v < lo || v > hi {
				t.Errorf("noise coordinate %d = %f out of [%f; %f]", j, v, lo, hi)
			}
		}
	}
}

func TestTrainStepKeepsPartsIsolated(t *testing.T) {
	gan := newTestGAN(t, 3, MixFakeReal)
	xReal := testBlobs(t, 4, 4).Samples

	before, err := gan.Discriminator().Evaluate(xReal)
	if err != nil {
		t.Fatal(err)
	}
	stats, err := gan.TrainStep(xReal, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if math.IsNaN(stats.GLoss) || !math.IsNaN(stats.DLoss) {
		t.Errorf("unexpected stats %+v", stats)
	}
	after, err := gan.Discriminator().Evaluate(xReal)
	if err != nil {
		t.Fatal(err)
	}
	if changed, _ := compareValues(before, after); changed != 0 {
		t.Errorf("generator updates changed %d discriminator outputs", changed)
	}

	z := gan.Prior().Sample(16)
	fakesBefore, err := gan.Generator().Evaluate(z)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := gan.TrainStep(xReal, 0, 2); err != nil {
		t.Fatal(err)
	}
	fakesAfter, err := gan.Generator().Evaluate(z)
	if err != nil {
		t.Fatal(err)
	}
	if changed, _ := compareValues(fakesBefore, fakesAfter); changed != 0 {
		t.Errorf("discriminator updates changed %d generator outputs", changed)
	}

	stats, err = gan.TrainStep(xReal, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if math.IsNaN(stats.GLoss) || math.IsNaN(stats.DLoss) {
		t.Errorf("unexpected stats %+v", stats)
	}
	if gan.Steps() != 3 {
		t.Errorf("expected 3 steps, got %d", gan.Steps())
	}
}

func TestTrainStepWithNoise(t *testing.T) {
	gan := newTestGAN(t, 5, MixWithNoise)
	xReal := testBlobs(t, 4, 6).Samples
	if _, err := gan.TrainStep(xReal, 1, 2); err != nil {
		t.Fatal(err)
	}
}

// sharedGAN Generator is the first layer of discriminator: both subnets hold the same
// parameter slice
func sharedGAN(t *testing.T) *GAN {
	t.Helper()
	src := rand.NewSource(7)
	specs := []LayerSpec{
		{Type: LayerLinear, Inputs: 2, Outputs: 2, Bias: true},
		{Type: LayerLinear, Inputs: 2, Outputs: 1, Bias: true, Activation: ActivationSigmoid},
	}
	params := make([]layerParams, len(specs))
	for i, spec := range specs {
		params[i] = spec.initParams()
	}
	g, err := newSubnet("generator", specs[:1], params[:1])
	if err != nil {
		t.Fatal(err)
	}
	d, err := newSubnet("discriminator", specs, params)
	if err != nil {
		t.Fatal(err)
	}
	gan, err := NewGAN(NewUniform(2, src), g, d, WithSource(src), WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	return gan
}

func TestTrainStepDetectsSharedState(t *testing.T) {
	xReal := testBlobs(t, 4, 8).Samples

	_, err := sharedGAN(t).TrainStep(xReal, 1, 0)
	if !errors.Is(err, ErrGeneratorAffectsDiscriminator) {
		t.Fatalf("expected generator violation, got %v", err)
	}
	var violation *InvariantViolation
	if !errors.As(err, &violation) || violation.Step != 1 || violation.Changed == 0 {
		t.Errorf("unexpected violation %+v", violation)
	}

	_, err = sharedGAN(t).TrainStep(xReal, 0, 1)
	if !errors.Is(err, ErrDiscriminatorAffectsGenerator) {
		t.Fatalf("expected discriminator violation, got %v", err)
	}
}

// sharedStatisticsGAN Discriminator normalizes its input with the running statistics of
// generator's batch norm, while every learnable is separate
func sharedStatisticsGAN(t *testing.T) *GAN {
	t.Helper()
	src := rand.NewSource(17)
	gSpecs := []LayerSpec{
		{Type: LayerLinear, Inputs: 2, Outputs: 2, Bias: true},
		{Type: LayerBatchNorm, Inputs: 2, Outputs: 2},
	}
	dSpecs := []LayerSpec{
		{Type: LayerBatchNorm, Inputs: 2, Outputs: 2},
		{Type: LayerLinear, Inputs: 2, Outputs: 1, Bias: true, Activation: ActivationSigmoid},
	}
	gParams := []layerParams{gSpecs[0].initParams(), gSpecs[1].initParams()}
	dParams := []layerParams{dSpecs[0].initParams(), dSpecs[1].initParams()}
	dParams[0].RunningMean = gParams[1].RunningMean
	dParams[0].RunningVar = gParams[1].RunningVar
	g, err := newSubnet("generator", gSpecs, gParams)
	if err != nil {
		t.Fatal(err)
	}
	d, err := newSubnet("discriminator", dSpecs, dParams)
	if err != nil {
		t.Fatal(err)
	}
	gan, err := NewGAN(NewUniform(2, src), g, d, WithSource(src), WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	return gan
}

func TestTrainStepDetectsSharedStatistics(t *testing.T) {
	_, err := sharedStatisticsGAN(t).TrainStep(testBlobs(t, 4, 8).Samples, 1, 0)
	if !errors.Is(err, ErrGeneratorAffectsDiscriminator) {
		t.Fatalf("expected generator violation, got %v", err)
	}
}

func TestTrainStepKeepsStatisticsIsolated(t *testing.T) {
	gan := newTestGAN(t, 18, MixWithNoise)
	xReal := testBlobs(t, 4, 19).Samples
	g, d := gan.Generator(), gan.Discriminator()

	gStats, dStats := cloneStatistics(g), cloneStatistics(d)
	if _, err := gan.TrainStep(xReal, 1, 0); err != nil {
		t.Fatal(err)
	}
	if paramsChanged(gStats, g.Statistics()) == 0 {
		t.Error("generator update didn't move generator statistics")
	}
	if changed := paramsChanged(dStats, d.Statistics()); changed != 0 {
		t.Errorf("generator update changed %d discriminator statistics", changed)
	}

	gStats, dStats = cloneStatistics(g), cloneStatistics(d)
	if _, err := gan.TrainStep(xReal, 0, 1); err != nil {
		t.Fatal(err)
	}
	if paramsChanged(dStats, d.Statistics()) == 0 {
		t.Error("discriminator update didn't move discriminator statistics")
	}
	if changed := paramsChanged(gStats, g.Statistics()); changed != 0 {
		t.Errorf("discriminator update changed %d generator statistics", changed)
	}

	for i := 0; i < 5; i++ {
		if _, err := gan.TrainStep(xReal, 1, 1); err != nil {
			t.Fatalf("step #%d: %v", i, err)
		}
	}
}

func cloneStatistics(s *Subnet) []*tensor.Dense {
	stats := s.Statistics()
	clones := make([]*tensor.Dense, len(stats))
	for i, v := range stats {
		clones[i] = v.Clone().(*tensor.Dense)
	}
	return clones
}

func TestTrainStepRejectsBadInput(t *testing.T) {
	gan := newTestGAN(t, 9, MixFakeReal)
	if _, err := gan.TrainStep(testBlobs(t, 1, 1).Samples, -1, 1); err == nil {
		t.Error("negative updates must be rejected")
	}
	if _, err := gan.TrainStep(nil, 1, 1); err == nil {
		t.Error("nil batch must be rejected")
	}
	if gan.Steps() != 0 {
		t.Errorf("rejected steps must not be counted, got %d", gan.Steps())
	}
}

func TestFitStepsPerEpoch(t *testing.T) {
	gan := newTestGAN(t, 10, MixFakeReal)
	data := testBlobs(t, 4, 11) // 16 samples
	opts := DefaultFitOptions()
	opts.BatchSize = 8
	summary, err := gan.Fit(data, opts)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Epochs != 1 || summary.Steps != 2 {
		t.Errorf("expected 1 epoch and 2 steps, got %+v", summary)
	}
}

func TestFitCallbackCadence(t *testing.T) {
	gan := newTestGAN(t, 12, MixFakeReal)
	data := testBlobs(t, 2, 13) // 8 samples, one step per epoch
	var every10, every1 []int
	opts := DefaultFitOptions()
	opts.Epochs = 25
	opts.BatchSize = 8
	opts.Callbacks = []Callback{
		Every(10, "every10", func(epoch int) error {
			every10 = append(every10, epoch)
			return nil
		}),
		Every(1, "every1", func(epoch int) error {
			every1 = append(every1, epoch)
			return nil
		}),
	}
	summary, err := gan.Fit(data, opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(every10) != 2 || every10[0] != 10 || every10[1] != 20 {
		t.Errorf("cadence 10 over 25 epochs fired at %v", every10)
	}
	if len(every1) != 25 || every1[0] != 1 || every1[24] != 25 {
		t.Errorf("cadence 1 fired at %v", every1)
	}
	if summary.Steps != 25 {
		t.Errorf("expected 25 steps, got %d", summary.Steps)
	}
}

func TestFitCallbackError(t *testing.T) {
	gan := newTestGAN(t, 14, MixFakeReal)
	opts := DefaultFitOptions()
	opts.Epochs = 5
	opts.BatchSize = 8
	opts.Callbacks = []Callback{Every(2, "broken", func(epoch int) error {
		return errors.New("boom")
	})}
	summary, err := gan.Fit(testBlobs(t, 2, 15), opts)
	if err == nil {
		t.Fatal("callback error must stop training")
	}
	if summary.Epochs != 2 {
		t.Errorf("expected to stop after epoch 2, got %d", summary.Epochs)
	}
}

func TestFitBatchLargerThanDataset(t *testing.T) {
	gan := newTestGAN(t, 16, MixFakeReal)
	calls := 0
	opts := DefaultFitOptions()
	opts.Epochs = 3
	opts.Callbacks = []Callback{Every(1, "count", func(int) error {
		calls++
		return nil
	})}
	summary, err := gan.Fit(testBlobs(t, 2, 17), opts)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Steps != 0 || summary.Epochs != 3 || calls != 3 {
		t.Errorf("expected 3 empty epochs with callbacks, got %+v and %d calls", summary, calls)
	}
}

func TestFitRejectsBadOptions(t *testing.T) {
	gan := newTestGAN(t, 18, MixFakeReal)
	data := testBlobs(t, 2, 19)
	bad := []func(*FitOptions){
		func(o *FitOptions) { o.GUpdates = -1 },
		func(o *FitOptions) { o.DUpdates = -1 },
		func(o *FitOptions) { o.BatchSize = 0 },
		func(o *FitOptions) { o.Epochs = -1 },
		func(o *FitOptions) { o.Callbacks = []Callback{Every(0, "zero", func(int) error { return nil })} },
		func(o *FitOptions) { o.Callbacks = []Callback{{Name: "nil", Every: 1}} },
	}
	for i, modify := range bad {
		opts := DefaultFitOptions()
		modify(&opts)
		if _, err := gan.Fit(data, opts); err == nil {
			t.Errorf("case #%d: expected error", i)
		}
	}
	if gan.Steps() != 0 {
		t.Errorf("rejected fits must not train, got %d steps", gan.Steps())
	}
	if _, err := gan.Fit(nil, DefaultFitOptions()); err == nil {
		t.Error("nil dataset must be rejected")
	}
}

func TestFitSavesModels(t *testing.T) {
	gan := newTestGAN(t, 20, MixFakeReal)
	dir := t.TempDir()
	opts := DefaultFitOptions()
	opts.BatchSize = 8
	opts.ModelDir = dir
	opts.FilePrefix = "2d_uniform"
	if _, err := gan.Fit(testBlobs(t, 2, 21), opts); err != nil {
		t.Fatal(err)
	}
	gPath, dPath := ModelPaths(dir, "2d_uniform")
	for _, path := range []string{gPath, dPath} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("model file is missing: %v", err)
		}
	}
}

func TestGenerate(t *testing.T) {
	gan := newTestGAN(t, 22, MixFakeReal)
	x, err := gan.Generate(5)
	if err != nil {
		t.Fatal(err)
	}
	if !x.Shape().Eq(tensor.Shape{5, SampleDim}) {
		t.Errorf("shape %v", x.Shape())
	}
	if _, err := gan.Generate(0); err == nil {
		t.Error("zero samples must be rejected")
	}
}
