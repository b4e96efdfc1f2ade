package gan2d

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gorgonia.org/tensor"
)

func cloneParams(s *Subnet) []*tensor.Dense {
	params := s.Parameters()
	clones := make([]*tensor.Dense, len(params))
	for i, p := range params {
		clones[i] = p.Clone().(*tensor.Dense)
	}
	return clones
}

func paramsChanged(a, b []*tensor.Dense) int {
	changed := 0
	for i := range a {
		c, _ := compareValues(a[i], b[i])
		changed += c
	}
	return changed
}

// plainArch Hidden layers with bias and without batch norm
var plainArch = Architecture{Hidden: []int{4, 4}, Activation: ActivationLeakyRectify}

func TestSubnetShapes(t *testing.T) {
	g, err := NewGenerator(BigArch, 2)
	if err != nil {
		t.Fatal(err)
	}
	if g.InputDim() != 2 || g.OutputDim() != SampleDim || len(g.Specs()) != 5 {
		t.Errorf("generator: %d -> %d with %d layers", g.InputDim(), g.OutputDim(), len(g.Specs()))
	}
	// hidden weights, scale and shift of both batch norms, output weight and bias
	if got := len(g.Parameters()); got != 8 {
		t.Errorf("generator has %d parameter tensors", got)
	}
	if got := len(g.Statistics()); got != 4 {
		t.Errorf("generator has %d running statistics", got)
	}
	d, err := NewDiscriminator(FlexibleArch(8))
	if err != nil {
		t.Fatal(err)
	}
	for _, rows := range []int{1, 2, 33} {
		x := NewUniform(2, rand.NewSource(uint64(rows))).Sample(rows)
		y, err := d.Evaluate(x)
		if err != nil {
			t.Fatalf("rows=%d: %v", rows, err)
		}
		if !y.Shape().Eq(tensor.Shape{rows, 1}) {
			t.Errorf("rows=%d: output shape %v", rows, y.Shape())
		}
		for _, v := range y.Data().([]float64) {
			if v <= 0 || v >= 1 {
				t.Errorf("rows=%d: score %f is not a probability", rows, v)
			}
		}
	}
}

func TestSubnetRejectsBadSpecs(t *testing.T) {
	if _, err := NewSubnet("empty", nil); err == nil {
		t.Error("empty subnet must be rejected")
	}
	specs := []LayerSpec{
		{Type: LayerLinear, Inputs: 2, Outputs: 4},
		{Type: LayerLinear, Inputs: 3, Outputs: 1},
	}
	if _, err := NewSubnet("broken", specs); err == nil {
		t.Error("mismatched widths must be rejected")
	}
	if _, err := NewGenerator(Architecture{Hidden: []int{4, 0}}, 2); err == nil {
		t.Error("zero width must be rejected")
	}
	if _, err := NewSubnet("scale", []LayerSpec{{Type: LayerScale, Inputs: 2, Outputs: 3, Scale: 2}}); err == nil {
		t.Error("scale layer changing width must be rejected")
	}
}

func TestSubnetEvaluateChecksInput(t *testing.T) {
	d, _ := NewDiscriminator(MiniArch)
	if _, err := d.Evaluate(nil); err == nil {
		t.Error("nil input must be rejected")
	}
	if _, err := d.Evaluate(tensor.New(tensor.WithShape(4, 3), tensor.Of(tensor.Float64))); err == nil {
		t.Error("wrong width must be rejected")
	}
}

func TestSubnetStep(t *testing.T) {
	d, err := NewDiscriminator(plainArch)
	if err != nil {
		t.Fatal(err)
	}
	x := NewUniform(2, rand.NewSource(1)).Sample(8)
	target := constLabels(8, 1)
	if _, err := d.Step(x, target); !errors.Is(err, ErrNotCompiled) {
		t.Fatalf("expected ErrNotCompiled, got %v", err)
	}
	d.Compile(Supervised{Kind: LossBinaryCrossEntropy})

	before := cloneParams(d)
	scoresBefore, err := d.Evaluate(x)
	if err != nil {
		t.Fatal(err)
	}
	if paramsChanged(before, d.Parameters()) != 0 {
		t.Fatal("evaluation changed parameters")
	}
	expected, err := d.EvaluateLoss(x, target)
	if err != nil {
		t.Fatal(err)
	}
	loss, err := d.Step(x, target)
	if err != nil {
		t.Fatal(err)
	}
	// graph loss and plain loss are the same function
	if math.Abs(loss-expected) > 1e-9 {
		t.Errorf("step loss %f, evaluated loss %f", loss, expected)
	}
	if paramsChanged(before, d.Parameters()) == 0 {
		t.Error("step didn't change parameters")
	}
	scoresAfter, err := d.Evaluate(x)
	if err != nil {
		t.Fatal(err)
	}
	if changed, _ := compareValues(scoresBefore, scoresAfter); changed == 0 {
		t.Error("step didn't change scores")
	}

	// other batch size recompiles training graph
	if _, err := d.Step(x.Clone().(*tensor.Dense), target); err != nil {
		t.Fatal(err)
	}
	x3 := NewUniform(2, rand.NewSource(2)).Sample(3)
	if _, err := d.Step(x3, constLabels(3, 0)); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Step(x3, constLabels(4, 0)); err == nil {
		t.Error("target of wrong shape must be rejected")
	}
	d.Close()
}

func TestSubnetStepMovesTowardsTarget(t *testing.T) {
	d, err := NewDiscriminator(Architecture{Hidden: []int{16, 16}, Activation: ActivationLeakyRectify}, WithAdam(0.01, 0.9))
	if err != nil {
		t.Fatal(err)
	}
	d.Compile(Supervised{Kind: LossMeanSquared})
	x := NewUniform(2, rand.NewSource(3)).Sample(16)
	target := constLabels(16, 1)
	first, err := d.EvaluateLoss(x, target)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 50; i++ {
		if _, err := d.Step(x, target); err != nil {
			t.Fatal(err)
		}
	}
	last, err := d.EvaluateLoss(x, target)
	if err != nil {
		t.Fatal(err)
	}
	if last >= first {
		t.Errorf("loss didn't decrease: %f -> %f", first, last)
	}
}

func TestIdentityGenerator(t *testing.T) {
	g, err := NewIdentityGenerator(3)
	if err != nil {
		t.Fatal(err)
	}
	if g.Trainable() || len(g.Parameters()) != 0 {
		t.Error("identity generator must have no parameters")
	}
	z := tensor.New(tensor.WithShape(2, 2), tensor.WithBacking([]float64{1, -1, 0.5, 0}))
	x, err := g.Evaluate(z)
	if err != nil {
		t.Fatal(err)
	}
	expected := []float64{3, -3, 1.5, 0}
	for i, v := range x.Data().([]float64) {
		if v != expected[i] {
			t.Errorf("#%d: got %f, expected %f", i, v, expected[i])
		}
	}
	g.Compile(Supervised{})
	if _, err := g.Step(z, z); !errors.Is(err, ErrNothingToTrain) {
		t.Errorf("expected ErrNothingToTrain, got %v", err)
	}
}

func TestPresetLayout(t *testing.T) {
	specs, err := DiscriminatorSpecs(MiniArch)
	if err != nil {
		t.Fatal(err)
	}
	expected := []LayerSpec{
		{Type: LayerBatchNorm, Inputs: 2, Outputs: 2, Activation: ActivationNone},
		{Type: LayerLinear, Inputs: 2, Outputs: 4, Activation: ActivationNone},
		{Type: LayerBatchNorm, Inputs: 4, Outputs: 4, Activation: ActivationLeakyRectify},
		{Type: LayerLinear, Inputs: 4, Outputs: 4, Activation: ActivationNone},
		{Type: LayerBatchNorm, Inputs: 4, Outputs: 4, Activation: ActivationLeakyRectify},
		{Type: LayerLinear, Inputs: 4, Outputs: 1, Bias: true, Activation: ActivationSigmoid},
	}
	if len(specs) != len(expected) {
		t.Fatalf("discriminator has %d layers, expected %d", len(specs), len(expected))
	}
	for i := range specs {
		if specs[i] != expected[i] {
			t.Errorf("discriminator layer #%d: %+v, expected %+v", i, specs[i], expected[i])
		}
	}

	specs, err = GeneratorSpecs(FlexibleArch(8), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(specs) != 5 || specs[0].Type != LayerLinear || specs[0].Bias || specs[0].Inputs != 3 || specs[1].Type != LayerBatchNorm {
		t.Errorf("generator starts with %+v, %+v", specs[0], specs[1])
	}
	if last := specs[len(specs)-1]; !last.Bias || last.Outputs != SampleDim || last.Activation != ActivationNone {
		t.Errorf("generator output layer %+v", last)
	}
}

func TestBatchNormTraining(t *testing.T) {
	d, err := NewDiscriminator(MiniArch)
	if err != nil {
		t.Fatal(err)
	}
	d.Compile(Supervised{Kind: LossBinaryCrossEntropy})
	// columns have mean 3 and -1
	x := tensor.New(tensor.WithShape(4, 2), tensor.WithBacking([]float64{1, 0, 5, -2, 2, -1, 4, -1}))
	stats := d.Statistics()
	mean0 := stats[0].Clone().(*tensor.Dense)
	var0 := stats[1].Clone().(*tensor.Dense)
	scoresBefore, err := d.Evaluate(x)
	if err != nil {
		t.Fatal(err)
	}
	if changed, _ := compareValues(mean0, d.Statistics()[0]); changed != 0 {
		t.Fatal("evaluation changed running statistics")
	}
	if _, err := d.Step(x, constLabels(4, 1)); err != nil {
		t.Fatal(err)
	}
	// input layer statistics move 1% towards batch ones
	mean := d.Statistics()[0].Data().([]float64)
	variance := d.Statistics()[1].Data().([]float64)
	batchMean := []float64{3, -1}
	batchVar := []float64{2.5, 0.5}
	for j := range mean {
		expectedMean := BatchNormMomentum*mean0.Data().([]float64)[j] + (1-BatchNormMomentum)*batchMean[j]
		if math.Abs(mean[j]-expectedMean) > 1e-12 {
			t.Errorf("running mean #%d = %f, expected %f", j, mean[j], expectedMean)
		}
		expectedVar := BatchNormMomentum*var0.Data().([]float64)[j] + (1-BatchNormMomentum)*batchVar[j]
		if math.Abs(variance[j]-expectedVar) > 1e-12 {
			t.Errorf("running variance #%d = %f, expected %f", j, variance[j], expectedVar)
		}
	}
	scoresAfter, err := d.Evaluate(x)
	if err != nil {
		t.Fatal(err)
	}
	if changed, _ := compareValues(scoresBefore, scoresAfter); changed == 0 {
		t.Error("step didn't change scores")
	}

	// batch of one row has zero variance and still trains
	one := tensor.New(tensor.WithShape(1, 2), tensor.WithBacking([]float64{1, 0}))
	loss, err := d.Step(one, constLabels(1, 1))
	if err != nil {
		t.Fatal(err)
	}
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		t.Errorf("loss on single row is %f", loss)
	}
	for i, s := range d.Statistics() {
		for _, v := range s.Data().([]float64) {
			if math.IsNaN(v) {
				t.Fatalf("statistics #%d has NaN", i)
			}
		}
	}
}

func TestBatchNormRejectsBadStatistics(t *testing.T) {
	specs := []LayerSpec{{Type: LayerBatchNorm, Inputs: 2, Outputs: 2}}
	params := []layerParams{specs[0].initParams()}
	params[0].RunningVar = nil
	if _, err := newSubnet("bn", specs, params); err == nil {
		t.Error("missing running variance must be rejected")
	}
	params[0].RunningVar = filledRow(3, 1)
	if _, err := newSubnet("bn", specs, params); err == nil {
		t.Error("running variance of wrong width must be rejected")
	}
	if _, err := NewSubnet("bn", []LayerSpec{{Type: LayerBatchNorm, Inputs: 2, Outputs: 3}}); err == nil {
		t.Error("batch norm changing width must be rejected")
	}
}
