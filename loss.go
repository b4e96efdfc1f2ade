package gan2d

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

type LossReduction uint16

const (
	LossReductionSum = LossReduction(iota)
	LossReductionMean
)

// lossEpsilon keeps log() finite when sigmoid saturates
const lossEpsilon = 1e-7

func reduce(n *gorgonia.Node, reduction []LossReduction) (*gorgonia.Node, error) {
	reductionDefault := LossReductionMean
	if len(reduction) != 0 {
		reductionDefault = reduction[0]
	}
	switch reductionDefault {
	case LossReductionSum:
		return gorgonia.Sum(n)
	case LossReductionMean:
		return gorgonia.Mean(n)
	default:
		return nil, fmt.Errorf("Reduction type %d is not supported", reductionDefault)
	}
}

// MSELoss See ref. https://en.wikipedia.org/wiki/Mean_squared_error
// Default reduction is 'mean'
func MSELoss(a, b *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	sub, err := gorgonia.Sub(a, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A-B)")
	}
	sqr, err := gorgonia.Square(sub)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x^2)")
	}
	return reduce(sqr, reduction)
}

// BinaryCrossEntropyLoss See ref. https://en.wikipedia.org/wiki/Cross_entropy#Cross-entropy_loss_function_and_logistic_regression
// loss{i} = -(B{i}*log(A{i}) + (1-B{i})*log(1-A{i}))
// A is expected to be a probability (sigmoid output), B holds 0/1 targets.
// Default reduction is 'mean'
func BinaryCrossEntropyLoss(a, b *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	eps := gorgonia.NewConstant(lossEpsilon)
	onesTensor := gorgonia.NewTensor(a.Graph(), a.Dtype(), a.Dims(), gorgonia.WithShape(a.Shape()...), gorgonia.WithInit(gorgonia.Ones()))

	// Main part: B*log(A)
	shiftedMain, err := gorgonia.Add(a, eps)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A+eps)")
	}
	logMain, err := gorgonia.Log(shiftedMain)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do log(A)")
	}
	hprodMain, err := gorgonia.HadamardProd(logMain, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x.*B)")
	}

	// Binary part: (1-B)*log(1-A)
	oneMinusA, err := gorgonia.Sub(onesTensor, a)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-A)")
	}
	shiftedBin, err := gorgonia.Add(oneMinusA, eps)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-A+eps)")
	}
	logBin, err := gorgonia.Log(shiftedBin)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do log(1-A)")
	}
	oneMinusB, err := gorgonia.Sub(onesTensor, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-B)")
	}
	hprodBin, err := gorgonia.HadamardProd(logBin, oneMinusB)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x.*(1-B))")
	}

	sum, err := gorgonia.Add(hprodMain, hprodBin)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x+y)")
	}
	neg, err := gorgonia.Neg(sum)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do -1*x")
	}
	return reduce(neg, reduction)
}

// LossKind Names loss function used by objectives
type LossKind uint16

const (
	LossBinaryCrossEntropy = LossKind(iota)
	LossMeanSquared
)

func (kind LossKind) graphLoss(a, b *gorgonia.Node) (*gorgonia.Node, error) {
	switch kind {
	case LossBinaryCrossEntropy:
		return BinaryCrossEntropyLoss(a, b)
	case LossMeanSquared:
		return MSELoss(a, b)
	default:
		return nil, fmt.Errorf("Loss type %d is not supported", kind)
	}
}

// valueLoss Same as graphLoss (mean reduction), but for plain values
func (kind LossKind) valueLoss(pred, target *tensor.Dense) (float64, error) {
	p, ok := pred.Data().([]float64)
	if !ok {
		return 0, fmt.Errorf("prediction must be float64, got %v", pred.Dtype())
	}
	t, ok := target.Data().([]float64)
	if !ok {
		return 0, fmt.Errorf("target must be float64, got %v", target.Dtype())
	}
	if len(p) != len(t) {
		return 0, fmt.Errorf("prediction has %d elements but target has %d", len(p), len(t))
	}
	if len(p) == 0 {
		return 0, fmt.Errorf("can't compute loss of empty batch")
	}
	switch kind {
	case LossBinaryCrossEntropy:
		return BinaryCrossEntropy(p, t), nil
	case LossMeanSquared:
		return MeanSquaredError(p, t), nil
	default:
		return 0, fmt.Errorf("Loss type %d is not supported", kind)
	}
}

// BinaryCrossEntropy Mean binary cross entropy of probabilities p against targets t
func BinaryCrossEntropy(p, t []float64) float64 {
	sum := 0.0
	for i := range p {
		sum -= t[i]*math.Log(p[i]+lossEpsilon) + (1-t[i])*math.Log(1-p[i]+lossEpsilon)
	}
	return sum / float64(len(p))
}

// MeanSquaredError Mean of (p{i}-t{i})^2
func MeanSquaredError(p, t []float64) float64 {
	sum := 0.0
	for i := range p {
		d := p[i] - t[i]
		sum += d * d
	}
	return sum / float64(len(p))
}
