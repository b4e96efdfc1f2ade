package gan2d

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

type LayerType uint16

const (
	LayerLinear = LayerType(iota)
	LayerScale
	LayerBatchNorm
)

const (
	// BatchNormMomentum Weight of old value in running statistics update
	BatchNormMomentum = 0.99
	// BatchNormEpsilon Added to variance before taking square root
	BatchNormEpsilon = 1e-3
)

var (
	allowedNoWeights = []LayerType{LayerScale}
)

func noWeightsAllowed(checkType LayerType) bool {
	return checkLayerType(checkType, allowedNoWeights...)
}

func checkLayerType(checkType LayerType, t ...LayerType) bool {
	for _, typeOf := range t {
		if checkType == typeOf {
			return true
		}
	}
	return false
}

// LayerSpec Graph independent description of a layer. It is what gets persisted and what
// architecture builders produce.
//
// Inputs, Outputs - width of incoming and outgoing samples
// Bias - whether linear layer has bias term
// Scale - multiplier for LayerScale
//
// LayerBatchNorm always has scale and shift (kept as weight and bias) plus running mean and
// variance which are updated by training steps only.
//
type LayerSpec struct {
	Type       LayerType
	Inputs     int
	Outputs    int
	Bias       bool
	Activation Activation
	Scale      float64
}

func (spec LayerSpec) validate() error {
	if spec.Inputs <= 0 || spec.Outputs <= 0 {
		return fmt.Errorf("layer must have positive widths, got %d->%d", spec.Inputs, spec.Outputs)
	}
	switch spec.Type {
	case LayerLinear:
	case LayerScale, LayerBatchNorm:
		if spec.Inputs != spec.Outputs {
			return fmt.Errorf("layer of type '%d' can't change width (%d->%d)", spec.Type, spec.Inputs, spec.Outputs)
		}
	default:
		return fmt.Errorf("Layer type '%d' (uint16) is not handled", spec.Type)
	}
	if _, err := spec.Activation.Func(); err != nil {
		return err
	}
	return nil
}

// initParams Glorot-uniform weights and zero bias, the same defaults Keras' Dense has.
// Batch norm starts as identity: unit scale, zero shift, zero mean and unit variance.
func (spec LayerSpec) initParams() layerParams {
	switch {
	case noWeightsAllowed(spec.Type):
		return layerParams{}
	case spec.Type == LayerBatchNorm:
		return layerParams{
			Weight:      filledRow(spec.Outputs, 1),
			Bias:        filledRow(spec.Outputs, 0),
			RunningMean: filledRow(spec.Outputs, 0),
			RunningVar:  filledRow(spec.Outputs, 1),
		}
	}
	backing := gorgonia.GlorotU(1.0)(tensor.Float64, spec.Outputs, spec.Inputs).([]float64)
	p := layerParams{Weight: tensor.New(tensor.WithShape(spec.Outputs, spec.Inputs), tensor.WithBacking(backing))}
	if spec.Bias {
		p.Bias = filledRow(spec.Outputs, 0)
	}
	return p
}

func filledRow(width int, value float64) *tensor.Dense {
	backing := make([]float64, width)
	for i := range backing {
		backing[i] = value
	}
	return tensor.New(tensor.WithShape(1, width), tensor.WithBacking(backing))
}

// Layer Just an alias to Weight+Bias+ActivationFunction combo bound to a certain graph
//
// MeanNode, VarNode - running statistics of batch norm, used when Training is false
// Training - batch norm normalizes by statistics of the batch itself and reads them into
// BatchMean and BatchVar while the graph runs
//
type Layer struct {
	WeightNode *gorgonia.Node
	BiasNode   *gorgonia.Node
	MeanNode   *gorgonia.Node
	VarNode    *gorgonia.Node
	Activation ActivationFunc
	Type       LayerType
	Scale      float64
	Training   bool

	BatchMean gorgonia.Value
	BatchVar  gorgonia.Value
}

// Fwd Feedforward input through layer. Activation is not applied here.
//
// batchSize - batch size. If it's >= 2 then broadcast function will be applied
//
func (l *Layer) Fwd(batchSize int, input *gorgonia.Node) (*gorgonia.Node, error) {
	switch l.Type {
	case LayerLinear:
		if l.WeightNode == nil {
			return nil, fmt.Errorf("linear layer has nil weight node")
		}
		tOp, err := gorgonia.Transpose(l.WeightNode)
		if err != nil {
			return nil, errors.Wrap(err, "Can't transpose weights")
		}
		nonActivated, err := gorgonia.Mul(input, tOp)
		if err != nil {
			return nil, errors.Wrap(err, "Can't multiply input and weights")
		}
		if l.BiasNode == nil {
			return nonActivated, nil
		}
		if batchSize < 2 {
			nonActivated, err = gorgonia.Add(nonActivated, l.BiasNode)
			if err != nil {
				return nil, errors.Wrap(err, "Can't add bias to non-activated output")
			}
			return nonActivated, nil
		}
		nonActivated, err = gorgonia.BroadcastAdd(nonActivated, l.BiasNode, nil, []byte{0})
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't add [in broadcast term with batch_size = %d] bias to non-activated output", batchSize))
		}
		return nonActivated, nil
	case LayerScale:
		scaled, err := gorgonia.Mul(input, gorgonia.NewConstant(l.Scale))
		if err != nil {
			return nil, errors.Wrap(err, "Can't scale input")
		}
		return scaled, nil
	case LayerBatchNorm:
		return l.batchNorm(batchSize, input)
	default:
		return nil, fmt.Errorf("Layer type '%d' (uint16) is not handled", l.Type)
	}
}

// batchNorm (x - mean) / sqrt(var + eps) * scale + shift for every column of input
func (l *Layer) batchNorm(batchSize int, input *gorgonia.Node) (*gorgonia.Node, error) {
	if l.WeightNode == nil || l.BiasNode == nil {
		return nil, fmt.Errorf("batch norm layer has nil scale or shift node")
	}
	mean, variance := l.MeanNode, l.VarNode
	var err error
	if l.Training {
		if mean, err = columnMean(input); err != nil {
			return nil, errors.Wrap(err, "Can't compute batch mean")
		}
	} else if mean == nil || variance == nil {
		return nil, fmt.Errorf("batch norm layer has nil running statistics")
	}
	centered, err := rowWise(batchSize, input, mean, gorgonia.Sub, gorgonia.BroadcastSub)
	if err != nil {
		return nil, errors.Wrap(err, "Can't subtract mean")
	}
	if l.Training {
		squared, err := gorgonia.Square(centered)
		if err != nil {
			return nil, errors.Wrap(err, "Can't square centered input")
		}
		if variance, err = columnMean(squared); err != nil {
			return nil, errors.Wrap(err, "Can't compute batch variance")
		}
		gorgonia.Read(mean, &l.BatchMean)
		gorgonia.Read(variance, &l.BatchVar)
	}
	shifted, err := gorgonia.Add(variance, gorgonia.NewConstant(BatchNormEpsilon))
	if err != nil {
		return nil, errors.Wrap(err, "Can't add epsilon to variance")
	}
	std, err := gorgonia.Sqrt(shifted)
	if err != nil {
		return nil, errors.Wrap(err, "Can't take square root of variance")
	}
	normalized, err := rowWise(batchSize, centered, std, gorgonia.HadamardDiv, gorgonia.BroadcastHadamardDiv)
	if err != nil {
		return nil, errors.Wrap(err, "Can't divide by standard deviation")
	}
	scaled, err := rowWise(batchSize, normalized, l.WeightNode, gorgonia.HadamardProd, gorgonia.BroadcastHadamardProd)
	if err != nil {
		return nil, errors.Wrap(err, "Can't apply scale")
	}
	out, err := rowWise(batchSize, scaled, l.BiasNode, gorgonia.Add, gorgonia.BroadcastAdd)
	if err != nil {
		return nil, errors.Wrap(err, "Can't apply shift")
	}
	return out, nil
}

// columnMean Mean over rows as (1, cols) matrix
func columnMean(x *gorgonia.Node) (*gorgonia.Node, error) {
	mean, err := gorgonia.Mean(x, 0)
	if err != nil {
		return nil, err
	}
	return gorgonia.Reshape(mean, tensor.Shape{1, x.Shape()[1]})
}

type binaryOp func(a, b *gorgonia.Node) (*gorgonia.Node, error)
type broadcastOp func(a, b *gorgonia.Node, leftPattern, rightPattern []byte) (*gorgonia.Node, error)

// rowWise Applies op between every row of a and single-row b. Plain op is used for batch of one.
func rowWise(batchSize int, a, b *gorgonia.Node, op binaryOp, bcOp broadcastOp) (*gorgonia.Node, error) {
	if batchSize < 2 {
		return op(a, b)
	}
	return bcOp(a, b, nil, []byte{0})
}
