package gan2d

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// ActivationFunc Just an alias to Gorgonia'a api_gen.go - https://github.com/gorgonia/gorgonia/blob/master/api_gen.go#L1
type ActivationFunc func(a *gorgonia.Node) (*gorgonia.Node, error)

func NoActivation(a *gorgonia.Node) (*gorgonia.Node, error) { return a, nil }
func Sigmoid(a *gorgonia.Node) (*gorgonia.Node, error)      { return gorgonia.Sigmoid(a) }
func Tanh(a *gorgonia.Node) (*gorgonia.Node, error)         { return gorgonia.Tanh(a) }
func Rectify(a *gorgonia.Node) (*gorgonia.Node, error)      { return gorgonia.Rectify(a) }
func Softplus(a *gorgonia.Node) (*gorgonia.Node, error)     { return gorgonia.Softplus(a) }

// LeakySlope Slope of LeakyRectify for negative inputs
const LeakySlope = 0.3

// LeakyRectify max(x, 0) + slope*min(x, 0), written as relu(x) + slope*(x - relu(x))
func LeakyRectify(a *gorgonia.Node) (*gorgonia.Node, error) {
	rectified, err := gorgonia.Rectify(a)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do max(x, 0)")
	}
	negativePart, err := gorgonia.Sub(a, rectified)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x - relu(x))")
	}
	scaled, err := gorgonia.Mul(negativePart, gorgonia.NewConstant(LeakySlope))
	if err != nil {
		return nil, errors.Wrap(err, "Can't do slope*x")
	}
	return gorgonia.Add(rectified, scaled)
}

// Activation Serializable name of an activation function
type Activation uint16

const (
	ActivationNone = Activation(iota)
	ActivationSigmoid
	ActivationTanh
	ActivationRectify
	ActivationLeakyRectify
	ActivationSoftplus
)

var activationNames = map[Activation]string{
	ActivationNone:         "none",
	ActivationSigmoid:      "sigmoid",
	ActivationTanh:         "tanh",
	ActivationRectify:      "relu",
	ActivationLeakyRectify: "leaky_relu",
	ActivationSoftplus:     "softplus",
}

func (a Activation) String() string {
	if name, ok := activationNames[a]; ok {
		return name
	}
	return fmt.Sprintf("activation(%d)", uint16(a))
}

// Func Returns function which applies activation to node
func (a Activation) Func() (ActivationFunc, error) {
	switch a {
	case ActivationNone:
		return NoActivation, nil
	case ActivationSigmoid:
		return Sigmoid, nil
	case ActivationTanh:
		return Tanh, nil
	case ActivationRectify:
		return Rectify, nil
	case ActivationLeakyRectify:
		return LeakyRectify, nil
	case ActivationSoftplus:
		return Softplus, nil
	default:
		return nil, fmt.Errorf("Activation type '%d' (uint16) is not handled", a)
	}
}

// ParseActivation Inverse of Activation.String()
func ParseActivation(name string) (Activation, error) {
	for a, n := range activationNames {
		if n == name {
			return a, nil
		}
	}
	return ActivationNone, fmt.Errorf("unknown activation '%s'", name)
}
