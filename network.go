package gan2d

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Network Abstraction for neural network.
//
// Layers - simple sequence of layers
// out - alias to activated output of last layer
//
type Network struct {
	Name   string
	Layers []*Layer
	out    *gorgonia.Node
}

// Out Returns reference to output node
func (net *Network) Out() *gorgonia.Node {
	return net.out
}

// Learnables Returns learnables nodes
func (net *Network) Learnables() gorgonia.Nodes {
	learnables := make(gorgonia.Nodes, 0, 2*len(net.Layers))
	for _, l := range net.Layers {
		if l != nil {
			if l.WeightNode != nil {
				learnables = append(learnables, l.WeightNode)
			}
			if l.BiasNode != nil {
				learnables = append(learnables, l.BiasNode)
			}
		}
	}
	return learnables
}

// Fwd Initializates feedforward for provided input
//
// input - Input node
// batchSize - batch size. If it's >= 2 then broadcast function will be applied
//
func (net *Network) Fwd(input *gorgonia.Node, batchSize int) error {
	networkName := "network"
	if net.Name != "" {
		networkName = net.Name
	}

	if len(net.Layers) == 0 {
		return fmt.Errorf("Network must have one layer atleast")
	}

	lastActivatedLayer := input
	for i := range net.Layers {
		if net.Layers[i] == nil {
			return fmt.Errorf("Network's layer #%d is nil", i)
		}
		if net.Layers[i].WeightNode == nil && !noWeightsAllowed(net.Layers[i].Type) {
			return fmt.Errorf("Network's layer's #%d WeightNode is nil", i)
		}
		// Feedforward input through i-th layer
		layerNonActivated, err := net.Layers[i].Fwd(batchSize, lastActivatedLayer)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("[Network, Layer #%d] Can't feedforward input before activation", i))
		}
		gorgonia.WithName(fmt.Sprintf("%s_%d", networkName, i))(layerNonActivated)
		// Activate i-th layer's output
		layerActivated, err := net.Layers[i].Activation(layerNonActivated)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't apply activation function to non-activated output of Network's layer #%d", i))
		}
		gorgonia.WithName(fmt.Sprintf("%s_activated_%d", networkName, i))(layerActivated)
		lastActivatedLayer = layerActivated
	}
	net.out = lastActivatedLayer
	return nil
}

// layerParams Values of learnables of single layer. Both are nil for parameterless layers.
// Batch norm keeps scale and shift in Weight and Bias, running statistics are not learnables.
type layerParams struct {
	Weight      *tensor.Dense
	Bias        *tensor.Dense
	RunningMean *tensor.Dense
	RunningVar  *tensor.Dense
}

// bindNetwork Creates nodes for every layer of specs on graph g.
//
// When training is true nodes are bound to the provided tensors (training graph owns them) and
// batch norm layers use batch statistics; otherwise nodes get their own copies, batch norm uses
// running statistics, so nothing evaluated on g can touch params.
//
func bindNetwork(g *gorgonia.ExprGraph, name string, specs []LayerSpec, params []layerParams, training bool) (*Network, error) {
	if len(specs) != len(params) {
		return nil, fmt.Errorf("%s: got %d layer specs but %d parameter sets", name, len(specs), len(params))
	}
	net := &Network{
		Name:   name,
		Layers: make([]*Layer, len(specs)),
	}
	bindValue := func(t *tensor.Dense) *tensor.Dense {
		if training {
			return t
		}
		return t.Clone().(*tensor.Dense)
	}
	for i, spec := range specs {
		activation, err := spec.Activation.Func()
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%s: layer #%d", name, i))
		}
		layer := &Layer{
			Activation: activation,
			Type:       spec.Type,
			Scale:      spec.Scale,
			Training:   training,
		}
		if w := params[i].Weight; w != nil {
			layer.WeightNode = gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(w.Shape()...), gorgonia.WithName(fmt.Sprintf("%s_w%d", name, i)), gorgonia.WithValue(bindValue(w)))
		}
		if b := params[i].Bias; b != nil {
			layer.BiasNode = gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(b.Shape()...), gorgonia.WithName(fmt.Sprintf("%s_b%d", name, i)), gorgonia.WithValue(bindValue(b)))
		}
		if spec.Type == LayerBatchNorm && !training {
			mean, variance := params[i].RunningMean, params[i].RunningVar
			if mean == nil || variance == nil {
				return nil, fmt.Errorf("%s: layer #%d has no running statistics", name, i)
			}
			layer.MeanNode = gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(mean.Shape()...), gorgonia.WithName(fmt.Sprintf("%s_mean%d", name, i)), gorgonia.WithValue(bindValue(mean)))
			layer.VarNode = gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(variance.Shape()...), gorgonia.WithName(fmt.Sprintf("%s_var%d", name, i)), gorgonia.WithValue(bindValue(variance)))
		}
		net.Layers[i] = layer
	}
	return net, nil
}
