package gan2d

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Objective Loss which Subnet.Step minimizes
type Objective interface {
	// Build Attaches loss on top of out. Returns scalar cost and node for target values.
	Build(g *gorgonia.ExprGraph, out *gorgonia.Node) (cost, target *gorgonia.Node, err error)
	// Prepare Is called before every solver step
	Prepare() error
	// Loss Same loss computed for already evaluated output
	Loss(out, target *tensor.Dense) (float64, error)
}

// Supervised Loss between subnet output and target, e.g. discriminator against 0/1 labels
type Supervised struct {
	Kind LossKind
}

func (obj Supervised) Build(g *gorgonia.ExprGraph, out *gorgonia.Node) (*gorgonia.Node, *gorgonia.Node, error) {
	target := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(out.Shape()...), gorgonia.WithName("supervised_target"))
	cost, err := obj.Kind.graphLoss(out, target)
	if err != nil {
		return nil, nil, err
	}
	return cost, target, nil
}

func (obj Supervised) Prepare() error { return nil }

func (obj Supervised) Loss(out, target *tensor.Dense) (float64, error) {
	return obj.Kind.valueLoss(out, target)
}

// Adversarial Generator objective: loss of Discriminator's score on generator output.
//
// Discriminator's layers are placed on the generator's graph as plain value nodes (not
// learnables), and Prepare refreshes their values from Discriminator before every step.
// Batch norm of the copy runs on running statistics and never updates them.
// So gradients flow through the discriminator into the generator, but the solver never
// sees discriminator parameters.
//
type Adversarial struct {
	Discriminator *Subnet
	Kind          LossKind

	frozen *Network
}

// NewAdversarial Binary cross entropy of Discriminator's score
func NewAdversarial(discriminator *Subnet) *Adversarial {
	return &Adversarial{Discriminator: discriminator, Kind: LossBinaryCrossEntropy}
}

func (obj *Adversarial) Build(g *gorgonia.ExprGraph, out *gorgonia.Node) (*gorgonia.Node, *gorgonia.Node, error) {
	if obj.Discriminator == nil {
		return nil, nil, fmt.Errorf("adversarial objective has no discriminator")
	}
	d := obj.Discriminator
	if out.Shape()[1] != d.InputDim() {
		return nil, nil, fmt.Errorf("generator gives %d columns but discriminator expects %d", out.Shape()[1], d.InputDim())
	}
	frozen, err := bindNetwork(g, "frozen_"+d.name, d.specs, d.params, false)
	if err != nil {
		return nil, nil, err
	}
	rows := out.Shape()[0]
	if err := frozen.Fwd(out, rows); err != nil {
		return nil, nil, errors.Wrap(err, "[frozen discriminator]")
	}
	target := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(frozen.Out().Shape()...), gorgonia.WithName("adversarial_target"))
	cost, err := obj.Kind.graphLoss(frozen.Out(), target)
	if err != nil {
		return nil, nil, err
	}
	obj.frozen = frozen
	return cost, target, nil
}

// Prepare Copies current discriminator parameters and running statistics into frozen nodes
func (obj *Adversarial) Prepare() error {
	if obj.frozen == nil {
		return fmt.Errorf("adversarial objective is not built")
	}
	params := obj.Discriminator.params
	for i, l := range obj.frozen.Layers {
		if l.WeightNode != nil {
			if err := copyIntoNode(l.WeightNode, params[i].Weight); err != nil {
				return errors.Wrap(err, fmt.Sprintf("Can't refresh weight of layer #%d", i))
			}
		}
		if l.BiasNode != nil {
			if err := copyIntoNode(l.BiasNode, params[i].Bias); err != nil {
				return errors.Wrap(err, fmt.Sprintf("Can't refresh bias of layer #%d", i))
			}
		}
		if l.MeanNode != nil {
			if err := copyIntoNode(l.MeanNode, params[i].RunningMean); err != nil {
				return errors.Wrap(err, fmt.Sprintf("Can't refresh running mean of layer #%d", i))
			}
			if err := copyIntoNode(l.VarNode, params[i].RunningVar); err != nil {
				return errors.Wrap(err, fmt.Sprintf("Can't refresh running variance of layer #%d", i))
			}
		}
	}
	return nil
}

func (obj *Adversarial) Loss(out, target *tensor.Dense) (float64, error) {
	score, err := obj.Discriminator.Evaluate(out)
	if err != nil {
		return 0, err
	}
	return obj.Kind.valueLoss(score, target)
}

func copyIntoNode(n *gorgonia.Node, src *tensor.Dense) error {
	dst, ok := n.Value().(*tensor.Dense)
	if !ok {
		return fmt.Errorf("node %s holds %T", n.Name(), n.Value())
	}
	dstData, ok := dst.Data().([]float64)
	if !ok {
		return fmt.Errorf("node %s is not float64", n.Name())
	}
	srcData := src.Data().([]float64)
	if len(dstData) != len(srcData) {
		return fmt.Errorf("node %s has %d elements, source has %d", n.Name(), len(dstData), len(srcData))
	}
	copy(dstData, srcData)
	return nil
}
