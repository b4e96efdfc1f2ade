package gan2d

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

var (
	ErrNotCompiled    = errors.New("subnet has no objective, Compile must be called first")
	ErrNothingToTrain = errors.New("subnet has no learnable parameters")
)

// Model What GAN expects from both of its parts
type Model interface {
	// Forward Applies layers to input on the input's graph
	Forward(input *gorgonia.Node, batchSize int) (*gorgonia.Node, error)
	// Evaluate Inference pass over batch of samples
	Evaluate(x *tensor.Dense) (*tensor.Dense, error)
	// Parameters Current weights and biases in layer order
	Parameters() []*tensor.Dense
	// Step Single optimizer step towards target, returns loss before the update
	Step(x, target *tensor.Dense) (float64, error)
}

var _ Model = (*Subnet)(nil)

// Subnet Sequence of layers plus everything needed to train them: solver, objective and a
// training graph which is compiled lazily for the row count of the batches it gets.
//
// params - source of truth for parameter values. Training graph nodes are bound to these tensors
// and they are re-read from the nodes after every solver step.
//
type Subnet struct {
	name      string
	specs     []LayerSpec
	params    []layerParams
	solver    gorgonia.Solver
	objective Objective
	train     *trainGraph
}

type trainGraph struct {
	rows       int
	graph      *gorgonia.ExprGraph
	net        *Network
	input      *gorgonia.Node
	target     *gorgonia.Node
	cost       *gorgonia.Node
	learnables gorgonia.Nodes
	vm         gorgonia.VM
}

// SubnetOption Optional settings of Subnet
type SubnetOption func(*Subnet)

// WithSolver Sets solver used by Step. Default is Adam(0.0002, beta1=0.5)
func WithSolver(solver gorgonia.Solver) SubnetOption {
	return func(s *Subnet) {
		s.solver = solver
	}
}

// WithAdam Shorthand for WithSolver(Adam) with provided learning rate and beta1
func WithAdam(learnRate, beta1 float64) SubnetOption {
	return WithSolver(gorgonia.NewAdamSolver(gorgonia.WithLearnRate(learnRate), gorgonia.WithBeta1(beta1)))
}

const (
	DefaultLearnRate = 0.0002
	DefaultBeta1     = 0.5
)

// NewSubnet Validates specs and initializes parameters of every layer
func NewSubnet(name string, specs []LayerSpec, opts ...SubnetOption) (*Subnet, error) {
	params := make([]layerParams, len(specs))
	for i, spec := range specs {
		params[i] = spec.initParams()
	}
	return newSubnet(name, specs, params, opts...)
}

func newSubnet(name string, specs []LayerSpec, params []layerParams, opts ...SubnetOption) (*Subnet, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%s: subnet must have one layer atleast", name)
	}
	if len(specs) != len(params) {
		return nil, fmt.Errorf("%s: got %d layer specs but %d parameter sets", name, len(specs), len(params))
	}
	for i, spec := range specs {
		if err := spec.validate(); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%s: layer #%d", name, i))
		}
		if i > 0 && specs[i-1].Outputs != spec.Inputs {
			return nil, fmt.Errorf("%s: layer #%d expects %d inputs but previous layer gives %d", name, i, spec.Inputs, specs[i-1].Outputs)
		}
		if err := checkParams(spec, params[i]); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%s: layer #%d", name, i))
		}
	}
	s := &Subnet{
		name:   name,
		specs:  specs,
		params: params,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.solver == nil {
		s.solver = gorgonia.NewAdamSolver(gorgonia.WithLearnRate(DefaultLearnRate), gorgonia.WithBeta1(DefaultBeta1))
	}
	return s, nil
}

func checkParams(spec LayerSpec, p layerParams) error {
	switch {
	case noWeightsAllowed(spec.Type):
		if p.Weight != nil || p.Bias != nil || p.RunningMean != nil || p.RunningVar != nil {
			return fmt.Errorf("parameterless layer got parameters")
		}
		return nil
	case spec.Type == LayerBatchNorm:
		row := tensor.Shape{1, spec.Outputs}
		for _, v := range []struct {
			name  string
			value *tensor.Dense
		}{{"scale", p.Weight}, {"shift", p.Bias}, {"running mean", p.RunningMean}, {"running variance", p.RunningVar}} {
			if v.value == nil {
				return fmt.Errorf("%s is nil", v.name)
			}
			if !v.value.Shape().Eq(row) {
				return fmt.Errorf("%s shape %v doesn't match 1x%d", v.name, v.value.Shape(), spec.Outputs)
			}
		}
		return nil
	}
	if p.Weight == nil {
		return fmt.Errorf("weight is nil")
	}
	if !p.Weight.Shape().Eq(tensor.Shape{spec.Outputs, spec.Inputs}) {
		return fmt.Errorf("weight shape %v doesn't match %dx%d", p.Weight.Shape(), spec.Outputs, spec.Inputs)
	}
	if spec.Bias != (p.Bias != nil) {
		return fmt.Errorf("bias presence doesn't match layer spec")
	}
	if p.Bias != nil && !p.Bias.Shape().Eq(tensor.Shape{1, spec.Outputs}) {
		return fmt.Errorf("bias shape %v doesn't match 1x%d", p.Bias.Shape(), spec.Outputs)
	}
	if p.RunningMean != nil || p.RunningVar != nil {
		return fmt.Errorf("linear layer got running statistics")
	}
	return nil
}

// Name Returns name of subnet, it prefixes every node on graphs
func (s *Subnet) Name() string { return s.name }

// Specs Returns layer specs
func (s *Subnet) Specs() []LayerSpec { return s.specs }

// InputDim Width of accepted samples
func (s *Subnet) InputDim() int { return s.specs[0].Inputs }

// OutputDim Width of produced samples
func (s *Subnet) OutputDim() int { return s.specs[len(s.specs)-1].Outputs }

// Trainable Whether subnet has anything for solver to update
func (s *Subnet) Trainable() bool {
	for _, p := range s.params {
		if p.Weight != nil || p.Bias != nil {
			return true
		}
	}
	return false
}

// Parameters Returns learnables values in layer order (weight, then bias)
func (s *Subnet) Parameters() []*tensor.Dense {
	values := make([]*tensor.Dense, 0, 2*len(s.params))
	for _, p := range s.params {
		if p.Weight != nil {
			values = append(values, p.Weight)
		}
		if p.Bias != nil {
			values = append(values, p.Bias)
		}
	}
	return values
}

// Statistics Running mean and variance of batch norm layers in layer order
func (s *Subnet) Statistics() []*tensor.Dense {
	var values []*tensor.Dense
	for _, p := range s.params {
		if p.RunningMean != nil {
			values = append(values, p.RunningMean, p.RunningVar)
		}
	}
	return values
}

// Compile Binds objective which Step minimizes. Previously compiled training graph is dropped.
func (s *Subnet) Compile(objective Objective) {
	s.objective = objective
	s.Close()
}

// Objective Returns compiled objective (nil when Compile has not been called)
func (s *Subnet) Objective() Objective { return s.objective }

// Forward Initializates feedforward for provided input. Nodes hold copies of current
// parameters, so whatever runs on input's graph can't change this subnet.
//
// input - Input node
// batchSize - batch size. If it's >= 2 then broadcast function will be applied
//
func (s *Subnet) Forward(input *gorgonia.Node, batchSize int) (*gorgonia.Node, error) {
	net, err := bindNetwork(input.Graph(), s.name, s.specs, s.params, false)
	if err != nil {
		return nil, err
	}
	if err := net.Fwd(input, batchSize); err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("[%s]", s.name))
	}
	return net.Out(), nil
}

// Evaluate Runs inference for batch x of shape (rows, InputDim()) on a throwaway graph
func (s *Subnet) Evaluate(x *tensor.Dense) (*tensor.Dense, error) {
	if err := s.checkInput(x); err != nil {
		return nil, err
	}
	rows := x.Shape()[0]
	g := gorgonia.NewGraph()
	input := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(x.Shape()...), gorgonia.WithName(s.name+"_input"), gorgonia.WithValue(x.Clone().(*tensor.Dense)))
	out, err := s.Forward(input, rows)
	if err != nil {
		return nil, err
	}
	vm := gorgonia.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't run VM [%s]", s.name))
	}
	result, ok := out.Value().(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("%s: output is %T, expected *tensor.Dense", s.name, out.Value())
	}
	return result.Clone().(*tensor.Dense), nil
}

// EvaluateLoss Value of compiled objective for x against target without updating anything
func (s *Subnet) EvaluateLoss(x, target *tensor.Dense) (float64, error) {
	if s.objective == nil {
		return 0, ErrNotCompiled
	}
	out, err := s.Evaluate(x)
	if err != nil {
		return 0, err
	}
	return s.objective.Loss(out, target)
}

// Step Does one solver step of compiled objective on batch x with target
func (s *Subnet) Step(x, target *tensor.Dense) (float64, error) {
	if s.objective == nil {
		return 0, ErrNotCompiled
	}
	if !s.Trainable() {
		return 0, errors.Wrap(ErrNothingToTrain, s.name)
	}
	if err := s.checkInput(x); err != nil {
		return 0, err
	}
	rows := x.Shape()[0]
	if s.train == nil || s.train.rows != rows {
		if err := s.compileFor(rows); err != nil {
			return 0, errors.Wrap(err, fmt.Sprintf("Can't compile training graph [%s]", s.name))
		}
	}
	tg := s.train
	if !target.Shape().Eq(tg.target.Shape()) {
		return 0, fmt.Errorf("%s: target shape %v, expected %v", s.name, target.Shape(), tg.target.Shape())
	}
	if err := s.objective.Prepare(); err != nil {
		return 0, errors.Wrap(err, "Can't prepare objective")
	}
	if err := gorgonia.Let(tg.input, x); err != nil {
		return 0, errors.Wrap(err, "Can't init input value")
	}
	if err := gorgonia.Let(tg.target, target); err != nil {
		return 0, errors.Wrap(err, "Can't init target value")
	}
	defer tg.vm.Reset()
	if err := tg.vm.RunAll(); err != nil {
		return 0, errors.Wrap(err, fmt.Sprintf("Can't run VM [%s]", s.name))
	}
	loss, ok := tg.cost.Value().Data().(float64)
	if !ok {
		return 0, fmt.Errorf("%s: cost is %T, expected float64", s.name, tg.cost.Value().Data())
	}
	if err := s.solver.Step(gorgonia.NodesToValueGrads(tg.learnables)); err != nil {
		return 0, errors.Wrap(err, fmt.Sprintf("Can't do solver step [%s]", s.name))
	}
	s.syncParams()
	if err := s.updateStatistics(); err != nil {
		return 0, errors.Wrap(err, fmt.Sprintf("Can't update running statistics [%s]", s.name))
	}
	return loss, nil
}

// Close Releases training graph
func (s *Subnet) Close() {
	if s.train != nil {
		s.train.vm.Close()
		s.train = nil
	}
}

func (s *Subnet) compileFor(rows int) error {
	s.Close()
	g := gorgonia.NewGraph()
	input := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(rows, s.InputDim()), gorgonia.WithName(s.name+"_train_input"))
	net, err := bindNetwork(g, s.name, s.specs, s.params, true)
	if err != nil {
		return err
	}
	if err := net.Fwd(input, rows); err != nil {
		return errors.Wrap(err, fmt.Sprintf("[%s]", s.name))
	}
	cost, target, err := s.objective.Build(g, net.Out())
	if err != nil {
		return errors.Wrap(err, "Can't build objective")
	}
	gorgonia.WithName(s.name + "_cost")(cost)
	learnables := net.Learnables()
	if _, err := gorgonia.Grad(cost, learnables...); err != nil {
		return errors.Wrap(err, "Can't define gradients")
	}
	s.train = &trainGraph{
		rows:       rows,
		graph:      g,
		net:        net,
		input:      input,
		target:     target,
		cost:       cost,
		learnables: learnables,
		vm:         gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(learnables...)),
	}
	return nil
}

// syncParams Solvers may replace values instead of updating them in place
func (s *Subnet) syncParams() {
	for i, l := range s.train.net.Layers {
		if l.WeightNode != nil {
			s.params[i].Weight = l.WeightNode.Value().(*tensor.Dense)
		}
		if l.BiasNode != nil {
			s.params[i].Bias = l.BiasNode.Value().(*tensor.Dense)
		}
	}
}

// updateStatistics running = momentum*running + (1-momentum)*batch, in place
func (s *Subnet) updateStatistics() error {
	for i, l := range s.train.net.Layers {
		if l.Type != LayerBatchNorm {
			continue
		}
		pairs := [2]struct {
			running *tensor.Dense
			batch   gorgonia.Value
		}{{s.params[i].RunningMean, l.BatchMean}, {s.params[i].RunningVar, l.BatchVar}}
		for _, pair := range pairs {
			if pair.batch == nil {
				return fmt.Errorf("layer #%d: batch statistics were not read", i)
			}
			running := pair.running.Data().([]float64)
			batch, ok := pair.batch.Data().([]float64)
			if !ok || len(batch) != len(running) {
				return fmt.Errorf("layer #%d: batch statistics hold %T", i, pair.batch.Data())
			}
			for j := range running {
				running[j] = BatchNormMomentum*running[j] + (1-BatchNormMomentum)*batch[j]
			}
		}
	}
	return nil
}

func (s *Subnet) checkInput(x *tensor.Dense) error {
	if x == nil {
		return fmt.Errorf("%s: input is nil", s.name)
	}
	if x.Dims() != 2 {
		return fmt.Errorf("%s: input must be a matrix, got shape %v", s.name, x.Shape())
	}
	if x.Shape()[0] == 0 {
		return fmt.Errorf("%s: input has no rows", s.name)
	}
	if x.Shape()[1] != s.InputDim() {
		return fmt.Errorf("%s: input has %d columns, expected %d", s.name, x.Shape()[1], s.InputDim())
	}
	if x.Dtype() != tensor.Float64 {
		return fmt.Errorf("%s: input must be float64, got %v", s.name, x.Dtype())
	}
	return nil
}
