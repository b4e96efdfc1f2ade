package gan2d

import "fmt"

// SampleDim Width of real and generated samples
const SampleDim = 2

// Architecture Hidden part shared by generator and discriminator
//
// Hidden - width of each hidden layer
// Activation - activation applied after every hidden layer
// NoBias - hidden layers without bias term
// BatchNorm - batch norm between every hidden layer and its activation. Discriminator also
// normalizes its input.
//
type Architecture struct {
	Hidden     []int
	Activation Activation
	NoBias     bool
	BatchNorm  bool
}

var (
	// MiniArch Two hidden layers of 4 neurons
	MiniArch = FlexibleArch(4)
	// BigArch Two hidden layers of 100 neurons
	BigArch = FlexibleArch(100)
)

// FlexibleArch Two batch normalized hidden layers of provided width, bias is left to batch norm
func FlexibleArch(neurons int) Architecture {
	return Architecture{Hidden: []int{neurons, neurons}, Activation: ActivationLeakyRectify, NoBias: true, BatchNorm: true}
}

func (arch Architecture) validate() error {
	for i, width := range arch.Hidden {
		if width <= 0 {
			return fmt.Errorf("hidden layer #%d has width %d", i, width)
		}
	}
	if _, err := arch.Activation.Func(); err != nil {
		return err
	}
	return nil
}

// hiddenSpecs Layer specs of hidden part for samples of width inputs. Returns specs and
// width of the last one.
func (arch Architecture) hiddenSpecs(inputs int) ([]LayerSpec, int) {
	specs := make([]LayerSpec, 0, 2*len(arch.Hidden)+1)
	width := inputs
	for _, hidden := range arch.Hidden {
		linear := LayerSpec{
			Type:       LayerLinear,
			Inputs:     width,
			Outputs:    hidden,
			Bias:       !arch.NoBias,
			Activation: arch.Activation,
		}
		if !arch.BatchNorm {
			specs = append(specs, linear)
			width = hidden
			continue
		}
		linear.Activation = ActivationNone
		specs = append(specs, linear, batchNormSpec(hidden, arch.Activation))
		width = hidden
	}
	return specs, width
}

func batchNormSpec(width int, activation Activation) LayerSpec {
	return LayerSpec{
		Type:       LayerBatchNorm,
		Inputs:     width,
		Outputs:    width,
		Activation: activation,
	}
}
