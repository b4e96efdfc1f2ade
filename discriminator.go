package gan2d

import (
	"github.com/pkg/errors"
)

// DiscriminatorSpecs Hidden layers followed by single sigmoid neuron. With batch norm the
// input is normalized first.
func DiscriminatorSpecs(arch Architecture) ([]LayerSpec, error) {
	if err := arch.validate(); err != nil {
		return nil, errors.Wrap(err, "[Discriminator]")
	}
	var specs []LayerSpec
	if arch.BatchNorm {
		specs = append(specs, batchNormSpec(SampleDim, ActivationNone))
	}
	hidden, width := arch.hiddenSpecs(SampleDim)
	specs = append(specs, hidden...)
	specs = append(specs, LayerSpec{
		Type:       LayerLinear,
		Inputs:     width,
		Outputs:    1,
		Bias:       true,
		Activation: ActivationSigmoid,
	})
	return specs, nil
}

// NewDiscriminator Constructor for discriminator scoring samples by probability of being real
func NewDiscriminator(arch Architecture, opts ...SubnetOption) (*Subnet, error) {
	specs, err := DiscriminatorSpecs(arch)
	if err != nil {
		return nil, err
	}
	return NewSubnet("discriminator", specs, opts...)
}
