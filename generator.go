package gan2d

import (
	"github.com/pkg/errors"
)

// DefaultIdentityScale Scale of identity generator when nothing else is provided
const DefaultIdentityScale = 1.5

// GeneratorSpecs Hidden layers followed by linear projection to SampleDim
func GeneratorSpecs(arch Architecture, latentDim int) ([]LayerSpec, error) {
	if err := arch.validate(); err != nil {
		return nil, errors.Wrap(err, "[Generator]")
	}
	specs, width := arch.hiddenSpecs(latentDim)
	specs = append(specs, LayerSpec{
		Type:       LayerLinear,
		Inputs:     width,
		Outputs:    SampleDim,
		Bias:       true,
		Activation: ActivationNone,
	})
	return specs, nil
}

// NewGenerator Constructor for generator mapping latentDim-vectors to samples
func NewGenerator(arch Architecture, latentDim int, opts ...SubnetOption) (*Subnet, error) {
	specs, err := GeneratorSpecs(arch, latentDim)
	if err != nil {
		return nil, err
	}
	return NewSubnet("generator", specs, opts...)
}

// NewIdentityGenerator Generator which just multiplies latent vector by scale. It has nothing
// to learn, so it only makes sense with GUpdates = 0.
func NewIdentityGenerator(scale float64) (*Subnet, error) {
	return NewSubnet("identity_generator", []LayerSpec{{
		Type:       LayerScale,
		Inputs:     SampleDim,
		Outputs:    SampleDim,
		Activation: ActivationNone,
		Scale:      scale,
	}})
}
