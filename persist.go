package gan2d

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// layerArtifact Spec and values of single layer as stored on disk
type layerArtifact struct {
	Spec        LayerSpec
	Weight      *tensor.Dense
	Bias        *tensor.Dense
	RunningMean *tensor.Dense
	RunningVar  *tensor.Dense
}

// subnetArtifact On-disk form of Subnet. Solver state is not kept.
type subnetArtifact struct {
	Name   string
	Layers []layerArtifact
}

// Save Writes layer specs, parameters and running statistics to path (gob)
func (s *Subnet) Save(path string) error {
	artifact := subnetArtifact{
		Name:   s.name,
		Layers: make([]layerArtifact, len(s.specs)),
	}
	for i := range s.specs {
		artifact.Layers[i] = layerArtifact{
			Spec:        s.specs[i],
			Weight:      s.params[i].Weight,
			Bias:        s.params[i].Bias,
			RunningMean: s.params[i].RunningMean,
			RunningVar:  s.params[i].RunningVar,
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "Can't create model file")
	}
	if err := gob.NewEncoder(f).Encode(&artifact); err != nil {
		f.Close()
		return errors.Wrap(err, fmt.Sprintf("Can't encode %s", s.name))
	}
	return f.Close()
}

// LoadSubnet Reads subnet written by Subnet.Save. Solver starts from scratch.
func LoadSubnet(path string, opts ...SubnetOption) (*Subnet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "Can't open model file")
	}
	defer f.Close()
	var artifact subnetArtifact
	if err := gob.NewDecoder(f).Decode(&artifact); err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't decode '%s'", path))
	}
	specs := make([]LayerSpec, len(artifact.Layers))
	params := make([]layerParams, len(artifact.Layers))
	for i, l := range artifact.Layers {
		specs[i] = l.Spec
		params[i] = layerParams{Weight: l.Weight, Bias: l.Bias, RunningMean: l.RunningMean, RunningVar: l.RunningVar}
	}
	return newSubnet(artifact.Name, specs, params, opts...)
}

// ModelPaths Returns paths of generator and discriminator artifacts
func ModelPaths(dir, prefix string) (generatorPath, discriminatorPath string) {
	return filepath.Join(dir, prefix+"_g.gob"), filepath.Join(dir, prefix+"_d.gob")
}

// Save Writes dir/prefix_g.gob and dir/prefix_d.gob
func (gan *GAN) Save(dir, prefix string) error {
	if prefix == "" {
		return fmt.Errorf("file prefix is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "Can't create model directory")
	}
	gPath, dPath := ModelPaths(dir, prefix)
	if err := gan.generator.Save(gPath); err != nil {
		return errors.Wrap(err, "[Generator]")
	}
	if err := gan.discriminator.Save(dPath); err != nil {
		return errors.Wrap(err, "[Discriminator]")
	}
	return nil
}

// LoadGAN Reads models saved by GAN.Save and binds them to prior
func LoadGAN(dir, prefix string, prior Prior, opts ...GANOption) (*GAN, error) {
	gPath, dPath := ModelPaths(dir, prefix)
	generator, err := LoadSubnet(gPath)
	if err != nil {
		return nil, errors.Wrap(err, "[Generator]")
	}
	discriminator, err := LoadSubnet(dPath)
	if err != nil {
		return nil, errors.Wrap(err, "[Discriminator]")
	}
	return NewGAN(prior, generator, discriminator, opts...)
}
