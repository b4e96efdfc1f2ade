package gan2d

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	"gorgonia.org/tensor"
)

// Prior Distribution of latent vectors fed to generator
type Prior interface {
	// Sample Returns n independent latent vectors as (n, Dim()) matrix
	Sample(n int) *tensor.Dense
	// Dim Width of latent vectors
	Dim() int
	// Reseed Returns the same distribution drawing from src
	Reseed(src rand.Source) Prior
}

// Uniform Prior which is uniform over hyper-cube [Low; High)^dim
type Uniform struct {
	dim  int
	dist distuv.Uniform
}

// NewUniform Uniform prior over [-1; 1]^dim. Nil src means global source.
func NewUniform(dim int, src rand.Source) *Uniform {
	return NewUniformRange(dim, -1, 1, src)
}

// NewUniformRange Uniform prior over [low; high)^dim
func NewUniformRange(dim int, low, high float64, src rand.Source) *Uniform {
	return &Uniform{
		dim:  dim,
		dist: distuv.Uniform{Min: low, Max: high, Src: src},
	}
}

func (u *Uniform) Dim() int { return u.dim }

func (u *Uniform) Reseed(src rand.Source) Prior {
	return NewUniformRange(u.dim, u.dist.Min, u.dist.Max, src)
}

// Sample Returns nil for non-positive n
func (u *Uniform) Sample(n int) *tensor.Dense {
	return sampleDense(n, u.dim, u.dist.Rand)
}

// Normal Prior with independent N(mu, sigma^2) coordinates
type Normal struct {
	dim  int
	dist distuv.Normal
}

// NewNormal Standard normal prior. Nil src means global source.
func NewNormal(dim int, src rand.Source) *Normal {
	return &Normal{
		dim:  dim,
		dist: distuv.Normal{Mu: 0, Sigma: 1, Src: src},
	}
}

func (p *Normal) Dim() int { return p.dim }

func (p *Normal) Reseed(src rand.Source) Prior {
	dist := p.dist
	dist.Src = src
	return &Normal{dim: p.dim, dist: dist}
}

// Sample Returns nil for non-positive n
func (p *Normal) Sample(n int) *tensor.Dense {
	return sampleDense(n, p.dim, p.dist.Rand)
}

func sampleDense(n, dim int, next func() float64) *tensor.Dense {
	if n <= 0 || dim <= 0 {
		return nil
	}
	data := make([]float64, n*dim)
	for i := range data {
		data[i] = next()
	}
	return tensor.New(tensor.WithShape(n, dim), tensor.WithBacking(data))
}
