package gan2d

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

var (
	// ErrGeneratorAffectsDiscriminator Generator updates changed discriminator output
	ErrGeneratorAffectsDiscriminator = errors.New("generator update affects discriminator")
	// ErrDiscriminatorAffectsGenerator Discriminator updates changed generator output
	ErrDiscriminatorAffectsGenerator = errors.New("discriminator update affects generator")
)

// InvariantViolation One part of GAN changed while the other one was trained. It means the
// two parts share state (parameters or graph values) and training can't go on.
//
// Step - 1-based number of alternation step
// Kind - ErrGeneratorAffectsDiscriminator or ErrDiscriminatorAffectsGenerator
// Changed - number of output values which differ
// MaxDiff - largest absolute difference
//
type InvariantViolation struct {
	Step    int
	Kind    error
	Changed int
	MaxDiff float64
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation at step %d: %v (%d values changed, max diff %g)", e.Step, e.Kind, e.Changed, e.MaxDiff)
}

func (e *InvariantViolation) Unwrap() error {
	return e.Kind
}

// compareValues Counts elements which are not bit-identical
func compareValues(a, b *tensor.Dense) (changed int, maxDiff float64) {
	if !a.Shape().Eq(b.Shape()) {
		return a.Shape().TotalSize() + b.Shape().TotalSize(), math.Inf(1)
	}
	x := a.Data().([]float64)
	y := b.Data().([]float64)
	for i := range x {
		if math.Float64bits(x[i]) != math.Float64bits(y[i]) {
			changed++
			if d := math.Abs(x[i] - y[i]); d > maxDiff || math.IsNaN(d) {
				maxDiff = d
			}
		}
	}
	return changed, maxDiff
}
