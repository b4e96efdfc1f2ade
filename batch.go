package gan2d

import (
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
	"gorgonia.org/tensor"
)

// batchIndices Shuffles [0; n) and cuts it into floor(n/batchSize) chunks of batchSize.
// The remainder is dropped.
func batchIndices(n, batchSize int, rng *rand.Rand) [][]int {
	if batchSize <= 0 || n < batchSize {
		return nil
	}
	perm := rng.Perm(n)
	batches := make([][]int, 0, n/batchSize)
	for start := 0; start+batchSize <= n; start += batchSize {
		batches = append(batches, perm[start:start+batchSize])
	}
	return batches
}

// Batches Returns reshuffled batches of rows of x, each with exactly batchSize rows.
// When x has fewer rows than batchSize there are no batches at all.
func Batches(x *tensor.Dense, batchSize int, rng *rand.Rand) ([]*tensor.Dense, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if x.Dims() != 2 {
		return nil, fmt.Errorf("batches need a matrix, got shape %v", x.Shape())
	}
	idx := batchIndices(x.Shape()[0], batchSize, rng)
	batches := make([]*tensor.Dense, 0, len(idx))
	for _, rows := range idx {
		batches = append(batches, gatherRows(x, rows))
	}
	return batches, nil
}

func gatherRows(x *tensor.Dense, rows []int) *tensor.Dense {
	cols := x.Shape()[1]
	src := x.Data().([]float64)
	data := make([]float64, 0, len(rows)*cols)
	for _, r := range rows {
		data = append(data, src[r*cols:(r+1)*cols]...)
	}
	return tensor.New(tensor.WithShape(len(rows), cols), tensor.WithBacking(data))
}

func concatRows(first *tensor.Dense, others ...*tensor.Dense) (*tensor.Dense, error) {
	if len(others) == 0 {
		return first, nil
	}
	rest := make([]tensor.Tensor, len(others))
	for i := range others {
		rest[i] = others[i]
	}
	joined, err := tensor.Concat(0, first, rest...)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do concatenation")
	}
	return joined.(*tensor.Dense), nil
}

// constLabels Column of n equal labels
func constLabels(n int, value float64) *tensor.Dense {
	data := make([]float64, n)
	for i := range data {
		data[i] = value
	}
	return tensor.New(tensor.WithShape(n, 1), tensor.WithBacking(data))
}

// column Copies j-th column of matrix x
func column(x *tensor.Dense, j int) []float64 {
	rows, cols := x.Shape()[0], x.Shape()[1]
	data := x.Data().([]float64)
	out := make([]float64, rows)
	for i := 0; i < rows; i++ {
		out[i] = data[i*cols+j]
	}
	return out
}

// uniformOverRange n points uniform over the per-axis bounding box of x
func uniformOverRange(x *tensor.Dense, n int, src rand.Source) *tensor.Dense {
	cols := x.Shape()[1]
	dists := make([]distuv.Uniform, cols)
	for j := range dists {
		c := column(x, j)
		dists[j] = distuv.Uniform{Min: floats.Min(c), Max: floats.Max(c), Src: src}
	}
	data := make([]float64, n*cols)
	for i := 0; i < n; i++ {
		for j := range dists {
			data[i*cols+j] = dists[j].Rand()
		}
	}
	return tensor.New(tensor.WithShape(n, cols), tensor.WithBacking(data))
}
