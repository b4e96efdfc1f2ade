package gan2d

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
	"gorgonia.org/tensor"
)

// EvalFunc Anything mapping batch of samples to batch of outputs: Subnet.Evaluate,
// OptimalDiscriminator, composition of generator and discriminator, etc.
type EvalFunc func(x *tensor.Dense) (*tensor.Dense, error)

var (
	realColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	fakeColor = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	pathColor = color.RGBA{R: 255, G: 165, A: 128}
	lastColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

const plotSize = 5 * vg.Inch

func scatterData(x *tensor.Dense) plotter.XYs {
	rows, cols := x.Shape()[0], x.Shape()[1]
	data := x.Data().([]float64)
	xys := make(plotter.XYs, rows)
	for i := range xys {
		xys[i].X = data[i*cols]
		xys[i].Y = data[i*cols+1]
	}
	return xys
}

func newScatter(x *tensor.Dense, c color.Color) (*plotter.Scatter, error) {
	scatter, err := plotter.NewScatter(scatterData(x))
	if err != nil {
		return nil, errors.Wrap(err, "Can't init new scatter")
	}
	scatter.GlyphStyle.Color = c
	scatter.GlyphStyle.Radius = vg.Points(1.5)
	return scatter, nil
}

// Show2D Scatter of real samples and, optionally, fake ones
//
// space - axis name prefix ('x' for samples, 'z' for latent vectors)
//
func Show2D(xReal, xFake *tensor.Dense, title, space, fname string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = space + "_1"
	p.Y.Label.Text = space + "_2"
	p.Add(plotter.NewGrid())
	scatter, err := newScatter(xReal, realColor)
	if err != nil {
		return err
	}
	p.Add(scatter)
	if xFake != nil {
		fakes, err := newScatter(xFake, fakeColor)
		if err != nil {
			return err
		}
		p.Add(fakes)
		p.Legend.Add("Real", scatter)
		p.Legend.Add("Fake", fakes)
	}
	if err := p.Save(plotSize, plotSize, fname); err != nil {
		return errors.Wrap(err, "Can't save plot")
	}
	return nil
}

// ShowLearnedDistribution Plots 500 prior samples and their images under generator
// into dir/prior.png and dir/generated.png
func ShowLearnedDistribution(prior Prior, generator EvalFunc, dir string) error {
	z := prior.Sample(500)
	if z == nil {
		return fmt.Errorf("prior gave no samples")
	}
	if err := Show2D(z, nil, "Prior", "z", filepath.Join(dir, "prior.png")); err != nil {
		return err
	}
	x, err := generator(z)
	if err != nil {
		return errors.Wrap(err, "Can't evaluate generator")
	}
	return Show2D(x, nil, "G(z)", "x", filepath.Join(dir, "generated.png"))
}

// ticks Same as numpy.arange(lo, hi, step), but robust to (hi-lo)/step being a whole number
// spoiled by rounding
func ticks(lo, hi, step float64) []float64 {
	n := int(math.Ceil((hi-lo)/step - 1e-9))
	if n < 0 {
		n = 0
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out
}

// gridPoints Row r*len(xs)+c is (xs[c], ys[r])
func gridPoints(xs, ys []float64) *tensor.Dense {
	data := make([]float64, 0, 2*len(xs)*len(ys))
	for _, y := range ys {
		for _, x := range xs {
			data = append(data, x, y)
		}
	}
	return tensor.New(tensor.WithShape(len(xs)*len(ys), 2), tensor.WithBacking(data))
}

const (
	gridLow  = -1.5
	gridHigh = 1.5
	gridStep = 0.05
)

// MakeGrid 60x60 grid over [-1.5; 1.5) with step 0.05, row-major by second coordinate
func MakeGrid() *tensor.Dense {
	t := ticks(gridLow, gridHigh, gridStep)
	return gridPoints(t, t)
}

// Landscape Values of some scoring function over regular grid. Implements plotter.GridXYZ.
type Landscape struct {
	Xs     []float64
	Ys     []float64
	Values []float64
}

func (l *Landscape) Dims() (c, r int)   { return len(l.Xs), len(l.Ys) }
func (l *Landscape) Z(c, r int) float64 { return l.Values[r*len(l.Xs)+c] }
func (l *Landscape) X(c int) float64    { return l.Xs[c] }
func (l *Landscape) Y(r int) float64    { return l.Ys[r] }

// NewLandscape Evaluates score over grid with provided ticks
func NewLandscape(score EvalFunc, xs, ys []float64) (*Landscape, error) {
	if len(xs) == 0 || len(ys) == 0 {
		return nil, fmt.Errorf("landscape grid is empty")
	}
	values, err := score(gridPoints(xs, ys))
	if err != nil {
		return nil, errors.Wrap(err, "Can't evaluate grid")
	}
	if values.Shape().TotalSize() != len(xs)*len(ys) {
		return nil, fmt.Errorf("score gave %d values for %d grid points", values.Shape().TotalSize(), len(xs)*len(ys))
	}
	return &Landscape{Xs: xs, Ys: ys, Values: values.Data().([]float64)}, nil
}

const (
	landscapeMargin = 0.1
	landscapeStep   = 0.05
)

// BoundingLandscape Evaluates score over 0.05-step grid covering bounding box of x with 0.1 margin
func BoundingLandscape(score EvalFunc, x *tensor.Dense) (*Landscape, error) {
	x0, x1 := column(x, 0), column(x, 1)
	xs := ticks(floats.Min(x0)-landscapeMargin, floats.Max(x0)+landscapeMargin+landscapeStep/20, landscapeStep)
	ys := ticks(floats.Min(x1)-landscapeMargin, floats.Max(x1)+landscapeMargin+landscapeStep/20, landscapeStep)
	return NewLandscape(score, xs, ys)
}

// Plot Heatmap of landscape
func (l *Landscape) Plot(title, xLabel, yLabel, fname string) error {
	minV, maxV := floats.Min(l.Values), floats.Max(l.Values)
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s [%.2f; %.2f]", title, minV, maxV)
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	heatmap := plotter.NewHeatMap(l, palette.Heat(32, 1))
	if minV == maxV {
		// heatmap needs non-empty range
		minV, maxV = minV-0.5, maxV+0.5
	}
	heatmap.Min, heatmap.Max = minV, maxV
	p.Add(heatmap)
	if err := p.Save(plotSize, plotSize, fname); err != nil {
		return errors.Wrap(err, "Can't save plot")
	}
	return nil
}

// DLandscape Heatmap of discriminator over bounding box of x
func DLandscape(d EvalFunc, x *tensor.Dense, title, fname string) error {
	landscape, err := BoundingLandscape(d, x)
	if err != nil {
		return err
	}
	return landscape.Plot(title, "x0", "x1", fname)
}

// ScoreOverZ Heatmap of D(G(z)) over MakeGrid()
func ScoreOverZ(g, d EvalFunc, title, fname string) error {
	t := ticks(gridLow, gridHigh, gridStep)
	landscape, err := NewLandscape(func(z *tensor.Dense) (*tensor.Dense, error) {
		x, err := g(z)
		if err != nil {
			return nil, err
		}
		return d(x)
	}, t, t)
	if err != nil {
		return err
	}
	return landscape.Plot(title, "z0", "z1", fname)
}

// colorOf Maps 2D point to rgb(n(x0), n(x1), 0) where n is affine [-1.5; 1.5] -> [0; 1], clipped
func colorOf(x0, x1 float64) color.RGBA {
	n := func(v float64) uint8 {
		v = (v - gridLow) / (gridHigh - gridLow)
		v = math.Max(0, math.Min(1, v))
		return uint8(math.Round(v * 255))
	}
	return color.RGBA{R: n(x0), G: n(x1), A: 255}
}

// colorImage Colors of grid points; top image row is the largest second coordinate
func colorImage(points *tensor.Dense, side int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, side, side))
	data := points.Data().([]float64)
	for r := 0; r < side; r++ {
		for c := 0; c < side; c++ {
			i := r*side + c
			img.SetRGBA(c, side-1-r, colorOf(data[2*i], data[2*i+1]))
		}
	}
	return img
}

// ColorPlot Two panels: colors C(z) of grid and colors C(mapping(z)) of mapped grid, so it shows
// where every part of latent space goes
func ColorPlot(mapping EvalFunc, title, fname string) error {
	z := MakeGrid()
	x, err := mapping(z)
	if err != nil {
		return errors.Wrap(err, "Can't evaluate mapping")
	}
	side := len(ticks(gridLow, gridHigh, gridStep))
	panels := [][]*plot.Plot{{plot.New(), plot.New()}}
	for i, img := range []*image.RGBA{colorImage(z, side), colorImage(x, side)} {
		p := panels[0][i]
		p.Add(plotter.NewImage(img, gridLow, gridLow, gridHigh, gridHigh))
		p.X.Label.Text = "z0"
		p.Y.Label.Text = "z1"
	}
	panels[0][0].Title.Text = "C(Z)"
	panels[0][1].Title.Text = "C(G(Z))"
	if title != "" {
		panels[0][1].Title.Text = title + ": C(G(Z))"
	}

	canvas := vgimg.New(2*plotSize, plotSize)
	dc := draw.New(canvas)
	tiles := draw.Tiles{Rows: 1, Cols: 2, PadX: vg.Millimeter, PadY: vg.Millimeter, PadTop: vg.Millimeter, PadBottom: vg.Millimeter, PadLeft: vg.Millimeter, PadRight: vg.Millimeter}
	canvases := plot.Align(panels, tiles, dc)
	for j := range panels[0] {
		panels[0][j].Draw(canvases[0][j])
	}

	f, err := os.Create(fname)
	if err != nil {
		return errors.Wrap(err, "Can't create plot file")
	}
	if _, err := (vgimg.PngCanvas{Canvas: canvas}).WriteTo(f); err != nil {
		f.Close()
		return errors.Wrap(err, "Can't save plot")
	}
	return f.Close()
}
