package gan2d

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gorgonia.org/tensor"
)

// PlotEvery Callback which renders plot into dir/name_EPOCH.png every n epochs
func PlotEvery(n int, dir, name string, render func(fname string) error) Callback {
	return Every(n, name, func(epoch int) error {
		return render(filepath.Join(dir, fmt.Sprintf("%s_%04d.png", name, epoch)))
	})
}

// ObserverSeed Seed of the streams trackers draw their own latent vectors and noise from.
// Trackers never sample from the trainer's prior or source, so a seeded run trains the same way
// with or without them.
const ObserverSeed = 2021

// observerPrior Trainer's prior reseeded with its own stream
func observerPrior(gan *GAN) (Prior, rand.Source) {
	src := rand.NewSource(ObserverSeed)
	return gan.Prior().Reseed(src), src
}

// DefaultTrajectoryPoints Size of fixed latent batch followed by TrajectoryTracker
const DefaultTrajectoryPoints = 100

// TrajectoryTracker Follows where a fixed batch of latent vectors is mapped by generator
// after every tracked epoch
type TrajectoryTracker struct {
	mu        sync.Mutex
	gan       *GAN
	data      *tensor.Dense
	z         *tensor.Dense
	epochs    []int
	positions []*tensor.Dense
}

// NewTrajectoryTracker Samples points latent vectors and stores their current images as epoch 0
func NewTrajectoryTracker(gan *GAN, data *tensor.Dense, points int) (*TrajectoryTracker, error) {
	prior, _ := observerPrior(gan)
	z := prior.Sample(points)
	if z == nil {
		return nil, fmt.Errorf("trajectory needs positive number of points, got %d", points)
	}
	x, err := gan.Generator().Evaluate(z)
	if err != nil {
		return nil, errors.Wrap(err, "Can't evaluate generator")
	}
	return &TrajectoryTracker{
		gan:       gan,
		data:      data,
		z:         z,
		epochs:    []int{0},
		positions: []*tensor.Dense{x},
	}, nil
}

// Track Appends G(z) for the fixed latent batch
func (tr *TrajectoryTracker) Track(epoch int) error {
	x, err := tr.gan.Generator().Evaluate(tr.z)
	if err != nil {
		return errors.Wrap(err, "Can't evaluate generator")
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.epochs = append(tr.epochs, epoch)
	tr.positions = append(tr.positions, x)
	return nil
}

// Plot Draws data, path of every point and its latest position
func (tr *TrajectoryTracker) Plot(fname string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Epoch %d", tr.epochs[len(tr.epochs)-1])
	p.X.Label.Text = "x_1"
	p.Y.Label.Text = "x_2"
	if tr.data != nil {
		scatter, err := newScatter(tr.data, realColor)
		if err != nil {
			return err
		}
		p.Add(scatter)
	}
	points := tr.z.Shape()[0]
	for i := 0; i < points; i++ {
		path := make(plotter.XYs, len(tr.positions))
		for t, x := range tr.positions {
			row := x.Data().([]float64)[i*SampleDim : (i+1)*SampleDim]
			path[t].X, path[t].Y = row[0], row[1]
		}
		line, err := plotter.NewLine(path)
		if err != nil {
			return errors.Wrap(err, "Can't init trajectory line")
		}
		line.LineStyle.Color = pathColor
		p.Add(line)
	}
	last, err := newScatter(tr.positions[len(tr.positions)-1], lastColor)
	if err != nil {
		return err
	}
	p.Add(last)
	if err := p.Save(plotSize, plotSize, fname); err != nil {
		return errors.Wrap(err, "Can't save plot")
	}
	return nil
}

// TrajectorySnapshot Latest generator positions of tracked points
type TrajectorySnapshot struct {
	Epochs []int        `json:"epochs"`
	Last   [][2]float64 `json:"last"`
}

func (tr *TrajectoryTracker) Snapshot() TrajectorySnapshot {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	last := tr.positions[len(tr.positions)-1].Data().([]float64)
	snap := TrajectorySnapshot{
		Epochs: append([]int(nil), tr.epochs...),
		Last:   make([][2]float64, len(last)/SampleDim),
	}
	for i := range snap.Last {
		snap.Last[i] = [2]float64{last[i*SampleDim], last[i*SampleDim+1]}
	}
	return snap
}

// LossTracker Losses of both parts on fixed test set
//
// G - generator objective on fixed latent batch
// D - discriminator loss on a mixed batch built from the test set
// DReal - discriminator loss on the test set labeled 1
// DFake - discriminator loss on G(z_test) labeled 0
//
type LossTracker struct {
	mu    sync.Mutex
	gan   *GAN
	src   rand.Source
	xTest *tensor.Dense
	zTest *tensor.Dense
	snap  LossSnapshot
}

// LossSnapshot Tracked losses, one element per tracked epoch
type LossSnapshot struct {
	Epochs []int     `json:"epochs"`
	G      []float64 `json:"g"`
	D      []float64 `json:"d"`
	DReal  []float64 `json:"d_real"`
	DFake  []float64 `json:"d_fake"`
}

// NewLossTracker Samples latent batch of the same size as xTest
func NewLossTracker(gan *GAN, xTest *tensor.Dense) (*LossTracker, error) {
	if xTest == nil || xTest.Dims() != 2 {
		return nil, fmt.Errorf("test set must be a matrix")
	}
	prior, src := observerPrior(gan)
	z := prior.Sample(xTest.Shape()[0])
	if z == nil {
		return nil, fmt.Errorf("test set is empty")
	}
	return &LossTracker{gan: gan, src: src, xTest: xTest, zTest: z}, nil
}

func (lt *LossTracker) Track(epoch int) error {
	n := lt.xTest.Shape()[0]
	g, d := lt.gan.Generator(), lt.gan.Discriminator()
	gLoss, err := g.EvaluateLoss(lt.zTest, constLabels(n, 1))
	if err != nil {
		return errors.Wrap(err, "Can't evaluate generator loss")
	}
	fakes, err := g.Evaluate(lt.zTest)
	if err != nil {
		return errors.Wrap(err, "Can't evaluate generator")
	}
	lt.mu.Lock()
	xMix, yTarget, err := mixBatch(fakes, lt.xTest, lt.gan.Policy(), lt.src)
	lt.mu.Unlock()
	if err != nil {
		return err
	}
	dLoss, err := d.EvaluateLoss(xMix, yTarget)
	if err != nil {
		return errors.Wrap(err, "Can't evaluate discriminator loss")
	}
	dReal, err := d.EvaluateLoss(lt.xTest, constLabels(n, 1))
	if err != nil {
		return errors.Wrap(err, "Can't evaluate discriminator loss on real")
	}
	dFake, err := d.EvaluateLoss(fakes, constLabels(n, 0))
	if err != nil {
		return errors.Wrap(err, "Can't evaluate discriminator loss on fake")
	}
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.snap.Epochs = append(lt.snap.Epochs, epoch)
	lt.snap.G = append(lt.snap.G, gLoss)
	lt.snap.D = append(lt.snap.D, dLoss)
	lt.snap.DReal = append(lt.snap.DReal, dReal)
	lt.snap.DFake = append(lt.snap.DFake, dFake)
	return nil
}

func (lt *LossTracker) Snapshot() LossSnapshot {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return LossSnapshot{
		Epochs: append([]int(nil), lt.snap.Epochs...),
		G:      append([]float64(nil), lt.snap.G...),
		D:      append([]float64(nil), lt.snap.D...),
		DReal:  append([]float64(nil), lt.snap.DReal...),
		DFake:  append([]float64(nil), lt.snap.DFake...),
	}
}

func epochLine(epochs []int, values []float64) plotter.XYs {
	xys := make(plotter.XYs, len(values))
	for i := range values {
		xys[i].X = float64(epochs[i])
		xys[i].Y = values[i]
	}
	return xys
}

func (lt *LossTracker) Plot(fname string) error {
	snap := lt.Snapshot()
	if len(snap.Epochs) == 0 {
		return fmt.Errorf("no losses tracked yet")
	}
	p := plot.New()
	p.Title.Text = "Loss"
	p.X.Label.Text = "Epoch"
	err := plotutil.AddLines(p,
		"G", epochLine(snap.Epochs, snap.G),
		"D", epochLine(snap.Epochs, snap.D),
		"D(real)", epochLine(snap.Epochs, snap.DReal),
		"D(fake)", epochLine(snap.Epochs, snap.DFake),
	)
	if err != nil {
		return errors.Wrap(err, "Can't add loss lines")
	}
	if err := p.Save(2*plotSize, plotSize, fname); err != nil {
		return errors.Wrap(err, "Can't save plot")
	}
	return nil
}

// ProbabilityTracker Mean and population standard deviation of D(x_test) and D(G(z_test))
type ProbabilityTracker struct {
	mu    sync.Mutex
	gan   *GAN
	xTest *tensor.Dense
	zTest *tensor.Dense
	snap  ProbabilitySnapshot
}

// ProbabilitySnapshot Tracked scores, one element per tracked epoch
type ProbabilitySnapshot struct {
	Epochs  []int     `json:"epochs"`
	PReal   []float64 `json:"p_real"`
	RealStd []float64 `json:"real_std"`
	PFake   []float64 `json:"p_fake"`
	FakeStd []float64 `json:"fake_std"`
}

func NewProbabilityTracker(gan *GAN, xTest *tensor.Dense) (*ProbabilityTracker, error) {
	if xTest == nil || xTest.Dims() != 2 {
		return nil, fmt.Errorf("test set must be a matrix")
	}
	prior, _ := observerPrior(gan)
	z := prior.Sample(xTest.Shape()[0])
	if z == nil {
		return nil, fmt.Errorf("test set is empty")
	}
	return &ProbabilityTracker{gan: gan, xTest: xTest, zTest: z}, nil
}

func (pt *ProbabilityTracker) Track(epoch int) error {
	fakes, err := pt.gan.Generator().Evaluate(pt.zTest)
	if err != nil {
		return errors.Wrap(err, "Can't evaluate generator")
	}
	yFake, err := pt.gan.Discriminator().Evaluate(fakes)
	if err != nil {
		return errors.Wrap(err, "Can't score fakes")
	}
	yReal, err := pt.gan.Discriminator().Evaluate(pt.xTest)
	if err != nil {
		return errors.Wrap(err, "Can't score real samples")
	}
	pFake, fakeStd := stat.PopMeanStdDev(yFake.Data().([]float64), nil)
	pReal, realStd := stat.PopMeanStdDev(yReal.Data().([]float64), nil)
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.snap.Epochs = append(pt.snap.Epochs, epoch)
	pt.snap.PFake = append(pt.snap.PFake, pFake)
	pt.snap.FakeStd = append(pt.snap.FakeStd, fakeStd)
	pt.snap.PReal = append(pt.snap.PReal, pReal)
	pt.snap.RealStd = append(pt.snap.RealStd, realStd)
	return nil
}

func (pt *ProbabilityTracker) Snapshot() ProbabilitySnapshot {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return ProbabilitySnapshot{
		Epochs:  append([]int(nil), pt.snap.Epochs...),
		PReal:   append([]float64(nil), pt.snap.PReal...),
		RealStd: append([]float64(nil), pt.snap.RealStd...),
		PFake:   append([]float64(nil), pt.snap.PFake...),
		FakeStd: append([]float64(nil), pt.snap.FakeStd...),
	}
}

// meanStd Implements plotter.XYer and plotter.YErrorer
type meanStd struct {
	epochs []int
	mean   []float64
	std    []float64
}

func (m meanStd) Len() int                        { return len(m.mean) }
func (m meanStd) XY(i int) (float64, float64)     { return float64(m.epochs[i]), m.mean[i] }
func (m meanStd) YError(i int) (float64, float64) { return m.std[i], m.std[i] }

func (pt *ProbabilityTracker) Plot(fname string) error {
	snap := pt.Snapshot()
	if len(snap.Epochs) == 0 {
		return fmt.Errorf("no probabilities tracked yet")
	}
	p := plot.New()
	p.Title.Text = "P(real)"
	p.X.Label.Text = "Epoch"
	series := []struct {
		label string
		data  meanStd
		color int
	}{
		{"D(G(z))", meanStd{snap.Epochs, snap.PFake, snap.FakeStd}, 0},
		{"D(x)", meanStd{snap.Epochs, snap.PReal, snap.RealStd}, 1},
	}
	for _, s := range series {
		line, err := plotter.NewLine(s.data)
		if err != nil {
			return errors.Wrap(err, "Can't init line")
		}
		line.LineStyle.Color = plotutil.Color(s.color)
		bars, err := plotter.NewYErrorBars(s.data)
		if err != nil {
			return errors.Wrap(err, "Can't init error bars")
		}
		bars.LineStyle.Color = plotutil.Color(s.color)
		bars.CapWidth = vg.Points(4)
		p.Add(line, bars)
		p.Legend.Add(s.label, line)
	}
	if err := p.Save(2*plotSize, plotSize, fname); err != nil {
		return errors.Wrap(err, "Can't save plot")
	}
	return nil
}

// DefaultLandscapeFakes Number of generated points added to data to pick landscape bounds
const DefaultLandscapeFakes = 400

// LandscapeRenderer Heatmap of discriminator over the region covering data and fresh fakes
type LandscapeRenderer struct {
	mu    sync.Mutex
	gan   *GAN
	prior Prior
	data  *tensor.Dense
	fakes int
}

func NewLandscapeRenderer(gan *GAN, data *tensor.Dense) *LandscapeRenderer {
	prior, _ := observerPrior(gan)
	return &LandscapeRenderer{gan: gan, prior: prior, data: data, fakes: DefaultLandscapeFakes}
}

// Landscape Evaluates discriminator over bounding box of data plus generated points
func (lr *LandscapeRenderer) Landscape() (*Landscape, error) {
	lr.mu.Lock()
	z := lr.prior.Sample(lr.fakes)
	lr.mu.Unlock()
	fakes, err := lr.gan.Generator().Evaluate(z)
	if err != nil {
		return nil, errors.Wrap(err, "Can't generate fakes")
	}
	region, err := concatRows(lr.data, fakes)
	if err != nil {
		return nil, err
	}
	return BoundingLandscape(lr.gan.Discriminator().Evaluate, region)
}

func (lr *LandscapeRenderer) Plot(fname string) error {
	landscape, err := lr.Landscape()
	if err != nil {
		return err
	}
	return landscape.Plot("D landscape", "x0", "x1", fname)
}
