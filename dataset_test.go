package gan2d

import (
	"math"
	"path/filepath"
	"testing"

	"golang.org/x/exp/rand"
	"gorgonia.org/tensor"
)

func TestGenerateBlobs(t *testing.T) {
	data, err := GenerateBlobs(50, DefaultBlobRadius, rand.NewSource(1))
	if err != nil {
		t.Fatal(err)
	}
	if data.DataLength != 200 || !data.Samples.Shape().Eq(tensor.Shape{200, 2}) {
		t.Fatalf("got %d samples of shape %v", data.DataLength, data.Samples.Shape())
	}
	values := data.Data()
	for m, center := range BlobCenters {
		for i := m * 50; i < (m+1)*50; i++ {
			if d := math.Hypot(values[2*i]-center[0], values[2*i+1]-center[1]); d >= DefaultBlobRadius {
				t.Fatalf("sample #%d is %f away from center %v", i, d, center)
			}
		}
	}
	if _, err := GenerateBlobs(0, DefaultBlobRadius, nil); err == nil {
		t.Error("zero points per mode must be rejected")
	}
	if _, err := GenerateBlobs(1, 0, nil); err == nil {
		t.Error("zero radius must be rejected")
	}
}

func TestDatasetNpy(t *testing.T) {
	data, err := NewDatasetFromRows([][SampleDim]float64{{0.5, -1}, {1, 1}, {-0.25, 0}})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "2d.npy")
	if err := data.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadDataset(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.DataLength != 3 {
		t.Fatalf("loaded %d samples", loaded.DataLength)
	}
	want := data.Data()
	for i, v := range loaded.Data() {
		if v != want[i] {
			t.Errorf("#%d: %f, expected %f", i, v, want[i])
		}
	}
}

func TestNewDatasetChecksShape(t *testing.T) {
	if _, err := NewDataset(tensor.New(tensor.WithShape(4, 3), tensor.Of(tensor.Float64))); err == nil {
		t.Error("3 columns must be rejected")
	}
	if _, err := NewDataset(nil); err == nil {
		t.Error("nil must be rejected")
	}
	if _, err := NewDatasetFromRows(nil); err == nil {
		t.Error("no rows must be rejected")
	}
}
