package detector

import (
	"image"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ironsheep/galaxy-tools/internal/evaluate"
)

func TestAnchorCount(t *testing.T) {
	tests := []struct {
		size int
		want int
	}{
		{416, 3549},
		{640, 8400},
		{32, 21},
	}
	for _, tt := range tests {
		if got := anchorCount(tt.size); got != tt.want {
			t.Errorf("anchorCount(%d) = %d, want %d", tt.size, got, tt.want)
		}
	}
}

// output builds a (4+classes, anchors) tensor from per-anchor columns.
func output(classes int, cols ...[]float32) []float32 {
	anchors := len(cols)
	data := make([]float32, (4+classes)*anchors)
	for i, col := range cols {
		for row, v := range col {
			data[row*anchors+i] = v
		}
	}
	return data
}

func TestDecodeOutput(t *testing.T) {
	data := output(4,
		// cx, cy, w, h, scores...
		[]float32{50, 50, 20, 20, 0.1, 0.8, 0.05, 0.0},
		[]float32{10, 10, 4, 4, 0.1, 0.1, 0.1, 0.1},
		[]float32{90, 20, 10, 40, 0.0, 0.0, 0.3, 0.6},
	)
	f := frame{scaleX: 2, scaleY: 2, bounds: image.Rect(0, 0, 200, 200)}

	got := decodeOutput(data, 4, 3, 0.25, f)
	want := []evaluate.Detection{
		{ClassID: 1, Confidence: float64(float32(0.8)), Box: image.Rect(80, 80, 120, 120)},
		{ClassID: 3, Confidence: float64(float32(0.6)), Box: image.Rect(170, 0, 190, 80)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decodeOutput mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeOutput_ShortBuffer(t *testing.T) {
	if got := decodeOutput(make([]float32, 5), 4, 3, 0.1, frame{}); got != nil {
		t.Errorf("expected nil for short buffer, got %v", got)
	}
}

func TestNonMaxSuppression(t *testing.T) {
	dets := []evaluate.Detection{
		{ClassID: 0, Confidence: 0.5, Box: image.Rect(0, 0, 10, 10)},
		{ClassID: 0, Confidence: 0.9, Box: image.Rect(1, 1, 11, 11)},
		{ClassID: 1, Confidence: 0.7, Box: image.Rect(0, 0, 10, 10)},
		{ClassID: 0, Confidence: 0.6, Box: image.Rect(50, 50, 60, 60)},
	}

	got := nonMaxSuppression(dets, 0.45)
	want := []evaluate.Detection{
		{ClassID: 0, Confidence: 0.9, Box: image.Rect(1, 1, 11, 11)},
		{ClassID: 1, Confidence: 0.7, Box: image.Rect(0, 0, 10, 10)},
		{ClassID: 0, Confidence: 0.6, Box: image.Rect(50, 50, 60, 60)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("nonMaxSuppression mismatch (-want +got):\n%s", diff)
	}
	if dets[0].Confidence != 0.5 {
		t.Error("input slice was reordered")
	}
}

func TestIoU(t *testing.T) {
	a := image.Rect(0, 0, 10, 10)
	if got := iou(a, a); got != 1 {
		t.Errorf("iou(a, a) = %v, want 1", got)
	}
	if got := iou(a, image.Rect(20, 20, 30, 30)); got != 0 {
		t.Errorf("disjoint iou = %v, want 0", got)
	}
	if got := iou(a, image.Rect(5, 0, 15, 10)); got != 50.0/150.0 {
		t.Errorf("half overlap iou = %v, want %v", got, 50.0/150.0)
	}
}

func TestFillInput(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Pix = []uint8{
		255, 0, 0, 255, 0, 255, 0, 255,
		0, 0, 255, 255, 51, 102, 153, 255,
	}
	dst := make([]float32, 12)
	fillInput(img, dst, 2)

	want := []float32{
		1, 0, 0, 0.2,
		0, 1, 0, 0.4,
		0, 0, 1, 0.6,
	}
	if diff := cmp.Diff(want, dst); diff != "" {
		t.Errorf("fillInput mismatch (-want +got):\n%s", diff)
	}
}

func TestNew_MissingModel(t *testing.T) {
	if _, err := New(Config{ModelPath: "/nonexistent/model.onnx"}); err == nil {
		t.Error("expected error for missing model")
	}
	if _, err := New(Config{ModelPath: "x.onnx", InputSize: 100}); err == nil {
		t.Error("expected error for input size not a multiple of 32")
	}
}
