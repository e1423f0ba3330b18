package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/ironsheep/galaxy-tools/internal/evaluate"
	imgutil "github.com/ironsheep/galaxy-tools/internal/imaging"
	"github.com/ironsheep/galaxy-tools/internal/monitoring"
)

// Defaults for Config fields left at zero.
const (
	DefaultInputSize  = 416
	DefaultNumClasses = 4
)

// strides of the three YOLOv8 detection heads.
var strides = []int{8, 16, 32}

// Config describes the model to load.
type Config struct {
	// ModelPath is the exported .onnx file.
	ModelPath string

	// LibraryPath is the onnxruntime shared library. Empty uses the
	// runtime's default lookup.
	LibraryPath string

	InputSize  int
	NumClasses int

	// Threads caps intra-op parallelism; 0 lets onnxruntime decide.
	Threads int
}

func (c Config) withDefaults() Config {
	if c.InputSize == 0 {
		c.InputSize = DefaultInputSize
	}
	if c.NumClasses == 0 {
		c.NumClasses = DefaultNumClasses
	}
	return c
}

// Detector implements evaluate.Detector on an onnxruntime session.
type Detector struct {
	cfg     Config
	anchors int

	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	ownsEnv bool
}

var _ evaluate.Detector = (*Detector)(nil)

// anchorCount returns the number of prediction columns for a square input.
func anchorCount(size int) int {
	n := 0
	for _, s := range strides {
		n += (size / s) * (size / s)
	}
	return n
}

// New loads the model described by cfg.
func New(cfg Config) (*Detector, error) {
	cfg = cfg.withDefaults()
	if cfg.InputSize%32 != 0 {
		return nil, fmt.Errorf("input size %d is not a multiple of 32", cfg.InputSize)
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	d := &Detector{cfg: cfg, anchors: anchorCount(cfg.InputSize)}

	if !ort.IsInitialized() {
		if cfg.LibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.LibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize onnxruntime: %w", err)
		}
		d.ownsEnv = true
	}

	if err := d.initSession(); err != nil {
		d.Close()
		return nil, err
	}

	monitoring.Logf("Loaded model %s (input %dx%d, %d classes, %d anchors)",
		cfg.ModelPath, cfg.InputSize, cfg.InputSize, cfg.NumClasses, d.anchors)
	return d, nil
}

func (d *Detector) initSession() error {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	if d.cfg.Threads > 0 {
		if err := options.SetIntraOpNumThreads(d.cfg.Threads); err != nil {
			return fmt.Errorf("error setting threads: %w", err)
		}
	}

	size := int64(d.cfg.InputSize)
	d.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return fmt.Errorf("error creating input tensor: %w", err)
	}
	d.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(4+d.cfg.NumClasses), int64(d.anchors)))
	if err != nil {
		return fmt.Errorf("error creating output tensor: %w", err)
	}

	d.session, err = ort.NewAdvancedSession(
		d.cfg.ModelPath,
		[]string{"images"},
		[]string{"output0"},
		[]ort.ArbitraryTensor{d.input},
		[]ort.ArbitraryTensor{d.output},
		options,
	)
	if err != nil {
		return fmt.Errorf("error creating session: %w", err)
	}
	return nil
}

// Close releases the session, its tensors and, when New initialized it,
// the onnxruntime environment.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	if d.session != nil {
		errs = append(errs, d.session.Destroy())
		d.session = nil
	}
	if d.input != nil {
		errs = append(errs, d.input.Destroy())
		d.input = nil
	}
	if d.output != nil {
		errs = append(errs, d.output.Destroy())
		d.output = nil
	}
	if d.ownsEnv {
		errs = append(errs, ort.DestroyEnvironment())
		d.ownsEnv = false
	}
	return errors.Join(errs...)
}

// Predict runs the model on one image file. Detections are sorted by
// confidence, highest first.
func (d *Detector) Predict(ctx context.Context, imagePath string, conf, iou float64) (*evaluate.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, err := imgutil.Load(imagePath)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return nil, errors.New("detector is closed")
	}

	size := d.cfg.InputSize
	resized := imaging.Resize(src, size, size, imaging.Linear)
	fillInput(resized, d.input.GetData(), size)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}

	b := src.Bounds()
	dets := decodeOutput(d.output.GetData(), d.cfg.NumClasses, d.anchors, conf, frame{
		scaleX: float64(b.Dx()) / float64(size),
		scaleY: float64(b.Dy()) / float64(size),
		bounds: b,
	})
	dets = nonMaxSuppression(dets, iou)

	boxes := make([]imgutil.Box, len(dets))
	for i, det := range dets {
		boxes[i] = imgutil.Box{Rect: det.Box, Class: det.ClassID, Confidence: det.Confidence}
	}

	monitoring.Debugf("%s: %d detections (conf=%.2f iou=%.2f)", imagePath, len(dets), conf, iou)
	return &evaluate.Prediction{
		Annotated:  imgutil.Annotate(src, boxes),
		Detections: dets,
	}, nil
}

// fillInput writes img as planar RGB scaled to [0,1].
func fillInput(img *image.NRGBA, dst []float32, size int) {
	plane := size * size
	for y := 0; y < size; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < size; x++ {
			i := y*size + x
			p := row[x*4:]
			dst[i] = float32(p[0]) / 255
			dst[plane+i] = float32(p[1]) / 255
			dst[2*plane+i] = float32(p[2]) / 255
		}
	}
}
