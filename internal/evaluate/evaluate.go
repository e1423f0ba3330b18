package evaluate

import (
	"context"
	"fmt"
	"os"

	"github.com/ironsheep/galaxy-tools/internal/monitoring"
	"github.com/ironsheep/galaxy-tools/internal/morphology"
)

// Options configures Evaluate.
type Options struct {
	// OutputDir receives one "<stem>_pred.jpg" render per image.
	OutputDir string

	// LabelDir holds ground-truth "<stem>.txt" files. Empty disables
	// accuracy accounting.
	LabelDir string

	ConfThreshold float64
	IoUThreshold  float64
}

// Summary aggregates one batch evaluation.
type Summary struct {
	TotalImages    int         `json:"total_images"`
	DetectedImages int         `json:"detected_images"`
	DetectionRate  float64     `json:"detection_rate"`
	Accuracy       float64     `json:"accuracy"`
	Counts         map[int]int `json:"counts"`
	Verifiable     int         `json:"verifiable"`
	Details        []Detail    `json:"details"`
	OutputDir      string      `json:"output_dir"`

	correct int
}

// Detail is the outcome for one image. Nil fields mean "none".
type Detail struct {
	Image          string   `json:"image"`
	Prediction     *int     `json:"prediction"`
	PredictionName *string  `json:"prediction_name"`
	Confidence     *float64 `json:"confidence"`
	GroundTruth    *int     `json:"ground_truth"`
	AnnotatedPath  string   `json:"annotated_path"`
	Error          string   `json:"error,omitempty"`
}

// Correct reports how many verifiable images had a matching top-1 class.
func (s *Summary) Correct() int {
	return s.correct
}

func newSummary(outputDir string) *Summary {
	s := &Summary{
		Counts:    make(map[int]int, len(morphology.Classes)),
		Details:   []Detail{},
		OutputDir: outputDir,
	}
	for _, c := range morphology.Classes {
		s.Counts[int(c)] = 0
	}
	return s
}

// Evaluate runs det over images in order and aggregates the results.
//
// A detector failure on one image is recorded in that image's Detail and
// the batch continues. When ctx is cancelled no further detector calls are
// made and the summary of the images processed so far is returned together
// with ctx.Err().
func Evaluate(ctx context.Context, det Detector, images []string, opts Options) (*Summary, error) {
	if det == nil {
		return nil, fmt.Errorf("no detector loaded")
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	s := newSummary(opts.OutputDir)
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			s.finish()
			return s, err
		}
		s.add(evaluateOne(ctx, det, img, opts))
	}
	s.finish()

	monitoring.Logf("Evaluated %d images: detection rate %.1f%%, accuracy %.2f%% over %d verifiable",
		s.TotalImages, s.DetectionRate, s.Accuracy, s.Verifiable)
	return s, nil
}

func evaluateOne(ctx context.Context, det Detector, img string, opts Options) Detail {
	d := Detail{Image: img}

	if gt, ok := ReadGroundTruth(opts.LabelDir, stem(img)); ok {
		d.GroundTruth = &gt
	}

	pred, err := det.Predict(ctx, img, opts.ConfThreshold, opts.IoUThreshold)
	if err != nil {
		monitoring.Logf("detector failed on %s: %v", img, err)
		d.Error = err.Error()
		return d
	}
	if pred == nil {
		pred = &Prediction{}
	}

	out, err := saveRender(img, opts.OutputDir, pred)
	if err != nil {
		monitoring.Logf("failed to save render for %s: %v", img, err)
		d.Error = err.Error()
	} else {
		d.AnnotatedPath = out
	}

	if len(pred.Detections) > 0 {
		top := pred.Detections[0]
		class := top.ClassID
		name := morphology.Class(class).String()
		conf := top.Confidence
		d.Prediction = &class
		d.PredictionName = &name
		d.Confidence = &conf
	}

	monitoring.Debugf("%s: %d detections", img, len(pred.Detections))
	return d
}

func (s *Summary) add(d Detail) {
	s.TotalImages++
	if d.Prediction != nil {
		s.DetectedImages++
		s.Counts[*d.Prediction]++
	}
	if d.GroundTruth != nil {
		s.Verifiable++
		if d.Prediction != nil && *d.Prediction == *d.GroundTruth {
			s.correct++
		}
	}
	s.Details = append(s.Details, d)
}

func (s *Summary) finish() {
	s.DetectionRate = percent(s.DetectedImages, s.TotalImages)
	s.Accuracy = percent(s.correct, s.Verifiable)
}

func percent(n, of int) float64 {
	if of == 0 {
		return 0
	}
	return float64(n) / float64(of) * 100
}
