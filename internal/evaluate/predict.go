package evaluate

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/ironsheep/galaxy-tools/internal/imaging"
	"github.com/ironsheep/galaxy-tools/internal/morphology"
)

// Default thresholds used by the front-ends.
const (
	DefaultConf = 0.25
	DefaultIoU  = 0.45
)

// DetectionInfo is a detection as reported to users.
type DetectionInfo struct {
	ClassID    int     `json:"class_id"`
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
	Box        [4]int  `json:"box"`
}

// ImageResult is the outcome of PredictImage.
type ImageResult struct {
	Image         string          `json:"image"`
	AnnotatedPath string          `json:"annotated_path"`
	Detections    []DetectionInfo `json:"detections"`
}

// PredictImage runs det on a single image and saves the annotated render
// into outputDir.
func PredictImage(ctx context.Context, det Detector, imagePath, outputDir string, conf, iou float64) (*ImageResult, error) {
	if det == nil {
		return nil, fmt.Errorf("no detector loaded")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	pred, err := det.Predict(ctx, imagePath, conf, iou)
	if err != nil {
		return nil, fmt.Errorf("prediction failed for %s: %w", imagePath, err)
	}
	if pred == nil {
		pred = &Prediction{}
	}

	out, err := saveRender(imagePath, outputDir, pred)
	if err != nil {
		return nil, err
	}

	res := &ImageResult{
		Image:         imagePath,
		AnnotatedPath: out,
		Detections:    make([]DetectionInfo, 0, len(pred.Detections)),
	}
	for _, d := range pred.Detections {
		res.Detections = append(res.Detections, DetectionInfo{
			ClassID:    d.ClassID,
			ClassName:  morphology.Class(d.ClassID).String(),
			Confidence: d.Confidence,
			Box:        [4]int{d.Box.Min.X, d.Box.Min.Y, d.Box.Max.X, d.Box.Max.Y},
		})
	}
	return res, nil
}

// RenderPath returns where the annotated render of imagePath is written.
func RenderPath(outputDir, imagePath string) string {
	return filepath.Join(outputDir, stem(imagePath)+"_pred.jpg")
}

func saveRender(imagePath, outputDir string, pred *Prediction) (string, error) {
	img := pred.Annotated
	if img == nil {
		src, err := imaging.Load(imagePath)
		if err != nil {
			return "", err
		}
		img = imaging.Annotate(src, boxes(pred.Detections))
	}

	out := RenderPath(outputDir, imagePath)
	if err := imaging.SaveJPEG(out, img); err != nil {
		return "", err
	}
	return out, nil
}

func boxes(dets []Detection) []imaging.Box {
	out := make([]imaging.Box, 0, len(dets))
	for _, d := range dets {
		if d.Box == (image.Rectangle{}) {
			continue
		}
		out = append(out, imaging.Box{Rect: d.Box, Class: d.ClassID, Confidence: d.Confidence})
	}
	return out
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
