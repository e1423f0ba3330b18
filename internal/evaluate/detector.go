package evaluate

import (
	"context"
	"image"
)

// Detection is one object found by a detector.
type Detection struct {
	ClassID    int
	Confidence float64
	Box        image.Rectangle
}

// Prediction is the result of one detector call. Annotated may be nil, in
// which case the source image is annotated from Detections instead.
type Prediction struct {
	Annotated  image.Image
	Detections []Detection
}

// Detector finds galaxies in an image file. The thresholds are passed
// through unmodified. A nil Prediction with a nil error means no detections.
type Detector interface {
	Predict(ctx context.Context, imagePath string, conf, iou float64) (*Prediction, error)
}
