package detector

import (
	"image"
	"math"
	"sort"

	"github.com/ironsheep/galaxy-tools/internal/evaluate"
)

// frame maps model input coordinates back onto the source image.
type frame struct {
	scaleX, scaleY float64
	bounds         image.Rectangle
}

// decodeOutput turns a (4+numClasses, anchors) output into detections whose
// best class score is at least conf.
func decodeOutput(data []float32, numClasses, anchors int, conf float64, f frame) []evaluate.Detection {
	if len(data) < (4+numClasses)*anchors {
		return nil
	}

	var dets []evaluate.Detection
	for i := 0; i < anchors; i++ {
		best, score := -1, float32(0)
		for c := 0; c < numClasses; c++ {
			s := data[(4+c)*anchors+i]
			if best < 0 || s > score {
				best, score = c, s
			}
		}
		if float64(score) < conf {
			continue
		}

		cx := float64(data[i])
		cy := float64(data[anchors+i])
		w := float64(data[2*anchors+i])
		h := float64(data[3*anchors+i])

		box := image.Rect(
			int(math.Round((cx-w/2)*f.scaleX)),
			int(math.Round((cy-h/2)*f.scaleY)),
			int(math.Round((cx+w/2)*f.scaleX)),
			int(math.Round((cy+h/2)*f.scaleY)),
		).Add(f.bounds.Min).Intersect(f.bounds)
		if box.Empty() {
			continue
		}

		dets = append(dets, evaluate.Detection{
			ClassID:    best,
			Confidence: float64(score),
			Box:        box,
		})
	}
	return dets
}

// nonMaxSuppression keeps the strongest box of every overlapping group of
// the same class. The result is sorted by confidence, highest first.
func nonMaxSuppression(dets []evaluate.Detection, iouThreshold float64) []evaluate.Detection {
	sorted := make([]evaluate.Detection, len(dets))
	copy(sorted, dets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	kept := make([]evaluate.Detection, 0, len(sorted))
	for _, d := range sorted {
		suppressed := false
		for _, k := range kept {
			if k.ClassID == d.ClassID && iou(k.Box, d.Box) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, d)
		}
	}
	return kept
}

func iou(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := area(inter)
	union := area(a) + area(b) - ia
	if union <= 0 {
		return 0
	}
	return ia / union
}

func area(r image.Rectangle) float64 {
	return float64(r.Dx()) * float64(r.Dy())
}
