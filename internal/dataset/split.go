package dataset

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/ironsheep/galaxy-tools/internal/morphology"
)

// Split names a partition of the dataset and is also its directory name.
type Split string

const (
	Train      Split = "train"
	Validation Split = "val"
)

// Splits lists the partitions in processing order.
var Splits = []Split{Train, Validation}

// Plan is the seeded partition of the records used for one dataset.
type Plan struct {
	Train []morphology.SurveyRecord
	Val   []morphology.SurveyRecord
}

// Records returns the records assigned to s.
func (p Plan) Records(s Split) []morphology.SurveyRecord {
	if s == Validation {
		return p.Val
	}
	return p.Train
}

// PlanSplit downsamples records to sampleSize (0 or more than len(records)
// keeps them all) and partitions the result into train and validation sets.
//
// The validation set receives ceil(n*valSplit) records. One seeded source
// drives both steps, so equal inputs always give equal plans.
func PlanSplit(records []morphology.SurveyRecord, sampleSize int, valSplit float64, seed int64) Plan {
	src := rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)

	pool := records
	if sampleSize > 0 && sampleSize < len(records) {
		idxs := make([]int, sampleSize)
		sampleuv.WithoutReplacement(idxs, len(records), src)
		pool = make([]morphology.SurveyRecord, sampleSize)
		for i, idx := range idxs {
			pool[i] = records[idx]
		}
	}

	n := len(pool)
	nVal := valCount(n, valSplit)

	perm := rand.New(src).Perm(n)
	plan := Plan{
		Train: make([]morphology.SurveyRecord, 0, n-nVal),
		Val:   make([]morphology.SurveyRecord, 0, nVal),
	}
	for i, idx := range perm {
		if i < nVal {
			plan.Val = append(plan.Val, pool[idx])
		} else {
			plan.Train = append(plan.Train, pool[idx])
		}
	}
	return plan
}

func valCount(n int, valSplit float64) int {
	// The epsilon keeps products such as 0.7*10 from rounding up to 8.
	v := int(math.Ceil(float64(n)*valSplit - 1e-9))
	if v < 0 {
		return 0
	}
	if v > n {
		return n
	}
	return v
}
