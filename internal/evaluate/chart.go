package evaluate

import (
	"fmt"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/ironsheep/galaxy-tools/internal/imaging"
	"github.com/ironsheep/galaxy-tools/internal/morphology"
)

// ChartName is the file SaveCountsChart writes into the output dir.
const ChartName = "class_counts.png"

// SaveCountsChart renders the per-class top-1 counts of s as a bar chart
// and returns the written path.
func SaveCountsChart(s *Summary) (string, error) {
	values := make(plotter.Values, len(morphology.Classes))
	names := make([]string, len(morphology.Classes))
	for i, c := range morphology.Classes {
		values[i] = float64(s.Counts[int(c)])
		names[i] = c.String()
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Top-1 predictions (%d images, detection rate %.1f%%)", s.TotalImages, s.DetectionRate)
	p.Y.Label.Text = "images"
	p.Y.Min = 0

	bars, err := plotter.NewBarChart(values, vg.Points(40))
	if err != nil {
		return "", fmt.Errorf("failed to build bar chart: %w", err)
	}
	bars.LineStyle.Width = vg.Length(0)
	bars.Color = imaging.ClassColor(int(morphology.Spiral))
	p.Add(bars)
	p.NominalX(names...)

	out := filepath.Join(s.OutputDir, ChartName)
	if err := p.Save(6*vg.Inch, 4*vg.Inch, out); err != nil {
		return "", fmt.Errorf("failed to save chart: %w", err)
	}
	return out, nil
}
