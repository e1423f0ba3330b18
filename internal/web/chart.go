package web

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/ironsheep/galaxy-tools/internal/store"
)

// handleHistoryChart renders detection rate and accuracy of the stored runs
// as an HTML line chart, oldest run first.
func (s *Server) handleHistoryChart(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "evaluation history is not available")
		return
	}
	runs, err := s.history.List(0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var buf bytes.Buffer
	if err := historyChart(runs).Render(&buf); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func historyChart(runs []*store.Run) *charts.Line {
	n := len(runs)
	xs := make([]string, n)
	rate := make([]opts.LineData, n)
	acc := make([]opts.LineData, n)
	conf := make([]opts.LineData, n)
	for i, run := range runs {
		// List is newest first.
		j := n - 1 - i
		xs[j] = time.Unix(0, run.CreatedAt).Format("2006-01-02 15:04")
		rate[j] = opts.LineData{Value: run.DetectionRate, Name: run.RunID}
		acc[j] = opts.LineData{Value: run.Accuracy, Name: run.RunID}
		conf[j] = opts.LineData{Value: run.MeanConfidence * 100, Name: run.RunID}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Galaxy evaluation history", Width: "1000px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Evaluation history", Subtitle: fmt.Sprintf("%d runs", n)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "%", Min: 0, Max: 100}),
	)
	line.SetXAxis(xs).
		AddSeries("detection rate", rate).
		AddSeries("accuracy", acc).
		AddSeries("mean top-1 confidence", conf)
	return line
}
