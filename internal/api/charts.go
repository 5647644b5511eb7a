package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/christianprison/lighting.ai/internal/httputil"
)

// handleBPMChart renders the recent BPM estimates and the current meter
// levels as an HTML page. Debugging aid for soundcheck, not a show
// surface.
func (s *Server) handleBPMChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	rt := s.runtime()
	if rt == nil {
		httputil.NotFound(w, "pipeline not running")
		return
	}

	history := rt.BPMHistory()
	xs := make([]string, 0, len(history))
	ys := make([]opts.LineData, 0, len(history))
	for _, sample := range history {
		xs = append(xs, fmt.Sprintf("%.1f", sample.Time))
		ys = append(ys, opts.LineData{Value: sample.BPM})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Beat Tracking", Theme: "dark", Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "BPM Estimate", Subtitle: fmt.Sprintf("samples=%d", len(history))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "BPM"}),
	)
	line.SetXAxis(xs).AddSeries("bpm", ys)

	levels := rt.Levels()
	lx := make([]string, 0, len(levels))
	lv := make([]opts.BarData, 0, len(levels))
	for ch, level := range levels {
		lx = append(lx, fmt.Sprintf("ch%d", ch))
		if level < 0 {
			level = 0 // channel never reported yet
		}
		lv = append(lv, opts.BarData{Value: level})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "1200px", Height: "300px"}),
		charts.WithTitleOpts(opts.Title{Title: "Meter Levels"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1}),
	)
	bar.SetXAxis(lx).AddSeries("level", lv)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	if err := bar.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
