package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/banshee-data/plantconnect/internal/httputil"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"
)

// AttachDebugRoutes adds the live chart to the tsweb debug page.
func (s *Server) AttachDebugRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("chart", "Raw sensor chart", s.handleChartPage)
}

// handleChartPage renders the raw chart window and the current baseline as
// an HTML line chart.
func (s *Server) handleChartPage(w http.ResponseWriter, r *http.Request) {
	points := s.sess.Chart()
	st := s.sess.Snapshot()

	x := make([]string, 0, len(points))
	raw := make([]opts.LineData, 0, len(points))
	base := make([]opts.LineData, 0, len(points))
	for _, p := range points {
		x = append(x, p.Time.Format("15:04:05.000"))
		raw = append(raw, opts.LineData{Value: p.Val})
		base = append(base, opts.LineData{Value: st.Baseline})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "PlantConnect sensor", Theme: "dark", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Capacitive sensor",
			Subtitle: fmt.Sprintf("source=%s value=%d at %s", st.Source, st.Value, st.Time.Format(time.RFC3339)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "raw"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(x).
		AddSeries("raw", raw, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)})).
		AddSeries("baseline", base)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
