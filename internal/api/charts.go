package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/motion-planner/internal/db"
	"github.com/banshee-data/motion-planner/internal/httputil"
)

// steeringChart renders steering and slope against tick for recent decisions.
func (s *Server) steeringChart(w http.ResponseWriter, r *http.Request) {
	if !s.getOnly(w, r) {
		return
	}
	if s.opts.Store == nil {
		httputil.ServiceUnavailable(w, "Decision log disabled")
		return
	}
	q, bad := decisionQuery(r)
	if bad != "" {
		httputil.BadRequest(w, bad)
		return
	}
	if q.RunID == "" {
		q.RunID = s.opts.RunID
	}
	records, err := s.opts.Store.Decisions(r.Context(), q)
	if err != nil {
		httputil.InternalServerError(w, "Failed to read decisions: "+err.Error())
		return
	}

	var buf bytes.Buffer
	if err := renderSteeringPage(&buf, q.RunID, records); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func renderSteeringPage(buf *bytes.Buffer, runID string, records []db.DecisionRecord) error {
	ticks := make([]string, 0, len(records))
	steering := make([]opts.LineData, 0, len(records))
	slopes := make([]opts.LineData, 0, len(records))
	for _, rec := range records {
		ticks = append(ticks, strconv.FormatUint(rec.Tick, 10))
		steering = append(steering, opts.LineData{Value: rec.Steering})
		if rec.Slope != nil {
			slopes = append(slopes, opts.LineData{Value: *rec.Slope})
		} else {
			// echarts leaves a gap for "-"
			slopes = append(slopes, opts.LineData{Value: "-"})
		}
	}

	subtitle := fmt.Sprintf("decisions=%d", len(records))
	if runID != "" {
		subtitle = fmt.Sprintf("run=%s %s", runID, subtitle)
	}
	if len(records) > 0 {
		subtitle += " last=" + records[len(records)-1].At.Format(time.RFC3339)
	}

	steer := charts.NewLine()
	steer.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Planner steering", Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Steering command", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "tick", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "steering", Min: -7, Max: 6}),
	)
	steer.SetXAxis(ticks).AddSeries("steering", steering)

	slope := charts.NewLine()
	slope.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Target slope (deg)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "tick", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "degrees"}),
	)
	slope.SetXAxis(ticks).AddSeries("slope", slopes)

	page := components.NewPage()
	page.AddCharts(steer, slope)
	return page.Render(buf)
}
