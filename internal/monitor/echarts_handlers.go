package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/nav-lambda/safety.report/internal/httputil"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handlePScoreChart renders a quick HTML line chart of the recent
// certificate log: P-score and SIM2VAL estimate over time. This is a
// debugging-only endpoint (no auth) to eyeball trends without a UI.
// Query params:
//   - limit (optional; default 500, max 5000) caps the number of records
func (ws *WebServer) handlePScoreChart(w http.ResponseWriter, r *http.Request) {
	if ws.store == nil {
		httputil.NotFound(w, "no certificate store configured")
		return
	}

	limit := 500
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 5000 {
			limit = v
		}
	}

	certs, err := ws.store.List(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("list certificates: %v", err))
		return
	}
	if len(certs) == 0 {
		httputil.NotFound(w, "no certificates available")
		return
	}

	x := make([]string, 0, len(certs))
	pScores := make([]opts.LineData, 0, len(certs))
	estimates := make([]opts.LineData, 0, len(certs))
	sigmas := make([]opts.LineData, 0, len(certs))
	for _, c := range certs {
		x = append(x, c.Timestamp.Format("15:04:05.000"))
		pScores = append(pScores, opts.LineData{Value: c.PScore})
		estimates = append(estimates, opts.LineData{Value: c.Sim2ValEstimate})
		sigmas = append(sigmas, opts.LineData{Value: c.Sigma})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:  "Safety Certification",
			Theme:      "dark",
			Width:      "1200px",
			Height:     "600px",
			AssetsHost: echartsAssetsPrefix,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "P-Score and SIM2VAL Estimate",
			Subtitle: fmt.Sprintf("records=%d latest=%s", len(certs), certs[len(certs)-1].Timestamp.Format(time.RFC3339)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "score"}),
	)

	line.SetXAxis(x).
		AddSeries("p_score", pScores).
		AddSeries("sim2val_estimate", estimates).
		AddSeries("sigma", sigmas).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
