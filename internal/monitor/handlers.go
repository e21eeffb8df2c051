package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/motion.report/internal/httputil"
	"github.com/banshee-data/motion.report/internal/telemetry"
	"github.com/banshee-data/motion.report/internal/window"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"
)

// echartsAssetsPrefix is where the rendered pages load echarts from.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

var seriesColors = [telemetry.NumAxes]string{"#d62728", "#2ca02c", "#1f77b4", "#17becf", "#e377c2", "#bcbd22"}

// WindowJSON is the /live.json form of a window.
type WindowJSON struct {
	ID    string               `json:"id"`
	Seq   int                  `json:"seq"`
	Start time.Time            `json:"start"`
	Count int                  `json:"count"`
	Phase string               `json:"phase"`
	X     []float64            `json:"x"`
	Axes  map[string][]float64 `json:"axes"`
}

func windowJSON(w *window.Window) WindowJSON {
	out := WindowJSON{
		ID:    w.ID,
		Seq:   w.Seq,
		Start: w.Start,
		Count: w.Count,
		Phase: w.Phase.String(),
		X:     w.X,
		Axes:  make(map[string][]float64, telemetry.NumAxes),
	}
	for _, a := range telemetry.Axes {
		out.Axes[a.String()] = w.Axis(a)
	}
	return out
}

// AttachAdminRoutes registers the live chart at /live and /live.json, and the
// sample tail and session status under /debug/.
func (h *Hub) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/live", h.handleLiveChart)
	mux.HandleFunc("/live.json", h.handleLiveJSON)

	debug := tsweb.Debugger(mux)
	debug.KVFunc("Session", h.Stats)
	debug.KVFunc("Tail subscribers", func() any { return h.Subscribers() })
	debug.KVFunc("Window subscribers", func() any { return h.WindowSubscribers() })
	debug.URL("/live", "Live chart of the current window")
	debug.HandleSilentFunc("tail", h.handleTail)
}

func (h *Hub) handleLiveJSON(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	win := h.Window()
	if win == nil {
		httputil.NotFound(w, "no active window")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, windowJSON(win))
}

// handleLiveChart renders the current window (or, with ?closed=1, the last
// rotated one) as two echarts line charts.
func (h *Hub) handleLiveChart(w http.ResponseWriter, r *http.Request) {
	win := h.Window()
	if closed, _ := strconv.ParseBool(r.URL.Query().Get("closed")); closed {
		win = h.LastClosed()
	}
	if win == nil {
		http.Error(w, "no window to show", http.StatusNotFound)
		return
	}

	labels := make([]string, len(win.X))
	for i, x := range win.X {
		labels[i] = strconv.FormatFloat(x, 'f', 1, 64)
	}

	subtitle := fmt.Sprintf("window %d, %d samples, %s", win.Seq, win.Count, win.Phase)
	accel := lineChart("Acceleration", subtitle, labels)
	gyro := lineChart("Gyro (0.4K)", subtitle, labels)
	for _, a := range telemetry.Axes {
		chart := accel
		if a.IsGyro() {
			chart = gyro
		}
		chart.AddSeries(a.String(), lineData(win.Axis(a)),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: seriesColors[a]}),
			charts.WithLineStyleOpts(opts.LineStyle{Color: seriesColors[a], Width: 1}),
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		)
	}

	page := components.NewPage()
	page.SetPageTitle(fmt.Sprintf("Motion (start time: %s)", win.Start.Format("2006-01-02 15:04:05")))
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(accel, gyro)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("render error: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func lineChart(title, subtitle string, labels []string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "5%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time", NameLocation: "middle", NameGap: 25}),
		charts.WithAnimation(false),
	)
	line.SetXAxis(labels)
	return line
}

func lineData(vals []float64) []opts.LineData {
	data := make([]opts.LineData, len(vals))
	for i, v := range vals {
		data[i] = opts.LineData{Value: v}
	}
	return data
}

// handleTail streams decoded samples as server-sent events.
func (h *Hub) handleTail(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalServerError(w, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	id, c := h.Subscribe()
	defer h.Unsubscribe(id)

	// Send initial ping to establish connection
	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case payload, ok := <-c:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
