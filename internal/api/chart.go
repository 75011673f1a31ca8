package api

import (
	"bytes"
	"fmt"
	"net/http"
	"slices"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/envsensor/internal/httputil"
	"github.com/banshee-data/envsensor/internal/sensor"
)

// showChart renders the stored history as an HTML line chart.
func (s *Server) showChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	readings, status, err := s.recent(r)
	if err != nil {
		httputil.WriteJSONError(w, status, err.Error())
		return
	}

	var buf bytes.Buffer
	if err := renderHistoryChart(&buf, s.Station, readings); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func renderHistoryChart(buf *bytes.Buffer, station string, newestFirst []sensor.Reading) error {
	readings := slices.Clone(newestFirst)
	slices.Reverse(readings)

	x := make([]string, 0, len(readings))
	temp := make([]opts.LineData, 0, len(readings))
	humidity := make([]opts.LineData, 0, len(readings))
	light := make([]opts.LineData, 0, len(readings))
	camera := make([]opts.LineData, 0, len(readings))
	for _, r := range readings {
		x = append(x, r.Datetime)
		temp = append(temp, opts.LineData{Value: r.Temperature})
		humidity = append(humidity, opts.LineData{Value: r.Humidity})
		light = append(light, opts.LineData{Value: r.Light})
		if r.CameraLight != nil {
			camera = append(camera, opts.LineData{Value: *r.CameraLight})
		} else {
			camera = append(camera, opts.LineData{Value: "-"})
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Environmental sensor", Width: "100%", Height: "640px"}),
		charts.WithTitleOpts(opts.Title{Title: "Environmental sensor", Subtitle: fmt.Sprintf("station=%s readings=%d", station, len(readings))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(x).
		AddSeries("temperature", temp).
		AddSeries("humidity", humidity).
		AddSeries("light", light).
		AddSeries("camera_light", camera)

	return line.Render(buf)
}
