// Package report renders journal records as HTML charts and session summaries.
package report

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/drgrieve/TeslaChargingManager/core/journal"
)

// ErrNoData is returned when the records hold no status samples.
var ErrNoData = errors.New("no status records in range")

const timeLayout = "2006-01-02 15:04:05"

type sample struct {
	at time.Time
	p  journal.StatusPayload
}

func statusSamples(recs []journal.Record) []sample {
	var out []sample
	for _, r := range recs {
		if r.Kind != journal.KindStatus {
			continue
		}
		var p journal.StatusPayload
		if err := r.Decode(&p); err != nil {
			continue
		}
		out = append(out, sample{at: r.Timestamp, p: p})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].at.Before(out[j].at) })
	return out
}

func series(samples []sample, f func(journal.StatusPayload) float64) []opts.LineData {
	data := make([]opts.LineData, len(samples))
	for i, s := range samples {
		data[i] = opts.LineData{Value: f(s.p)}
	}
	return data
}

// Render writes an HTML page with a power chart and a vehicle chart.
func Render(w io.Writer, title string, recs []journal.Record) error {
	samples := statusSamples(recs)
	if len(samples) == 0 {
		return ErrNoData
	}
	xAxis := make([]string, len(samples))
	for i, s := range samples {
		xAxis[i] = s.at.Local().Format(timeLayout)
	}

	powerChart := charts.NewLine()
	powerChart.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: "Site power"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "kW"}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Top: "bottom"}),
	)
	powerChart.SetXAxis(xAxis).
		AddSeries("Solar", series(samples, func(p journal.StatusPayload) float64 { return p.SolarKW })).
		AddSeries("Home", series(samples, func(p journal.StatusPayload) float64 { return p.LoadKW })).
		AddSeries("Grid", series(samples, func(p journal.StatusPayload) float64 { return p.GridKW })).
		AddSeries("Buffer", series(samples, func(p journal.StatusPayload) float64 { return p.BufferKW }))

	vehicleChart := charts.NewLine()
	vehicleChart.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: "Vehicle"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time"}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Top: "bottom"}),
	)
	vehicleChart.SetXAxis(xAxis).
		AddSeries("Amps", series(samples, func(p journal.StatusPayload) float64 { return float64(p.Amps) })).
		AddSeries("Battery %", series(samples, func(p journal.StatusPayload) float64 { return float64(p.BatteryLevel) }))

	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(powerChart, vehicleChart)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}

// Session summarises one control session.
type Session struct {
	ID          string    `json:"id"`
	Curve       string    `json:"curve"`
	Mode        string    `json:"mode"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Reason      string    `json:"reason"`
	Commands    int       `json:"commands"`
	SafetyStops int       `json:"safety_stops"`
	Samples     int       `json:"samples"`
	MaxAmps     int       `json:"max_amps"`
	MeanGridKW  float64   `json:"mean_grid_kw"`
}

// Summarize groups records by session in start order.
func Summarize(recs []journal.Record) []Session {
	byID := make(map[string]*Session)
	var order []string
	get := func(r journal.Record) *Session {
		s, ok := byID[r.SessionID]
		if !ok {
			s = &Session{ID: r.SessionID, Start: r.Timestamp}
			byID[r.SessionID] = s
			order = append(order, r.SessionID)
		}
		if r.Timestamp.Before(s.Start) {
			s.Start = r.Timestamp
		}
		if r.Timestamp.After(s.End) {
			s.End = r.Timestamp
		}
		return s
	}
	gridSum := make(map[string]float64)
	for _, r := range recs {
		if r.SessionID == "" {
			continue
		}
		s := get(r)
		switch r.Kind {
		case journal.KindSession:
			var p journal.SessionPayload
			if r.Decode(&p) == nil {
				s.Curve, s.Mode = p.Curve, p.Mode
				if p.Reason != "" {
					s.Reason = p.Reason
				}
			}
		case journal.KindCommand:
			s.Commands++
		case journal.KindSafety:
			var p journal.SafetyPayload
			if r.Decode(&p) == nil && p.Action == "stop" {
				s.SafetyStops++
			}
		case journal.KindStatus:
			var p journal.StatusPayload
			if r.Decode(&p) == nil {
				s.Samples++
				gridSum[s.ID] += p.GridKW
				if p.Amps > s.MaxAmps {
					s.MaxAmps = p.Amps
				}
			}
		}
	}
	out := make([]Session, 0, len(order))
	for _, id := range order {
		s := byID[id]
		if s.Samples > 0 {
			s.MeanGridKW = gridSum[id] / float64(s.Samples)
		}
		out = append(out, *s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}
