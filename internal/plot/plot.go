// Package plot renders sensor time-series charts as PNGs for the agent's
// plotting tools: the raw signal, the forecast band, and flagged anomaly
// points.
package plot

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/railsense/railsense/internal/filestore"
	"github.com/railsense/railsense/internal/model"
)

var (
	colorSignal  = drawing.ColorFromHex("003057")
	colorBand    = drawing.ColorFromHex("b3a369")
	colorAnomaly = drawing.ColorFromHex("c0392b")
)

type ReadingSource interface {
	ListSeries(ctx context.Context, sensor string, from, to time.Time) ([]model.SensorReading, error)
}

type ResultSource interface {
	ListBySensor(ctx context.Context, sensor string, from, to time.Time) ([]model.DetectionResult, error)
}

type Plotter struct {
	readings ReadingSource
	results  ResultSource
	store    filestore.Store
}

func NewPlotter(readings ReadingSource, results ResultSource, store filestore.Store) *Plotter {
	return &Plotter{readings: readings, results: results, store: store}
}

// PlotAnalog draws an analog sensor's scored window: actual values, the
// forecast band edges, and out-of-range points. Falls back to raw readings
// when the window has no detection rows yet. Returns the stored image key.
func (p *Plotter) PlotAnalog(ctx context.Context, sensor string, from, to time.Time) (string, error) {
	results, err := p.results.ListBySensor(ctx, sensor, from, to)
	if err != nil {
		return "", err
	}
	var series []chart.Series
	if len(results) >= 2 {
		n := len(results)
		ts := make([]time.Time, n)
		actual := make([]float64, n)
		lower := make([]float64, n)
		upper := make([]float64, n)
		var anomTs []time.Time
		var anomVals []float64
		for i, row := range results {
			ts[i] = row.Ts
			actual[i] = row.Actual
			lower[i] = row.YhatLower
			upper[i] = row.YhatUpper
			if row.OutOfRange {
				anomTs = append(anomTs, row.Ts)
				anomVals = append(anomVals, row.Actual)
			}
		}
		series = append(series,
			chart.TimeSeries{
				Name:    "Sensor Data",
				XValues: ts,
				YValues: actual,
				Style:   chart.Style{StrokeColor: colorSignal, StrokeWidth: 1.5},
			},
			chart.TimeSeries{
				Name:    "Anomaly Threshold",
				XValues: ts,
				YValues: upper,
				Style:   chart.Style{StrokeColor: colorBand, StrokeWidth: 1.0},
			},
			chart.TimeSeries{
				XValues: ts,
				YValues: lower,
				Style:   chart.Style{StrokeColor: colorBand, StrokeWidth: 1.0},
			},
		)
		if len(anomTs) > 0 {
			series = append(series, chart.TimeSeries{
				Name:    "Anomaly",
				XValues: anomTs,
				YValues: anomVals,
				Style: chart.Style{
					StrokeWidth: chart.Disabled,
					DotWidth:    3,
					DotColor:    colorAnomaly,
				},
			})
		}
	} else {
		raw, err := p.rawSeries(ctx, sensor, from, to)
		if err != nil {
			return "", err
		}
		series = append(series, raw)
	}
	return p.render(ctx, sensor, from, to, series)
}

// PlotDigital draws a digital sensor's 0/1 signal over the window.
func (p *Plotter) PlotDigital(ctx context.Context, sensor string, from, to time.Time) (string, error) {
	raw, err := p.rawSeries(ctx, sensor, from, to)
	if err != nil {
		return "", err
	}
	return p.render(ctx, sensor, from, to, []chart.Series{raw})
}

func (p *Plotter) rawSeries(ctx context.Context, sensor string, from, to time.Time) (chart.Series, error) {
	readings, err := p.readings.ListSeries(ctx, sensor, from, to)
	if err != nil {
		return nil, err
	}
	if len(readings) < 2 {
		return nil, fmt.Errorf("not enough data for sensor %s between %s and %s",
			sensor, from.Format(time.DateTime), to.Format(time.DateTime))
	}
	ts := make([]time.Time, len(readings))
	values := make([]float64, len(readings))
	for i, reading := range readings {
		ts[i] = reading.Ts
		values[i] = reading.Value
	}
	return chart.TimeSeries{
		Name:    "Sensor Data",
		XValues: ts,
		YValues: values,
		Style:   chart.Style{StrokeColor: colorSignal, StrokeWidth: 1.5},
	}, nil
}

func (p *Plotter) render(ctx context.Context, sensor string, from, to time.Time, series []chart.Series) (string, error) {
	graph := chart.Chart{
		Title:  fmt.Sprintf("Sensor Data: %s", sensor),
		Width:  1200,
		Height: 420,
		XAxis: chart.XAxis{
			Name:           fmt.Sprintf("Time: %s to %s", from.Format(time.DateTime), to.Format(time.DateTime)),
			ValueFormatter: chart.TimeValueFormatterWithFormat("01-02 15:04"),
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return "", fmt.Errorf("render chart: %w", err)
	}
	key := newImageKey()
	if err := p.store.Save(ctx, key, &buf); err != nil {
		return "", fmt.Errorf("save chart: %w", err)
	}
	return key, nil
}

func newImageKey() string {
	var raw [16]byte
	_, _ = rand.Read(raw[:])
	return hex.EncodeToString(raw[:]) + ".png"
}
