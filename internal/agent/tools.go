package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/railsense/railsense/internal/ai"
	"github.com/railsense/railsense/internal/model"
)

type EventSource interface {
	ListOverlapping(ctx context.Context, from, to time.Time, minDuration time.Duration) ([]model.AnomalyEvent, error)
}

type ImportanceSource interface {
	OutOfRangeSeconds(ctx context.Context, from, to time.Time) (map[string]int64, error)
}

type ActivationSource interface {
	SumBySensors(ctx context.Context, sensors []string, from, to time.Time) (map[string]int64, error)
}

type Plotter interface {
	PlotAnalog(ctx context.Context, sensor string, from, to time.Time) (string, error)
	PlotDigital(ctx context.Context, sensor string, from, to time.Time) (string, error)
}

// Toolset binds the model-callable tools to the stores and the plotter.
type Toolset struct {
	events      EventSource
	results     ImportanceSource
	readings    ActivationSource
	plotter     Plotter
	minEventDur time.Duration
	stepSecs    int64
}

func NewToolset(events EventSource, results ImportanceSource, readings ActivationSource, plotter Plotter, minEventDur time.Duration, stepSecs int64) *Toolset {
	if stepSecs <= 0 {
		stepSecs = 1
	}
	return &Toolset{
		events:      events,
		results:     results,
		readings:    readings,
		plotter:     plotter,
		minEventDur: minEventDur,
		stepSecs:    stepSecs,
	}
}

const (
	toolQueryAnomalies     = "query_anomalies"
	toolAnalogImportances  = "query_analog_sensor_importances"
	toolDigitalActivations = "query_digital_sensor_activations"
	toolPlotAnalog         = "plot_analog_sensor"
	toolPlotDigital        = "plot_digital_sensor"
)

func timeRangeSchema(extra map[string]interface{}) map[string]interface{} {
	props := map[string]interface{}{
		"start_ts": map[string]interface{}{
			"type":        "string",
			"description": "Start timestamp, 'YYYY-MM-DD HH:MM:SS' 24H format",
		},
		"end_ts": map[string]interface{}{
			"type":        "string",
			"description": "End timestamp, 'YYYY-MM-DD HH:MM:SS' 24H format",
		},
	}
	required := []string{"start_ts", "end_ts"}
	for name, schema := range extra {
		props[name] = schema
		required = append([]string{name}, required...)
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// Specs describes every tool for the chat completion call.
func (t *Toolset) Specs() []ai.ToolSpec {
	analogSchema := map[string]interface{}{
		"sensor_name": map[string]interface{}{
			"type":        "string",
			"enum":        model.AnalogSensors,
			"description": "Analog sensor to plot",
		},
	}
	digitalSchema := map[string]interface{}{
		"sensor_name": map[string]interface{}{
			"type":        "string",
			"enum":        model.DigitalSensors,
			"description": "Digital sensor to plot",
		},
	}
	return []ai.ToolSpec{
		{
			Name:        toolQueryAnomalies,
			Description: "Returns the system-flagged anomaly events between start_ts and end_ts, with start, end, and duration in seconds.",
			Parameters:  timeRangeSchema(nil),
		},
		{
			Name:        toolAnalogImportances,
			Description: "Returns seconds each analog sensor spent outside its expected range between start_ts and end_ts. A proxy for how much each sensor contributed to anomalies.",
			Parameters:  timeRangeSchema(nil),
		},
		{
			Name:        toolDigitalActivations,
			Description: "Returns seconds each digital sensor was activated (value 1) between start_ts and end_ts.",
			Parameters:  timeRangeSchema(nil),
		},
		{
			Name:        toolPlotAnalog,
			Description: "Renders a plot of one analog sensor with its anomaly threshold band for the user. Use at most once per response.",
			Parameters:  timeRangeSchema(analogSchema),
		},
		{
			Name:        toolPlotDigital,
			Description: "Renders a plot of one digital sensor for the user. Use at most once per response.",
			Parameters:  timeRangeSchema(digitalSchema),
		},
	}
}

type toolArgs struct {
	SensorName string `json:"sensor_name"`
	StartTs    string `json:"start_ts"`
	EndTs      string `json:"end_ts"`
}

var toolTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseToolTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range toolTimeLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp %q, expected 'YYYY-MM-DD HH:MM:SS'", raw)
}

// Execute runs one model-initiated tool call. The string result goes back
// to the model; a non-empty image key marks a rendered plot. Argument
// errors are returned as tool output so the model can correct itself.
func (t *Toolset) Execute(ctx context.Context, call ai.ToolCall) (result string, imageKey string, err error) {
	var args toolArgs
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return fmt.Sprintf("error: invalid arguments: %v", err), "", nil
	}
	from, err := parseToolTime(args.StartTs)
	if err != nil {
		return fmt.Sprintf("error: %v", err), "", nil
	}
	to, err := parseToolTime(args.EndTs)
	if err != nil {
		return fmt.Sprintf("error: %v", err), "", nil
	}
	if !from.Before(to) {
		return "error: start_ts must be before end_ts", "", nil
	}

	switch call.Name {
	case toolQueryAnomalies:
		events, err := t.events.ListOverlapping(ctx, from, to, t.minEventDur)
		if err != nil {
			return "", "", err
		}
		if len(events) == 0 {
			return "no anomalies found in this time range", "", nil
		}
		data, err := json.Marshal(events)
		if err != nil {
			return "", "", err
		}
		return string(data), "", nil

	case toolAnalogImportances:
		counts, err := t.results.OutOfRangeSeconds(ctx, from, to)
		if err != nil {
			return "", "", err
		}
		// Result rows sit on the resampled grid; scale back to seconds.
		scaled := make(map[string]int64, len(counts))
		for sensor, count := range counts {
			scaled[sensor] = count * t.stepSecs
		}
		data, err := json.Marshal(scaled)
		if err != nil {
			return "", "", err
		}
		return string(data), "", nil

	case toolDigitalActivations:
		sums, err := t.readings.SumBySensors(ctx, model.DigitalSensors, from, to)
		if err != nil {
			return "", "", err
		}
		data, err := json.Marshal(sums)
		if err != nil {
			return "", "", err
		}
		return string(data), "", nil

	case toolPlotAnalog:
		if !model.IsAnalogSensor(args.SensorName) {
			return fmt.Sprintf("error: %q is not an analog sensor", args.SensorName), "", nil
		}
		key, err := t.plotter.PlotAnalog(ctx, args.SensorName, from, to)
		if err != nil {
			return fmt.Sprintf("error: %v", err), "", nil
		}
		return "plot rendered and shown to the user", key, nil

	case toolPlotDigital:
		if !model.IsDigitalSensor(args.SensorName) {
			return fmt.Sprintf("error: %q is not a digital sensor", args.SensorName), "", nil
		}
		key, err := t.plotter.PlotDigital(ctx, args.SensorName, from, to)
		if err != nil {
			return fmt.Sprintf("error: %v", err), "", nil
		}
		return "plot rendered and shown to the user", key, nil
	}
	return fmt.Sprintf("error: unknown tool %q", call.Name), "", nil
}
