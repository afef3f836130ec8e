// Package detect scores sensor streams against per-sensor forecasting
// models and consolidates quorum violations into anomaly events.
package detect

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/railsense/railsense/internal/config"
	"github.com/railsense/railsense/internal/forecast"
	"github.com/railsense/railsense/internal/model"
)

type ReadingSource interface {
	ListSeries(ctx context.Context, sensor string, from, to time.Time) ([]model.SensorReading, error)
}

type ResultSink interface {
	BatchUpsert(ctx context.Context, results []model.DetectionResult) error
}

type EventSink interface {
	ReplaceWindow(ctx context.Context, from, to time.Time, events []model.AnomalyEvent) error
}

type Options struct {
	ThresholdPolicy string // "sigma" or "fixed"
	SigmaMultiplier float64
	Buffer          float64
	FixedBound      float64
	Quorum          int
	MergeGap        time.Duration
	Step            time.Duration
	MinHistory      int
	Forecast        forecast.Params
}

func OptionsFromConfig(cfg config.DetectConfig) Options {
	return Options{
		ThresholdPolicy: cfg.ThresholdPolicy,
		SigmaMultiplier: cfg.SigmaMultiplier,
		Buffer:          cfg.Buffer,
		FixedBound:      cfg.FixedBound,
		Quorum:          cfg.Quorum,
		MergeGap:        time.Duration(cfg.MergeGapSecs) * time.Second,
		Step:            time.Duration(cfg.ResampleSecs) * time.Second,
		MinHistory:      cfg.MinHistory,
		Forecast:        forecast.DefaultParams(cfg.SeasonLength),
	}
}

type Summary struct {
	SensorsScored  int
	SensorsSkipped []string
	ResultRows     int
	Events         int
}

type Detector struct {
	readings ReadingSource
	results  ResultSink
	events   EventSink
	opts     Options
}

func New(readings ReadingSource, results ResultSink, events EventSink, opts Options) *Detector {
	return &Detector{readings: readings, results: results, events: events, opts: opts}
}

// Run scores every analog sensor over [from, to] and replaces the window's
// consolidated events. Sensors without enough history are skipped and
// reported, never fatal. The whole pass is deterministic for fixed input
// and options: sensors are visited in a fixed order and every step is pure
// arithmetic.
func (d *Detector) Run(ctx context.Context, from, to time.Time) (*Summary, error) {
	logger := logutil.GetLogger(ctx)
	summary := &Summary{}
	votes := map[time.Time]int{}

	for _, sensor := range model.AnalogSensors {
		series, err := d.readings.ListSeries(ctx, sensor, from, to)
		if err != nil {
			return nil, err
		}
		buckets := Resample(series, from, d.opts.Step)
		if len(buckets) < d.opts.MinHistory {
			logger.Info("sensor skipped: insufficient history",
				zap.String("sensor", sensor),
				zap.Int("points", len(buckets)),
				zap.Int("needed", d.opts.MinHistory),
			)
			summary.SensorsSkipped = append(summary.SensorsSkipped, sensor)
			continue
		}
		values := make([]float64, len(buckets))
		for i, b := range buckets {
			values[i] = b.Value
		}
		fitted, err := forecast.Fit(values, d.opts.Forecast)
		if err != nil {
			var insufficient *forecast.ErrInsufficientHistory
			if errors.As(err, &insufficient) {
				summary.SensorsSkipped = append(summary.SensorsSkipped, sensor)
				continue
			}
			return nil, err
		}

		half := d.halfWidth(fitted.ResidualStd())
		rows := make([]model.DetectionResult, 0, len(buckets))
		preds := fitted.Fitted()
		for i, b := range buckets {
			residual := b.Value - preds[i]
			// Strictly greater than the band half-width. A residual exactly
			// at the bound is in range.
			oor := math.Abs(residual) > half
			rows = append(rows, model.DetectionResult{
				Sensor:     sensor,
				Ts:         b.Ts,
				Yhat:       preds[i],
				YhatLower:  preds[i] - half,
				YhatUpper:  preds[i] + half,
				Actual:     b.Value,
				Residual:   residual,
				OutOfRange: oor,
			})
			if oor {
				votes[b.Ts]++
			}
		}
		if err := d.results.BatchUpsert(ctx, rows); err != nil {
			return nil, err
		}
		summary.SensorsScored++
		summary.ResultRows += len(rows)
		logger.Info("sensor scored",
			zap.String("sensor", sensor),
			zap.Int("rows", len(rows)),
			zap.Float64("band_half_width", half),
		)
	}

	events := Consolidate(votes, d.opts.Quorum, d.opts.Step, d.opts.MergeGap)
	if err := d.events.ReplaceWindow(ctx, from, to, events); err != nil {
		return nil, err
	}
	summary.Events = len(events)
	logger.Info("detection finished",
		zap.Int("sensors_scored", summary.SensorsScored),
		zap.Strings("sensors_skipped", summary.SensorsSkipped),
		zap.Int("result_rows", summary.ResultRows),
		zap.Int("events", summary.Events),
	)
	return summary, nil
}

func (d *Detector) halfWidth(residStd float64) float64 {
	if d.opts.ThresholdPolicy == "fixed" {
		return d.opts.FixedBound
	}
	return d.opts.SigmaMultiplier*residStd + d.opts.Buffer
}

// Bucket is one resampled point: the mean of all readings falling in
// [Ts, Ts+step).
type Bucket struct {
	Ts    time.Time
	Value float64
}

// Resample averages readings into a fixed-step grid aligned to origin.
// Empty buckets inside the covered range hold the previous bucket's value,
// so the forecaster sees an evenly spaced series.
func Resample(series []model.SensorReading, origin time.Time, step time.Duration) []Bucket {
	if len(series) == 0 || step <= 0 {
		return nil
	}
	sums := map[int64]float64{}
	counts := map[int64]int{}
	var minIdx, maxIdx int64
	first := true
	for _, reading := range series {
		idx := int64(reading.Ts.Sub(origin) / step)
		sums[idx] += reading.Value
		counts[idx]++
		if first || idx < minIdx {
			minIdx = idx
		}
		if first || idx > maxIdx {
			maxIdx = idx
		}
		first = false
	}
	out := make([]Bucket, 0, maxIdx-minIdx+1)
	var last float64
	for idx := minIdx; idx <= maxIdx; idx++ {
		value := last
		if n := counts[idx]; n > 0 {
			value = sums[idx] / float64(n)
		}
		last = value
		out = append(out, Bucket{
			Ts:    origin.Add(time.Duration(idx) * step),
			Value: value,
		})
	}
	return out
}
