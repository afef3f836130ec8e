package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/railsense/railsense/internal/model"
)

const flushEvery = 5000

// Sink receives parsed readings in batches.
type Sink interface {
	BatchInsert(ctx context.Context, readings []model.SensorReading) error
}

// Report counts what a load run did. Malformed input never aborts the run.
type Report struct {
	RowsTotal     int
	RowsMalformed int
	ValuesLoaded  int
	ValuesSkipped int
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

type Loader struct {
	sink Sink
}

func NewLoader(sink Sink) *Loader {
	return &Loader{sink: sink}
}

// Load parses a sensor CSV and feeds readings into the sink. The header must
// contain a timestamp column; every other recognized column becomes one
// reading per row. Rows with an unparseable timestamp are dropped; cells
// with non-numeric values are dropped individually. Both are counted.
func (l *Loader) Load(ctx context.Context, r io.Reader) (*Report, error) {
	logger := logutil.GetLogger(ctx)
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	tsCol := -1
	sensorCols := map[int]string{}
	for i, name := range header {
		key := normalizeColumn(name)
		if key == "timestamp" || key == "ts" {
			tsCol = i
			continue
		}
		if model.IsAnalogSensor(key) || model.IsDigitalSensor(key) {
			sensorCols[i] = key
		}
	}
	if tsCol < 0 {
		return nil, fmt.Errorf("csv has no timestamp column")
	}
	if len(sensorCols) == 0 {
		return nil, fmt.Errorf("csv has no recognized sensor columns")
	}

	report := &Report{}
	batch := make([]model.SensorReading, 0, flushEvery)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Structurally broken line. Count and move on.
			report.RowsTotal++
			report.RowsMalformed++
			continue
		}
		report.RowsTotal++
		if tsCol >= len(record) {
			report.RowsMalformed++
			continue
		}
		ts, ok := parseTimestamp(record[tsCol])
		if !ok {
			report.RowsMalformed++
			continue
		}
		for col, sensor := range sensorCols {
			if col >= len(record) {
				report.ValuesSkipped++
				continue
			}
			value, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
			if err != nil {
				report.ValuesSkipped++
				continue
			}
			batch = append(batch, model.SensorReading{Ts: ts, Sensor: sensor, Value: value})
			report.ValuesLoaded++
		}
		if len(batch) >= flushEvery {
			if err := l.sink.BatchInsert(ctx, batch); err != nil {
				return report, err
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := l.sink.BatchInsert(ctx, batch); err != nil {
			return report, err
		}
	}
	logger.Info("csv load finished",
		zap.Int("rows", report.RowsTotal),
		zap.Int("rows_malformed", report.RowsMalformed),
		zap.Int("values_loaded", report.ValuesLoaded),
		zap.Int("values_skipped", report.ValuesSkipped),
	)
	return report, nil
}

func normalizeColumn(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, " ", "_")
	// The published dataset spells this column "DV_eletric".
	if key == "dv_eletric" {
		key = "dv_electric"
	}
	return key
}

func parseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
