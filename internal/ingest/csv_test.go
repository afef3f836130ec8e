package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/railsense/railsense/internal/model"
)

type captureSink struct {
	readings []model.SensorReading
}

func (s *captureSink) BatchInsert(ctx context.Context, readings []model.SensorReading) error {
	s.readings = append(s.readings, readings...)
	return nil
}

func TestLoaderLoad(t *testing.T) {
	csv := strings.Join([]string{
		"timestamp,TP2,Oil_temperature,DV_eletric,ignored_column",
		"2025-03-01 00:00:00,1.5,62.0,1,junk",
		"not-a-timestamp,2.5,63.0,0,junk",
		"2025-03-01 00:00:01,oops,64.0,1,junk",
		"2025-03-01 00:00:02,3.5,65.0,0,junk",
	}, "\n")

	sink := &captureSink{}
	report, err := NewLoader(sink).Load(context.Background(), strings.NewReader(csv))
	require.NoError(t, err)

	require.Equal(t, 4, report.RowsTotal)
	require.Equal(t, 1, report.RowsMalformed)
	require.Equal(t, 8, report.ValuesLoaded)
	require.Equal(t, 1, report.ValuesSkipped)
	require.Len(t, sink.readings, 8)

	bySensor := map[string]int{}
	for _, reading := range sink.readings {
		bySensor[reading.Sensor]++
	}
	require.Equal(t, 2, bySensor["tp2"]) // the "oops" cell was dropped
	require.Equal(t, 3, bySensor["oil_temperature"])
	// The dataset's misspelled column maps onto the canonical sensor name.
	require.Equal(t, 3, bySensor["dv_electric"])
	require.NotContains(t, bySensor, "ignored_column")
}

func TestLoaderRequiresTimestampColumn(t *testing.T) {
	csv := "TP2,TP3\n1,2\n"
	_, err := NewLoader(&captureSink{}).Load(context.Background(), strings.NewReader(csv))
	require.ErrorContains(t, err, "timestamp")
}

func TestLoaderRequiresSensorColumns(t *testing.T) {
	csv := "timestamp,foo\n2025-03-01 00:00:00,1\n"
	_, err := NewLoader(&captureSink{}).Load(context.Background(), strings.NewReader(csv))
	require.ErrorContains(t, err, "sensor")
}

func TestParseTimestampLayouts(t *testing.T) {
	for _, raw := range []string{
		"2025-03-01 12:30:45",
		"2025-03-01T12:30:45",
		"2025-03-01T12:30:45Z",
	} {
		ts, ok := parseTimestamp(raw)
		require.True(t, ok, raw)
		require.Equal(t, 12, ts.Hour())
	}
	_, ok := parseTimestamp("01/03/2025")
	require.False(t, ok)
}
