package plot

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/railsense/railsense/internal/model"
)

type fakeReadings struct {
	series []model.SensorReading
}

func (f *fakeReadings) ListSeries(ctx context.Context, sensor string, from, to time.Time) ([]model.SensorReading, error) {
	return f.series, nil
}

type fakeResults struct {
	rows []model.DetectionResult
}

func (f *fakeResults) ListBySensor(ctx context.Context, sensor string, from, to time.Time) ([]model.DetectionResult, error) {
	return f.rows, nil
}

type memStore struct {
	saved map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{saved: map[string][]byte{}}
}

func (s *memStore) Save(ctx context.Context, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.saved[key] = data
	return nil
}

func (s *memStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.saved[key])), nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	delete(s.saved, key)
	return nil
}

func (s *memStore) ListOlderThan(ctx context.Context, age time.Duration) ([]string, error) {
	return nil, nil
}

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func scoredRows(origin time.Time, n int) []model.DetectionResult {
	rows := make([]model.DetectionResult, n)
	for i := range rows {
		value := 5.0
		oor := false
		if i == n/2 {
			value = 50
			oor = true
		}
		rows[i] = model.DetectionResult{
			Sensor:     "tp2",
			Ts:         origin.Add(time.Duration(i) * 10 * time.Second),
			Yhat:       5,
			YhatLower:  2,
			YhatUpper:  8,
			Actual:     value,
			OutOfRange: oor,
		}
	}
	return rows
}

func TestPlotAnalogRendersScoredWindow(t *testing.T) {
	origin := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	store := newMemStore()
	plotter := NewPlotter(&fakeReadings{}, &fakeResults{rows: scoredRows(origin, 20)}, store)

	key, err := plotter.PlotAnalog(context.Background(), "tp2", origin, origin.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(key, ".png"))

	data := store.saved[key]
	require.True(t, bytes.HasPrefix(data, pngMagic), "stored file is not a PNG")
}

func TestPlotAnalogFallsBackToRawReadings(t *testing.T) {
	origin := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	readings := &fakeReadings{}
	for i := 0; i < 10; i++ {
		readings.series = append(readings.series, model.SensorReading{
			Ts:    origin.Add(time.Duration(i) * time.Second),
			Value: float64(i),
		})
	}
	store := newMemStore()
	plotter := NewPlotter(readings, &fakeResults{}, store)

	key, err := plotter.PlotAnalog(context.Background(), "tp2", origin, origin.Add(time.Hour))
	require.NoError(t, err)
	require.Contains(t, store.saved, key)
}

func TestPlotDigital(t *testing.T) {
	origin := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	readings := &fakeReadings{}
	for i := 0; i < 10; i++ {
		readings.series = append(readings.series, model.SensorReading{
			Ts:    origin.Add(time.Duration(i) * time.Second),
			Value: float64(i % 2),
		})
	}
	store := newMemStore()
	plotter := NewPlotter(readings, &fakeResults{}, store)

	key, err := plotter.PlotDigital(context.Background(), "comp", origin, origin.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(store.saved[key], pngMagic))
}

func TestPlotDigitalNotEnoughData(t *testing.T) {
	plotter := NewPlotter(&fakeReadings{}, &fakeResults{}, newMemStore())
	_, err := plotter.PlotDigital(context.Background(), "comp",
		time.Now().Add(-time.Hour), time.Now())
	require.ErrorContains(t, err, "not enough data")
}

func TestImageKeysAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		key := newImageKey()
		require.True(t, strings.HasSuffix(key, ".png"))
		require.False(t, seen[key])
		seen[key] = true
	}
}
