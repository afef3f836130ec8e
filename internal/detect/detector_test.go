package detect

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/railsense/railsense/internal/forecast"
	"github.com/railsense/railsense/internal/model"
)

type fakeReadings struct {
	series map[string][]model.SensorReading
}

func (f *fakeReadings) ListSeries(ctx context.Context, sensor string, from, to time.Time) ([]model.SensorReading, error) {
	return f.series[sensor], nil
}

type fakeResults struct {
	rows []model.DetectionResult
}

func (f *fakeResults) BatchUpsert(ctx context.Context, results []model.DetectionResult) error {
	f.rows = append(f.rows, results...)
	return nil
}

type fakeEvents struct {
	events []model.AnomalyEvent
}

func (f *fakeEvents) ReplaceWindow(ctx context.Context, from, to time.Time, events []model.AnomalyEvent) error {
	f.events = events
	return nil
}

func TestResample(t *testing.T) {
	origin := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	step := 10 * time.Second
	series := []model.SensorReading{
		{Ts: origin, Value: 2},
		{Ts: origin.Add(5 * time.Second), Value: 4},
		{Ts: origin.Add(10 * time.Second), Value: 6},
		// bucket 2 is empty
		{Ts: origin.Add(30 * time.Second), Value: 8},
	}
	buckets := Resample(series, origin, step)
	require.Len(t, buckets, 4)
	require.Equal(t, 3.0, buckets[0].Value) // mean of 2 and 4
	require.Equal(t, 6.0, buckets[1].Value)
	require.Equal(t, 6.0, buckets[2].Value) // gap filled with previous value
	require.Equal(t, 8.0, buckets[3].Value)
	require.Equal(t, origin.Add(20*time.Second), buckets[2].Ts)
}

func TestResampleEmpty(t *testing.T) {
	origin := time.Now()
	require.Nil(t, Resample(nil, origin, 10*time.Second))
	require.Nil(t, Resample([]model.SensorReading{{Ts: origin}}, origin, 0))
}

func TestConsolidate(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	step := 10 * time.Second
	gap := 60 * time.Second

	t.Run("count at quorum is not anomalous", func(t *testing.T) {
		votes := map[time.Time]int{base: 5}
		require.Empty(t, Consolidate(votes, 5, step, gap))
	})

	t.Run("single stamp", func(t *testing.T) {
		votes := map[time.Time]int{base: 6}
		events := Consolidate(votes, 5, step, gap)
		require.Len(t, events, 1)
		require.Equal(t, base, events[0].StartTs)
		require.Equal(t, base.Add(step), events[0].EndTs)
		require.EqualValues(t, 10, events[0].DurationSecs)
		require.Equal(t, 6, events[0].PeakSensors)
	})

	t.Run("stamps within merge gap collapse", func(t *testing.T) {
		votes := map[time.Time]int{
			base:                       6,
			base.Add(70 * time.Second): 8,
		}
		events := Consolidate(votes, 5, step, gap)
		require.Len(t, events, 1)
		require.Equal(t, base, events[0].StartTs)
		require.Equal(t, base.Add(80*time.Second), events[0].EndTs)
		require.EqualValues(t, 80, events[0].DurationSecs)
		require.Equal(t, 8, events[0].PeakSensors)
	})

	t.Run("stamps beyond merge gap split", func(t *testing.T) {
		votes := map[time.Time]int{
			base:                       6,
			base.Add(90 * time.Second): 7,
		}
		events := Consolidate(votes, 5, step, gap)
		require.Len(t, events, 2)
		require.EqualValues(t, 10, events[0].DurationSecs)
		require.EqualValues(t, 10, events[1].DurationSecs)
	})

	t.Run("empty votes", func(t *testing.T) {
		require.Nil(t, Consolidate(nil, 5, step, gap))
	})
}

func TestHalfWidth(t *testing.T) {
	sigma := &Detector{opts: Options{ThresholdPolicy: "sigma", SigmaMultiplier: 3, Buffer: 0.5}}
	require.Equal(t, 3*2.0+0.5, sigma.halfWidth(2.0))

	fixed := &Detector{opts: Options{ThresholdPolicy: "fixed", FixedBound: 7}}
	require.Equal(t, 7.0, fixed.halfWidth(2.0))
}

// spikeSeries is three seasons of a flat signal with one large spike near the
// end, one reading per resample bucket.
func spikeSeries(origin time.Time, step time.Duration, spikeBucket int) []model.SensorReading {
	var out []model.SensorReading
	for i := 0; i < 12; i++ {
		value := 5.0
		if i == spikeBucket {
			value = 100
		}
		out = append(out, model.SensorReading{Ts: origin.Add(time.Duration(i) * step), Value: value})
	}
	return out
}

func TestDetectorRunFlagsQuorumSpike(t *testing.T) {
	origin := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	step := 10 * time.Second
	const spikeBucket = 9

	readings := &fakeReadings{series: map[string][]model.SensorReading{}}
	for _, sensor := range model.AnalogSensors {
		readings.series[sensor] = spikeSeries(origin, step, spikeBucket)
	}
	results := &fakeResults{}
	events := &fakeEvents{}

	opts := Options{
		ThresholdPolicy: "fixed",
		FixedBound:      30,
		Quorum:          5,
		MergeGap:        time.Minute,
		Step:            step,
		MinHistory:      8,
		Forecast:        forecast.DefaultParams(4),
	}
	detector := New(readings, results, events, opts)

	summary, err := detector.Run(context.Background(), origin, origin.Add(2*time.Minute))
	require.NoError(t, err)
	require.Equal(t, len(model.AnalogSensors), summary.SensorsScored)
	require.Empty(t, summary.SensorsSkipped)
	require.Equal(t, 12*len(model.AnalogSensors), summary.ResultRows)

	require.Len(t, events.events, 1)
	event := events.events[0]
	require.Equal(t, origin.Add(spikeBucket*step), event.StartTs)
	require.Equal(t, origin.Add((spikeBucket+1)*step), event.EndTs)
	require.Equal(t, len(model.AnalogSensors), event.PeakSensors)
}

// A residual whose magnitude equals the band half-width stays in range;
// only strictly larger residuals are flagged.
func TestDetectorRunResidualAtBoundStaysInRange(t *testing.T) {
	origin := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	step := 10 * time.Second
	const spikeBucket = 9
	sensor := model.AnalogSensors[0]
	series := spikeSeries(origin, step, spikeBucket)
	params := forecast.DefaultParams(4)

	// Fit the same series the detector will see and set the fixed bound to
	// the exact residual at the spike.
	buckets := Resample(series, origin, step)
	values := make([]float64, len(buckets))
	for i, b := range buckets {
		values[i] = b.Value
	}
	fitted, err := forecast.Fit(values, params)
	require.NoError(t, err)
	bound := math.Abs(values[spikeBucket] - fitted.Fitted()[spikeBucket])

	run := func(fixedBound float64) (*fakeResults, *fakeEvents) {
		results := &fakeResults{}
		events := &fakeEvents{}
		detector := New(
			&fakeReadings{series: map[string][]model.SensorReading{sensor: series}},
			results, events,
			Options{
				ThresholdPolicy: "fixed",
				FixedBound:      fixedBound,
				Quorum:          0, // any flagged bucket would surface as an event
				MergeGap:        time.Minute,
				Step:            step,
				MinHistory:      8,
				Forecast:        params,
			},
		)
		_, err := detector.Run(context.Background(), origin, origin.Add(2*time.Minute))
		require.NoError(t, err)
		return results, events
	}

	results, events := run(bound)
	spikeRow := results.rows[spikeBucket]
	require.Equal(t, origin.Add(spikeBucket*step), spikeRow.Ts)
	require.Equal(t, bound, math.Abs(spikeRow.Residual))
	require.False(t, spikeRow.OutOfRange)
	require.Empty(t, events.events)

	// Shrinking the bound by one ulp puts the same residual out of range.
	results, events = run(math.Nextafter(bound, 0))
	require.True(t, results.rows[spikeBucket].OutOfRange)
	require.Len(t, events.events, 1)
}

func TestDetectorRunQuorumNotExceeded(t *testing.T) {
	origin := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	step := 10 * time.Second

	readings := &fakeReadings{series: map[string][]model.SensorReading{}}
	for _, sensor := range model.AnalogSensors {
		readings.series[sensor] = spikeSeries(origin, step, 9)
	}
	opts := Options{
		ThresholdPolicy: "fixed",
		FixedBound:      30,
		Quorum:          len(model.AnalogSensors), // every sensor votes, but not strictly more
		MergeGap:        time.Minute,
		Step:            step,
		MinHistory:      8,
		Forecast:        forecast.DefaultParams(4),
	}
	events := &fakeEvents{}
	detector := New(readings, &fakeResults{}, events, opts)

	summary, err := detector.Run(context.Background(), origin, origin.Add(2*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 0, summary.Events)
	require.Empty(t, events.events)
}

func TestDetectorRunSkipsShortSeries(t *testing.T) {
	origin := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	readings := &fakeReadings{series: map[string][]model.SensorReading{
		// Only one sensor has data, and not enough of it.
		model.AnalogSensors[0]: {{Ts: origin, Sensor: model.AnalogSensors[0], Value: 1}},
	}}
	opts := Options{
		ThresholdPolicy: "fixed",
		FixedBound:      30,
		Quorum:          5,
		MergeGap:        time.Minute,
		Step:            10 * time.Second,
		MinHistory:      8,
		Forecast:        forecast.DefaultParams(4),
	}
	detector := New(readings, &fakeResults{}, &fakeEvents{}, opts)

	summary, err := detector.Run(context.Background(), origin, origin.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 0, summary.SensorsScored)
	require.Len(t, summary.SensorsSkipped, len(model.AnalogSensors))
}
