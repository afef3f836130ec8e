package detect

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/railsense/railsense/internal/forecast"
	"github.com/railsense/railsense/internal/model"
)

// Trial is one candidate forecaster configuration with its holdout score.
type Trial struct {
	Index  int
	Params forecast.Params
	MAE    float64
	Err    error
}

type Tuner struct {
	readings ReadingSource
	step     time.Duration
	season   int
}

func NewTuner(readings ReadingSource, step time.Duration, seasonLength int) *Tuner {
	return &Tuner{readings: readings, step: step, season: seasonLength}
}

// Search runs a randomized hyperparameter sweep for one sensor on a worker
// pool. Candidate parameter sets are drawn up front from a seeded RNG, each
// trial is evaluated independently, and all workers finish before the best
// trial is chosen — so the result is reproducible for a fixed seed despite
// the parallelism. Exploration only: nothing here feeds production scoring
// unless the operator copies the winning parameters into the config.
func (t *Tuner) Search(ctx context.Context, sensor string, from, to time.Time, trials, workers int, seed int64) (*Trial, []Trial, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("sensor", sensor))
	series, err := t.readings.ListSeries(ctx, sensor, from, to)
	if err != nil {
		return nil, nil, err
	}
	buckets := Resample(series, from, t.step)
	if len(buckets) < 3*t.season {
		return nil, nil, fmt.Errorf("sensor %s: need %d points for tuning, have %d", sensor, 3*t.season, len(buckets))
	}
	values := make([]float64, len(buckets))
	for i, b := range buckets {
		values[i] = b.Value
	}
	// Last season held out for scoring.
	split := len(values) - t.season
	train, holdout := values[:split], values[split:]

	rng := rand.New(rand.NewSource(seed))
	candidates := make([]forecast.Params, trials)
	for i := range candidates {
		candidates[i] = forecast.Params{
			Alpha:        0.05 + 0.9*rng.Float64(),
			Beta:         0.1 * rng.Float64(),
			Gamma:        0.3 * rng.Float64(),
			SeasonLength: t.season,
		}
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, nil, err
	}
	defer pool.Release()

	results := make([]Trial, trials)
	var wg sync.WaitGroup
	for i, params := range candidates {
		i, params := i, params
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			results[i] = evaluate(i, params, train, holdout)
		})
		if submitErr != nil {
			wg.Done()
			results[i] = Trial{Index: i, Params: params, Err: submitErr}
		}
	}
	wg.Wait()

	var best *Trial
	for i := range results {
		if results[i].Err != nil {
			continue
		}
		if best == nil || results[i].MAE < best.MAE {
			best = &results[i]
		}
	}
	if best == nil {
		return nil, results, fmt.Errorf("sensor %s: all %d trials failed", sensor, trials)
	}
	logger.Info("tuning finished",
		zap.Int("trials", trials),
		zap.Int("best_trial", best.Index),
		zap.Float64("best_mae", best.MAE),
		zap.Float64("alpha", best.Params.Alpha),
		zap.Float64("beta", best.Params.Beta),
		zap.Float64("gamma", best.Params.Gamma),
	)
	return best, results, nil
}

func evaluate(index int, params forecast.Params, train, holdout []float64) Trial {
	trial := Trial{Index: index, Params: params}
	fitted, err := forecast.Fit(train, params)
	if err != nil {
		trial.Err = err
		return trial
	}
	preds := fitted.Forecast(len(holdout))
	var sum float64
	for i, actual := range holdout {
		sum += math.Abs(actual - preds[i])
	}
	trial.MAE = sum / float64(len(holdout))
	return trial
}

// TunableSensors filters requested names down to modeled analog sensors.
func TunableSensors(requested []string) []string {
	if len(requested) == 0 {
		return model.AnalogSensors
	}
	var out []string
	for _, name := range requested {
		if model.IsAnalogSensor(name) {
			out = append(out, name)
		}
	}
	return out
}
