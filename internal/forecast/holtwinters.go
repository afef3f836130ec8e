// Package forecast implements additive Holt-Winters (triple exponential)
// smoothing with a single seasonal period. It stands in for the Prophet
// models of the research prototype: per-sensor trend plus daily seasonality,
// with residual spread driving the anomaly band.
package forecast

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

type Params struct {
	Alpha        float64 // level smoothing, (0, 1)
	Beta         float64 // trend smoothing, [0, 1)
	Gamma        float64 // seasonal smoothing, [0, 1)
	SeasonLength int     // points per seasonal cycle
}

func DefaultParams(seasonLength int) Params {
	return Params{
		Alpha:        0.25,
		Beta:         0.01,
		Gamma:        0.15,
		SeasonLength: seasonLength,
	}
}

func (p Params) validate() error {
	if p.SeasonLength < 2 {
		return fmt.Errorf("season length must be at least 2, got %d", p.SeasonLength)
	}
	if p.Alpha <= 0 || p.Alpha >= 1 {
		return fmt.Errorf("alpha must be in (0, 1), got %v", p.Alpha)
	}
	if p.Beta < 0 || p.Beta >= 1 {
		return fmt.Errorf("beta must be in [0, 1), got %v", p.Beta)
	}
	if p.Gamma < 0 || p.Gamma >= 1 {
		return fmt.Errorf("gamma must be in [0, 1), got %v", p.Gamma)
	}
	return nil
}

// ErrInsufficientHistory is returned when a series is too short to
// initialize the seasonal components.
type ErrInsufficientHistory struct {
	Have int
	Need int
}

func (e *ErrInsufficientHistory) Error() string {
	return fmt.Sprintf("insufficient history: have %d points, need %d", e.Have, e.Need)
}

type Model struct {
	params   Params
	level    float64
	trend    float64
	seasonal []float64
	phase    int // seasonal index of the next forecast step
	fitted   []float64
	residStd float64
}

// Fit runs the smoothing recursions over the series and records one-step-
// ahead fitted values. Needs at least two full seasons to initialize.
func Fit(values []float64, p Params) (*Model, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	m := p.SeasonLength
	if len(values) < 2*m {
		return nil, &ErrInsufficientHistory{Have: len(values), Need: 2 * m}
	}

	model := &Model{params: p}
	model.initComponents(values)

	fitted := make([]float64, len(values))
	residuals := make([]float64, 0, len(values)-m)
	for t, y := range values {
		si := t % m
		pred := model.level + model.trend + model.seasonal[si]
		fitted[t] = pred
		if t >= m {
			// Skip the first season: components are still settling.
			residuals = append(residuals, y-pred)
		}

		prevLevel := model.level
		model.level = p.Alpha*(y-model.seasonal[si]) + (1-p.Alpha)*(model.level+model.trend)
		model.trend = p.Beta*(model.level-prevLevel) + (1-p.Beta)*model.trend
		model.seasonal[si] = p.Gamma*(y-model.level) + (1-p.Gamma)*model.seasonal[si]
	}
	model.phase = len(values) % m
	model.fitted = fitted
	model.residStd = stat.StdDev(residuals, nil)
	return model, nil
}

// initComponents uses the classical two-season initialization: first-season
// mean as level, per-point difference of season means as trend, and mean
// deviation from the season mean as the seasonal profile.
func (model *Model) initComponents(values []float64) {
	m := model.params.SeasonLength
	firstMean := stat.Mean(values[:m], nil)
	secondMean := stat.Mean(values[m:2*m], nil)
	model.level = firstMean
	model.trend = (secondMean - firstMean) / float64(m)

	seasons := len(values) / m
	model.seasonal = make([]float64, m)
	for i := 0; i < m; i++ {
		var sum float64
		for k := 0; k < seasons; k++ {
			block := values[k*m : (k+1)*m]
			sum += values[k*m+i] - stat.Mean(block, nil)
		}
		model.seasonal[i] = sum / float64(seasons)
	}
}

// Fitted returns one-step-ahead in-sample predictions, aligned to the input.
func (model *Model) Fitted() []float64 {
	return model.fitted
}

// Forecast extrapolates steps points past the end of the fitted series.
func (model *Model) Forecast(steps int) []float64 {
	m := model.params.SeasonLength
	out := make([]float64, steps)
	for i := 0; i < steps; i++ {
		si := (model.phase + i) % m
		out[i] = model.level + float64(i+1)*model.trend + model.seasonal[si]
	}
	return out
}

// ResidualStd is the standard deviation of in-sample one-step residuals
// after the first-season warmup.
func (model *Model) ResidualStd() float64 {
	return model.residStd
}
