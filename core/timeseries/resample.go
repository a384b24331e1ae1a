// Package timeseries provides the fixed-grid numerics used by the alignment
// engine: bucket resampling of irregular samples and gap filling by linear
// interpolation.
package timeseries

import (
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/interp"
)

// Aggregation selects how samples falling into the same grid bucket are
// combined. Power-type sources average, energy-type sources sum.
type Aggregation int

const (
	AggregateMean Aggregation = iota
	AggregateSum
)

// Sample is one raw timestamped value.
type Sample struct {
	Time  time.Time
	Value float64
}

// ErrAllMissing is returned by FillGaps when no bucket holds a known value.
var ErrAllMissing = errors.New("timeseries: no known values to interpolate from")

// Resample maps irregular samples onto a fixed grid of steps buckets starting
// at start. Bucket i covers [start+i*step, start+(i+1)*step). Buckets without
// samples hold NaN. Samples outside the grid are ignored.
func Resample(samples []Sample, start time.Time, steps int, step time.Duration, agg Aggregation) []float64 {
	sums := make([]float64, steps)
	counts := make([]int, steps)
	end := start.Add(time.Duration(steps) * step)
	for _, s := range samples {
		if s.Time.Before(start) || !s.Time.Before(end) {
			continue
		}
		i := int(s.Time.Sub(start) / step)
		sums[i] += s.Value
		counts[i]++
	}
	out := make([]float64, steps)
	for i := range out {
		switch {
		case counts[i] == 0:
			out[i] = math.NaN()
		case agg == AggregateMean:
			out[i] = sums[i] / float64(counts[i])
		default:
			out[i] = sums[i]
		}
	}
	return out
}

// FillGaps replaces NaN buckets by piecewise-linear interpolation between the
// nearest known buckets, extrapolating at the edges with the nearest known
// value. It returns the filled series and the number of buckets that were
// missing. The input slice is not modified.
func FillGaps(values []float64) ([]float64, int, error) {
	var xs, ys []float64
	for i, v := range values {
		if !math.IsNaN(v) {
			xs = append(xs, float64(i))
			ys = append(ys, v)
		}
	}
	missing := len(values) - len(xs)
	if len(xs) == 0 {
		return nil, missing, ErrAllMissing
	}
	out := make([]float64, len(values))
	if missing == 0 {
		copy(out, values)
		return out, 0, nil
	}
	if len(xs) == 1 {
		for i := range out {
			out[i] = ys[0]
		}
		return out, missing, nil
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return nil, missing, err
	}
	first, last := xs[0], xs[len(xs)-1]
	for i, v := range values {
		if !math.IsNaN(v) {
			out[i] = v
			continue
		}
		x := float64(i)
		if x < first {
			x = first
		} else if x > last {
			x = last
		}
		out[i] = pl.Predict(x)
	}
	return out, missing, nil
}
