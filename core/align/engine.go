// Package align turns heterogeneous, gap-ridden, multi-source per-meter
// timeseries into the fixed-grid, gap-free, tariff-annotated dataset the
// pricing and optimization stages require.
package align

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openrec/lemd/core/logger"
	"github.com/openrec/lemd/core/metrics"
	"github.com/openrec/lemd/core/model"
	"github.com/openrec/lemd/core/registry"
	"github.com/openrec/lemd/core/timeseries"
)

// fetchConcurrency bounds how many meters are fetched and aligned at once.
const fetchConcurrency = 4

// Request describes one alignment run.
type Request struct {
	Origin registry.Origin
	Start  time.Time // first grid instant, inclusive
	End    time.Time // horizon end, exclusive at the grid boundary

	MeterIDs       []string
	SharedMeterIDs []string

	// Requested installed PV capacity per meter. Meters absent from the map
	// keep their registered capacity; shared meters default to zero.
	PVOverrides       map[string]float64
	SharedPVOverrides map[string]float64
}

// Aligner is the engine seen by the order worker; fakes implement it in
// tests.
type Aligner interface {
	Align(ctx context.Context, req Request) (*model.Dataset, *model.AvailabilityReport, error)
}

// Engine implements Aligner against a set of origin providers.
type Engine struct {
	Providers map[registry.Origin]Provider
	Estimator IrradianceEstimator
	Log       logger.Logger
	Sink      metrics.Sink
}

// Align fetches every requested meter from the origin, aligns each series
// onto the 15-minute grid and unions the per-meter frames into one dataset.
// Meters entirely absent from the source and instants still missing after
// interpolation are reported, not silently dropped.
func (e *Engine) Align(ctx context.Context, req Request) (*model.Dataset, *model.AvailabilityReport, error) {
	provider, ok := e.Providers[req.Origin]
	if !ok {
		return nil, nil, fmt.Errorf("align: unknown dataset origin %q", req.Origin)
	}
	horizon := model.Horizon(req.Start, req.End)
	if len(horizon) == 0 {
		return nil, nil, fmt.Errorf("align: empty horizon")
	}

	factors, err := e.generationFactors(ctx, req, horizon)
	if err != nil {
		return nil, nil, fmt.Errorf("align: irradiance estimate: %w", err)
	}

	ds := &model.Dataset{
		Horizon: horizon,
		Meters:  make(map[string]*model.MeterSeries),
	}
	report := &model.AvailabilityReport{
		MissingTimestamps: make(map[string][]time.Time),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for _, meterID := range req.MeterIDs {
		meterID := meterID
		g.Go(func() error {
			series, err := e.alignMeter(gctx, provider, req, meterID, horizon, factors)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if series == nil {
				report.MissingMeters = append(report.MissingMeters, meterID)
				return nil
			}
			ds.Meters[meterID] = series
			report.MissingTimestamps[meterID] = missingInstants(series, horizon)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	sort.Strings(report.MissingMeters)

	for _, meterID := range req.SharedMeterIDs {
		ds.Meters[meterID] = e.sharedSeries(meterID, horizon, factors, req.SharedPVOverrides[meterID])
	}
	ds.SelfConsumption = make([]float64, len(horizon))
	for i, t := range horizon {
		ds.SelfConsumption[i] = registry.SelfConsumptionTariff(t)
	}
	return ds, report, nil
}

// alignMeter runs the per-meter pipeline. A nil series with nil error means
// the meter is absent from the source.
func (e *Engine) alignMeter(ctx context.Context, provider Provider, req Request, meterID string, horizon []time.Time, factors []float64) (*model.MeterSeries, error) {
	reg, ok := registry.Lookup(req.Origin, meterID)
	if !ok {
		return nil, nil
	}
	profile := provider.Profile()

	// One grid step of buffer at each end supports interpolation at the
	// horizon boundaries; it is trimmed after gap filling.
	bufStart := req.Start.Add(-model.GridStep)
	bufSteps := len(horizon) + 2

	raw, err := provider.Fetch(ctx, meterID, bufStart, req.End.Add(model.GridStep))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", meterID, err)
	}
	samples := make([]timeseries.Sample, 0, len(raw))
	for _, s := range raw {
		if s.Unit != profile.Unit {
			continue
		}
		samples = append(samples, timeseries.Sample{Time: s.Time, Value: s.Value})
	}
	if len(samples) == 0 {
		return nil, nil
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Time.Before(samples[j].Time) })

	agg := timeseries.AggregateMean
	if profile.Kind == KindEnergy {
		agg = timeseries.AggregateSum
	}
	buckets := timeseries.Resample(samples, bufStart, bufSteps, model.GridStep, agg)
	filled, missing, err := timeseries.FillGaps(buckets)
	if err != nil {
		return nil, nil
	}
	if missing > 0 {
		frac := interpolatedFraction(buckets)
		e.Log.Warnf("[%s] missing %5.2f%% of values after resampling to 15', applying interpolation", meterID, frac*100)
		if e.Sink != nil {
			e.Sink.RecordInterpolation(string(req.Origin), meterID, frac)
		}
	}

	// Trim the buffer, leaving exactly the requested horizon.
	net := filled[1 : len(horizon)+1]
	series := &model.MeterSeries{
		MeterID:     meterID,
		Consumption: make([]float64, len(horizon)),
		Generation:  make([]float64, len(horizon)),
		BuyTariff:   make([]float64, len(horizon)),
		SellTariff:  make([]float64, len(horizon)),
	}
	for i, v := range net {
		if profile.Kind == KindPower {
			v *= model.StepHours / 1000 // W over one step to kWh
		}
		if v >= 0 {
			series.Consumption[i] = v
		} else {
			series.Generation[i] = -v
		}
	}

	requested, overridden := req.PVOverrides[meterID]
	capacity := reg.RegisteredPV
	if overridden {
		capacity = requested
	}
	if reg.RegisteredPV == 0 {
		// No registered PV asset: the generation profile comes entirely from
		// the irradiance model, scaled by the requested capacity.
		for i := range series.Generation {
			series.Generation[i] = factors[i] * capacity
		}
	} else {
		// Normalize measured generation by the registered capacity to a 0..1
		// factor, then rescale by the capacity requested for this run.
		for i := range series.Generation {
			series.Generation[i] = series.Generation[i] / (reg.RegisteredPV * model.StepHours) * capacity
		}
	}

	for i, t := range horizon {
		series.BuyTariff[i] = registry.BuyTariff(reg.Cycle, t)
		series.SellTariff[i] = series.BuyTariff[i] * registry.SellTariffFraction
	}
	return series, nil
}

// sharedSeries synthesizes the frame of a new shared meter: zero consumption
// and model-derived generation scaled by the requested capacity.
func (e *Engine) sharedSeries(meterID string, horizon []time.Time, factors []float64, capacity float64) *model.MeterSeries {
	series := &model.MeterSeries{
		MeterID:     meterID,
		Consumption: make([]float64, len(horizon)),
		Generation:  make([]float64, len(horizon)),
		BuyTariff:   make([]float64, len(horizon)),
		SellTariff:  make([]float64, len(horizon)),
	}
	for i, t := range horizon {
		series.Generation[i] = factors[i] * capacity
		series.BuyTariff[i] = registry.BuyTariff(registry.SharedMeterCycle, t)
		series.SellTariff[i] = series.BuyTariff[i] * registry.SellTariffFraction
	}
	return series
}

// generationFactors fetches the irradiance model output once per request when
// any meter needs it.
func (e *Engine) generationFactors(ctx context.Context, req Request, horizon []time.Time) ([]float64, error) {
	needed := len(req.SharedMeterIDs) > 0
	if !needed {
		for _, id := range req.MeterIDs {
			if reg, ok := registry.Lookup(req.Origin, id); ok && reg.RegisteredPV == 0 {
				needed = true
				break
			}
		}
	}
	if !needed {
		return make([]float64, len(horizon)), nil
	}
	return e.Estimator.GenerationFactors(ctx, registry.Site(req.Origin), horizon)
}

// missingInstants scans a finished series for grid instants without a value.
// Empty after a correct alignment; a non-empty result signals a defect and is
// surfaced by the caller.
func missingInstants(s *model.MeterSeries, horizon []time.Time) []time.Time {
	var missing []time.Time
	for i := range horizon {
		if math.IsNaN(s.Consumption[i]) || math.IsNaN(s.Generation[i]) {
			missing = append(missing, horizon[i])
		}
	}
	return missing
}

func interpolatedFraction(buckets []float64) float64 {
	if len(buckets) <= 2 {
		return 0
	}
	inner := buckets[1 : len(buckets)-1]
	var n int
	for _, v := range inner {
		if math.IsNaN(v) {
			n++
		}
	}
	return float64(n) / float64(len(inner))
}
