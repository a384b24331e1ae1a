package align

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrec/lemd/core/model"
	"github.com/openrec/lemd/core/registry"
	"github.com/openrec/lemd/infra/logger"
)

type fakeProvider struct {
	profile SourceProfile
	data    map[string][]RawSample
}

func (p *fakeProvider) Profile() SourceProfile { return p.profile }

func (p *fakeProvider) Fetch(_ context.Context, meterID string, start, end time.Time) ([]RawSample, error) {
	var out []RawSample
	for _, s := range p.data[meterID] {
		if !s.Time.Before(start) && s.Time.Before(end) {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeEstimator struct {
	factor float64
}

func (e *fakeEstimator) GenerationFactors(_ context.Context, _ registry.Location, horizon []time.Time) ([]float64, error) {
	out := make([]float64, len(horizon))
	for i := range out {
		out[i] = e.factor
	}
	return out, nil
}

// powerSamples emits one W sample every five minutes over [start, end).
func powerSamples(start, end time.Time, watts float64) []RawSample {
	var out []RawSample
	for t := start; t.Before(end); t = t.Add(5 * time.Minute) {
		out = append(out, RawSample{Time: t, Value: watts, Unit: "W"})
	}
	return out
}

func newEngine(p Provider) *Engine {
	return &Engine{
		Providers: map[registry.Origin]Provider{registry.OriginINDATA: p, registry.OriginSEL: p},
		Estimator: &fakeEstimator{factor: 0.1},
		Log:       logger.NopLogger{},
	}
}

func TestAlignPowerOrigin(t *testing.T) {
	start := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	p := &fakeProvider{
		profile: SourceProfile{Unit: "W", Kind: KindPower},
		data: map[string][]RawSample{
			"0cb815fd4dec": powerSamples(start.Add(-model.GridStep), end.Add(model.GridStep), 2000),
		},
	}
	ds, report, err := newEngine(p).Align(context.Background(), Request{
		Origin:   registry.OriginINDATA,
		Start:    start,
		End:      end,
		MeterIDs: []string{"0cb815fd4dec"},
	})
	require.NoError(t, err)
	require.True(t, report.Clean())
	require.Len(t, ds.Horizon, 4)

	series := ds.Meters["0cb815fd4dec"]
	require.NotNil(t, series)
	for i := range ds.Horizon {
		// 2000 W sustained over a quarter hour is 0.5 kWh.
		assert.InDelta(t, 0.5, series.Consumption[i], 1e-9)
		assert.Zero(t, series.Generation[i])
		assert.InDelta(t, 0.1529, series.BuyTariff[i], 1e-9)
		assert.InDelta(t, series.BuyTariff[i]*0.25, series.SellTariff[i], 1e-9)
	}
	assert.Len(t, ds.SelfConsumption, 4)
	assert.InDelta(t, 0.0245, ds.SelfConsumption[0], 1e-9)
}

func TestAlignInterpolatesGaps(t *testing.T) {
	start := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	// Samples only at the buffered edges and the first horizon bucket; the
	// remaining buckets must be filled by interpolation.
	samples := []RawSample{
		{Time: start.Add(-10 * time.Minute), Value: 1000, Unit: "W"},
		{Time: start.Add(2 * time.Minute), Value: 1000, Unit: "W"},
		{Time: end.Add(5 * time.Minute), Value: 3000, Unit: "W"},
	}
	p := &fakeProvider{
		profile: SourceProfile{Unit: "W", Kind: KindPower},
		data:    map[string][]RawSample{"0cb815fd4dec": samples},
	}
	ds, report, err := newEngine(p).Align(context.Background(), Request{
		Origin:   registry.OriginINDATA,
		Start:    start,
		End:      end,
		MeterIDs: []string{"0cb815fd4dec"},
	})
	require.NoError(t, err)
	require.True(t, report.Clean())

	series := ds.Meters["0cb815fd4dec"]
	for i := range ds.Horizon {
		assert.False(t, math.IsNaN(series.Consumption[i]), "bucket %d not filled", i)
	}
	// The filled series rises monotonically between the two known values.
	for i := 1; i < len(ds.Horizon); i++ {
		assert.GreaterOrEqual(t, series.Consumption[i], series.Consumption[i-1])
	}
}

func TestAlignReportsAbsentMeters(t *testing.T) {
	start := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	p := &fakeProvider{
		profile: SourceProfile{Unit: "W", Kind: KindPower},
		data: map[string][]RawSample{
			"0cb815fd4dec": powerSamples(start.Add(-model.GridStep), end.Add(model.GridStep), 500),
		},
	}
	ds, report, err := newEngine(p).Align(context.Background(), Request{
		Origin:   registry.OriginINDATA,
		Start:    start,
		End:      end,
		MeterIDs: []string{"0cb815fd4dec", "0cb815fd4bcc", "not-a-meter"},
	})
	require.NoError(t, err)
	assert.False(t, report.Clean())
	// 0cb815fd4bcc is registered but has no data, not-a-meter is unregistered.
	assert.Equal(t, []string{"0cb815fd4bcc", "not-a-meter"}, report.MissingMeters)
	assert.Contains(t, ds.Meters, "0cb815fd4dec")
}

func TestAlignWrongUnitSamplesIgnored(t *testing.T) {
	start := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	p := &fakeProvider{
		profile: SourceProfile{Unit: "W", Kind: KindPower},
		data: map[string][]RawSample{
			"0cb815fd4dec": {{Time: start, Value: 42, Unit: "V"}},
		},
	}
	_, report, err := newEngine(p).Align(context.Background(), Request{
		Origin:   registry.OriginINDATA,
		Start:    start,
		End:      end,
		MeterIDs: []string{"0cb815fd4dec"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"0cb815fd4dec"}, report.MissingMeters)
}

func TestAlignSharedMeter(t *testing.T) {
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	p := &fakeProvider{profile: SourceProfile{Unit: "kWh", Kind: KindEnergy}}
	e := newEngine(p)
	ds, report, err := e.Align(context.Background(), Request{
		Origin:            registry.OriginSEL,
		Start:             start,
		End:               end,
		SharedMeterIDs:    []string{"community-pv"},
		SharedPVOverrides: map[string]float64{"community-pv": 20},
	})
	require.NoError(t, err)
	require.True(t, report.Clean())

	series := ds.Meters["community-pv"]
	require.NotNil(t, series)
	for i := range ds.Horizon {
		assert.Zero(t, series.Consumption[i])
		assert.InDelta(t, 0.1*20, series.Generation[i], 1e-9)
		assert.InDelta(t, 0.1529, series.BuyTariff[i], 1e-9)
	}
}

func TestAlignPVNormalization(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	// 0c7886733863 has 6 kWp registered. Constant net generation of 6000 W
	// means eg = 1.5 kWh per step, a normalized factor of 1.0 per step.
	p := &fakeProvider{
		profile: SourceProfile{Unit: "W", Kind: KindPower},
		data: map[string][]RawSample{
			"0c7886733863": powerSamples(start.Add(-model.GridStep), end.Add(model.GridStep), -6000),
		},
	}
	ds, report, err := newEngine(p).Align(context.Background(), Request{
		Origin:      registry.OriginSEL,
		Start:       start,
		End:         end,
		MeterIDs:    []string{"0c7886733863"},
		PVOverrides: map[string]float64{"0c7886733863": 12},
	})
	require.NoError(t, err)
	require.True(t, report.Clean())

	series := ds.Meters["0c7886733863"]
	for i := range ds.Horizon {
		// Factor 1.0 rescaled to the requested 12 kWp capacity.
		assert.InDelta(t, 12.0, series.Generation[i], 1e-9)
		assert.Zero(t, series.Consumption[i])
	}
}

func TestAlignMeterWithoutPVUsesIrradianceModel(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	// 00e61ee19628 has no registered PV; with an override the generation
	// profile comes from the irradiance model.
	p := &fakeProvider{
		profile: SourceProfile{Unit: "kWh", Kind: KindEnergy},
		data: map[string][]RawSample{
			"00e61ee19628": {
				{Time: start.Add(-5 * time.Minute), Value: 0.2, Unit: "kWh"},
				{Time: start, Value: 0.2, Unit: "kWh"},
				{Time: start.Add(model.GridStep), Value: 0.3, Unit: "kWh"},
				{Time: end, Value: 0.2, Unit: "kWh"},
			},
		},
	}
	ds, report, err := newEngine(p).Align(context.Background(), Request{
		Origin:      registry.OriginSEL,
		Start:       start,
		End:         end,
		MeterIDs:    []string{"00e61ee19628"},
		PVOverrides: map[string]float64{"00e61ee19628": 5},
	})
	require.NoError(t, err)
	require.True(t, report.Clean())

	series := ds.Meters["00e61ee19628"]
	for i := range ds.Horizon {
		assert.InDelta(t, 0.1*5, series.Generation[i], 1e-9)
	}
	assert.InDelta(t, 0.2, series.Consumption[0], 1e-9)
	assert.InDelta(t, 0.3, series.Consumption[1], 1e-9)
}
