package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrec/lemd/core/model"
)

func offers(pairs ...[2]float64) []model.Offer {
	out := make([]model.Offer, len(pairs))
	for i, p := range pairs {
		out[i] = model.Offer{Amount: p[0], Value: p[1]}
	}
	return out
}

func TestMidMarketRate(t *testing.T) {
	buys := offers([2]float64{2, 0.20}, [2]float64{2, 0.10})  // wavg 0.15
	sells := offers([2]float64{1, 0.04}, [2]float64{3, 0.08}) // wavg 0.07

	got, err := Price(model.MechanismMMR, buys, sells, Params{})
	require.NoError(t, err)
	assert.InDelta(t, (0.15+0.07)/2, got, 1e-9)

	got, err = Price(model.MechanismMMR, buys, sells, Params{MMRDivisor: 4})
	require.NoError(t, err)
	assert.InDelta(t, (0.15+0.07)/4, got, 1e-9)
}

func TestSupplyDemandRatioScarce(t *testing.T) {
	// demand 4, supply 2, r = 0.5
	buys := offers([2]float64{4, 0.20})
	sells := offers([2]float64{2, 0.05})

	got, err := Price(model.MechanismSDR, buys, sells, Params{})
	require.NoError(t, err)
	want := 0.20 * 0.05 / ((0.20-0.05)*0.5 + 0.05)
	assert.InDelta(t, want, got, 1e-9)
}

func TestSupplyDemandRatioBounds(t *testing.T) {
	buys := offers([2]float64{2, 0.20})

	// r = 1: price degenerates to the sell price.
	got, err := Price(model.MechanismSDR, buys, offers([2]float64{2, 0.05}), Params{})
	require.NoError(t, err)
	assert.InDelta(t, 0.05, got, 1e-9)

	// r > 1: sell price plus the compensated share of the spread.
	got, err = Price(model.MechanismSDR, buys, offers([2]float64{5, 0.05}), Params{SDRCompensation: 0.4})
	require.NoError(t, err)
	assert.InDelta(t, 0.05+0.4*0.15, got, 1e-9)
}

func TestCrossingValue(t *testing.T) {
	buys := offers([2]float64{1, 0.25}, [2]float64{2, 0.15})
	sells := offers([2]float64{1, 0.05}, [2]float64{1, 0.10}, [2]float64{3, 0.30})

	// Matches 1@0.25/0.05 then 1@0.15/0.10, then 0.30 asks exceed 0.15 bids.
	got, err := Price(model.MechanismCrossingValue, buys, sells, Params{})
	require.NoError(t, err)
	assert.InDelta(t, (0.15+0.10)/2, got, 1e-9)
}

func TestCrossingValueNoCrossing(t *testing.T) {
	buys := offers([2]float64{2, 0.05})
	sells := offers([2]float64{2, 0.10})
	got, err := Price(model.MechanismCrossingValue, buys, sells, Params{})
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestEmptySideClearsAtZero(t *testing.T) {
	for _, mech := range []model.PricingMechanism{
		model.MechanismMMR, model.MechanismSDR, model.MechanismCrossingValue,
	} {
		got, err := Price(mech, nil, offers([2]float64{1, 0.1}), Params{})
		require.NoError(t, err)
		assert.Zero(t, got, string(mech))

		got, err = Price(mech, offers([2]float64{1, 0.1}), nil, Params{})
		require.NoError(t, err)
		assert.Zero(t, got, string(mech))
	}
}

func TestUnknownMechanism(t *testing.T) {
	_, err := Price("vcg", offers([2]float64{1, 0.1}), offers([2]float64{1, 0.1}), Params{})
	assert.Error(t, err)
}
