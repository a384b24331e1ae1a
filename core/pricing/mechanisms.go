// Package pricing implements the LEM price mechanisms applied to one
// timestep's offer book.
package pricing

import (
	"fmt"
	"sort"

	"github.com/openrec/lemd/core/model"
)

// DefaultMMRDivisor halves the sum of the weighted average buy and sell
// prices, i.e. the mid-market rate.
const DefaultMMRDivisor = 2.0

// Params tunes the mechanisms that take parameters.
type Params struct {
	MMRDivisor      float64 // 0 means DefaultMMRDivisor
	SDRCompensation float64 // share of the spread paid to sellers when supply exceeds demand
}

// Price computes the LEM price of one timestep from its buy and sell offers.
// A timestep with an empty side clears at zero under every mechanism.
func Price(mech model.PricingMechanism, buys, sells []model.Offer, p Params) (float64, error) {
	if len(buys) == 0 || len(sells) == 0 {
		return 0, nil
	}
	switch mech {
	case model.MechanismMMR:
		return midMarketRate(buys, sells, p), nil
	case model.MechanismSDR:
		return supplyDemandRatio(buys, sells, p), nil
	case model.MechanismCrossingValue:
		return crossingValue(buys, sells), nil
	}
	return 0, fmt.Errorf("pricing: unknown mechanism %q", mech)
}

// weightedAverage is the amount-weighted mean offer price. Zero-amount books
// yield zero.
func weightedAverage(offers []model.Offer) float64 {
	var value, amount float64
	for _, o := range offers {
		value += o.Value * o.Amount
		amount += o.Amount
	}
	if amount == 0 {
		return 0
	}
	return value / amount
}

func totalAmount(offers []model.Offer) float64 {
	var sum float64
	for _, o := range offers {
		sum += o.Amount
	}
	return sum
}

func midMarketRate(buys, sells []model.Offer, p Params) float64 {
	div := p.MMRDivisor
	if div == 0 {
		div = DefaultMMRDivisor
	}
	return (weightedAverage(buys) + weightedAverage(sells)) / div
}

// supplyDemandRatio prices by the ratio r of offered supply to demand. While
// supply is scarce (r <= 1) the price interpolates hyperbolically between the
// average buy price at r=0 and the average sell price at r=1; with excess
// supply sellers receive the sell price plus a configured share of the
// spread.
func supplyDemandRatio(buys, sells []model.Offer, p Params) float64 {
	demand := totalAmount(buys)
	supply := totalAmount(sells)
	buyAvg := weightedAverage(buys)
	sellAvg := weightedAverage(sells)
	if demand == 0 {
		return sellAvg + p.SDRCompensation*(buyAvg-sellAvg)
	}
	r := supply / demand
	if r > 1 {
		return sellAvg + p.SDRCompensation*(buyAvg-sellAvg)
	}
	denom := (buyAvg-sellAvg)*r + sellAvg
	if denom == 0 {
		return 0
	}
	return buyAvg * sellAvg / denom
}

// crossingValue clears a uniform-price double auction: buys sorted by
// descending price, sells by ascending price, matched while the marginal buy
// still pays at least the marginal sell. The clearing price is the midpoint
// of the last matched pair. No crossing clears at zero.
func crossingValue(buys, sells []model.Offer) float64 {
	b := nonEmpty(buys)
	s := nonEmpty(sells)
	if len(b) == 0 || len(s) == 0 {
		return 0
	}
	sort.SliceStable(b, func(i, j int) bool { return b[i].Value > b[j].Value })
	sort.SliceStable(s, func(i, j int) bool { return s[i].Value < s[j].Value })

	var bi, si int
	var matched bool
	var lastBuy, lastSell float64
	remB, remS := b[0].Amount, s[0].Amount
	for bi < len(b) && si < len(s) && b[bi].Value >= s[si].Value {
		matched = true
		lastBuy, lastSell = b[bi].Value, s[si].Value
		q := remB
		if remS < q {
			q = remS
		}
		remB -= q
		remS -= q
		if remB == 0 {
			bi++
			if bi < len(b) {
				remB = b[bi].Amount
			}
		}
		if remS == 0 {
			si++
			if si < len(s) {
				remS = s[si].Amount
			}
		}
	}
	if !matched {
		return 0
	}
	return (lastBuy + lastSell) / 2
}

func nonEmpty(offers []model.Offer) []model.Offer {
	out := make([]model.Offer, 0, len(offers))
	for _, o := range offers {
		if o.Amount > 0 {
			out = append(out, o)
		}
	}
	return out
}
