package solver

import (
	"context"
	"math"

	"github.com/openrec/lemd/core/model"
	"github.com/openrec/lemd/core/pricing"
)

const (
	defaultMaxIterations = 20
	defaultTolerance     = 1e-4
)

// iteratePrices runs the loop mode: schedule, rebuild the offer book from the
// scheduled positions, reprice with the selected mechanism, and repeat until
// the largest per-timestep price change drops below the tolerance or the
// iteration cap is hit. The last price vector is returned either way.
func (e *DefaultEngine) iteratePrices(ctx context.Context, bp *model.Backpack, req Request) ([]float64, int, float64, error) {
	maxIter := req.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}
	tol := req.Tolerance
	if tol <= 0 {
		tol = defaultTolerance
	}

	steps := bp.Steps()
	prices := make([]float64, steps)
	copy(prices, bp.LEMSeed)

	schedules := schedule(bp)
	buys, sells := scheduledOffers(bp, schedules)

	var criterion float64
	for it := 1; it <= maxIter; it++ {
		if err := ctx.Err(); err != nil {
			return nil, it, criterion, err
		}
		next := make([]float64, steps)
		for i := 0; i < steps; i++ {
			p, err := pricing.Price(req.Mechanism, buys[i], sells[i], req.Pricing)
			if err != nil {
				return nil, it, criterion, err
			}
			next[i] = clampPrice(p, bp.MarketSell[i], bp.MarketBuy[i])
		}
		criterion = 0
		for i := range next {
			if d := math.Abs(next[i] - prices[i]); d > criterion {
				criterion = d
			}
		}
		prices = next
		if criterion < tol {
			e.Log.Debugf("price loop converged after %d iterations (criterion %.6f)", it, criterion)
			return prices, it, criterion, nil
		}
	}
	e.Log.Warnf("price loop stopped at iteration cap %d (criterion %.6f)", maxIter, criterion)
	return prices, maxIter, criterion, nil
}

// scheduledOffers builds per-timestep offer books from post-battery meter
// positions, valued at the retail tariffs.
func scheduledOffers(bp *model.Backpack, schedules map[string]*meterSchedule) (buys, sells [][]model.Offer) {
	steps := bp.Steps()
	buys = make([][]model.Offer, steps)
	sells = make([][]model.Offer, steps)
	for _, id := range sortedIDs(bp.Meters) {
		m := bp.Meters[id]
		s := schedules[id]
		for i := 0; i < steps; i++ {
			if s.supplied[i] > 0 {
				buys[i] = append(buys[i], model.Offer{Origin: id, Amount: s.supplied[i], Value: m.BuyTariff[i]})
			}
			if s.surplus[i] > 0 {
				sells[i] = append(sells[i], model.Offer{Origin: id, Amount: s.surplus[i], Value: m.SellTariff[i]})
			}
		}
	}
	return buys, sells
}

// clampPrice keeps a LEM price inside the upstream market band.
func clampPrice(p, floor, ceiling float64) float64 {
	if p < floor {
		return floor
	}
	if p > ceiling {
		return ceiling
	}
	return p
}
