package solver

import (
	"context"
	"fmt"
	"sort"

	"github.com/openrec/lemd/core/logger"
	"github.com/openrec/lemd/core/model"
)

// DefaultEngine schedules batteries greedily toward self-consumption, nets
// the community pool proportionally and, in bilateral organization, allocates
// the netted trades over directed pairs by linear programming.
type DefaultEngine struct {
	Log logger.Logger
}

// Solve runs the mode selected by the request. Dual mode derives prices in a
// single pass from the marginal tariffs of each timestep; loop mode iterates
// the selected pricing mechanism to a fixed point.
func (e *DefaultEngine) Solve(ctx context.Context, bp *model.Backpack, req Request) (*model.SolveResult, error) {
	if bp.Steps() == 0 {
		return nil, fmt.Errorf("solver: empty backpack")
	}
	var (
		prices     []float64
		iterations int
		criterion  float64
		err        error
	)
	switch req.Kind {
	case model.KindDual:
		prices = dualPrices(bp)
	case model.KindLoop:
		prices, iterations, criterion, err = e.iteratePrices(ctx, bp, req)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("solver: unsupported request kind %q", req.Kind)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	schedules := schedule(bp)
	purchased, sold := poolNetting(bp, schedules)

	res := &model.SolveResult{
		Status:     model.StatusOptimal,
		Prices:     prices,
		Meters:     make(map[string]*model.MeterResult, len(bp.Meters)),
		Iterations: iterations,
		Criterion:  criterion,
	}
	if bp.Organization == model.OrgBilateral {
		flows, err := allocateBilateral(bp, purchased, sold)
		if err != nil {
			return nil, fmt.Errorf("solver: bilateral allocation: %w", err)
		}
		res.BilateralFlows = flows
	}

	for id, s := range schedules {
		mr := &model.MeterResult{
			Supplied:         make([]float64, bp.Steps()),
			Surplus:          make([]float64, bp.Steps()),
			NetLoad:          s.net,
			BatteryCharge:    s.charge,
			BatteryDischarge: s.discharge,
			BatteryContent:   s.content,
			PoolPurchased:    purchased[id],
			PoolSold:         sold[id],
		}
		for i := range mr.Supplied {
			mr.Supplied[i] = s.supplied[i] - purchased[id][i]
			mr.Surplus[i] = s.surplus[i] - sold[id][i]
		}
		mr.Cost = meterCost(bp, id, s, mr, prices, res.BilateralFlows)
		res.Meters[id] = mr
	}
	res.Objective = res.TotalCost()
	return res, nil
}

// meterSchedule is the retailer-facing position of one meter before any LEM
// netting.
type meterSchedule struct {
	net       []float64 // consumption minus generation after battery operation
	supplied  []float64 // max(net, 0)
	surplus   []float64 // max(-net, 0)
	charge    []float64
	discharge []float64
	content   []float64
}

// schedule operates each battery greedily: store local surplus up to the SoC
// ceiling, discharge against local deficit down to the SoC floor.
func schedule(bp *model.Backpack) map[string]*meterSchedule {
	steps := bp.Steps()
	out := make(map[string]*meterSchedule, len(bp.Meters))
	for id, m := range bp.Meters {
		s := &meterSchedule{
			net:       make([]float64, steps),
			supplied:  make([]float64, steps),
			surplus:   make([]float64, steps),
			charge:    make([]float64, steps),
			discharge: make([]float64, steps),
			content:   make([]float64, steps),
		}
		var content float64
		if m.Storage != nil {
			content = m.Storage.InitialEnergy
		}
		for i := 0; i < steps; i++ {
			net := m.Consumption[i] - m.Generation[i]
			if st := m.Storage; st != nil {
				stepCap := st.MaxPowerKW * bp.DeltaT
				if net < 0 {
					headroom := (st.SoCMax*st.CapacityKWh - content) / st.ChargeEff
					c := clamp(-net, stepCap, headroom)
					content += c * st.ChargeEff
					net += c
					s.charge[i] = c
				} else if net > 0 {
					available := (content - st.SoCMin*st.CapacityKWh) * st.DischargeEff
					d := clamp(net, stepCap, available)
					content -= d / st.DischargeEff
					net -= d
					s.discharge[i] = d
				}
			}
			s.content[i] = content
			s.net[i] = net
			if net > 0 {
				s.supplied[i] = net
			} else {
				s.surplus[i] = -net
			}
		}
		out[id] = s
	}
	return out
}

// poolNetting matches community demand against community supply at each
// timestep, allocating the traded quantity proportionally to each side.
func poolNetting(bp *model.Backpack, schedules map[string]*meterSchedule) (purchased, sold map[string][]float64) {
	steps := bp.Steps()
	purchased = make(map[string][]float64, len(schedules))
	sold = make(map[string][]float64, len(schedules))
	for id := range schedules {
		purchased[id] = make([]float64, steps)
		sold[id] = make([]float64, steps)
	}
	for i := 0; i < steps; i++ {
		var demand, supply float64
		for _, s := range schedules {
			demand += s.supplied[i]
			supply += s.surplus[i]
		}
		traded := demand
		if supply < traded {
			traded = supply
		}
		if traded == 0 {
			continue
		}
		for id, s := range schedules {
			purchased[id][i] = s.supplied[i] * traded / demand
			sold[id][i] = s.surplus[i] * traded / supply
		}
	}
	return purchased, sold
}

// dualPrices prices each timestep at the midpoint of the marginal pair: the
// cheapest buy tariff among net buyers and the dearest sell tariff among net
// sellers. Timesteps without both sides clear at zero.
func dualPrices(bp *model.Backpack) []float64 {
	steps := bp.Steps()
	schedules := schedule(bp)
	prices := make([]float64, steps)
	for i := 0; i < steps; i++ {
		minBuy, maxSell := -1.0, -1.0
		for id, s := range schedules {
			m := bp.Meters[id]
			if s.supplied[i] > 0 && (minBuy < 0 || m.BuyTariff[i] < minBuy) {
				minBuy = m.BuyTariff[i]
			}
			if s.surplus[i] > 0 && (maxSell < 0 || m.SellTariff[i] > maxSell) {
				maxSell = m.SellTariff[i]
			}
		}
		if minBuy >= 0 && maxSell >= 0 {
			prices[i] = (minBuy + maxSell) / 2
		}
	}
	return prices
}

// meterCost accumulates the horizon cost of one meter: retailer purchases at
// the buy tariff, LEM purchases at the LEM price plus the grid tariff of the
// organization, retailer and LEM sales as revenue, battery cycling at the
// degradation cost and supplied energy beyond the contracted power band at
// the penalty price.
func meterCost(bp *model.Backpack, id string, s *meterSchedule, mr *model.MeterResult, prices []float64, flows map[string]map[string][]float64) float64 {
	m := bp.Meters[id]
	var cost float64
	for i := range prices {
		cost += mr.Supplied[i] * m.BuyTariff[i]
		cost -= mr.Surplus[i] * m.SellTariff[i]
		cost -= mr.PoolSold[i] * prices[i]
		if bp.Organization == model.OrgBilateral {
			for provider, series := range flows[id] {
				cost += series[i] * (prices[i] + bp.GridBilateral[id][provider][i])
			}
		} else {
			cost += mr.PoolPurchased[i] * (prices[i] + bp.GridPool[i])
		}
		if m.Storage != nil {
			cost += (s.charge[i] + s.discharge[i]) * m.Storage.DegradationCost
		}
		if over := mr.Supplied[i] - m.ContractedPower*bp.DeltaT; over > 0 {
			cost += over * bp.PenaltyExtra
		}
	}
	return cost
}

func clamp(v float64, limits ...float64) float64 {
	for _, l := range limits {
		if l < v {
			v = l
		}
	}
	if v < 0 {
		return 0
	}
	return v
}

func sortedIDs(m map[string]*model.BackpackMeter) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
