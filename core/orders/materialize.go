package orders

import (
	"math"
	"sort"
	"time"

	"github.com/openrec/lemd/core/model"
)

// Materialization flattens in-memory results into persisted row families and
// reassembles the nested response shapes from them on read. Prices and
// energies are rounded at this boundary only; the solver keeps full
// precision.

const (
	priceDecimals  = 3
	energyDecimals = 3
)

func round(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}

func stamp(t time.Time) string {
	return t.UTC().Format(model.TimeLayout)
}

// FlattenVanilla turns a priced offer book into price and offer rows.
func FlattenVanilla(horizon []time.Time, prices []float64, book *model.OfferBook) *model.ResultRows {
	rows := &model.ResultRows{}
	for i, t := range horizon {
		dt := stamp(t)
		rows.Prices = append(rows.Prices, model.PriceRow{Datetime: dt, Value: round(prices[i], priceDecimals)})
		for _, o := range book.Buys[i] {
			rows.Offers = append(rows.Offers, model.OfferRow{
				Datetime: dt,
				MeterID:  o.Origin,
				Amount:   round(o.Amount, energyDecimals),
				Value:    round(o.Value, priceDecimals),
				Type:     "buy",
			})
		}
		for _, o := range book.Sells[i] {
			rows.Offers = append(rows.Offers, model.OfferRow{
				Datetime: dt,
				MeterID:  o.Origin,
				Amount:   round(o.Amount, energyDecimals),
				Value:    round(o.Value, priceDecimals),
				Type:     "sell",
			})
		}
	}
	return rows
}

// FlattenMILP turns an optimization result and its input dataset into the
// persisted row families of a dual or loop order.
func FlattenMILP(ds *model.Dataset, res *model.SolveResult, org model.MarketOrganization) *model.ResultRows {
	rows := &model.ResultRows{
		General: &model.GeneralRow{
			ObjectiveValue: round(res.Objective, priceDecimals),
			MILPStatus:     string(res.Status),
			TotalRECCost:   round(res.TotalCost(), priceDecimals),
		},
	}
	ids := ds.MeterIDs()
	for _, id := range ids {
		rows.IndividualCosts = append(rows.IndividualCosts, model.IndividualCostRow{
			MeterID:        id,
			IndividualCost: round(res.Meters[id].Cost, priceDecimals),
		})
	}
	for i, t := range ds.Horizon {
		dt := stamp(t)
		rows.Prices = append(rows.Prices, model.PriceRow{Datetime: dt, Value: round(res.Prices[i], priceDecimals)})
		for _, id := range ids {
			s := ds.Meters[id]
			m := res.Meters[id]
			rows.MeterInputs = append(rows.MeterInputs, model.MeterInputRow{
				MeterID:         id,
				Datetime:        dt,
				EnergyGenerated: round(s.Generation[i], energyDecimals),
				EnergyConsumed:  round(s.Consumption[i], energyDecimals),
				BuyTariff:       round(s.BuyTariff[i], priceDecimals),
				SellTariff:      round(s.SellTariff[i], priceDecimals),
			})
			rows.MeterOutputs = append(rows.MeterOutputs, model.MeterOutputRow{
				MeterID:              id,
				Datetime:             dt,
				EnergySurplus:        round(m.Surplus[i], energyDecimals),
				EnergySupplied:       round(m.Supplied[i], energyDecimals),
				NetLoad:              round(m.NetLoad[i], energyDecimals),
				BESSEnergyCharged:    round(m.BatteryCharge[i], energyDecimals),
				BESSEnergyDischarged: round(m.BatteryDischarge[i], energyDecimals),
				BESSEnergyContent:    round(m.BatteryContent[i], energyDecimals),
			})
		}
		if org == model.OrgBilateral {
			for _, receiver := range ids {
				for _, provider := range ids {
					series, ok := res.BilateralFlows[receiver][provider]
					if !ok || series[i] == 0 {
						continue
					}
					rows.BilateralTransactions = append(rows.BilateralTransactions, model.BilateralTransactionRow{
						ProviderMeterID: provider,
						ReceiverMeterID: receiver,
						Datetime:        dt,
						Energy:          round(series[i], energyDecimals),
					})
				}
				for _, provider := range ids {
					if provider == receiver {
						continue
					}
					rows.BilateralSCTariffs = append(rows.BilateralSCTariffs, model.BilateralSCTariffRow{
						Datetime:              dt,
						SelfConsumptionTariff: round(ds.SelfConsumption[i], priceDecimals),
						ProviderMeterID:       provider,
						ReceiverMeterID:       receiver,
					})
				}
			}
		} else {
			for _, id := range ids {
				m := res.Meters[id]
				rows.PoolTransactions = append(rows.PoolTransactions, model.PoolTransactionRow{
					MeterID:         id,
					Datetime:        dt,
					EnergyPurchased: round(m.PoolPurchased[i], energyDecimals),
					EnergySold:      round(m.PoolSold[i], energyDecimals),
				})
			}
			rows.PoolSCTariffs = append(rows.PoolSCTariffs, model.PoolSCTariffRow{
				Datetime:              dt,
				SelfConsumptionTariff: round(ds.SelfConsumption[i], priceDecimals),
			})
		}
	}
	return rows
}

// AssembleVanilla rebuilds the vanilla response body from persisted rows.
func AssembleVanilla(orderID string, rows *model.ResultRows) *model.VanillaOutputs {
	return &model.VanillaOutputs{
		OrderID:   orderID,
		LEMPrices: rows.Prices,
		Offers:    rows.Offers,
	}
}

// AssembleMILP rebuilds the dual/loop response body from persisted rows.
// Bilateral flows are aggregated into per-meter bought and sold positions so
// both organizations answer with the same transaction shape.
func AssembleMILP(orderID string, org model.MarketOrganization, rows *model.ResultRows) *model.MILPOutputs {
	out := &model.MILPOutputs{
		OrderID:         orderID,
		IndividualCosts: rows.IndividualCosts,
		MeterInputs:     rows.MeterInputs,
		MeterOutputs:    rows.MeterOutputs,
		LEMPrices:       rows.Prices,
	}
	if rows.General != nil {
		out.ObjectiveValue = rows.General.ObjectiveValue
		out.MILPStatus = rows.General.MILPStatus
		out.TotalRECCost = rows.General.TotalRECCost
	}
	if org == model.OrgBilateral {
		out.LEMTransactions = aggregateBilateral(rows.BilateralTransactions)
		for _, r := range rows.BilateralSCTariffs {
			out.SelfConsumptionTariff = append(out.SelfConsumptionTariff, model.SCTariffOutput{
				Datetime:              r.Datetime,
				SelfConsumptionTariff: r.SelfConsumptionTariff,
				ProviderMeterID:       r.ProviderMeterID,
				ReceiverMeterID:       r.ReceiverMeterID,
			})
		}
	} else {
		for _, r := range rows.PoolTransactions {
			out.LEMTransactions = append(out.LEMTransactions, model.TransactionOutput{
				MeterID:         r.MeterID,
				Datetime:        r.Datetime,
				EnergyPurchased: r.EnergyPurchased,
				EnergySold:      r.EnergySold,
				SoldPosition:    round(r.EnergySold-r.EnergyPurchased, energyDecimals),
			})
		}
		for _, r := range rows.PoolSCTariffs {
			out.SelfConsumptionTariff = append(out.SelfConsumptionTariff, model.SCTariffOutput{
				Datetime:              r.Datetime,
				SelfConsumptionTariff: r.SelfConsumptionTariff,
			})
		}
	}
	return out
}

// aggregateBilateral folds directed trades into per-meter totals: a receiver
// purchased the energy, a provider sold it.
func aggregateBilateral(trades []model.BilateralTransactionRow) []model.TransactionOutput {
	type key struct {
		meter    string
		datetime string
	}
	agg := make(map[key]*model.TransactionOutput)
	var order []key
	touch := func(k key) *model.TransactionOutput {
		if t, ok := agg[k]; ok {
			return t
		}
		t := &model.TransactionOutput{MeterID: k.meter, Datetime: k.datetime}
		agg[k] = t
		order = append(order, k)
		return t
	}
	for _, tr := range trades {
		touch(key{tr.ReceiverMeterID, tr.Datetime}).EnergyPurchased += tr.Energy
		touch(key{tr.ProviderMeterID, tr.Datetime}).EnergySold += tr.Energy
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].datetime != order[j].datetime {
			return order[i].datetime < order[j].datetime
		}
		return order[i].meter < order[j].meter
	})
	out := make([]model.TransactionOutput, 0, len(order))
	for _, k := range order {
		t := agg[k]
		t.EnergyPurchased = round(t.EnergyPurchased, energyDecimals)
		t.EnergySold = round(t.EnergySold, energyDecimals)
		t.SoldPosition = round(t.EnergySold-t.EnergyPurchased, energyDecimals)
		out = append(out, *t)
	}
	return out
}
