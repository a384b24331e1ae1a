package market

import (
	"github.com/openrec/lemd/core/model"
)

// Penalty price applied to supplied energy beyond the contracted power band,
// and the upstream market price band closing the LEM: buying upstream is
// expensive, selling upstream pays nothing.
const (
	penaltyExtra    = 10.0
	marketBuyPrice  = 10.0
	marketSellPrice = 0.0
)

// BackpackOptions carries the per-order knobs of the optimization input.
type BackpackOptions struct {
	Organization    model.MarketOrganization
	ContractedPower map[string]float64             // kVA per meter, default applied when absent
	Storage         map[string]*model.StorageParams // nil entries mean no battery
}

// BuildBackpack assembles the optimization input bundle from an aligned
// dataset. Series are referenced, not copied; the dataset must not be mutated
// afterwards.
func BuildBackpack(ds *model.Dataset, opts BackpackOptions) *model.Backpack {
	steps := len(ds.Horizon)
	bp := &model.Backpack{
		Meters:          make(map[string]*model.BackpackMeter, len(ds.Meters)),
		Organization:    opts.Organization,
		DeltaT:          model.StepHours,
		HorizonHours:    float64(steps) * model.StepHours,
		PenaltyExtra:    penaltyExtra,
		LEMSeed:         make([]float64, steps),
		MarketBuy:       constantSeries(steps, marketBuyPrice),
		MarketSell:      constantSeries(steps, marketSellPrice),
		StrictPosCoeffs: true,
		SumOneCoeffs:    true,
	}
	for _, id := range ds.MeterIDs() {
		s := ds.Meters[id]
		contracted := model.DefaultContractedPower
		if v, ok := opts.ContractedPower[id]; ok {
			contracted = v
		}
		bp.Meters[id] = &model.BackpackMeter{
			Consumption:     s.Consumption,
			Generation:      s.Generation,
			BuyTariff:       s.BuyTariff,
			SellTariff:      s.SellTariff,
			ContractedPower: contracted,
			Storage:         opts.Storage[id],
		}
	}
	switch opts.Organization {
	case model.OrgBilateral:
		// Every directed provider -> receiver pair shares the same grid
		// tariff series today; the structure allows pair-specific tariffs.
		bp.GridBilateral = make(map[string]map[string][]float64)
		for _, receiver := range ds.MeterIDs() {
			bp.GridBilateral[receiver] = make(map[string][]float64)
			for _, provider := range ds.MeterIDs() {
				if provider == receiver {
					continue
				}
				bp.GridBilateral[receiver][provider] = ds.SelfConsumption
			}
		}
	default:
		bp.GridPool = ds.SelfConsumption
	}
	return bp
}

func constantSeries(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
