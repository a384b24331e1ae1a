package model

// DefaultContractedPower is assumed for meters without an explicit override,
// the maximum low-voltage contracted power in kVA.
const DefaultContractedPower = 41.4

// StorageParams describes a behind-the-meter battery asset.
type StorageParams struct {
	CapacityKWh     float64 // e_bn
	MaxPowerKW      float64 // charge and discharge limit
	SoCMin          float64 // fraction 0..1
	SoCMax          float64 // fraction 0..1
	ChargeEff       float64 // fraction 0..1
	DischargeEff    float64 // fraction 0..1
	DegradationCost float64 // cost per kWh cycled
	InitialEnergy   float64 // kWh at horizon start
}

// BackpackMeter bundles everything the optimization engine needs to know
// about one meter.
type BackpackMeter struct {
	Consumption     []float64
	Generation      []float64
	BuyTariff       []float64
	SellTariff      []float64
	ContractedPower float64
	Storage         *StorageParams // nil when the meter has no battery
}

// Backpack is the complete input bundle handed to the optimization engine.
// Built once per MILP-mode order and consumed exactly once.
type Backpack struct {
	Meters       map[string]*BackpackMeter
	Organization MarketOrganization
	DeltaT       float64 // hours per step
	HorizonHours float64
	PenaltyExtra float64 // cost of energy beyond contracted power

	// Self-consumption grid tariffs: GridPool applies in pool organization,
	// GridBilateral (receiver -> provider -> series, provider != receiver)
	// in bilateral organization.
	GridPool      []float64
	GridBilateral map[string]map[string][]float64

	LEMSeed    []float64 // initial LEM price vector
	MarketBuy  []float64 // upstream market buy price ceiling
	MarketSell []float64 // upstream market sell price floor

	StrictPosCoeffs bool
	SumOneCoeffs    bool
}

// Steps returns the number of timesteps in the backpack series.
func (b *Backpack) Steps() int {
	for _, m := range b.Meters {
		return len(m.Consumption)
	}
	return 0
}
