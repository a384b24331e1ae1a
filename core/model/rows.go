package model

// Persisted result row families. Every row carries the owning order id as a
// foreign key in the store; rows are write-once and never updated.

// PriceRow is one LEM price point.
type PriceRow struct {
	Datetime string  `json:"datetime"`
	Value    float64 `json:"value"`
}

// OfferRow is one flattened buy or sell offer.
type OfferRow struct {
	Datetime string  `json:"datetime"`
	MeterID  string  `json:"meter_id"`
	Amount   float64 `json:"amount"`
	Value    float64 `json:"value"`
	Type     string  `json:"type"` // buy | sell
}

// GeneralRow holds the scalar outputs of one optimization run.
type GeneralRow struct {
	ObjectiveValue float64 `json:"objective_value"`
	MILPStatus     string  `json:"milp_status"`
	TotalRECCost   float64 `json:"total_rec_cost"`
}

// IndividualCostRow is the horizon cost of one meter.
type IndividualCostRow struct {
	MeterID        string  `json:"meter_id"`
	IndividualCost float64 `json:"individual_cost"`
}

// MeterInputRow is one (meter, timestep) input fed to the optimization.
type MeterInputRow struct {
	MeterID         string  `json:"meter_id"`
	Datetime        string  `json:"datetime"`
	EnergyGenerated float64 `json:"energy_generated"`
	EnergyConsumed  float64 `json:"energy_consumed"`
	BuyTariff       float64 `json:"buy_tariff"`
	SellTariff      float64 `json:"sell_tariff"`
}

// MeterOutputRow is one (meter, timestep) output of the optimization.
type MeterOutputRow struct {
	MeterID              string  `json:"meter_id"`
	Datetime             string  `json:"datetime"`
	EnergySurplus        float64 `json:"energy_surplus"`
	EnergySupplied       float64 `json:"energy_supplied"`
	NetLoad              float64 `json:"net_load"`
	BESSEnergyCharged    float64 `json:"bess_energy_charged"`
	BESSEnergyDischarged float64 `json:"bess_energy_discharged"`
	BESSEnergyContent    float64 `json:"bess_energy_content"`
}

// PoolTransactionRow is one (meter, timestep) aggregate LEM trade in pool
// organization.
type PoolTransactionRow struct {
	MeterID         string  `json:"meter_id"`
	Datetime        string  `json:"datetime"`
	EnergyPurchased float64 `json:"energy_purchased"`
	EnergySold      float64 `json:"energy_sold"`
}

// BilateralTransactionRow is one directed LEM trade in bilateral organization.
type BilateralTransactionRow struct {
	ProviderMeterID string  `json:"provider_meter_id"`
	ReceiverMeterID string  `json:"receiver_meter_id"`
	Datetime        string  `json:"datetime"`
	Energy          float64 `json:"energy"`
}

// PoolSCTariffRow is the self-consumption tariff of one timestep in pool
// organization.
type PoolSCTariffRow struct {
	Datetime              string  `json:"datetime"`
	SelfConsumptionTariff float64 `json:"self_consumption_tariff"`
}

// BilateralSCTariffRow is the self-consumption tariff of one directed meter
// pair at one timestep.
type BilateralSCTariffRow struct {
	Datetime              string  `json:"datetime"`
	SelfConsumptionTariff float64 `json:"self_consumption_tariff"`
	ProviderMeterID       string  `json:"provider_meter_id"`
	ReceiverMeterID       string  `json:"receiver_meter_id"`
}

// ResultRows bundles every row family an order can own. Vanilla orders use
// Prices and Offers only; MILP orders use everything except Offers.
type ResultRows struct {
	Prices                []PriceRow
	Offers                []OfferRow
	General               *GeneralRow
	IndividualCosts       []IndividualCostRow
	MeterInputs           []MeterInputRow
	MeterOutputs          []MeterOutputRow
	PoolTransactions      []PoolTransactionRow
	BilateralTransactions []BilateralTransactionRow
	PoolSCTariffs         []PoolSCTariffRow
	BilateralSCTariffs    []BilateralSCTariffRow
}
