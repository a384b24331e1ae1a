package model

// Nested response shapes reassembled from persisted rows on read.

// VanillaOutputs is the 200 response body of a completed vanilla order.
type VanillaOutputs struct {
	OrderID   string     `json:"order_id"`
	LEMPrices []PriceRow `json:"lem_prices"`
	Offers    []OfferRow `json:"offers"`
}

// TransactionOutput is one per-meter aggregate LEM trade with its derived net
// sold position. Bilateral flows are aggregated into this same shape.
type TransactionOutput struct {
	MeterID         string  `json:"meter_id"`
	Datetime        string  `json:"datetime"`
	EnergyPurchased float64 `json:"energy_purchased"`
	EnergySold      float64 `json:"energy_sold"`
	SoldPosition    float64 `json:"sold_position"`
}

// SCTariffOutput is one self-consumption tariff entry. Provider and receiver
// are empty in pool organization.
type SCTariffOutput struct {
	Datetime              string  `json:"datetime"`
	SelfConsumptionTariff float64 `json:"self_consumption_tariff"`
	ProviderMeterID       string  `json:"provider_meter_id,omitempty"`
	ReceiverMeterID       string  `json:"receiver_meter_id,omitempty"`
}

// MILPOutputs is the 200 response body of a completed dual or loop order.
type MILPOutputs struct {
	OrderID               string              `json:"order_id"`
	ObjectiveValue        float64             `json:"objective_value"`
	MILPStatus            string              `json:"milp_status"`
	TotalRECCost          float64             `json:"total_rec_cost"`
	IndividualCosts       []IndividualCostRow `json:"individual_costs"`
	MeterInputs           []MeterInputRow     `json:"meter_inputs"`
	MeterOutputs          []MeterOutputRow    `json:"meter_outputs"`
	LEMTransactions       []TransactionOutput `json:"lem_transactions"`
	LEMPrices             []PriceRow          `json:"lem_prices"`
	SelfConsumptionTariff []SCTariffOutput    `json:"self_consumption_tariffs"`
}
