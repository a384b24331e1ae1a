package model

// Offer is a single buy or sell position of one meter at one timestep.
type Offer struct {
	Origin string  `json:"origin"`
	Amount float64 `json:"amount"` // kWh, always >= 0
	Value  float64 `json:"value"`  // price, always >= 0
}

// OfferBook groups the buy and sell offers of every timestep of a horizon, in
// horizon order. Offers within a timestep carry no ordering guarantee; the
// pricing mechanism defines any tie-break it needs.
type OfferBook struct {
	Buys  [][]Offer
	Sells [][]Offer
}
