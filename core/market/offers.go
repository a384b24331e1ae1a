// Package market turns aligned datasets into the structures the pricing and
// optimization stages consume: per-timestep offer books and the optimization
// input bundle.
package market

import (
	"github.com/openrec/lemd/core/model"
)

// BuildOffers derives the offer book of a dataset. At each timestep a meter
// with positive net load places a buy offer at its buy tariff; a meter with
// negative net load places a sell offer for the surplus at its sell tariff.
// Balanced meters place nothing.
func BuildOffers(ds *model.Dataset) *model.OfferBook {
	steps := len(ds.Horizon)
	book := &model.OfferBook{
		Buys:  make([][]model.Offer, steps),
		Sells: make([][]model.Offer, steps),
	}
	for _, id := range ds.MeterIDs() {
		m := ds.Meters[id]
		for i := 0; i < steps; i++ {
			net := m.NetLoad(i)
			switch {
			case net > 0:
				book.Buys[i] = append(book.Buys[i], model.Offer{
					Origin: id,
					Amount: net,
					Value:  m.BuyTariff[i],
				})
			case net < 0:
				book.Sells[i] = append(book.Sells[i], model.Offer{
					Origin: id,
					Amount: -net,
					Value:  m.SellTariff[i],
				})
			}
		}
	}
	return book
}
