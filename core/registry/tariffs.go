package registry

import "time"

// Regulated retail tariffs per cycle, in currency units per kWh. The schedule
// follows the usual low-voltage time-of-day windows: dual cycle discounts
// 22:00-08:00, triple cycle adds peak windows 09:00-10:30 and 18:00-20:30.
const (
	simpleRate = 0.1529

	dualOffPeakRate = 0.1095
	dualStandardRate = 0.1795

	tripleOffPeakRate  = 0.1010
	tripleStandardRate = 0.1576
	triplePeakRate     = 0.2223

	selfConsumptionRate = 0.0245
)

// SellTariffFraction derives the feed-in tariff from the buy tariff at the
// same instant.
const SellTariffFraction = 0.25

// BuyTariff returns the retail buy tariff for a cycle at instant t (UTC).
func BuyTariff(cycle TariffCycle, t time.Time) float64 {
	t = t.UTC()
	switch cycle {
	case CycleDual:
		if offPeak(t) {
			return dualOffPeakRate
		}
		return dualStandardRate
	case CycleTriple:
		if offPeak(t) {
			return tripleOffPeakRate
		}
		if peak(t) {
			return triplePeakRate
		}
		return tripleStandardRate
	default:
		return simpleRate
	}
}

// SelfConsumptionTariff returns the grid fee applied to locally traded
// energy at instant t. Flat in the current regulated schedule.
func SelfConsumptionTariff(time.Time) float64 {
	return selfConsumptionRate
}

func offPeak(t time.Time) bool {
	h := t.Hour()
	return h >= 22 || h < 8
}

func peak(t time.Time) bool {
	mins := t.Hour()*60 + t.Minute()
	// 09:00-10:30 and 18:00-20:30
	return (mins >= 9*60 && mins < 10*60+30) || (mins >= 18*60 && mins < 20*60+30)
}
