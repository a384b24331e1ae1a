package model

import (
	"sort"
	"time"
)

// GridStep is the fixed timestep of every aligned dataset.
const GridStep = 15 * time.Minute

// StepHours is GridStep expressed in hours, used for power/energy conversion.
const StepHours = 0.25

// TimeLayout is the wire format for grid instants, in API responses and in
// persisted result rows.
const TimeLayout = "2006-01-02T15:04:05Z"

// Horizon builds the list of grid instants covered by [start, end), using the
// fixed grid step. The end instant is exclusive.
func Horizon(start, end time.Time) []time.Time {
	var ts []time.Time
	for t := start; t.Before(end); t = t.Add(GridStep) {
		ts = append(ts, t)
	}
	return ts
}

// MeterSeries holds the aligned per-timestep data of a single meter. All
// slices have the same length as the dataset horizon.
type MeterSeries struct {
	MeterID     string
	Consumption []float64 // kWh consumed per step
	Generation  []float64 // kWh generated per step
	BuyTariff   []float64 // retailer buy tariff per step
	SellTariff  []float64 // retailer sell tariff per step
}

// NetLoad returns consumption minus generation at step i. Positive values are
// net buyers, negative values net sellers.
func (s *MeterSeries) NetLoad(i int) float64 {
	return s.Consumption[i] - s.Generation[i]
}

// Dataset is the normalized, gap-free output of the alignment engine: one
// MeterSeries per meter, all sharing the same horizon.
type Dataset struct {
	Horizon         []time.Time
	Meters          map[string]*MeterSeries
	SelfConsumption []float64 // grid self-consumption tariff per step
}

// MeterIDs returns the dataset meters in deterministic (sorted) order.
func (d *Dataset) MeterIDs() []string {
	ids := make([]string, 0, len(d.Meters))
	for id := range d.Meters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AvailabilityReport lists what the source could not provide: meters entirely
// absent, and per present meter the grid instants still missing after
// alignment. The latter is empty for a well-formed dataset.
type AvailabilityReport struct {
	MissingMeters     []string
	MissingTimestamps map[string][]time.Time
}

// Clean reports whether the dataset is complete.
func (r *AvailabilityReport) Clean() bool {
	if len(r.MissingMeters) > 0 {
		return false
	}
	for _, ts := range r.MissingTimestamps {
		if len(ts) > 0 {
			return false
		}
	}
	return true
}

// MissingPairs returns only the meters that actually miss instants.
func (r *AvailabilityReport) MissingPairs() map[string][]time.Time {
	pairs := make(map[string][]time.Time)
	for id, ts := range r.MissingTimestamps {
		if len(ts) > 0 {
			pairs[id] = ts
		}
	}
	return pairs
}
