package api

import (
	"fmt"
	"time"

	"github.com/openrec/lemd/core/align"
	"github.com/openrec/lemd/core/model"
	"github.com/openrec/lemd/core/orders"
	"github.com/openrec/lemd/core/pricing"
	"github.com/openrec/lemd/core/registry"
)

// StorageSpec is the wire shape of one meter's battery parameters.
type StorageSpec struct {
	CapacityKWh     float64 `json:"capacity_kwh"`
	MaxPowerKW      float64 `json:"max_power_kw"`
	SoCMin          float64 `json:"soc_min"`
	SoCMax          float64 `json:"soc_max"`
	ChargeEff       float64 `json:"charge_eff"`
	DischargeEff    float64 `json:"discharge_eff"`
	DegradationCost float64 `json:"degradation_cost"`
	InitialEnergy   float64 `json:"initial_energy"`
}

// OrderRequest is the shared body of every order submission endpoint.
type OrderRequest struct {
	StartDatetime string   `json:"start_datetime"`
	EndDatetime   string   `json:"end_datetime"`
	DatasetOrigin string   `json:"dataset_origin"`
	MeterIDs      []string `json:"meter_ids"`

	MeterInstalledPVCapacities       map[string]float64 `json:"meter_installed_pv_capacities"`
	SharedMeterIDs                   []string           `json:"shared_meter_ids"`
	SharedMeterInstalledPVCapacities map[string]float64 `json:"shared_meter_installed_pv_capacities"`

	MeterStorage         map[string]*StorageSpec `json:"meter_storage"`
	MeterContractedPower map[string]float64      `json:"meter_contracted_power"`

	SDRCompensation float64 `json:"sdr_compensation"`
	MMRDivisor      float64 `json:"mmr_divisor"`
	MaxIterations   int     `json:"max_iterations"`
	Tolerance       float64 `json:"tolerance"`
}

// validate checks the request and returns the parsed horizon bounds.
func (r *OrderRequest) validate() (start, end time.Time, err error) {
	start, err = time.Parse(time.RFC3339, r.StartDatetime)
	if err != nil {
		return start, end, fmt.Errorf("start_datetime: %w", err)
	}
	end, err = time.Parse(time.RFC3339, r.EndDatetime)
	if err != nil {
		return start, end, fmt.Errorf("end_datetime: %w", err)
	}
	if !end.After(start) {
		return start, end, fmt.Errorf("end_datetime must be after start_datetime")
	}
	if !start.UTC().Truncate(model.GridStep).Equal(start.UTC()) {
		return start, end, fmt.Errorf("start_datetime must fall on a 15-minute boundary")
	}
	if !registry.ValidOrigin(r.DatasetOrigin) {
		return start, end, fmt.Errorf("dataset_origin %q is unknown", r.DatasetOrigin)
	}
	if len(r.MeterIDs)+len(r.SharedMeterIDs) < 2 {
		return start, end, fmt.Errorf("at least two meters are required")
	}

	declared := make(map[string]bool, len(r.MeterIDs))
	for _, id := range r.MeterIDs {
		if id == "" {
			return start, end, fmt.Errorf("meter_ids must not contain empty ids")
		}
		if declared[id] {
			return start, end, fmt.Errorf("meter id %s is declared twice", id)
		}
		declared[id] = true
	}
	shared := make(map[string]bool, len(r.SharedMeterIDs))
	for _, id := range r.SharedMeterIDs {
		if id == "" {
			return start, end, fmt.Errorf("shared_meter_ids must not contain empty ids")
		}
		if declared[id] || shared[id] {
			return start, end, fmt.Errorf("shared meter id %s is declared twice", id)
		}
		shared[id] = true
	}

	for id, capacity := range r.MeterInstalledPVCapacities {
		if !declared[id] {
			return start, end, fmt.Errorf("meter_installed_pv_capacities references undeclared meter %s", id)
		}
		if capacity < 0 {
			return start, end, fmt.Errorf("installed PV capacity of %s must not be negative", id)
		}
	}
	for id, capacity := range r.SharedMeterInstalledPVCapacities {
		if !shared[id] {
			return start, end, fmt.Errorf("shared_meter_installed_pv_capacities references undeclared shared meter %s", id)
		}
		if capacity < 0 {
			return start, end, fmt.Errorf("installed PV capacity of %s must not be negative", id)
		}
	}
	for id, power := range r.MeterContractedPower {
		if !declared[id] && !shared[id] {
			return start, end, fmt.Errorf("meter_contracted_power references undeclared meter %s", id)
		}
		if power <= 0 {
			return start, end, fmt.Errorf("contracted power of %s must be positive", id)
		}
	}
	for id, st := range r.MeterStorage {
		if !declared[id] && !shared[id] {
			return start, end, fmt.Errorf("meter_storage references undeclared meter %s", id)
		}
		if st == nil {
			return start, end, fmt.Errorf("meter_storage of %s is empty", id)
		}
		if err := st.validate(id); err != nil {
			return start, end, err
		}
	}
	if r.SDRCompensation < 0 || r.SDRCompensation > 1 {
		return start, end, fmt.Errorf("sdr_compensation must be within [0, 1]")
	}
	if r.MMRDivisor < 0 {
		return start, end, fmt.Errorf("mmr_divisor must not be negative")
	}
	if r.MaxIterations < 0 {
		return start, end, fmt.Errorf("max_iterations must not be negative")
	}
	if r.Tolerance < 0 {
		return start, end, fmt.Errorf("tolerance must not be negative")
	}
	return start, end, nil
}

func (s *StorageSpec) validate(id string) error {
	if s.CapacityKWh <= 0 {
		return fmt.Errorf("storage of %s: capacity_kwh must be positive", id)
	}
	if s.MaxPowerKW <= 0 {
		return fmt.Errorf("storage of %s: max_power_kw must be positive", id)
	}
	if s.SoCMin < 0 || s.SoCMax > 1 || s.SoCMax < s.SoCMin {
		return fmt.Errorf("storage of %s: soc bounds must satisfy 0 <= soc_min <= soc_max <= 1", id)
	}
	if s.ChargeEff <= 0 || s.ChargeEff > 1 || s.DischargeEff <= 0 || s.DischargeEff > 1 {
		return fmt.Errorf("storage of %s: efficiencies must be within (0, 1]", id)
	}
	if s.DegradationCost < 0 {
		return fmt.Errorf("storage of %s: degradation_cost must not be negative", id)
	}
	if s.InitialEnergy < 0 || s.InitialEnergy > s.CapacityKWh {
		return fmt.Errorf("storage of %s: initial_energy must be within [0, capacity_kwh]", id)
	}
	return nil
}

// submitRequest maps a validated body onto the order manager's request.
func (r *OrderRequest) submitRequest(kind model.RequestKind, org model.MarketOrganization, mech model.PricingMechanism, start, end time.Time) orders.SubmitRequest {
	storage := make(map[string]*model.StorageParams, len(r.MeterStorage))
	for id, s := range r.MeterStorage {
		storage[id] = &model.StorageParams{
			CapacityKWh:     s.CapacityKWh,
			MaxPowerKW:      s.MaxPowerKW,
			SoCMin:          s.SoCMin,
			SoCMax:          s.SoCMax,
			ChargeEff:       s.ChargeEff,
			DischargeEff:    s.DischargeEff,
			DegradationCost: s.DegradationCost,
			InitialEnergy:   s.InitialEnergy,
		}
	}
	return orders.SubmitRequest{
		Kind:         kind,
		Organization: org,
		Mechanism:    mech,
		Align: align.Request{
			Origin:            registry.Origin(r.DatasetOrigin),
			Start:             start.UTC(),
			End:               end.UTC(),
			MeterIDs:          r.MeterIDs,
			SharedMeterIDs:    r.SharedMeterIDs,
			PVOverrides:       r.MeterInstalledPVCapacities,
			SharedPVOverrides: r.SharedMeterInstalledPVCapacities,
		},
		ContractedPower: r.MeterContractedPower,
		Storage:         storage,
		Pricing: pricing.Params{
			MMRDivisor:      r.MMRDivisor,
			SDRCompensation: r.SDRCompensation,
		},
		MaxIterations: r.MaxIterations,
		Tolerance:     r.Tolerance,
	}
}

func validMechanism(s string) (model.PricingMechanism, bool) {
	switch model.PricingMechanism(s) {
	case model.MechanismCrossingValue, model.MechanismMMR, model.MechanismSDR:
		return model.PricingMechanism(s), true
	}
	return "", false
}

func validOrganization(s string) (model.MarketOrganization, bool) {
	switch model.MarketOrganization(s) {
	case model.OrgPool, model.OrgBilateral:
		return model.MarketOrganization(s), true
	}
	return "", false
}
