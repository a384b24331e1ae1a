package model

// SolveStatus mirrors the states an optimization run can end in.
type SolveStatus string

const (
	StatusOptimal    SolveStatus = "Optimal"
	StatusInfeasible SolveStatus = "Infeasible"
	StatusUnbounded  SolveStatus = "Unbounded"
)

// MeterResult holds the per-timestep outcome of the optimization for one
// meter.
type MeterResult struct {
	Supplied         []float64 // energy bought from the retailer
	Surplus          []float64 // energy sold to the retailer
	NetLoad          []float64 // metered net load after battery operation
	BatteryCharge    []float64
	BatteryDischarge []float64
	BatteryContent   []float64
	PoolPurchased    []float64 // energy bought on the LEM
	PoolSold         []float64 // energy sold on the LEM
	Cost             float64   // individual cost over the horizon
}

// SolveResult is what the optimization engine returns for a MILP-mode order.
type SolveResult struct {
	Status    SolveStatus
	Objective float64
	Prices    []float64 // LEM price per timestep
	Meters    map[string]*MeterResult

	// BilateralFlows maps receiver -> provider -> energy per timestep. Only
	// populated in bilateral organization.
	BilateralFlows map[string]map[string][]float64

	Iterations int     // loop mode: iterations run
	Criterion  float64 // loop mode: final stopping criterion value
}

// TotalCost sums the individual meter costs.
func (r *SolveResult) TotalCost() float64 {
	var sum float64
	for _, m := range r.Meters {
		sum += m.Cost
	}
	return sum
}
