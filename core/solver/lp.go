package solver

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/openrec/lemd/core/model"
)

// lpSolve points to the function used to solve the transportation LP. It can
// be overridden in tests to simulate solver failures.
var lpSolve = solveTransport

// allocateBilateral distributes each timestep's pool-netted trades over
// directed provider/receiver pairs, minimizing the total grid tariff paid.
// Flow maps are fully populated (receiver -> provider -> series) so callers
// can index without nil checks.
func allocateBilateral(bp *model.Backpack, purchased, sold map[string][]float64) (map[string]map[string][]float64, error) {
	steps := bp.Steps()
	ids := sortedIDs(bp.Meters)

	flows := make(map[string]map[string][]float64, len(ids))
	for _, r := range ids {
		flows[r] = make(map[string][]float64, len(ids)-1)
		for _, p := range ids {
			if p != r {
				flows[r][p] = make([]float64, steps)
			}
		}
	}

	for i := 0; i < steps; i++ {
		var receivers, providers []string
		for _, id := range ids {
			if purchased[id][i] > 0 {
				receivers = append(receivers, id)
			}
			if sold[id][i] > 0 {
				providers = append(providers, id)
			}
		}
		if len(receivers) == 0 || len(providers) == 0 {
			continue
		}
		sol, err := lpSolve(bp, i, receivers, providers, purchased, sold)
		if err != nil {
			return nil, err
		}
		for ri, r := range receivers {
			for pi, p := range providers {
				flows[r][p][i] = sol[ri*len(providers)+pi]
			}
		}
	}
	return flows, nil
}

// solveTransport solves one timestep's transportation problem: variables
// x[r][p] >= 0, row sums fixed to each receiver's purchase, column sums to
// each provider's sale. The last column constraint is implied by the others
// and dropped to keep the equality system full rank.
func solveTransport(bp *model.Backpack, step int, receivers, providers []string, purchased, sold map[string][]float64) ([]float64, error) {
	nR, nP := len(receivers), len(providers)
	nVars := nR * nP

	c := make([]float64, nVars)
	for ri, r := range receivers {
		for pi, p := range providers {
			c[ri*nP+pi] = bp.GridBilateral[r][p][step]
		}
	}

	nCons := nR + nP - 1
	a := mat.NewDense(nCons, nVars, nil)
	b := make([]float64, nCons)
	for ri, r := range receivers {
		for pi := 0; pi < nP; pi++ {
			a.Set(ri, ri*nP+pi, 1)
		}
		b[ri] = purchased[r][step]
	}
	for pi := 0; pi < nP-1; pi++ {
		for ri := 0; ri < nR; ri++ {
			a.Set(nR+pi, ri*nP+pi, 1)
		}
		b[nR+pi] = sold[providers[pi]][step]
	}

	_, sol, err := lp.Simplex(c, a, b, 1e-9, nil)
	return sol, err
}
