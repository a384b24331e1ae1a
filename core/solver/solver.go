// Package solver computes LEM schedules, prices and costs from an
// optimization input bundle.
package solver

import (
	"context"

	"github.com/openrec/lemd/core/model"
	"github.com/openrec/lemd/core/pricing"
)

// Request selects the computation mode and its parameters. Organization comes
// from the backpack itself.
type Request struct {
	Kind          model.RequestKind // KindDual or KindLoop
	Mechanism     model.PricingMechanism
	Pricing       pricing.Params
	MaxIterations int
	Tolerance     float64
}

// Engine runs one optimization. Implementations must treat the backpack as
// read-only.
type Engine interface {
	Solve(ctx context.Context, bp *model.Backpack, req Request) (*model.SolveResult, error)
}
