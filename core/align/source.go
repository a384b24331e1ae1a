package align

import (
	"context"
	"time"

	"github.com/openrec/lemd/core/registry"
)

// SourceKind tells the engine how to treat a source's values: power sources
// are averaged per bucket and converted to energy, energy sources are summed
// and used as-is.
type SourceKind int

const (
	KindPower SourceKind = iota
	KindEnergy
)

// SourceProfile describes the physical shape of a data origin.
type SourceProfile struct {
	Unit string // expected physical unit of valid samples, e.g. "W"
	Kind SourceKind
}

// RawSample is one sample as returned by a remote source, before any
// alignment.
type RawSample struct {
	Time  time.Time
	Value float64
	Unit  string
}

// Provider fetches raw samples for one meter over a time span. Implementations
// handle pagination under the origin's record ceiling and bounded retries;
// a span the origin has no data for yields an empty slice, not an error.
type Provider interface {
	Profile() SourceProfile
	Fetch(ctx context.Context, meterID string, start, end time.Time) ([]RawSample, error)
}

// IrradianceEstimator models the PV generation of a 1 kWp installation at a
// site, as energy per grid step. External collaborator.
type IrradianceEstimator interface {
	GenerationFactors(ctx context.Context, loc registry.Location, horizon []time.Time) ([]float64, error)
}
