package model

import "time"

// RequestKind identifies the computation mode of an order.
type RequestKind string

const (
	KindVanilla RequestKind = "vanilla"
	KindDual    RequestKind = "dual"
	KindLoop    RequestKind = "loop"
)

// MarketOrganization selects how LEM trades are organized.
type MarketOrganization string

const (
	OrgPool      MarketOrganization = "pool"
	OrgBilateral MarketOrganization = "bilateral"
)

// PricingMechanism selects the formula used to compute LEM prices.
type PricingMechanism string

const (
	MechanismCrossingValue PricingMechanism = "crossing_value"
	MechanismMMR           PricingMechanism = "mmr"
	MechanismSDR           PricingMechanism = "sdr"
)

// OrderState is the lifecycle state of an order.
type OrderState string

const (
	StatePending   OrderState = "pending"
	StateDoneOK    OrderState = "done-ok"
	StateDoneError OrderState = "done-error"
)

// ErrorKind classifies why an order terminated with an error.
type ErrorKind string

const (
	ErrNone            ErrorKind = ""
	ErrMissingMeter    ErrorKind = "missing-meter"
	ErrMissingTimestep ErrorKind = "missing-timestep"
	ErrInternal        ErrorKind = "internal"
)

// Order is the persisted record of one pricing request. It is created once at
// submission and mutated exactly once, by its worker, to a terminal state.
type Order struct {
	ID           string
	Kind         RequestKind
	Organization MarketOrganization
	Mechanism    PricingMechanism
	State        OrderState
	ErrKind      ErrorKind
	Message      string
	CreatedAt    time.Time
}

// Terminal reports whether the order reached a final state.
func (o *Order) Terminal() bool { return o.State != StatePending }
