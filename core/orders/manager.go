package orders

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/openrec/lemd/core/align"
	"github.com/openrec/lemd/core/logger"
	"github.com/openrec/lemd/core/market"
	"github.com/openrec/lemd/core/metrics"
	"github.com/openrec/lemd/core/model"
	"github.com/openrec/lemd/core/pricing"
	"github.com/openrec/lemd/core/solver"
)

// SubmitRequest bundles everything one order computes over.
type SubmitRequest struct {
	Kind         model.RequestKind
	Organization model.MarketOrganization
	Mechanism    model.PricingMechanism

	Align align.Request

	ContractedPower map[string]float64
	Storage         map[string]*model.StorageParams

	Pricing       pricing.Params
	MaxIterations int
	Tolerance     float64
}

// Manager owns the order lifecycle: it accepts submissions, runs them on the
// worker pool and serves idempotent result polls. Every accepted order
// reaches a terminal state exactly once, whatever its pipeline does.
type Manager struct {
	Store  Store
	Align  align.Aligner
	Solver solver.Engine
	Pool   *Pool
	Log    logger.Logger
	Sink   metrics.Sink

	// JobTimeout bounds one order's pipeline. Zero means no bound.
	JobTimeout time.Duration

	// Service-level loop defaults applied when a request leaves them unset.
	MaxIterations int
	Tolerance     float64
}

// Submit persists a pending order and schedules its pipeline. The returned id
// is the only handle to the result.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	id, err := NewOrderID()
	if err != nil {
		return "", err
	}
	order := &model.Order{
		ID:           id,
		Kind:         req.Kind,
		Organization: req.Organization,
		Mechanism:    req.Mechanism,
		State:        model.StatePending,
		CreatedAt:    time.Now().UTC(),
	}
	if err := m.Store.CreateOrder(ctx, order); err != nil {
		return "", fmt.Errorf("orders: create: %w", err)
	}
	m.Pool.Submit(func() { m.run(id, req) })
	m.Log.Infof("order %s accepted (%s)", id, req.Kind)
	return id, nil
}

// Result returns the order record and, when it finished successfully, its
// persisted rows. Polling has no side effects.
func (m *Manager) Result(ctx context.Context, id string) (*model.Order, *model.ResultRows, error) {
	order, err := m.Store.GetOrder(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if order.State != model.StateDoneOK {
		return order, nil, nil
	}
	rows, err := m.Store.ResultRows(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return order, rows, nil
}

// run executes the pipeline of one order and records its terminal state. It
// never returns an error: every failure path ends in FailOrder, including
// panics out of the stages below.
func (m *Manager) run(id string, req SubmitRequest) {
	ctx := context.Background()
	if m.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.JobTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			m.Log.Errorf("order %s panicked: %v", id, r)
			m.fail(id, req.Kind, model.ErrInternal, fmt.Sprintf("internal error: %v", r))
		}
	}()

	start := time.Now()
	ds, report, err := m.Align.Align(ctx, req.Align)
	m.stage(req.Kind, "align", start)
	if err != nil {
		m.fail(id, req.Kind, model.ErrInternal, err.Error())
		return
	}
	if len(report.MissingMeters) > 0 {
		m.fail(id, req.Kind, model.ErrMissingMeter,
			fmt.Sprintf("no data found for meter ids %s", strings.Join(report.MissingMeters, ", ")))
		return
	}
	if pairs := report.MissingPairs(); len(pairs) > 0 {
		m.fail(id, req.Kind, model.ErrMissingTimestep, describeMissing(pairs))
		return
	}

	start = time.Now()
	rows, err := m.compute(ctx, ds, req)
	m.stage(req.Kind, "solve", start)
	if err != nil {
		m.fail(id, req.Kind, model.ErrInternal, err.Error())
		return
	}

	start = time.Now()
	if err := m.Store.CompleteOrder(context.Background(), id, rows); err != nil {
		m.Log.Errorf("order %s: persist: %v", id, err)
		m.fail(id, req.Kind, model.ErrInternal, "failed to persist results")
		return
	}
	m.stage(req.Kind, "persist", start)
	if m.Sink != nil {
		m.Sink.RecordOrder(string(req.Kind), "ok")
	}
	m.Log.Infof("order %s done", id)
}

// compute runs the mode-specific part of the pipeline on an aligned dataset.
func (m *Manager) compute(ctx context.Context, ds *model.Dataset, req SubmitRequest) (*model.ResultRows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Kind == model.KindVanilla {
		book := market.BuildOffers(ds)
		prices := make([]float64, len(ds.Horizon))
		for i := range prices {
			p, err := pricing.Price(req.Mechanism, book.Buys[i], book.Sells[i], req.Pricing)
			if err != nil {
				return nil, err
			}
			prices[i] = p
		}
		return FlattenVanilla(ds.Horizon, prices, book), nil
	}

	bp := market.BuildBackpack(ds, market.BackpackOptions{
		Organization:    req.Organization,
		ContractedPower: req.ContractedPower,
		Storage:         req.Storage,
	})
	maxIterations := req.MaxIterations
	if maxIterations == 0 {
		maxIterations = m.MaxIterations
	}
	tolerance := req.Tolerance
	if tolerance == 0 {
		tolerance = m.Tolerance
	}
	res, err := m.Solver.Solve(ctx, bp, solver.Request{
		Kind:          req.Kind,
		Mechanism:     req.Mechanism,
		Pricing:       req.Pricing,
		MaxIterations: maxIterations,
		Tolerance:     tolerance,
	})
	if err != nil {
		return nil, err
	}
	return FlattenMILP(ds, res, req.Organization), nil
}

func (m *Manager) fail(id string, kind model.RequestKind, errKind model.ErrorKind, message string) {
	if err := m.Store.FailOrder(context.Background(), id, errKind, message); err != nil {
		m.Log.Errorf("order %s: record failure: %v", id, err)
	}
	if m.Sink != nil {
		m.Sink.RecordOrder(string(kind), string(errKind))
	}
	m.Log.Warnf("order %s failed (%s): %s", id, errKind, message)
}

func (m *Manager) stage(kind model.RequestKind, stage string, start time.Time) {
	if m.Sink != nil {
		m.Sink.RecordStageDuration(string(kind), stage, time.Since(start))
	}
}

// describeMissing renders the missing (meter, timestep) pairs in a stable
// order for the order's error message.
func describeMissing(pairs map[string][]time.Time) string {
	ids := make([]string, 0, len(pairs))
	for id := range pairs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var b strings.Builder
	b.WriteString("missing timesteps:")
	for _, id := range ids {
		stamps := make([]string, len(pairs[id]))
		for i, t := range pairs[id] {
			stamps[i] = t.UTC().Format(model.TimeLayout)
		}
		fmt.Fprintf(&b, " %s [%s]", id, strings.Join(stamps, ", "))
	}
	return b.String()
}
