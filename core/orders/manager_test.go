package orders

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrec/lemd/core/align"
	"github.com/openrec/lemd/core/model"
	"github.com/openrec/lemd/core/solver"
	"github.com/openrec/lemd/infra/logger"
)

// memStore is an in-memory Store for manager tests.
type memStore struct {
	mu     sync.Mutex
	orders map[string]*model.Order
	rows   map[string]*model.ResultRows
}

func newMemStore() *memStore {
	return &memStore{orders: make(map[string]*model.Order), rows: make(map[string]*model.ResultRows)}
}

func (s *memStore) CreateOrder(_ context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	s.orders[o.ID] = &cp
	return nil
}

func (s *memStore) GetOrder(_ context.Context, id string) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *memStore) CompleteOrder(_ context.Context, id string, rows *model.ResultRows) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.State = model.StateDoneOK
	s.rows[id] = rows
	return nil
}

func (s *memStore) FailOrder(_ context.Context, id string, kind model.ErrorKind, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.State = model.StateDoneError
	o.ErrKind = kind
	o.Message = message
	return nil
}

func (s *memStore) ResultRows(_ context.Context, id string) (*model.ResultRows, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rows, nil
}

// fakeAligner returns a canned dataset and report.
type fakeAligner struct {
	ds     *model.Dataset
	report *model.AvailabilityReport
	err    error
	block  bool
}

func (f *fakeAligner) Align(ctx context.Context, _ align.Request) (*model.Dataset, *model.AvailabilityReport, error) {
	if f.block {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	return f.ds, f.report, f.err
}

type panicSolver struct{}

func (panicSolver) Solve(context.Context, *model.Backpack, solver.Request) (*model.SolveResult, error) {
	panic("index out of range")
}

func testDataset() *model.Dataset {
	start := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	return &model.Dataset{
		Horizon: []time.Time{start},
		Meters: map[string]*model.MeterSeries{
			"A": {MeterID: "A", Consumption: []float64{2}, Generation: []float64{0}, BuyTariff: []float64{0.20}, SellTariff: []float64{0.05}},
			"B": {MeterID: "B", Consumption: []float64{0}, Generation: []float64{1}, BuyTariff: []float64{0.16}, SellTariff: []float64{0.04}},
		},
		SelfConsumption: []float64{0.0245},
	}
}

func cleanReport(ds *model.Dataset) *model.AvailabilityReport {
	r := &model.AvailabilityReport{MissingTimestamps: make(map[string][]time.Time)}
	for id := range ds.Meters {
		r.MissingTimestamps[id] = nil
	}
	return r
}

func newManager(store Store, a align.Aligner, eng solver.Engine) *Manager {
	return &Manager{
		Store:  store,
		Align:  a,
		Solver: eng,
		Pool:   NewPool(2, logger.NopLogger{}),
		Log:    logger.NopLogger{},
	}
}

func TestSubmitVanillaCompletes(t *testing.T) {
	ds := testDataset()
	store := newMemStore()
	m := newManager(store, &fakeAligner{ds: ds, report: cleanReport(ds)}, &solver.DefaultEngine{Log: logger.NopLogger{}})

	id, err := m.Submit(context.Background(), SubmitRequest{
		Kind:      model.KindVanilla,
		Mechanism: model.MechanismMMR,
	})
	require.NoError(t, err)
	m.Pool.Wait()

	order, rows, err := m.Result(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StateDoneOK, order.State)
	require.NotNil(t, rows)
	require.Len(t, rows.Prices, 1)
	require.Len(t, rows.Offers, 2)

	out := AssembleVanilla(id, rows)
	assert.Equal(t, id, out.OrderID)
	// A buys its 2 kWh deficit at 0.20, B sells its 1 kWh surplus at 0.04.
	assert.Equal(t, model.OfferRow{Datetime: "2025-03-10T12:00:00Z", MeterID: "A", Amount: 2, Value: 0.20, Type: "buy"}, out.Offers[0])
	assert.Equal(t, model.OfferRow{Datetime: "2025-03-10T12:00:00Z", MeterID: "B", Amount: 1, Value: 0.04, Type: "sell"}, out.Offers[1])

	// Polling is idempotent.
	again, rowsAgain, err := m.Result(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, order.State, again.State)
	assert.Equal(t, rows, rowsAgain)
}

func TestSubmitLoopPoolCompletes(t *testing.T) {
	ds := testDataset()
	store := newMemStore()
	m := newManager(store, &fakeAligner{ds: ds, report: cleanReport(ds)}, &solver.DefaultEngine{Log: logger.NopLogger{}})

	id, err := m.Submit(context.Background(), SubmitRequest{
		Kind:         model.KindLoop,
		Organization: model.OrgPool,
		Mechanism:    model.MechanismMMR,
	})
	require.NoError(t, err)
	m.Pool.Wait()

	order, rows, err := m.Result(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, model.StateDoneOK, order.State)
	require.NotNil(t, rows.General)
	assert.Equal(t, string(model.StatusOptimal), rows.General.MILPStatus)
	assert.Len(t, rows.PoolTransactions, 2)
	assert.Len(t, rows.PoolSCTariffs, 1)
	assert.Empty(t, rows.BilateralTransactions)
}

func TestMissingMeterFailsOrder(t *testing.T) {
	store := newMemStore()
	report := &model.AvailabilityReport{MissingMeters: []string{"B"}}
	m := newManager(store, &fakeAligner{ds: testDataset(), report: report}, nil)

	id, err := m.Submit(context.Background(), SubmitRequest{Kind: model.KindVanilla, Mechanism: model.MechanismMMR})
	require.NoError(t, err)
	m.Pool.Wait()

	order, rows, err := m.Result(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StateDoneError, order.State)
	assert.Equal(t, model.ErrMissingMeter, order.ErrKind)
	assert.Contains(t, order.Message, "B")
	assert.Nil(t, rows)
}

func TestMissingTimestepFailsOrder(t *testing.T) {
	store := newMemStore()
	ts := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	report := &model.AvailabilityReport{
		MissingTimestamps: map[string][]time.Time{"A": {ts}, "B": nil},
	}
	m := newManager(store, &fakeAligner{ds: testDataset(), report: report}, nil)

	id, err := m.Submit(context.Background(), SubmitRequest{Kind: model.KindVanilla, Mechanism: model.MechanismMMR})
	require.NoError(t, err)
	m.Pool.Wait()

	order, _, err := m.Result(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.ErrMissingTimestep, order.ErrKind)
	assert.Contains(t, order.Message, "A")
	assert.Contains(t, order.Message, "2025-03-10T12:00:00Z")
	assert.False(t, strings.Contains(order.Message, "B ["))
}

func TestSolverPanicEndsTerminal(t *testing.T) {
	ds := testDataset()
	store := newMemStore()
	m := newManager(store, &fakeAligner{ds: ds, report: cleanReport(ds)}, panicSolver{})

	id, err := m.Submit(context.Background(), SubmitRequest{
		Kind:         model.KindDual,
		Organization: model.OrgPool,
	})
	require.NoError(t, err)
	m.Pool.Wait()

	order, _, err := m.Result(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StateDoneError, order.State)
	assert.Equal(t, model.ErrInternal, order.ErrKind)
	assert.Contains(t, order.Message, "internal error")
}

func TestJobTimeoutEndsTerminal(t *testing.T) {
	store := newMemStore()
	m := newManager(store, &fakeAligner{block: true}, nil)
	m.JobTimeout = 20 * time.Millisecond

	id, err := m.Submit(context.Background(), SubmitRequest{Kind: model.KindVanilla, Mechanism: model.MechanismMMR})
	require.NoError(t, err)
	m.Pool.Wait()

	order, _, err := m.Result(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StateDoneError, order.State)
	assert.Equal(t, model.ErrInternal, order.ErrKind)
}

func TestResultUnknownOrder(t *testing.T) {
	m := newManager(newMemStore(), nil, nil)
	_, _, err := m.Result(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewOrderID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id, err := NewOrderID()
		require.NoError(t, err)
		// 45 bytes encode to 60 URL-safe characters without padding.
		assert.Len(t, id, 60)
		assert.NotContains(t, id, "=")
		assert.NotContains(t, id, "+")
		assert.NotContains(t, id, "/")
		_, dup := seen[id]
		assert.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestPoolRecoversFromPanic(t *testing.T) {
	p := NewPool(1, logger.NopLogger{})
	done := make(chan struct{})
	p.Submit(func() { panic("boom") })
	p.Submit(func() { close(done) })
	p.Wait()
	select {
	case <-done:
	default:
		t.Fatal("second job did not run")
	}
}
