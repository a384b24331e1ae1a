package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrec/lemd/core/align"
	"github.com/openrec/lemd/core/model"
	"github.com/openrec/lemd/core/orders"
	"github.com/openrec/lemd/core/solver"
	"github.com/openrec/lemd/infra/logger"
)

type memStore struct {
	mu   sync.Mutex
	ords map[string]*model.Order
	rows map[string]*model.ResultRows
}

func newMemStore() *memStore {
	return &memStore{ords: make(map[string]*model.Order), rows: make(map[string]*model.ResultRows)}
}

func (s *memStore) CreateOrder(_ context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	s.ords[o.ID] = &cp
	return nil
}

func (s *memStore) GetOrder(_ context.Context, id string) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.ords[id]
	if !ok {
		return nil, orders.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *memStore) CompleteOrder(_ context.Context, id string, rows *model.ResultRows) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ords[id].State = model.StateDoneOK
	s.rows[id] = rows
	return nil
}

func (s *memStore) FailOrder(_ context.Context, id string, kind model.ErrorKind, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.ords[id]
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
		return nil, orders.ErrNotFound
	}
	return rows, nil
}

// gateAligner returns its canned result after the gate opens.
type gateAligner struct {
	gate   chan struct{}
	ds     *model.Dataset
	report *model.AvailabilityReport
}

func (g *gateAligner) Align(ctx context.Context, _ align.Request) (*model.Dataset, *model.AvailabilityReport, error) {
	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	return g.ds, g.report, nil
}

func apiDataset() *model.Dataset {
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

func cleanReport() *model.AvailabilityReport {
	return &model.AvailabilityReport{MissingTimestamps: map[string][]time.Time{"A": nil, "B": nil}}
}

func newTestServer(a align.Aligner) (*httptest.Server, *orders.Manager) {
	m := &orders.Manager{
		Store:  newMemStore(),
		Align:  a,
		Solver: &solver.DefaultEngine{Log: logger.NopLogger{}},
		Pool:   orders.NewPool(2, logger.NopLogger{}),
		Log:    logger.NopLogger{},
	}
	srv := httptest.NewServer(NewRouter(Deps{Manager: m, Log: logger.NopLogger{}}))
	return srv, m
}

func orderBody() map[string]any {
	return map[string]any{
		"start_datetime": "2025-03-10T12:00:00Z",
		"end_datetime":   "2025-03-10T12:15:00Z",
		"dataset_origin": "SEL",
		"meter_ids":      []string{"A", "B"},
	}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestVanillaOrderRoundTrip(t *testing.T) {
	srv, m := newTestServer(&gateAligner{ds: apiDataset(), report: cleanReport()})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/vanilla/mmr", orderBody())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	acc := decode[acceptedResponse](t, resp)
	require.Len(t, acc.OrderID, 60)
	m.Pool.Wait()

	res, err := http.Get(srv.URL + "/vanilla/" + acc.OrderID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	out := decode[model.VanillaOutputs](t, res)
	assert.Equal(t, acc.OrderID, out.OrderID)
	require.Len(t, out.LEMPrices, 1)
	// MMR over A's 2 kWh bid at 0.20 and B's 1 kWh ask at 0.04.
	assert.InDelta(t, 0.12, out.LEMPrices[0].Value, 1e-9)
	assert.Len(t, out.Offers, 2)
}

func TestPendingOrderPollsAccepted(t *testing.T) {
	gate := make(chan struct{})
	srv, m := newTestServer(&gateAligner{gate: gate, ds: apiDataset(), report: cleanReport()})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/vanilla/sdr", orderBody())
	acc := decode[acceptedResponse](t, resp)

	res, err := http.Get(srv.URL + "/vanilla/" + acc.OrderID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, res.StatusCode)
	_ = res.Body.Close()

	close(gate)
	m.Pool.Wait()

	res, err = http.Get(srv.URL + "/vanilla/" + acc.OrderID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	_ = res.Body.Close()
}

func TestUnknownOrderIs404(t *testing.T) {
	srv, _ := newTestServer(&gateAligner{ds: apiDataset(), report: cleanReport()})
	defer srv.Close()

	res, err := http.Get(srv.URL + "/vanilla/does-not-exist")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	_ = res.Body.Close()
}

func TestMissingMeterIs412(t *testing.T) {
	report := &model.AvailabilityReport{MissingMeters: []string{"B"}}
	srv, m := newTestServer(&gateAligner{ds: apiDataset(), report: report})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/vanilla/mmr", orderBody())
	acc := decode[acceptedResponse](t, resp)
	m.Pool.Wait()

	res, err := http.Get(srv.URL + "/vanilla/" + acc.OrderID)
	require.NoError(t, err)
	require.Equal(t, http.StatusPreconditionFailed, res.StatusCode)
	msg := decode[messageResponse](t, res)
	assert.Contains(t, msg.Message, "B")
}

func TestMissingTimestepIs422(t *testing.T) {
	report := &model.AvailabilityReport{
		MissingTimestamps: map[string][]time.Time{
			"A": {time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)},
		},
	}
	srv, m := newTestServer(&gateAligner{ds: apiDataset(), report: report})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/loop/pool/crossing_value", orderBody())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	acc := decode[acceptedResponse](t, resp)
	m.Pool.Wait()

	res, err := http.Get(srv.URL + "/loop/pool/" + acc.OrderID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	_ = res.Body.Close()
}

func TestKindAndOrganizationMustMatchEndpoint(t *testing.T) {
	srv, m := newTestServer(&gateAligner{ds: apiDataset(), report: cleanReport()})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/loop/pool/mmr", orderBody())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	acc := decode[acceptedResponse](t, resp)
	m.Pool.Wait()

	// The loop/pool order is invisible through the other polling endpoints.
	for _, path := range []string{"/vanilla/", "/dual/", "/loop/bilateral/"} {
		res, err := http.Get(srv.URL + path + acc.OrderID)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, res.StatusCode, path)
		_ = res.Body.Close()
	}

	res, err := http.Get(srv.URL + "/loop/pool/" + acc.OrderID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	out := decode[model.MILPOutputs](t, res)
	assert.Equal(t, "Optimal", out.MILPStatus)
	assert.NotEmpty(t, out.LEMTransactions)
}

func TestDualSubmitAndPoll(t *testing.T) {
	srv, m := newTestServer(&gateAligner{ds: apiDataset(), report: cleanReport()})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/dual", orderBody())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	acc := decode[acceptedResponse](t, resp)
	m.Pool.Wait()

	res, err := http.Get(srv.URL + "/dual/" + acc.OrderID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	out := decode[model.MILPOutputs](t, res)
	assert.Len(t, out.IndividualCosts, 2)
	assert.Len(t, out.LEMPrices, 1)
}

func TestValidationErrors(t *testing.T) {
	srv, _ := newTestServer(&gateAligner{ds: apiDataset(), report: cleanReport()})
	defer srv.Close()

	cases := []struct {
		name    string
		mutate  func(map[string]any)
		path    string
		wantMsg string
	}{
		{
			name:    "end before start",
			mutate:  func(b map[string]any) { b["end_datetime"] = "2025-03-10T11:00:00Z" },
			path:    "/vanilla/mmr",
			wantMsg: "end_datetime",
		},
		{
			name:    "unknown origin",
			mutate:  func(b map[string]any) { b["dataset_origin"] = "ACME" },
			path:    "/vanilla/mmr",
			wantMsg: "dataset_origin",
		},
		{
			name:    "single meter",
			mutate:  func(b map[string]any) { b["meter_ids"] = []string{"A"} },
			path:    "/vanilla/mmr",
			wantMsg: "at least two meters",
		},
		{
			name: "pv override for undeclared meter",
			mutate: func(b map[string]any) {
				b["meter_installed_pv_capacities"] = map[string]float64{"Z": 5}
			},
			path:    "/vanilla/mmr",
			wantMsg: "undeclared",
		},
		{
			name: "bad soc bounds",
			mutate: func(b map[string]any) {
				b["meter_storage"] = map[string]any{"A": map[string]any{
					"capacity_kwh": 5, "max_power_kw": 2,
					"soc_min": 0.9, "soc_max": 0.1,
					"charge_eff": 0.9, "discharge_eff": 0.9,
				}}
			},
			path:    "/loop/pool/mmr",
			wantMsg: "soc",
		},
		{
			name:    "unaligned start",
			mutate:  func(b map[string]any) { b["start_datetime"] = "2025-03-10T12:07:00Z" },
			path:    "/vanilla/mmr",
			wantMsg: "boundary",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := orderBody()
			tc.mutate(body)
			resp := postJSON(t, srv.URL+tc.path, body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			msg := decode[messageResponse](t, resp)
			assert.Contains(t, msg.Message, tc.wantMsg)
		})
	}
}

func TestUnknownPathParameters(t *testing.T) {
	srv, _ := newTestServer(&gateAligner{ds: apiDataset(), report: cleanReport()})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/vanilla/vcg", orderBody())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	resp = postJSON(t, srv.URL+"/loop/cooperative/mmr", orderBody())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(&gateAligner{ds: apiDataset(), report: cleanReport()})
	defer srv.Close()

	res, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	_ = res.Body.Close()
}
