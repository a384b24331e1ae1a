package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openrec/lemd/core/model"
	"github.com/openrec/lemd/core/orders"
)

const maxBodySize = 1 << 20

type acceptedResponse struct {
	Message string `json:"message"`
	OrderID string `json:"order_id"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func handleSubmitVanilla(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mech, ok := validMechanism(chi.URLParam(r, "pricing_mechanism"))
		if !ok {
			writeJSON(w, http.StatusBadRequest, messageResponse{Message: "unknown pricing mechanism"})
			return
		}
		submit(deps, w, r, model.KindVanilla, "", mech)
	}
}

func handleSubmitDual(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Dual mode prices from the marginal tariff pair, always over the pool.
		submit(deps, w, r, model.KindDual, model.OrgPool, "")
	}
}

func handleSubmitLoop(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org, ok := validOrganization(chi.URLParam(r, "lem_organization"))
		if !ok {
			writeJSON(w, http.StatusBadRequest, messageResponse{Message: "unknown LEM organization"})
			return
		}
		mech, ok := validMechanism(chi.URLParam(r, "pricing_mechanism"))
		if !ok {
			writeJSON(w, http.StatusBadRequest, messageResponse{Message: "unknown pricing mechanism"})
			return
		}
		submit(deps, w, r, model.KindLoop, org, mech)
	}
}

func submit(deps Deps, w http.ResponseWriter, r *http.Request, kind model.RequestKind, org model.MarketOrganization, mech model.PricingMechanism) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer func() { _ = r.Body.Close() }()

	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "invalid request body: " + err.Error()})
		return
	}
	start, end, err := req.validate()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: err.Error()})
		return
	}
	id, err := deps.Manager.Submit(r.Context(), req.submitRequest(kind, org, mech, start, end))
	if err != nil {
		deps.Log.Errorf("submit %s: %v", kind, err)
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "failed to accept order"})
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{
		Message: "the request is being processed, check its status later using the order id",
		OrderID: id,
	})
}

func handleResultVanilla(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "order_id")
		_, rows, ok := pollOrder(deps, w, r, id, model.KindVanilla, "")
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, orders.AssembleVanilla(id, rows))
	}
}

func handleResultDual(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "order_id")
		order, rows, ok := pollOrder(deps, w, r, id, model.KindDual, model.OrgPool)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, orders.AssembleMILP(id, order.Organization, rows))
	}
}

func handleResultLoop(deps Deps, org model.MarketOrganization) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "order_id")
		order, rows, ok := pollOrder(deps, w, r, id, model.KindLoop, org)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, orders.AssembleMILP(id, order.Organization, rows))
	}
}

// pollOrder resolves one poll: it writes the pending/error/mismatch response
// itself and returns ok only when a 200 with rows should follow. An order
// polled through the wrong endpoint is reported as unknown rather than
// leaking its existence elsewhere.
func pollOrder(deps Deps, w http.ResponseWriter, r *http.Request, id string, kind model.RequestKind, org model.MarketOrganization) (*model.Order, *model.ResultRows, bool) {
	order, rows, err := deps.Manager.Result(r.Context(), id)
	if errors.Is(err, orders.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, messageResponse{Message: "unknown order id"})
		return nil, nil, false
	}
	if err != nil {
		deps.Log.Errorf("poll %s: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "failed to load order"})
		return nil, nil, false
	}
	if order.Kind != kind || (org != "" && order.Organization != org) {
		writeJSON(w, http.StatusNotFound, messageResponse{Message: "unknown order id"})
		return nil, nil, false
	}
	switch order.State {
	case model.StatePending:
		writeJSON(w, http.StatusAccepted, acceptedResponse{
			Message: "the request is still being processed",
			OrderID: id,
		})
		return nil, nil, false
	case model.StateDoneError:
		writeJSON(w, errorStatus(order.ErrKind), messageResponse{Message: order.Message})
		return nil, nil, false
	}
	return order, rows, true
}

// errorStatus maps a terminal error kind onto its HTTP status.
func errorStatus(kind model.ErrorKind) int {
	switch kind {
	case model.ErrMissingMeter:
		return http.StatusPreconditionFailed
	case model.ErrMissingTimestep:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
