package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/relvacode/iso8601"

	"github.com/ayusman/fallguard/internal/sensor"
	"github.com/ayusman/fallguard/internal/store"
)

// DefaultFallLimit is how many falls a list returns without a limit parameter.
const DefaultFallLimit = 50

// FallHandler serves the fall history.
type FallHandler struct {
	store *store.Store
}

// NewFallHandler creates a new FallHandler with the given store.
func NewFallHandler(s *store.Store) *FallHandler {
	return &FallHandler{store: s}
}

// Register adds the fall routes to r.
func (h *FallHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/falls", h.list).Methods(http.MethodGet)
	r.HandleFunc("/api/falls/{id}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/api/falls/{id}", h.delete).Methods(http.MethodDelete)
}

type fallResponse struct {
	ID               string          `json:"id"`
	OccurredAt       string          `json:"occurred_at"`
	TimestampMs      int64           `json:"timestamp_ms"`
	Probability      float32         `json:"probability"`
	Threshold        float32         `json:"threshold"`
	SequenceLength   int             `json:"sequence_length"`
	SamplingPeriodMs int             `json:"sampling_period_ms"`
	Backend          string          `json:"backend"`
	PeakMagnitude    float64         `json:"peak_magnitude"`
	MeanMagnitude    float64         `json:"mean_magnitude"`
	StdMagnitude     float64         `json:"std_magnitude"`
	Samples          []sensor.Sample `json:"samples,omitempty"`
}

type listFallsResponse struct {
	Falls []fallResponse `json:"falls"`
	Total int            `json:"total"`
}

// toFallResponse converts a store.FallEvent to a fallResponse.
func toFallResponse(e *store.FallEvent) fallResponse {
	return fallResponse{
		ID:               e.ID,
		OccurredAt:       e.OccurredAt.Format(time.RFC3339),
		TimestampMs:      e.TimestampMs,
		Probability:      e.Probability,
		Threshold:        e.Threshold,
		SequenceLength:   e.SequenceLength,
		SamplingPeriodMs: e.SamplingPeriodMs,
		Backend:          e.Backend,
		PeakMagnitude:    e.PeakMagnitude,
		MeanMagnitude:    e.MeanMagnitude,
		StdMagnitude:     e.StdMagnitude,
		Samples:          e.Samples,
	}
}

// list handles GET /api/falls. Optional query parameters: limit (default
// DefaultFallLimit, 0 for all) and since (ISO 8601 timestamp).
func (h *FallHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := DefaultFallLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	var (
		falls []*store.FallEvent
		err   error
	)
	if v := r.URL.Query().Get("since"); v != "" {
		since, perr := iso8601.ParseString(v)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "Invalid since timestamp")
			return
		}
		falls, err = h.store.Falls().ListSince(since, limit)
	} else {
		falls, err = h.store.Falls().List(limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list falls")
		return
	}

	total, err := h.store.Falls().Count()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count falls")
		return
	}

	response := listFallsResponse{
		Falls: make([]fallResponse, 0, len(falls)),
		Total: total,
	}
	for _, f := range falls {
		response.Falls = append(response.Falls, toFallResponse(f))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/falls/{id} and returns the fall with its window.
func (h *FallHandler) get(w http.ResponseWriter, r *http.Request) {
	fall, err := h.store.Falls().GetByID(mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Fall not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get fall")
		return
	}

	writeJSON(w, http.StatusOK, toFallResponse(fall))
}

// delete handles DELETE /api/falls/{id}.
func (h *FallHandler) delete(w http.ResponseWriter, r *http.Request) {
	err := h.store.Falls().Delete(mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Fall not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete fall")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
