package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ayusman/fallguard/internal/config"
	"github.com/ayusman/fallguard/internal/store"
)

// Reconfigurer is the part of the detector the settings API drives.
type Reconfigurer interface {
	Config() config.Detection
	Reconfigure(config.Detection) error
}

// SettingsHandler reads and replaces the detection settings.
type SettingsHandler struct {
	detector Reconfigurer
	store    *store.Store
}

// NewSettingsHandler creates a SettingsHandler. The store may be nil, in
// which case changes are not persisted.
func NewSettingsHandler(d Reconfigurer, s *store.Store) *SettingsHandler {
	return &SettingsHandler{detector: d, store: s}
}

// Register adds the settings routes to r.
func (h *SettingsHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/settings", h.get).Methods(http.MethodGet)
	r.HandleFunc("/api/settings", h.update).Methods(http.MethodPut)
}

// get handles GET /api/settings.
func (h *SettingsHandler) get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.detector.Config())
}

// update handles PUT /api/settings. Fields missing from the body keep their
// current value. The new settings are applied to the detector and persisted.
func (h *SettingsHandler) update(w http.ResponseWriter, r *http.Request) {
	cfg := h.detector.Config()
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.detector.Reconfigure(cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to apply settings: "+err.Error())
		return
	}

	if h.store != nil {
		if err := h.store.Settings().SaveDetection(cfg); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save settings")
			return
		}
	}

	writeJSON(w, http.StatusOK, cfg)
}
