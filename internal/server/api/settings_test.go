package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/ayusman/fallguard/internal/config"
)

// fakeDetector records applied configurations.
type fakeDetector struct {
	cfg     config.Detection
	applied []config.Detection
	err     error
}

func (f *fakeDetector) Config() config.Detection { return f.cfg }

func (f *fakeDetector) Reconfigure(cfg config.Detection) error {
	if f.err != nil {
		return f.err
	}
	f.cfg = cfg
	f.applied = append(f.applied, cfg)
	return nil
}

func TestSettingsHandler_Get(t *testing.T) {
	d := &fakeDetector{cfg: config.DefaultDetection()}
	r := mux.NewRouter()
	NewSettingsHandler(d, nil).Register(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/settings", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var got config.Detection
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got != config.DefaultDetection() {
		t.Errorf("expected defaults, got %+v", got)
	}
}

func TestSettingsHandler_Update(t *testing.T) {
	s := newTestStore(t)
	d := &fakeDetector{cfg: config.DefaultDetection()}
	r := mux.NewRouter()
	NewSettingsHandler(d, s).Register(r)

	body := `{"sequence_length": 60, "fall_threshold": 0.7}`
	req := httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	want := config.Detection{SequenceLength: 60, SamplingPeriodMs: 31, FallThreshold: 0.7}
	if len(d.applied) != 1 || d.applied[0] != want {
		t.Fatalf("expected %+v applied once, got %+v", want, d.applied)
	}

	persisted, err := s.Settings().LoadDetection()
	if err != nil {
		t.Fatalf("LoadDetection() failed: %v", err)
	}
	if persisted != want {
		t.Errorf("expected %+v persisted, got %+v", want, persisted)
	}
}

func TestSettingsHandler_Update_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"sequence_length":`},
		{"window too short", `{"sequence_length": 5}`},
		{"period too long", `{"sampling_period_ms": 500}`},
		{"threshold too low", `{"fall_threshold": 0.01}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDetector{cfg: config.DefaultDetection()}
			r := mux.NewRouter()
			NewSettingsHandler(d, nil).Register(r)

			req := httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
			}
			if len(d.applied) != 0 {
				t.Error("invalid settings must not be applied")
			}
		})
	}
}

func TestSettingsHandler_Update_ReconfigureFails(t *testing.T) {
	d := &fakeDetector{cfg: config.DefaultDetection(), err: errors.New("sensor gone")}
	r := mux.NewRouter()
	NewSettingsHandler(d, nil).Register(r)

	req := httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewBufferString(`{"fall_threshold": 0.6}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
}
