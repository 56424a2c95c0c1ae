package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/fallguard/internal/alert"
	"github.com/ayusman/fallguard/internal/classifier"
	"github.com/ayusman/fallguard/internal/config"
	"github.com/ayusman/fallguard/internal/detector"
	"github.com/ayusman/fallguard/internal/sensor"
	"github.com/ayusman/fallguard/internal/status"
	"github.com/ayusman/fallguard/internal/store"
)

func TestAPI_FallWorkflow(t *testing.T) {
	// Setup
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	board := status.NewBoard()
	src := sensor.NewMockSource()
	det := detector.New(detector.Options{
		Source: src,
		Load: func(context.Context, int) (classifier.Classifier, error) {
			return classifier.NewMockClassifier([2]float32{0.1, 0.9}), nil
		},
		Config: config.Detection{SequenceLength: 20, SamplingPeriodMs: 31, FallThreshold: 0.5},
		Sink:   alert.StoreSink{Falls: s.Falls()},
		Board:  board,
	})
	if err := det.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer det.Stop()

	srv := New(Config{Store: s, Detector: det, Board: board})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	// 1. Wait for the model, then feed one full window
	waitFor(t, det.Loaded)
	for i := 0; i < 20; i++ {
		if err := src.Emit(sensor.Sample{Timestamp: int64(1000 + i*31), X: 1, Y: 2, Z: 9.8}); err != nil {
			t.Fatalf("Emit() error = %v", err)
		}
	}
	waitFor(t, func() bool {
		n, _ := s.Falls().Count()
		return n == 1
	})

	// 2. List falls
	resp, err := client.Get(ts.URL + "/api/falls")
	if err != nil {
		t.Fatalf("GET /api/falls error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/falls status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var listed struct {
		Falls []struct {
			ID          string  `json:"id"`
			Probability float32 `json:"probability"`
		} `json:"falls"`
	}
	json.NewDecoder(resp.Body).Decode(&listed)
	resp.Body.Close()

	if len(listed.Falls) != 1 {
		t.Fatalf("len(falls) = %d, want 1", len(listed.Falls))
	}
	id := listed.Falls[0].ID

	// 3. Get single fall with its window
	resp, _ = client.Get(ts.URL + "/api/falls/" + id)
	var fall struct {
		Samples []sensor.Sample `json:"samples"`
	}
	json.NewDecoder(resp.Body).Decode(&fall)
	resp.Body.Close()
	if len(fall.Samples) != 20 {
		t.Errorf("len(samples) = %d, want 20", len(fall.Samples))
	}

	// 4. Change settings
	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/settings", bytes.NewBufferString(`{"sequence_length": 30}`))
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("PUT /api/settings error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT /api/settings status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if got := det.Config().SequenceLength; got != 30 {
		t.Errorf("detector sequence length = %d, want 30", got)
	}
	persisted, err := s.Settings().LoadDetection()
	if err != nil || persisted.SequenceLength != 30 {
		t.Errorf("persisted settings = %+v (%v), want sequence length 30", persisted, err)
	}

	// 5. Delete the fall
	req, _ = http.NewRequest(http.MethodDelete, ts.URL+"/api/falls/"+id, nil)
	resp, _ = client.Do(req)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	resp.Body.Close()

	// 6. Verify deleted
	resp, _ = client.Get(ts.URL + "/api/falls/" + id)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET after delete status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	resp.Body.Close()
}

func TestAPI_HealthCheck(t *testing.T) {
	srv := New(Config{})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var health struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}
	json.NewDecoder(resp.Body).Decode(&health)

	if health.Status != "ok" {
		t.Errorf("status = %s, want ok", health.Status)
	}
}

func TestAPI_StatusStream(t *testing.T) {
	board := status.NewBoard()
	ts := httptest.NewServer(New(Config{Board: board}))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	// The current snapshot is sent first.
	var snap status.Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if snap.State != "idle" {
		t.Errorf("initial state = %q, want idle", snap.State)
	}

	waitFor(t, func() bool { return board.Subscribers() == 1 })
	board.Update(func(s *status.Snapshot) {
		s.State = "cooldown"
		s.FallDetected = true
	})

	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if snap.State != "cooldown" || !snap.FallDetected {
		t.Errorf("snapshot = %+v, want cooldown with fall detected", snap)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 5s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
