package tray

import (
	"testing"
	"time"

	"github.com/ayusman/fallguard/internal/status"
)

func TestTray_Toggle(t *testing.T) {
	tr := New()
	if !tr.IsMonitoring() {
		t.Fatal("expected monitoring on by default")
	}

	var got []bool
	tr.OnToggle(func(monitoring bool) { got = append(got, monitoring) })

	tr.handleToggle()
	tr.handleToggle()

	if len(got) != 2 || got[0] != false || got[1] != true {
		t.Errorf("unexpected toggle callbacks %v", got)
	}
	if !tr.IsMonitoring() {
		t.Error("expected monitoring on after two toggles")
	}
}

func TestTray_Settings(t *testing.T) {
	tr := New()
	called := false
	tr.OnSettings(func() { called = true })

	tr.handleSettings()

	if !called {
		t.Error("expected settings callback")
	}
}

func TestTray_ShowBeforeReady(t *testing.T) {
	tr := New()
	tr.Show(status.Snapshot{Paused: true})

	if tr.IsMonitoring() {
		t.Error("expected paused snapshot to turn monitoring off")
	}
}

func TestTray_FollowStopsOnClose(t *testing.T) {
	tr := New()
	board := status.NewBoard()

	done := make(chan struct{})
	go func() {
		tr.Follow(board, nil)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for board.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	board.Update(func(s *status.Snapshot) { s.Paused = true })
	board.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Follow did not return after board close")
	}
	if tr.IsMonitoring() {
		t.Error("expected paused update to be shown")
	}
}

func TestTitles(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"toggle on", toggleTitle(true), "● Monitoring"},
		{"toggle off", toggleTitle(false), "○ Paused"},
		{"no prediction", probabilityTitle(status.Snapshot{}), "Fall probability: –"},
		{"prediction", probabilityTitle(status.Snapshot{HasPrediction: true, Probability: 0.873}), "Fall probability: 87%"},
		{"no fall", lastFallTitle(nil, time.Now()), "Last fall: none"},
		{"message", statusText(status.Snapshot{State: "armed", Message: "Model loaded (cpu)"}), "Model loaded (cpu)"},
		{"state", statusText(status.Snapshot{State: "armed"}), "armed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}

	now := time.Date(2024, 5, 2, 12, 0, 0, 0, time.Local)
	recent := now.Add(-time.Hour)
	if got := lastFallTitle(&recent, now); got != "Last fall: 11:00:00" {
		t.Errorf("recent fall title = %q", got)
	}
	old := now.Add(-48 * time.Hour)
	if got := lastFallTitle(&old, now); got != "Last fall: Apr 30 12:00" {
		t.Errorf("old fall title = %q", got)
	}
}
