// Package tray provides a system tray interface for the fall detector.
package tray

import (
	"fmt"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/ayusman/fallguard/internal/status"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle   func(monitoring bool)
	onSettings func()
	onQuit     func()
	monitoring bool
	mu         sync.RWMutex

	// Menu items stored for later updates
	menuToggle      *systray.MenuItem
	menuProbability *systray.MenuItem
	menuLastFall    *systray.MenuItem
	menuStatus      *systray.MenuItem
}

// New creates a new Tray instance with monitoring on by default.
func New() *Tray {
	return &Tray{
		monitoring: true,
	}
}

// OnToggle sets the callback function to be called when monitoring is toggled.
func (t *Tray) OnToggle(fn func(monitoring bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnSettings sets the callback function to be called when the settings menu item is clicked.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray from outside the menu.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Fallguard")
	systray.SetTooltip("Fallguard fall detection")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.monitoring), "Pause or resume fall monitoring")
	systray.AddSeparator()

	t.menuProbability = systray.AddMenuItem(probabilityTitle(status.Snapshot{}), "Latest fall probability")
	t.menuProbability.Disable()
	t.menuLastFall = systray.AddMenuItem(lastFallTitle(nil, time.Now()), "Last detected fall")
	t.menuLastFall.Disable()
	t.menuStatus = systray.AddMenuItem("Status: starting", "Detector status")
	t.menuStatus.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuSettings := systray.AddMenuItem("Open Settings...", "Open settings in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Fallguard")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuSettings.ClickedCh:
				t.handleSettings()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// handleToggle handles the monitoring menu item click.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.monitoring = !t.monitoring
	monitoring := t.monitoring

	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(monitoring))
	}

	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(monitoring)
	}
}

// handleSettings handles the settings menu item click.
func (t *Tray) handleSettings() {
	t.mu.RLock()
	callback := t.onSettings
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// Show updates the menu from a status snapshot.
func (t *Tray) Show(snap status.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.monitoring = !snap.Paused
	if t.menuToggle == nil {
		return
	}
	t.menuToggle.SetTitle(toggleTitle(t.monitoring))
	t.menuProbability.SetTitle(probabilityTitle(snap))
	t.menuLastFall.SetTitle(lastFallTitle(snap.LastFall, time.Now()))
	t.menuStatus.SetTitle("Status: " + statusText(snap))

	if snap.FallDetected {
		systray.SetTitle("Fallguard ⚠")
	} else {
		systray.SetTitle("Fallguard")
	}
}

// Follow shows every board update until the board is closed or done is closed.
func (t *Tray) Follow(board *status.Board, done <-chan struct{}) {
	id, updates := board.Subscribe()
	defer board.Unsubscribe(id)

	t.Show(board.Snapshot())
	for {
		select {
		case <-done:
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			t.Show(snap)
		}
	}
}

// IsMonitoring returns whether monitoring is on.
func (t *Tray) IsMonitoring() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.monitoring
}

func toggleTitle(monitoring bool) string {
	if monitoring {
		return "● Monitoring"
	}
	return "○ Paused"
}

func probabilityTitle(snap status.Snapshot) string {
	if !snap.HasPrediction {
		return "Fall probability: –"
	}
	return fmt.Sprintf("Fall probability: %.0f%%", snap.Probability*100)
}

func lastFallTitle(last *time.Time, now time.Time) string {
	if last == nil {
		return "Last fall: none"
	}
	if now.Sub(*last) < 24*time.Hour {
		return "Last fall: " + last.Local().Format("15:04:05")
	}
	return "Last fall: " + last.Local().Format("Jan 2 15:04")
}

func statusText(snap status.Snapshot) string {
	if snap.Message != "" {
		return snap.Message
	}
	return snap.State
}
