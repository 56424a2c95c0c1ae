package hook

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// writeHook creates dir/<name>/hook.json for manifest.
func writeHook(t *testing.T, dir string, manifest Manifest) string {
	t.Helper()

	hookDir := filepath.Join(dir, manifest.Name)
	if err := os.MkdirAll(hookDir, 0755); err != nil {
		t.Fatalf("failed to create hook dir: %v", err)
	}

	data, err := json.Marshal(manifest)
	if err != nil {
		t.Fatalf("failed to marshal manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(hookDir, ManifestFile), data, 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	return hookDir
}

func TestManager_Discover(t *testing.T) {
	tmpDir := t.TempDir()

	hookDir := writeHook(t, tmpDir, Manifest{
		Name:        "alarm",
		Version:     "1.0.0",
		Description: "Sounds an alarm",
		Executable:  "alarm",
		Events:      []string{EventFall, EventTest},
	})

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	hooks := manager.List()
	if len(hooks) != 1 {
		t.Fatalf("expected 1 hook, got %d", len(hooks))
	}

	h := hooks[0]
	if h.Manifest.Name != "alarm" {
		t.Errorf("expected hook name 'alarm', got %q", h.Manifest.Name)
	}
	if h.Manifest.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got %q", h.Manifest.Version)
	}
	if len(h.Manifest.Events) != 2 {
		t.Errorf("expected 2 events, got %d", len(h.Manifest.Events))
	}
	if h.Path != hookDir {
		t.Errorf("expected path %q, got %q", hookDir, h.Path)
	}
	if h.Executable != filepath.Join(hookDir, "alarm") {
		t.Errorf("unexpected executable path %q", h.Executable)
	}
}

func TestManager_Discover_MultipleHooks(t *testing.T) {
	tmpDir := t.TempDir()

	writeHook(t, tmpDir, Manifest{Name: "notify", Executable: "notify", Events: []string{EventFall}})
	writeHook(t, tmpDir, Manifest{Name: "alarm", Executable: "alarm", Events: []string{EventFall}})
	writeHook(t, tmpDir, Manifest{Name: "selftest", Executable: "selftest", Events: []string{EventTest}})

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	hooks := manager.List()
	if len(hooks) != 3 {
		t.Fatalf("expected 3 hooks, got %d", len(hooks))
	}
	if hooks[0].Manifest.Name != "alarm" || hooks[2].Manifest.Name != "selftest" {
		t.Errorf("expected hooks sorted by name, got %s..%s", hooks[0].Manifest.Name, hooks[2].Manifest.Name)
	}

	fall := manager.ForEvent(EventFall)
	if len(fall) != 2 {
		t.Errorf("expected 2 fall hooks, got %d", len(fall))
	}
}

func TestManager_Discover_SkipsInvalid(t *testing.T) {
	tmpDir := t.TempDir()

	badDir := filepath.Join(tmpDir, "broken")
	if err := os.MkdirAll(badDir, 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(badDir, ManifestFile), []byte("{not json"), 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}

	writeHook(t, tmpDir, Manifest{Name: "noexec"})

	if err := os.MkdirAll(filepath.Join(tmpDir, "empty"), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "stray-file"), []byte("x"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}
	if n := len(manager.List()); n != 0 {
		t.Errorf("expected 0 hooks, got %d", n)
	}
}

func TestManager_Discover_NonExistentDir(t *testing.T) {
	manager := NewManager(filepath.Join(t.TempDir(), "missing"))
	if err := manager.Discover(); err != nil {
		t.Errorf("Discover() on missing dir should not fail: %v", err)
	}
	if len(manager.List()) != 0 {
		t.Error("expected no hooks")
	}
}

func TestManager_Get(t *testing.T) {
	tmpDir := t.TempDir()
	writeHook(t, tmpDir, Manifest{Name: "alarm", Executable: "alarm"})

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	h, err := manager.Get("alarm")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if h.Manifest.Name != "alarm" {
		t.Errorf("expected alarm, got %q", h.Manifest.Name)
	}

	if _, err := manager.Get("missing"); !errors.Is(err, ErrHookNotFound) {
		t.Errorf("expected ErrHookNotFound, got %v", err)
	}
	if manager.Dir() != tmpDir {
		t.Errorf("expected dir %q, got %q", tmpDir, manager.Dir())
	}
}

func TestManifest_Handles(t *testing.T) {
	tests := []struct {
		name   string
		events []string
		event  string
		want   bool
	}{
		{"listed", []string{EventFall}, EventFall, true},
		{"not listed", []string{EventTest}, EventFall, false},
		{"no events handles all", nil, EventFall, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Manifest{Events: tt.events}
			if got := m.Handles(tt.event); got != tt.want {
				t.Errorf("Handles(%q) = %v, want %v", tt.event, got, tt.want)
			}
		})
	}
}
