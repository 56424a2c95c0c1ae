package hook

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// scriptHook writes a shell script hook into a temp dir.
func scriptHook(t *testing.T, name, script string) *Hook {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	tmpDir := t.TempDir()
	scriptPath := filepath.Join(tmpDir, name+".sh")
	if err := os.WriteFile(scriptPath, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}

	return &Hook{
		Manifest: Manifest{
			Name:       name,
			Version:    "1.0.0",
			Executable: name + ".sh",
			Events:     []string{EventFall},
		},
		Path:       tmpDir,
		Executable: scriptPath,
	}
}

func TestExecutor_Execute(t *testing.T) {
	h := scriptHook(t, "ok-hook", `#!/bin/sh
cat <<'EOF'
{"success":true,"data":{"message":"alarm raised"}}
EOF
`)

	executor := NewExecutor(5 * time.Second)
	response, err := executor.Execute(context.Background(), h, &Request{Event: EventFall, Probability: 0.9})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	if !response.Success {
		t.Errorf("expected success=true, got false")
	}

	var data map[string]interface{}
	if err := json.Unmarshal(response.Data, &data); err != nil {
		t.Fatalf("failed to unmarshal response data: %v", err)
	}
	if data["message"] != "alarm raised" {
		t.Errorf("expected message 'alarm raised', got %v", data["message"])
	}
}

func TestExecutor_Execute_ReadsStdin(t *testing.T) {
	h := scriptHook(t, "echo-hook", `#!/bin/sh
INPUT=$(cat)
echo "{\"success\":true,\"data\":{\"received\":$INPUT}}"
`)
	h.Manifest.Config = json.RawMessage(`{"volume":11}`)

	req := &Request{
		Event:       EventFall,
		Device:      "wrist-01",
		Probability: 0.75,
		OccurredAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Params:      json.RawMessage(`{"peak_magnitude":31.5}`),
	}

	response, err := NewExecutor(5*time.Second).Execute(context.Background(), h, req)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	var data map[string]interface{}
	if err := json.Unmarshal(response.Data, &data); err != nil {
		t.Fatalf("failed to unmarshal response data: %v", err)
	}

	received, ok := data["received"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected 'received' to be an object, got %T", data["received"])
	}

	if received["event"] != EventFall {
		t.Errorf("expected event 'fall', got %v", received["event"])
	}
	if received["device"] != "wrist-01" {
		t.Errorf("expected device 'wrist-01', got %v", received["device"])
	}
	if received["occurred_at"] != "2024-05-01T12:00:00Z" {
		t.Errorf("unexpected occurred_at %v", received["occurred_at"])
	}
	config, ok := received["config"].(map[string]interface{})
	if !ok || config["volume"] != float64(11) {
		t.Errorf("expected manifest config to be forwarded, got %v", received["config"])
	}
}

func TestExecutor_Timeout(t *testing.T) {
	h := scriptHook(t, "slow-hook", `#!/bin/sh
exec sleep 10
`)

	start := time.Now()
	_, err := NewExecutor(100*time.Millisecond).Execute(context.Background(), h, &Request{Event: EventFall})
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("expected timeout error, got: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("timeout did not stop the hook")
	}
}

func TestExecutor_Execute_ErrorResponse(t *testing.T) {
	h := scriptHook(t, "error-hook", `#!/bin/sh
echo '{"success":false,"error":"speaker unavailable"}'
`)

	response, err := NewExecutor(5*time.Second).Execute(context.Background(), h, &Request{Event: EventFall})
	if err == nil {
		t.Fatal("expected error for unsuccessful response")
	}
	if !strings.Contains(err.Error(), "speaker unavailable") {
		t.Errorf("expected hook error in message, got %v", err)
	}
	if response == nil || response.Success {
		t.Errorf("expected unsuccessful response, got %+v", response)
	}
}

func TestExecutor_Execute_Failure(t *testing.T) {
	h := scriptHook(t, "crash-hook", `#!/bin/sh
echo "no audio device" >&2
exit 3
`)

	_, err := NewExecutor(5*time.Second).Execute(context.Background(), h, &Request{Event: EventFall})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "no audio device") {
		t.Errorf("expected stderr in error, got %v", err)
	}
}

func TestExecutor_Execute_InvalidJSON(t *testing.T) {
	h := scriptHook(t, "garbage-hook", `#!/bin/sh
echo 'not json'
`)

	_, err := NewExecutor(5*time.Second).Execute(context.Background(), h, &Request{Event: EventFall})
	if err == nil || !strings.Contains(err.Error(), "parse") {
		t.Errorf("expected parse error, got %v", err)
	}
}
