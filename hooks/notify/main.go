// Package main provides a desktop notification hook. It shows a fall alert
// through osascript on macOS and notify-send elsewhere.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/ayusman/fallguard/internal/hook"
)

// NotifyConfig is read from the manifest's config block.
type NotifyConfig struct {
	Title   string `json:"title"`
	Urgency string `json:"urgency"` // low, normal, critical (notify-send only)
}

// FallParams is the subset of the request params shown in the notification.
type FallParams struct {
	PeakMagnitude float64 `json:"peak_magnitude"`
	Threshold     float32 `json:"threshold"`
}

// notifier shows one notification.
type notifier func(title, body, urgency string) error

func main() {
	resp := handle(os.Stdin, systemNotifier())
	json.NewEncoder(os.Stdout).Encode(resp)
}

func handle(in io.Reader, notify notifier) hook.Response {
	var req hook.Request
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return errorResponse(fmt.Sprintf("failed to decode request: %v", err))
	}

	cfg := NotifyConfig{Title: "Fall detected", Urgency: "critical"}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return errorResponse(fmt.Sprintf("invalid config: %v", err))
		}
	}

	var params FallParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(fmt.Sprintf("invalid params: %v", err))
		}
	}

	title := cfg.Title
	if req.Event == hook.EventTest {
		title = "Fallguard test"
	}
	body := message(req, params)

	if err := notify(title, body, cfg.Urgency); err != nil {
		return errorResponse(fmt.Sprintf("notify failed: %v", err))
	}

	data, _ := json.Marshal(map[string]string{"title": title, "body": body})
	return hook.Response{Success: true, Data: data}
}

// message renders the notification body.
func message(req hook.Request, params FallParams) string {
	var b strings.Builder
	if req.Device != "" {
		fmt.Fprintf(&b, "%s: ", req.Device)
	}
	fmt.Fprintf(&b, "fall probability %.0f%%", req.Probability*100)
	if params.PeakMagnitude > 0 {
		fmt.Fprintf(&b, ", peak %.1f m/s²", params.PeakMagnitude)
	}
	if !req.OccurredAt.IsZero() {
		fmt.Fprintf(&b, " at %s", req.OccurredAt.Local().Format("15:04:05"))
	}
	return b.String()
}

func errorResponse(msg string) hook.Response {
	return hook.Response{Success: false, Error: msg}
}

func systemNotifier() notifier {
	return func(title, body, urgency string) error {
		var cmd *exec.Cmd
		if runtime.GOOS == "darwin" {
			script := fmt.Sprintf("display notification %q with title %q sound name \"Sosumi\"", body, title)
			cmd = exec.Command("osascript", "-e", script)
		} else {
			cmd = exec.Command("notify-send", "-u", urgency, title, body)
		}
		output, err := cmd.CombinedOutput()
		if err != nil {
			return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
		}
		return nil
	}
}
