// Package main provides an audible alarm hook. It raises the output volume
// and speaks the alert a configurable number of times.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"

	"github.com/ayusman/fallguard/internal/hook"
)

// AlarmConfig is read from the manifest's config block.
type AlarmConfig struct {
	Message string `json:"message"`
	Repeat  int    `json:"repeat"`
	Volume  int    `json:"volume"` // percent, 0 leaves the volume alone
}

const maxRepeat = 10

// command is one program invocation.
type command struct {
	Name string
	Args []string
}

// runner executes a command.
type runner func(c command) error

func main() {
	resp := handle(os.Stdin, runtime.GOOS, execRunner)
	json.NewEncoder(os.Stdout).Encode(resp)
}

func handle(in io.Reader, goos string, run runner) hook.Response {
	var req hook.Request
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return errorResponse(fmt.Sprintf("failed to decode request: %v", err))
	}

	cfg := AlarmConfig{Message: "Fall detected. Are you okay?", Repeat: 3}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return errorResponse(fmt.Sprintf("invalid config: %v", err))
		}
	}
	if req.Event == hook.EventTest {
		cfg.Message = "Fallguard alarm test"
		cfg.Repeat = 1
	}

	cmds, err := plan(cfg, goos)
	if err != nil {
		return errorResponse(err.Error())
	}
	for _, c := range cmds {
		if err := run(c); err != nil {
			return errorResponse(fmt.Sprintf("%s failed: %v", c.Name, err))
		}
	}

	data, _ := json.Marshal(map[string]int{"played": cfg.Repeat})
	return hook.Response{Success: true, Data: data}
}

// plan returns the commands that sound the alarm on goos.
func plan(cfg AlarmConfig, goos string) ([]command, error) {
	if cfg.Repeat <= 0 {
		cfg.Repeat = 1
	}
	if cfg.Repeat > maxRepeat {
		cfg.Repeat = maxRepeat
	}
	if cfg.Volume < 0 || cfg.Volume > 100 {
		return nil, fmt.Errorf("volume must be between 0 and 100, got %d", cfg.Volume)
	}

	var cmds []command
	switch goos {
	case "darwin":
		if cfg.Volume > 0 {
			cmds = append(cmds, command{"osascript", []string{"-e", fmt.Sprintf("set volume output volume %d", cfg.Volume)}})
		}
		for i := 0; i < cfg.Repeat; i++ {
			cmds = append(cmds, command{"say", []string{cfg.Message}})
		}
	case "linux":
		if cfg.Volume > 0 {
			cmds = append(cmds, command{"amixer", []string{"-q", "sset", "Master", strconv.Itoa(cfg.Volume) + "%", "unmute"}})
		}
		for i := 0; i < cfg.Repeat; i++ {
			cmds = append(cmds, command{"spd-say", []string{"--wait", cfg.Message}})
		}
	default:
		return nil, fmt.Errorf("unsupported platform: %s", goos)
	}
	return cmds, nil
}

func execRunner(c command) error {
	output, err := exec.Command(c.Name, c.Args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

func errorResponse(msg string) hook.Response {
	return hook.Response{Success: false, Error: msg}
}
