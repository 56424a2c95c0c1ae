package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ayusman/fallguard/internal/app"
	"github.com/ayusman/fallguard/internal/config"
	"github.com/ayusman/fallguard/internal/tray"
)

type runOptions struct {
	configPath string
	webDir     string
	httpAddr   string
	replay     string
	withTray   bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the fall detector",
		Example: `  fallguard run --config fallguard.toml
  fallguard run --config fallguard.yaml --replay testdata/fall.csv --tray`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetector(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "configuration file (.json, .toml or .yaml)")
	f.StringVar(&opts.webDir, "web", "", "directory of static files to serve (default: search ./web)")
	f.StringVar(&opts.httpAddr, "http", "", "status server address, overrides http.addr")
	f.StringVar(&opts.replay, "replay", "", "replay samples from a file instead of the configured sensor")
	f.BoolVar(&opts.withTray, "tray", false, "show a system tray menu")
	cmd.MarkFlagRequired("config")

	return cmd
}

func runDetector(ctx context.Context, opts runOptions) error {
	file, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.httpAddr != "" {
		file.HTTP.Addr = opts.httpAddr
	}
	if opts.replay != "" {
		file.Sensor = config.SensorConfig{ReplayFile: opts.replay}
	}
	if file.Store.Path == "" {
		file.Store.Path = defaultDBPath()
	}

	webDir := opts.webDir
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		slog.Info("serving static files", "dir", webDir)
	}

	a, err := app.New(ctx, app.Config{File: file, StaticDir: webDir})
	if err != nil {
		return err
	}

	if !opts.withTray {
		return a.Run(ctx)
	}
	return runWithTray(ctx, a, file.HTTP.Addr)
}

// runWithTray runs the app in the background while the tray owns the main
// goroutine. Quitting the tray stops the app.
func runWithTray(ctx context.Context, a *app.App, httpAddr string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t := tray.New()
	t.OnToggle(func(monitoring bool) {
		if monitoring {
			a.Detector().Resume()
		} else {
			a.Detector().Pause()
		}
	})
	t.OnSettings(func() {
		if httpAddr == "" {
			slog.Warn("settings unavailable: no http address configured")
			return
		}
		url := "http://" + localAddr(httpAddr) + "/"
		if err := openBrowser(url); err != nil {
			slog.Error("failed to open settings", "url", url, "err", err)
		}
	})
	t.OnQuit(cancel)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run(ctx)
		t.Quit()
	}()
	go t.Follow(a.Board(), ctx.Done())

	t.Run()
	cancel()
	return <-errCh
}

// localAddr turns a listen address such as ":8080" into a dialable one.
func localAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open %s: %w", url, err)
	}
	go cmd.Wait()
	return nil
}
