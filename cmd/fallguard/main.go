// fallguard watches a wearable accelerometer and raises an alert when the
// fall classifier reports a fall.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/ayusman/fallguard/internal/monitoring"
)

var version = "dev"

func main() {
	var verbose bool

	root := &cobra.Command{
		Use:   "fallguard",
		Short: "Accelerometer fall detector",
		Long: `fallguard reads accelerometer samples from a serial sensor or a replay
file, classifies sliding windows with a pre-trained fall model and raises
alerts through the configured sinks.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(verbose)
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newRunCmd(), newCollectCmd(), newFallsCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// setupLogging installs a tint handler as the default slog logger and routes
// pipeline diagnostics through it.
func setupLogging(verbose bool) {
	slog.SetDefault(newLogger(os.Stderr, verbose))
	routeDiagnostics(slog.Default())
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
	}))
}

// routeDiagnostics sends monitoring.Logf to l at info level and
// monitoring.Debugf at debug level.
func routeDiagnostics(l *slog.Logger) {
	monitoring.SetLogger(func(format string, v ...interface{}) {
		l.Info(fmt.Sprintf(format, v...))
	})
	monitoring.SetDebugLogger(func(format string, v ...interface{}) {
		if l.Enabled(context.Background(), slog.LevelDebug) {
			l.Debug(fmt.Sprintf(format, v...))
		}
	})
}

// dataDir returns ~/.fallguard, creating it if needed.
func dataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	dir := filepath.Join(homeDir, ".fallguard")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}

// defaultDBPath is the store used when the config names none.
func defaultDBPath() string {
	dir, err := dataDir()
	if err != nil {
		return "fallguard.db"
	}
	return filepath.Join(dir, "fallguard.db")
}

// findWebDir searches for the web directory in common locations.
// It checks "web", "../web" and ~/.fallguard/web and returns the first
// existing directory, or "" if none is found.
func findWebDir() string {
	for _, p := range []string{"web", "../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	homeWebDir := filepath.Join(homeDir, ".fallguard", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}
	return ""
}
