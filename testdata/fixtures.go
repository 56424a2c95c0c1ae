// Package testdata holds recorded accelerometer sessions for tests.
package testdata

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ayusman/fallguard/internal/sensor"
)

// Recording names.
const (
	Resting = "resting.csv"
	Fall    = "fall.csv"
)

//go:embed recordings/*.csv
var recordingsFS embed.FS

// Load parses a recording into samples with zero timestamps.
func Load(name string) ([]sensor.Sample, error) {
	data, err := recordingsFS.ReadFile("recordings/" + name)
	if err != nil {
		return nil, fmt.Errorf("load recording %s: %w", name, err)
	}

	var samples []sensor.Sample
	scan := bufio.NewScanner(bytes.NewReader(data))
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		s, err := sensor.ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("recording %s: %w", name, err)
		}
		samples = append(samples, s)
	}
	return samples, scan.Err()
}

// Extract writes a recording into dir and returns its path, for code that
// replays from a file.
func Extract(dir, name string) (string, error) {
	data, err := recordingsFS.ReadFile("recordings/" + name)
	if err != nil {
		return "", fmt.Errorf("load recording %s: %w", name, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}
