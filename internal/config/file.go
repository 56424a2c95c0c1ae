package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sosodev/duration"
	"gopkg.in/yaml.v3"
)

// Channel orders accepted by the model section.
const (
	ChannelOrderXYZ = "xyz"
	ChannelOrderZXY = "zxy"
)

// File is the daemon configuration file. Every section is optional; the
// zero value of a section disables the component it configures.
type File struct {
	DeviceID  string          `json:"device_id,omitempty" toml:"device_id" yaml:"device_id"`
	Detection *Detection      `json:"detection,omitempty" toml:"detection" yaml:"detection"`
	Model     ModelConfig     `json:"model" toml:"model" yaml:"model"`
	Sensor    SensorConfig    `json:"sensor" toml:"sensor" yaml:"sensor"`
	Telemetry TelemetryConfig `json:"telemetry" toml:"telemetry" yaml:"telemetry"`
	Store     StoreConfig     `json:"store" toml:"store" yaml:"store"`
	HTTP      HTTPConfig      `json:"http" toml:"http" yaml:"http"`
	Redis     RedisConfig     `json:"redis" toml:"redis" yaml:"redis"`
	MQTT      MQTTConfig      `json:"mqtt" toml:"mqtt" yaml:"mqtt"`
	Hooks     HooksConfig     `json:"hooks" toml:"hooks" yaml:"hooks"`
}

// ModelConfig locates the classifier asset.
type ModelConfig struct {
	Path         string   `json:"path" toml:"path" yaml:"path"`
	Backends     []string `json:"backends,omitempty" toml:"backends" yaml:"backends"` // preference order, e.g. ["cuda", "cpu"]
	ChannelOrder string   `json:"channel_order,omitempty" toml:"channel_order" yaml:"channel_order"`
}

// SensorConfig selects the sample source. SerialPort wins over ReplayFile.
type SensorConfig struct {
	SerialPort string `json:"serial_port,omitempty" toml:"serial_port" yaml:"serial_port"`
	BaudRate   int    `json:"baud_rate,omitempty" toml:"baud_rate" yaml:"baud_rate"`
	ReplayFile string `json:"replay_file,omitempty" toml:"replay_file" yaml:"replay_file"`
	Loop       bool   `json:"loop,omitempty" toml:"loop" yaml:"loop"`
}

// TelemetryConfig enables streaming to a remote collector when Host is set.
type TelemetryConfig struct {
	Host    string `json:"host,omitempty" toml:"host" yaml:"host"`
	Port    int    `json:"port,omitempty" toml:"port" yaml:"port"`
	Backoff string `json:"backoff,omitempty" toml:"backoff" yaml:"backoff"` // "5s" or "PT5S"
}

// Enabled reports whether the socket telemetry variant is configured.
func (t TelemetryConfig) Enabled() bool {
	return t.Host != "" && t.Port > 0
}

// BackoffDuration returns the reconnect backoff, or fallback when unset.
func (t TelemetryConfig) BackoffDuration(fallback time.Duration) time.Duration {
	return durationOr(t.Backoff, fallback)
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `json:"path,omitempty" toml:"path" yaml:"path"`
}

// HTTPConfig configures the status server.
type HTTPConfig struct {
	Addr string `json:"addr,omitempty" toml:"addr" yaml:"addr"`
}

// RedisConfig enables the remote fall record sink when Addr is set.
type RedisConfig struct {
	Addr string `json:"addr,omitempty" toml:"addr" yaml:"addr"`
	TTL  string `json:"ttl,omitempty" toml:"ttl" yaml:"ttl"`
}

// TTLDuration returns the record TTL; zero leaves the sink default.
func (r RedisConfig) TTLDuration() time.Duration {
	return durationOr(r.TTL, 0)
}

// MQTTConfig enables publishing fall alerts to a broker when Host is set.
type MQTTConfig struct {
	Host     string `json:"host,omitempty" toml:"host" yaml:"host"`
	Port     int    `json:"port,omitempty" toml:"port" yaml:"port"`
	Topic    string `json:"topic,omitempty" toml:"topic" yaml:"topic"`
	ClientID string `json:"client_id,omitempty" toml:"client_id" yaml:"client_id"`
	Username string `json:"username,omitempty" toml:"username" yaml:"username"`
	Password string `json:"password,omitempty" toml:"password" yaml:"password"`
	QoS      byte   `json:"qos,omitempty" toml:"qos" yaml:"qos"`
}

// Enabled reports whether MQTT alerts are configured.
func (m MQTTConfig) Enabled() bool {
	return m.Host != ""
}

// HooksConfig locates alert hook executables.
type HooksConfig struct {
	Dir     string `json:"dir,omitempty" toml:"dir" yaml:"dir"`
	Timeout string `json:"timeout,omitempty" toml:"timeout" yaml:"timeout"`
}

// TimeoutDuration returns the per-hook timeout, or fallback when unset.
func (h HooksConfig) TimeoutDuration(fallback time.Duration) time.Duration {
	return durationOr(h.Timeout, fallback)
}

// Load reads a configuration file. The format follows the extension
// (.json, .toml, .yaml or .yml) and the file must be under 1MB.
func Load(path string) (*File, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	switch ext {
	case ".json", ".toml", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .toml or .yaml extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &File{}
	switch ext {
	case ".json":
		err = json.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", ext, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the sections that have values set.
func (f *File) Validate() error {
	if f.Detection != nil {
		if err := f.Detection.Validate(); err != nil {
			return err
		}
	}

	switch f.Model.ChannelOrder {
	case "", ChannelOrderXYZ, ChannelOrderZXY:
	default:
		return fmt.Errorf("model.channel_order must be %q or %q, got %q",
			ChannelOrderXYZ, ChannelOrderZXY, f.Model.ChannelOrder)
	}

	if f.Telemetry.Host != "" && (f.Telemetry.Port <= 0 || f.Telemetry.Port > 65535) {
		return fmt.Errorf("telemetry.port must be between 1 and 65535, got %d", f.Telemetry.Port)
	}
	if f.MQTT.QoS > 1 {
		return fmt.Errorf("mqtt.qos must be 0 or 1, got %d", f.MQTT.QoS)
	}

	durations := map[string]string{
		"telemetry.backoff": f.Telemetry.Backoff,
		"redis.ttl":         f.Redis.TTL,
		"hooks.timeout":     f.Hooks.Timeout,
	}
	for name, v := range durations {
		if v == "" {
			continue
		}
		if _, err := ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, v, err)
		}
	}

	return nil
}

// DetectionOrDefault returns the file's detection section or the defaults.
func (f *File) DetectionOrDefault() Detection {
	if f.Detection == nil {
		return DefaultDetection()
	}
	return *f.Detection
}

// ParseDuration accepts a Go duration ("5s") or an ISO 8601 duration ("PT5S").
func ParseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	d, err := duration.Parse(s)
	if err != nil {
		return 0, err
	}
	return d.ToTimeDuration(), nil
}

func durationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
