package store

import (
	"database/sql"
	"errors"
	"strconv"

	"github.com/ayusman/fallguard/internal/config"
)

// Settings keys for the detection tunables.
const (
	KeySequenceLength   = "sequence_length"
	KeySamplingPeriodMs = "sampling_period_ms"
	KeyFallThreshold    = "fall_threshold"
)

// SettingsRepository is a key-value view of the settings table.
type SettingsRepository struct {
	db *sql.DB
}

// Settings returns the settings repository for this store.
func (s *Store) Settings() *SettingsRepository {
	return &SettingsRepository{db: s.db}
}

// Get returns the value stored under key, or ErrNotFound.
func (r *SettingsRepository) Get(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (r *SettingsRepository) Set(key, value string) error {
	_, err := r.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// LoadDetection reads the persisted detection settings. Missing or
// unparsable values fall back to the defaults, and the result is clamped
// into the allowed ranges.
func (r *SettingsRepository) LoadDetection() (config.Detection, error) {
	d := config.DefaultDetection()

	if v, err := r.Get(KeySequenceLength); err == nil {
		if n, perr := strconv.Atoi(v); perr == nil {
			d.SequenceLength = n
		}
	} else if !errors.Is(err, ErrNotFound) {
		return d, err
	}

	if v, err := r.Get(KeySamplingPeriodMs); err == nil {
		if n, perr := strconv.Atoi(v); perr == nil {
			d.SamplingPeriodMs = n
		}
	} else if !errors.Is(err, ErrNotFound) {
		return d, err
	}

	if v, err := r.Get(KeyFallThreshold); err == nil {
		if f, perr := strconv.ParseFloat(v, 32); perr == nil {
			d.FallThreshold = float32(f)
		}
	} else if !errors.Is(err, ErrNotFound) {
		return d, err
	}

	return d.Clamp(), nil
}

// SaveDetection persists all three tunables in one transaction.
func (r *SettingsRepository) SaveDetection(d config.Detection) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	values := map[string]string{
		KeySequenceLength:   strconv.Itoa(d.SequenceLength),
		KeySamplingPeriodMs: strconv.Itoa(d.SamplingPeriodMs),
		KeyFallThreshold:    strconv.FormatFloat(float64(d.FallThreshold), 'f', -1, 32),
	}
	for k, v := range values {
		if _, err := tx.Exec(
			`INSERT INTO settings (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			k, v,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}
