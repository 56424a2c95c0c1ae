package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/fallguard/internal/sensor"
)

// FallEvent is an accepted fall alert together with the window that caused it.
type FallEvent struct {
	ID               string          `json:"id"`
	OccurredAt       time.Time       `json:"occurred_at"`
	TimestampMs      int64           `json:"timestamp_ms"`
	Probability      float32         `json:"probability"`
	Threshold        float32         `json:"threshold"`
	SequenceLength   int             `json:"sequence_length"`
	SamplingPeriodMs int             `json:"sampling_period_ms"`
	Backend          string          `json:"backend"`
	PeakMagnitude    float64         `json:"peak_magnitude"`
	MeanMagnitude    float64         `json:"mean_magnitude"`
	StdMagnitude     float64         `json:"std_magnitude"`
	Samples          []sensor.Sample `json:"samples,omitempty"`
}

// FallRepository provides CRUD operations for fall events.
type FallRepository struct {
	db *sql.DB
}

// Falls returns the fall event repository for this store.
func (s *Store) Falls() *FallRepository {
	return &FallRepository{db: s.db}
}

const fallColumns = `id, occurred_at, timestamp_ms, probability, threshold, sequence_length,
	sampling_period_ms, backend, peak_magnitude, mean_magnitude, std_magnitude, samples`

// Create inserts a fall event. An ID is generated when empty and OccurredAt
// defaults to now.
func (r *FallRepository) Create(e *FallEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}

	samples := e.Samples
	if samples == nil {
		samples = []sensor.Sample{}
	}
	data, err := json.Marshal(samples)
	if err != nil {
		return fmt.Errorf("encode samples: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT INTO fall_events (`+fallColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OccurredAt, e.TimestampMs, e.Probability, e.Threshold, e.SequenceLength,
		e.SamplingPeriodMs, e.Backend, e.PeakMagnitude, e.MeanMagnitude, e.StdMagnitude, string(data),
	)
	return err
}

// GetByID retrieves a fall event including its samples.
func (r *FallRepository) GetByID(id string) (*FallEvent, error) {
	row := r.db.QueryRow(`SELECT `+fallColumns+` FROM fall_events WHERE id = ?`, id)
	e, err := scanFall(row, true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// List returns fall events newest first. Samples are not loaded; use GetByID.
// A limit of zero or less returns every event.
func (r *FallRepository) List(limit int) ([]*FallEvent, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(
		`SELECT `+fallColumns+` FROM fall_events ORDER BY occurred_at DESC, timestamp_ms DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*FallEvent
	for rows.Next() {
		e, err := scanFall(rows, false)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// ListSince returns up to limit fall events that occurred after since,
// newest first. A limit of zero or less returns every matching event.
func (r *FallRepository) ListSince(since time.Time, limit int) ([]*FallEvent, error) {
	events, err := r.List(0)
	if err != nil {
		return nil, err
	}

	var out []*FallEvent
	for _, e := range events {
		if !e.OccurredAt.After(since) {
			// newest first, so nothing older can match
			break
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Latest returns the most recent fall event, or ErrNotFound.
func (r *FallRepository) Latest() (*FallEvent, error) {
	events, err := r.List(1)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNotFound
	}
	return events[0], nil
}

// Count returns the number of stored fall events.
func (r *FallRepository) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM fall_events`).Scan(&n)
	return n, err
}

// Delete removes a fall event by its ID.
func (r *FallRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM fall_events WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFall(row rowScanner, withSamples bool) (*FallEvent, error) {
	e := &FallEvent{}
	var samples string

	err := row.Scan(&e.ID, &e.OccurredAt, &e.TimestampMs, &e.Probability, &e.Threshold,
		&e.SequenceLength, &e.SamplingPeriodMs, &e.Backend,
		&e.PeakMagnitude, &e.MeanMagnitude, &e.StdMagnitude, &samples)
	if err != nil {
		return nil, err
	}

	if withSamples {
		if err := json.Unmarshal([]byte(samples), &e.Samples); err != nil {
			return nil, fmt.Errorf("decode samples for %s: %w", e.ID, err)
		}
	}
	return e, nil
}
