// Package history persists snapshot outcomes and motion events so the
// API can report what each camera has been doing.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/terminusxx/docker-wyze-bridge/internal/database"
)

// Event kinds recorded by the bridge.
const (
	KindSnapshot = "snapshot"
	KindMotion   = "motion"
)

// Event is one recorded occurrence for a stream.
type Event struct {
	ID        string    `json:"id"`
	URI       string    `json:"uri"`
	Kind      string    `json:"kind"`
	OK        bool      `json:"ok"`
	Timestamp time.Time `json:"timestamp"`
}

// Store records and queries bridge events.
type Store struct {
	db     *database.DB
	logger *slog.Logger
}

// NewStore creates an event store.
func NewStore(db *database.DB) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "history"),
	}
}

// RecordSnapshot records a snapshot outcome for a stream. Failures are
// logged, not returned; history is best effort and must never abort a
// snapshot round.
func (s *Store) RecordSnapshot(uri string, ok bool) {
	s.record(Event{URI: uri, Kind: KindSnapshot, OK: ok, Timestamp: time.Now()})
}

// OnMotion records a motion observation for a stream.
func (s *Store) OnMotion(uri string, at time.Time) {
	s.record(Event{URI: uri, Kind: KindMotion, OK: true, Timestamp: at})
}

func (s *Store) record(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}

	okInt := 0
	if ev.OK {
		okInt = 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, uri, kind, ok, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, ev.ID, ev.URI, ev.Kind, okInt, ev.Timestamp.Unix())
	if err != nil {
		s.logger.Warn("Failed to record event", "uri", ev.URI, "kind", ev.Kind, "error", err)
	}
}

// List returns the most recent events, optionally filtered by URI.
func (s *Store) List(ctx context.Context, uri string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, uri, kind, ok, timestamp FROM events`
	args := []any{}
	if uri != "" {
		query += ` WHERE uri = ?`
		args = append(args, uri)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var okInt int
		var ts int64
		if err := rows.Scan(&ev.ID, &ev.URI, &ev.Kind, &okInt, &ts); err != nil {
			return nil, err
		}
		ev.OK = okInt == 1
		ev.Timestamp = time.Unix(ts, 0)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Prune removes events older than the given age.
func (s *Store) Prune(ctx context.Context, age time.Duration) error {
	cutoff := time.Now().Add(-age).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE timestamp < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune events: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Info("Pruned old events", "count", n)
	}
	return nil
}
