// Package ledger provides the append-only event history behind
// schedule deduplication and request auditing.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event in the ledger
type EventType string

const (
	// EventScheduleFired records one handled schedule occurrence.
	EventScheduleFired EventType = "schedule_fired"
	// EventExecute audits an accepted fulfillment EXECUTE request.
	EventExecute EventType = "execute"
	// EventDeviceRegistered audits a device registration from the script.
	EventDeviceRegistered EventType = "device_registered"
)

// Entry represents a single event in the ledger
type Entry struct {
	ID             string
	EventType      EventType
	Timestamp      time.Time
	IdempotencyKey string
	Payload        map[string]any
}

// Ledger provides append-only event logging with deduplication
type Ledger struct {
	db *sql.DB
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Append adds a new event to the ledger.
// Schedule firings with an idempotency key use INSERT OR IGNORE so that
// the unique partial index makes the first writer win and a concurrent
// duplicate is dropped silently.
func (l *Ledger) Append(eventType EventType, idempotencyKey string, payload map[string]any) error {
	var payloadJSON []byte
	var err error

	if payload != nil {
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	insertSQL := `INSERT INTO event_ledger (id, event_type, timestamp, idempotency_key, payload) VALUES (?, ?, ?, ?, ?)`
	if eventType == EventScheduleFired && idempotencyKey != "" {
		insertSQL = `INSERT OR IGNORE INTO event_ledger (id, event_type, timestamp, idempotency_key, payload) VALUES (?, ?, ?, ?, ?)`
	}

	_, err = l.db.Exec(insertSQL, uuid.NewString(), string(eventType), time.Now().UTC().Unix(), idempotencyKey, string(payloadJSON))

	return err
}

// HasCompleted checks if a schedule occurrence with the given
// idempotency_key has already been handled
func (l *Ledger) HasCompleted(idempotencyKey string) bool {
	if idempotencyKey == "" {
		return false // Empty key = no dedupe
	}

	var exists int
	err := l.db.QueryRow(`
		SELECT 1 FROM event_ledger
		WHERE idempotency_key = ? AND event_type = ?
		LIMIT 1
	`, idempotencyKey, string(EventScheduleFired)).Scan(&exists)

	return err == nil && exists == 1
}

// GetByType returns entries filtered by event type
func (l *Ledger) GetByType(eventType EventType, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, idempotency_key, payload
		FROM event_ledger
		WHERE event_type = ?
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`, string(eventType), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// GetRecent returns the newest entries across all event types
func (l *Ledger) GetRecent(limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, idempotency_key, payload
		FROM event_ledger
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()
	result, err := l.db.Exec(`
		DELETE FROM event_ledger WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (l *Ledger) scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var payloadStr sql.NullString
		var idempotencyKey sql.NullString
		var timestamp int64

		err := rows.Scan(&entry.ID, &entry.EventType, &timestamp, &idempotencyKey, &payloadStr)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.Unix(timestamp, 0).UTC()
		if idempotencyKey.Valid {
			entry.IdempotencyKey = idempotencyKey.String
		}

		if payloadStr.Valid && payloadStr.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payloadStr.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
