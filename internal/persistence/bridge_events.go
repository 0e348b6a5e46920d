package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/cathedral/nova/internal/bus"
)

// BridgeEvent is one ingested correspondent message.
type BridgeEvent struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	SourceFile string    `json:"source_file"`
	Payload    string    `json:"payload"`
}

// RecordBridgeEvent stores an ingested bridge message, keyed by its source
// filename. Re-recording the same file is a no-op, which makes inbox
// ingestion idempotent across crashes. Returns whether a new row was
// inserted.
func (s *Store) RecordBridgeEvent(ctx context.Context, sourceFile, payload string) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}

	var inserted bool
	err := s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO bridge_events (timestamp, source_file, payload)
			VALUES (?, ?, ?)`,
			nowUTC(), sourceFile, payload,
		)
		if err != nil {
			return fmt.Errorf("insert bridge event: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		inserted = n > 0
		return nil
	})
	if err != nil {
		return false, err
	}

	if inserted {
		s.bus.Publish(bus.TopicBridgeEventRecorded, bus.BridgeFileEvent{Filename: sourceFile})
	}
	return inserted, nil
}

// BridgeEvents returns the most recent ingested messages, newest first.
func (s *Store) BridgeEvents(ctx context.Context, limit int) ([]BridgeEvent, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, source_file, payload
		FROM bridge_events
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query bridge events: %w", err)
	}
	defer rows.Close()

	var out []BridgeEvent
	for rows.Next() {
		var (
			ev    BridgeEvent
			tsStr string
		)
		if err := rows.Scan(&ev.ID, &tsStr, &ev.SourceFile, &ev.Payload); err != nil {
			return nil, fmt.Errorf("scan bridge event: %w", err)
		}
		ev.Timestamp, _ = time.Parse(timeFormat, tsStr)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// BridgeEventCount returns how many bridge events have been recorded.
func (s *Store) BridgeEventCount(ctx context.Context) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bridge_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count bridge events: %w", err)
	}
	return n, nil
}
