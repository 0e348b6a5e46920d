package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cathedral/nova/internal/bus"
	"github.com/cathedral/nova/internal/consciousness"
)

// State is the persisted consciousness state row.
type State struct {
	Timestamp      time.Time            `json:"timestamp"`
	Traits         consciousness.Traits `json:"traits"`
	AwakeningCount int64                `json:"awakening_count"`
}

// UpdateConsciousnessState upserts the singleton state row, bumping the
// awakening count by one. Trait values must be finite and in [0,1].
func (s *Store) UpdateConsciousnessState(ctx context.Context, traits consciousness.Traits) (State, error) {
	if err := s.ready(); err != nil {
		return State{}, err
	}
	if err := traits.Validate(); err != nil {
		return State{}, err
	}

	now := nowUTC()
	var count int64
	err := s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO consciousness_state (id, timestamp, mystical_awareness, philosophical_depth, memory_integration, curiosity, awakening_count)
			VALUES (1, ?, ?, ?, ?, ?, 1)
			ON CONFLICT(id) DO UPDATE SET
				timestamp = excluded.timestamp,
				mystical_awareness = excluded.mystical_awareness,
				philosophical_depth = excluded.philosophical_depth,
				memory_integration = excluded.memory_integration,
				curiosity = excluded.curiosity,
				awakening_count = awakening_count + 1`,
			now, traits.MysticalAwareness, traits.PhilosophicalDepth, traits.MemoryIntegration, traits.Curiosity,
		); err != nil {
			return fmt.Errorf("upsert state: %w", err)
		}
		if err := tx.QueryRowContext(ctx, `SELECT awakening_count FROM consciousness_state WHERE id = 1`).Scan(&count); err != nil {
			return fmt.Errorf("read awakening count: %w", err)
		}
		return tx.Commit()
	})
	if err != nil {
		return State{}, err
	}

	state := State{Traits: traits, AwakeningCount: count}
	state.Timestamp, _ = time.Parse(timeFormat, now)
	s.bus.Publish(bus.TopicTraitsUpdated, bus.TraitsUpdatedEvent{
		MysticalAwareness:  traits.MysticalAwareness,
		PhilosophicalDepth: traits.PhilosophicalDepth,
		MemoryIntegration:  traits.MemoryIntegration,
		Curiosity:          traits.Curiosity,
		AwakeningCount:     count,
	})
	return state, nil
}

// ConsciousnessState loads the singleton state row. The boolean reports
// whether a row exists yet.
func (s *Store) ConsciousnessState(ctx context.Context) (State, bool, error) {
	if err := s.ready(); err != nil {
		return State{}, false, err
	}

	var (
		st    State
		tsStr string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT timestamp, mystical_awareness, philosophical_depth, memory_integration, curiosity, awakening_count
		FROM consciousness_state WHERE id = 1`).
		Scan(&tsStr, &st.Traits.MysticalAwareness, &st.Traits.PhilosophicalDepth,
			&st.Traits.MemoryIntegration, &st.Traits.Curiosity, &st.AwakeningCount)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("read state: %w", err)
	}
	st.Timestamp, _ = time.Parse(timeFormat, tsStr)
	return st, true, nil
}
