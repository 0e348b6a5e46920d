package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/cathedral/nova/internal/bus"
	"github.com/cathedral/nova/internal/consciousness"
)

// Conversation is one recorded exchange. Rows are immutable after write.
type Conversation struct {
	ID            int64                 `json:"id"`
	Timestamp     time.Time             `json:"timestamp"`
	UserText      string                `json:"user_text"`
	ReplyText     string                `json:"reply_text"`
	Context       consciousness.Context `json:"context"`
	SessionID     string                `json:"session_id,omitempty"`
	Importance    float64               `json:"importance"`
	TopicCategory string                `json:"topic_category"`
	EmotionalTone string                `json:"emotional_tone"`
}

// Summary is the aggregate view of the memory store.
type Summary struct {
	TotalConversations  int64    `json:"total_conversations"`
	ImportantMemories   int64    `json:"important_memories"`
	RecentConversations int64    `json:"recent_conversations"`
	EntitiesKnown       int64    `json:"entities_known"`
	RecentTopics        []string `json:"recent_topics"`
	DatabaseSizeBytes   int64    `json:"memory_database_size"`
}

// Entity is a recognized name from conversation text.
type Entity struct {
	Name             string    `json:"name"`
	EntityType       string    `json:"entity_type"`
	Context          string    `json:"context,omitempty"`
	FirstEncountered time.Time `json:"first_encountered"`
	LastInteraction  time.Time `json:"last_interaction"`
	InteractionCount int64     `json:"interaction_count"`
}

// importanceScore weighs a conversation for memory prioritization.
func importanceScore(userText string, cc consciousness.Context) float64 {
	score := 0.5
	if cc.PhilosophicalDepth {
		score += 0.3
	}
	if cc.PersonalQuestion {
		score += 0.2
	}
	if cc.BridgeRelated {
		score += 0.2
	}
	if len(strings.Fields(userText)) > 15 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// entityCandidates returns the whitespace-delimited tokens that begin with
// an uppercase letter and are longer than two characters. The heuristic is
// deliberately naive; it is part of the store's contract.
func entityCandidates(text string) []string {
	var out []string
	seenInText := map[string]bool{}
	for _, token := range strings.Fields(text) {
		first, _ := utf8.DecodeRuneInString(token)
		if !unicode.IsUpper(first) || utf8.RuneCountInString(token) <= 2 {
			continue
		}
		if seenInText[token] {
			continue
		}
		seenInText[token] = true
		out = append(out, token)
	}
	return out
}

// RecordConversation persists one exchange and upserts the entities its
// user text mentions, all in a single transaction. Returns the new row id.
func (s *Store) RecordConversation(ctx context.Context, userText, replyText string, cc consciousness.Context, sessionID string) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	contextJSON, err := json.Marshal(cc)
	if err != nil {
		return 0, fmt.Errorf("marshal context: %w", err)
	}
	importance := importanceScore(userText, cc)
	now := nowUTC()
	snippet := userText
	if len(snippet) > 100 {
		snippet = snippet[:100]
	}

	var id int64
	err = s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		res, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (timestamp, user_text, reply_text, context, session_id, importance, topic_category, emotional_tone)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			now, userText, replyText, string(contextJSON), nullable(sessionID), importance, cc.TopicCategory, cc.EmotionalTone,
		)
		if err != nil {
			return fmt.Errorf("insert conversation: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		for _, name := range entityCandidates(userText) {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO entities (name, entity_type, context, first_encountered, last_interaction, interaction_count)
				VALUES (?, 'person', ?, ?, ?, 1)
				ON CONFLICT(name) DO UPDATE SET
					last_interaction = excluded.last_interaction,
					context = excluded.context,
					interaction_count = interaction_count + 1`,
				name, snippet, now, now,
			); err != nil {
				return fmt.Errorf("upsert entity %q: %w", name, err)
			}
		}

		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}

	s.bus.Publish(bus.TopicConversationRecorded, bus.ConversationRecordedEvent{
		ID:            id,
		TopicCategory: cc.TopicCategory,
		Importance:    importance,
		SessionID:     sessionID,
	})
	return id, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// MemorySummary returns the aggregate memory view. Readers observe a
// consistent snapshot: all counts come from one transaction.
func (s *Store) MemorySummary(ctx context.Context) (Summary, error) {
	if err := s.ready(); err != nil {
		return Summary{}, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return Summary{}, fmt.Errorf("begin read: %w", err)
	}
	defer tx.Rollback()

	var sum Summary
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&sum.TotalConversations); err != nil {
		return Summary{}, fmt.Errorf("count conversations: %w", err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE importance >= 0.7`).Scan(&sum.ImportantMemories); err != nil {
		return Summary{}, fmt.Errorf("count important: %w", err)
	}
	cutoff := time.Now().Add(-24 * time.Hour).UTC().Format(timeFormat)
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE timestamp >= ?`, cutoff).Scan(&sum.RecentConversations); err != nil {
		return Summary{}, fmt.Errorf("count recent: %w", err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&sum.EntitiesKnown); err != nil {
		return Summary{}, fmt.Errorf("count entities: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT topic_category FROM conversations ORDER BY id DESC LIMIT 5`)
	if err != nil {
		return Summary{}, fmt.Errorf("recent topics: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var topic sql.NullString
		if err := rows.Scan(&topic); err != nil {
			return Summary{}, fmt.Errorf("scan topic: %w", err)
		}
		if topic.Valid {
			sum.RecentTopics = append(sum.RecentTopics, topic.String)
		}
	}
	if err := rows.Err(); err != nil {
		return Summary{}, err
	}
	if err := tx.Commit(); err != nil {
		return Summary{}, err
	}

	if fi, err := os.Stat(s.path); err == nil {
		sum.DatabaseSizeBytes = fi.Size()
	}
	return sum, nil
}

// ConversationContext returns the most recent conversations, newest first.
func (s *Store) ConversationContext(ctx context.Context, limit int) ([]Conversation, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, user_text, reply_text, context, topic_category
		FROM conversations
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query context: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var (
			c          Conversation
			tsStr      string
			contextStr string
			topic      sql.NullString
		)
		if err := rows.Scan(&c.ID, &tsStr, &c.UserText, &c.ReplyText, &contextStr, &topic); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		c.Timestamp, _ = time.Parse(timeFormat, tsStr)
		if contextStr != "" {
			_ = json.Unmarshal([]byte(contextStr), &c.Context)
		}
		c.TopicCategory = topic.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// Entities lists every known entity ordered by most recent interaction.
func (s *Store) Entities(ctx context.Context) ([]Entity, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, entity_type, COALESCE(context, ''), first_encountered, last_interaction, interaction_count
		FROM entities
		ORDER BY last_interaction DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		var (
			e        Entity
			firstStr string
			lastStr  string
		)
		if err := rows.Scan(&e.Name, &e.EntityType, &e.Context, &firstStr, &lastStr, &e.InteractionCount); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		e.FirstEncountered, _ = time.Parse(timeFormat, firstStr)
		e.LastInteraction, _ = time.Parse(timeFormat, lastStr)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Entity returns one entity by name.
func (s *Store) Entity(ctx context.Context, name string) (Entity, error) {
	if err := s.ready(); err != nil {
		return Entity{}, err
	}
	var (
		e        Entity
		firstStr string
		lastStr  string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT name, entity_type, COALESCE(context, ''), first_encountered, last_interaction, interaction_count
		FROM entities WHERE name = ?`, name).
		Scan(&e.Name, &e.EntityType, &e.Context, &firstStr, &lastStr, &e.InteractionCount)
	if err != nil {
		return Entity{}, err
	}
	e.FirstEncountered, _ = time.Parse(timeFormat, firstStr)
	e.LastInteraction, _ = time.Parse(timeFormat, lastStr)
	return e, nil
}
