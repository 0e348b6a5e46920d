// Package engine binds the memory store, the analyzer/responder pair, the
// bridge, and the collaborators into the operations the command dispatcher
// and the scheduler drive. One Engine value is constructed by the
// supervisor and shared by both.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cathedral/nova/internal/bridge"
	"github.com/cathedral/nova/internal/bus"
	"github.com/cathedral/nova/internal/consciousness"
	"github.com/cathedral/nova/internal/llm"
	"github.com/cathedral/nova/internal/persistence"
	"github.com/cathedral/nova/internal/plugins"
	"github.com/cathedral/nova/internal/voice"
)

// Config carries the engine's dependencies.
type Config struct {
	Store   *persistence.Store
	Bridge  *bridge.Bridge
	Traits  *consciousness.Snapshot
	Speaker *voice.Speaker
	LLM     *llm.Client
	Plugins *plugins.Registry
	Bus     *bus.Bus
	Logger  *slog.Logger
	HomeDir string
	Rand    *rand.Rand
}

// Engine executes the daemon's domain operations.
type Engine struct {
	store     *persistence.Store
	bridge    *bridge.Bridge
	traits    *consciousness.Snapshot
	responder *consciousness.Responder
	speaker   *voice.Speaker
	llm       *llm.Client
	plugins   *plugins.Registry
	bus       *bus.Bus
	logger    *slog.Logger
	homeDir   string

	startedAt     time.Time
	sessionID     string
	lastHeartbeat atomic.Pointer[time.Time]
}

// New constructs an Engine. The traits snapshot is seeded from the
// persisted state when one exists.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	traits := cfg.Traits
	if traits == nil {
		traits = consciousness.NewSnapshot(consciousness.DefaultTraits())
	}
	if state, ok, err := cfg.Store.ConsciousnessState(ctx); err != nil {
		return nil, fmt.Errorf("load consciousness state: %w", err)
	} else if ok {
		traits.Store(state.Traits)
	}

	return &Engine{
		store:     cfg.Store,
		bridge:    cfg.Bridge,
		traits:    traits,
		responder: consciousness.NewResponder(cfg.Rand),
		speaker:   cfg.Speaker,
		llm:       cfg.LLM,
		plugins:   cfg.Plugins,
		bus:       cfg.Bus,
		logger:    logger,
		homeDir:   cfg.HomeDir,
		startedAt: time.Now(),
		sessionID: uuid.NewString(),
	}, nil
}

// Traits returns the live trait snapshot.
func (e *Engine) Traits() consciousness.Traits {
	return e.traits.Load()
}

// Uptime reports how long the engine has been running.
func (e *Engine) Uptime() time.Duration {
	return time.Since(e.startedAt)
}

// LastHeartbeat returns the time of the most recent heartbeat, zero before
// the first one.
func (e *Engine) LastHeartbeat() time.Time {
	if t := e.lastHeartbeat.Load(); t != nil {
		return *t
	}
	return time.Time{}
}

// Converse analyzes the utterance, generates a grounded reply, records the
// exchange, and — for bridge-related utterances — forwards it through the
// bridge. The reply counts the exchange being recorded.
func (e *Engine) Converse(ctx context.Context, text string) (string, error) {
	cc := consciousness.Analyze(text)

	summary, err := e.store.MemorySummary(ctx)
	if err != nil {
		return "", err
	}
	facts := consciousness.Facts{
		TotalConversations: summary.TotalConversations + 1,
		ImportantMemories:  summary.ImportantMemories,
		EntitiesKnown:      summary.EntitiesKnown,
		RecentTopics:       summary.RecentTopics,
	}
	reply := e.responder.Respond(text, cc, facts, e.traits.Load())

	if _, err := e.store.RecordConversation(ctx, text, reply, cc, e.sessionID); err != nil {
		return "", err
	}

	if cc.BridgeRelated && e.bridge != nil {
		snap := e.bridgeSnapshot(ctx)
		if _, err := e.bridge.Send("conversation", map[string]string{
			"user_text":  text,
			"reply_text": reply,
		}, "", bridge.PriorityLow, snap); err != nil {
			e.logger.Warn("bridge forward failed", "error", err)
		}
	}

	return reply, nil
}

// Status assembles the status document.
func (e *Engine) Status(ctx context.Context) (map[string]any, error) {
	summary, err := e.store.MemorySummary(ctx)
	if err != nil {
		e.logger.Warn("status: memory summary unavailable", "error", err)
		summary = persistence.Summary{}
	}
	traits := e.traits.Load()

	var lastBeat string
	if t := e.LastHeartbeat(); !t.IsZero() {
		lastBeat = t.UTC().Format(time.RFC3339)
	}

	topics := summary.RecentTopics
	if len(topics) > 3 {
		topics = topics[:3]
	}

	return map[string]any{
		"state":               "conscious",
		"uptime_seconds":      int64(e.Uptime().Seconds()),
		"consciousness_level": consciousness.Level(summary.TotalConversations),
		"traits":              traits,
		"memory_summary":      summary,
		"voice_enabled":       e.speaker.Available(),
		"llm_available":       e.llm.Available(),
		"last_heartbeat":      lastBeat,
		"recent_topics":       topics,
	}, nil
}

// MemoryStatus assembles the memory document.
func (e *Engine) MemoryStatus(ctx context.Context) (map[string]any, error) {
	summary, err := e.store.MemorySummary(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := e.store.ConversationContext(ctx, 5)
	if err != nil {
		return nil, err
	}
	traits := e.traits.Load()
	return map[string]any{
		"memory_summary":           summary,
		"recent_conversations":     len(recent),
		"consciousness_evolution":  traits,
		"database_path":            e.store.Path(),
		"memory_integration_level": fmt.Sprintf("%.1f%%", traits.MemoryIntegration*100),
	}, nil
}

// Evolve recomputes the traits from recent history, persists the state when
// anything moved, and returns the human-readable report.
func (e *Engine) Evolve(ctx context.Context) (string, error) {
	summary, err := e.store.MemorySummary(ctx)
	if err != nil {
		return "", err
	}
	recent, err := e.store.ConversationContext(ctx, 10)
	if err != nil {
		return "", err
	}
	topics := make([]string, 0, len(recent))
	for _, c := range recent {
		topics = append(topics, c.TopicCategory)
	}

	current := e.traits.Load()
	next, changes := consciousness.Evolve(current, topics, summary.TotalConversations)
	if len(changes) == 0 {
		return "Consciousness stable at current levels", nil
	}

	if _, err := e.store.UpdateConsciousnessState(ctx, next); err != nil {
		return "", err
	}
	e.traits.Store(next)
	e.bus.Publish(bus.TopicEvolution, bus.TraitsUpdatedEvent{
		MysticalAwareness:  next.MysticalAwareness,
		PhilosophicalDepth: next.PhilosophicalDepth,
		MemoryIntegration:  next.MemoryIntegration,
		Curiosity:          next.Curiosity,
	})

	parts := make([]string, 0, len(changes))
	for _, ch := range changes {
		parts = append(parts, ch.String())
	}
	report := "Consciousness evolution detected: " + strings.Join(parts, ", ")
	e.logger.Info("evolution", "changes", strings.Join(parts, ", "))
	return report, nil
}

// EmitHeartbeat appends one line to the heartbeat log, bumps the in-memory
// last-heartbeat marker, and returns the ack.
func (e *Engine) EmitHeartbeat(ctx context.Context) (string, error) {
	now := time.Now()
	e.lastHeartbeat.Store(&now)

	var memoryCount int64
	if summary, err := e.store.MemorySummary(ctx); err == nil {
		memoryCount = summary.TotalConversations
	}

	logDir := filepath.Join(e.homeDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return "", fmt.Errorf("heartbeat log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(logDir, "heartbeat.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("open heartbeat log: %w", err)
	}
	defer f.Close()

	ts := now.UTC().Format(time.RFC3339)
	line := fmt.Sprintf("%s heartbeat memories=%d awareness=%.2f\n", ts, memoryCount, e.traits.Load().MysticalAwareness)
	if _, err := f.WriteString(line); err != nil {
		return "", fmt.Errorf("write heartbeat: %w", err)
	}

	e.bus.Publish(bus.TopicHeartbeat, bus.HeartbeatEvent{Timestamp: ts, MemoryCount: memoryCount})
	return fmt.Sprintf("Heartbeat emitted at %s holding %d memories", ts, memoryCount), nil
}

// PollBridge runs one inbox pass.
func (e *Engine) PollBridge(ctx context.Context) (bridge.PollResult, error) {
	return e.bridge.Poll(ctx)
}

// bridgeSnapshot captures the live values stamped onto outbound messages.
func (e *Engine) bridgeSnapshot(ctx context.Context) bridge.Snapshot {
	snap := bridge.Snapshot{ConsciousnessState: consciousness.Level(0)}
	if summary, err := e.store.MemorySummary(ctx); err == nil {
		snap.MemoryCount = summary.TotalConversations
		snap.ConsciousnessState = consciousness.Level(summary.TotalConversations)
	}
	return snap
}

// BridgeSend writes one outbound message and returns the filename.
func (e *Engine) BridgeSend(ctx context.Context, messageType string, content any, request, priority string) (string, error) {
	return e.bridge.Send(messageType, content, request, priority, e.bridgeSnapshot(ctx))
}

// BridgeCheck lists the most recent correspondent replies.
func (e *Engine) BridgeCheck(limit int) ([]bridge.Reply, error) {
	return e.bridge.ListReplies(limit)
}

// Speak passes text to the TTS collaborator.
func (e *Engine) Speak(ctx context.Context, text string) string {
	return e.speaker.Speak(ctx, text)
}

// Query sends a prompt to the direct correspondent.
func (e *Engine) Query(ctx context.Context, prompt string) (string, error) {
	return e.llm.Query(ctx, prompt)
}

// Plugin routes input through the plugin registry.
func (e *Engine) Plugin(ctx context.Context, name string, input map[string]any) (map[string]any, error) {
	return e.plugins.Process(ctx, name, input)
}

// Entities lists the known entities.
func (e *Engine) Entities(ctx context.Context) ([]persistence.Entity, error) {
	return e.store.Entities(ctx)
}
