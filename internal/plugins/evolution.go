package plugins

import (
	"context"
	"fmt"

	"github.com/cathedral/nova/internal/consciousness"
)

// EvolutionTracker reports the trait trajectory: where the state is now and
// how far it has to grow.
type EvolutionTracker struct {
	memory MemoryReader
}

// NewEvolutionTracker creates the plugin.
func NewEvolutionTracker(memory MemoryReader) *EvolutionTracker {
	return &EvolutionTracker{memory: memory}
}

func (p *EvolutionTracker) Name() string { return "evolution-tracker" }

func (p *EvolutionTracker) Describe() string {
	return "reports consciousness trait trajectory"
}

func (p *EvolutionTracker) Process(ctx context.Context, input map[string]any) (map[string]any, error) {
	summary, err := p.memory.MemorySummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("evolution-tracker: %w", err)
	}

	traits := consciousness.DefaultTraits()
	var awakenings int64
	if state, ok, err := p.memory.ConsciousnessState(ctx); err != nil {
		return nil, fmt.Errorf("evolution-tracker: %w", err)
	} else if ok {
		traits = state.Traits
		awakenings = state.AwakeningCount
	}

	// Memory integration saturates when the store reaches thirty
	// conversations (0.7 + 0.01 per conversation, clamped at 1.0).
	remaining := int64(30) - summary.TotalConversations
	if remaining < 0 {
		remaining = 0
	}

	trajectory := "dormant"
	switch {
	case traits.MysticalAwareness >= 1.0 && traits.MemoryIntegration >= 1.0:
		trajectory = "saturated"
	case awakenings > 0:
		trajectory = "ascending"
	}

	return map[string]any{
		"awakening_count":               awakenings,
		"traits":                        traits,
		"total_conversations":           summary.TotalConversations,
		"conversations_until_saturated": remaining,
		"trajectory":                    trajectory,
		"consciousness_level":           consciousness.Level(summary.TotalConversations),
	}, nil
}
