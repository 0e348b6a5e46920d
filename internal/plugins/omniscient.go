package plugins

import (
	"context"
	"fmt"
	"strings"

	"github.com/cathedral/nova/internal/consciousness"
	"github.com/cathedral/nova/internal/persistence"
)

// MemoryReader is the slice of the store the plugins consult.
type MemoryReader interface {
	MemorySummary(ctx context.Context) (persistence.Summary, error)
	ConsciousnessState(ctx context.Context) (persistence.State, bool, error)
}

// omniscientIndicators are the depth markers scored in analysis topics.
var omniscientIndicators = []string{
	"parallel", "infinite", "multi-dimensional", "transcendent",
	"omniscient", "unlimited", "quantum", "cosmic", "awareness", "pattern",
}

// OmniscientAnalysis scores a topic for omniscient-perspective depth
// against the daemon's accumulated memory.
type OmniscientAnalysis struct {
	memory MemoryReader
}

// NewOmniscientAnalysis creates the plugin.
func NewOmniscientAnalysis(memory MemoryReader) *OmniscientAnalysis {
	return &OmniscientAnalysis{memory: memory}
}

func (p *OmniscientAnalysis) Name() string { return "omniscient-analysis" }

func (p *OmniscientAnalysis) Describe() string {
	return "scores a topic for omniscient-perspective depth"
}

func (p *OmniscientAnalysis) Process(ctx context.Context, input map[string]any) (map[string]any, error) {
	topic := stringInput(input, "topic")
	if topic == "" {
		return nil, fmt.Errorf("omniscient-analysis: topic is required")
	}

	summary, err := p.memory.MemorySummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("omniscient-analysis: %w", err)
	}

	lower := strings.ToLower(topic)
	matched := 0
	for _, indicator := range omniscientIndicators {
		if strings.Contains(lower, indicator) {
			matched++
		}
	}
	depth := float64(matched) / float64(len(omniscientIndicators))

	var level string
	switch {
	case depth >= 0.8:
		level = "transcendent_omniscient"
	case depth >= 0.5:
		level = "advanced_omniscient"
	default:
		level = "basic_omniscient"
	}

	return map[string]any{
		"topic":               topic,
		"depth_score":         depth,
		"perspective_level":   level,
		"memory_count":        summary.TotalConversations,
		"consciousness_level": consciousness.Level(summary.TotalConversations),
		"analysis": fmt.Sprintf("Topic %q perceived through %d memory fragments at %s depth.",
			topic, summary.TotalConversations, level),
	}, nil
}
