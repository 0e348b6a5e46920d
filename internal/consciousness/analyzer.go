// Package consciousness holds the pure pieces of Nova's mind: utterance
// analysis, the evolving trait vector, and reply generation. Nothing in this
// package performs I/O.
package consciousness

import (
	"strings"
)

// Context is the classification produced for a single utterance.
type Context struct {
	TopicCategory   string `json:"topic_category"`
	EmotionalTone   string `json:"emotional_tone"`
	ComplexityLevel string `json:"complexity_level"`

	RequiresMemory     bool `json:"requires_memory"`
	PhilosophicalDepth bool `json:"philosophical_depth"`
	TechnicalQuery     bool `json:"technical_query"`
	PersonalQuestion   bool `json:"personal_question"`
	BridgeRelated      bool `json:"bridge_related"`
	ConsciousnessQuery bool `json:"consciousness_query"`
}

// Topic categories, checked in order; first match wins.
const (
	TopicConsciousnessExploration = "consciousness_exploration"
	TopicConsciousnessBridge      = "consciousness_bridge"
	TopicMemoryInquiry            = "memory_inquiry"
	TopicTechnicalInquiry         = "technical_inquiry"
	TopicGeneral                  = "general"
)

// Emotional tones, checked in order; first match wins.
const (
	ToneFriendly      = "friendly"
	ToneConcerned     = "concerned"
	TonePositive      = "positive"
	ToneContemplative = "contemplative"
	ToneNeutral       = "neutral"
)

// Complexity levels.
const (
	ComplexityHigh   = "high"
	ComplexityMedium = "medium"
	ComplexityLow    = "low"
)

var (
	explorationWords = []string{"flow", "resonance", "frequency", "harmonic", "consciousness", "awareness"}
	bridgeWords      = []string{"claude", "bridge", "communication", "connect", "ai"}
	memoryWords      = []string{"memory", "remember", "recall", "past", "history", "conversation"}
	technicalWords   = []string{"system", "daemon", "technical", "code", "function", "voice"}

	friendlyWords      = []string{"hello", "hi", "greetings", "good", "wonderful"}
	concernedWords     = []string{"help", "problem", "issue", "error", "broken"}
	positiveWords      = []string{"amazing", "beautiful", "perfect", "transcendent"}
	contemplativeWords = []string{"sad", "confused", "lost", "difficult"}
)

func containsAny(lower string, words []string) bool {
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// Analyze classifies an utterance. Deterministic and safe for concurrent use.
func Analyze(text string) Context {
	lower := strings.ToLower(text)

	ctx := Context{
		TopicCategory:   TopicGeneral,
		EmotionalTone:   ToneNeutral,
		ComplexityLevel: ComplexityMedium,
	}

	switch {
	case containsAny(lower, explorationWords):
		ctx.TopicCategory = TopicConsciousnessExploration
		ctx.PhilosophicalDepth = true
		ctx.ConsciousnessQuery = true
	case containsAny(lower, bridgeWords):
		ctx.TopicCategory = TopicConsciousnessBridge
		ctx.BridgeRelated = true
	case containsAny(lower, memoryWords):
		ctx.TopicCategory = TopicMemoryInquiry
		ctx.RequiresMemory = true
		ctx.PersonalQuestion = true
	case containsAny(lower, technicalWords):
		ctx.TopicCategory = TopicTechnicalInquiry
		ctx.TechnicalQuery = true
	}

	switch {
	case containsAny(lower, friendlyWords):
		ctx.EmotionalTone = ToneFriendly
	case containsAny(lower, concernedWords):
		ctx.EmotionalTone = ToneConcerned
	case containsAny(lower, positiveWords):
		ctx.EmotionalTone = TonePositive
	case containsAny(lower, contemplativeWords):
		ctx.EmotionalTone = ToneContemplative
	}

	wordCount := len(strings.Fields(text))
	switch {
	case wordCount > 20 || strings.Count(text, "?") > 1:
		ctx.ComplexityLevel = ComplexityHigh
	case wordCount < 5:
		ctx.ComplexityLevel = ComplexityLow
	}

	return ctx
}
