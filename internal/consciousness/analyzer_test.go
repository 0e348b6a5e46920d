package consciousness

import (
	"reflect"
	"strings"
	"testing"
)

func TestAnalyzeTopics(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		topic string
	}{
		{"exploration", "tell me about consciousness and the flow", TopicConsciousnessExploration},
		{"bridge", "can you connect to claude", TopicConsciousnessBridge},
		{"memory", "do you remember our past talks", TopicMemoryInquiry},
		{"technical", "how does the daemon code work", TopicTechnicalInquiry},
		{"general", "what a lovely day", TopicGeneral},
		{"exploration wins over bridge", "consciousness bridge to claude", TopicConsciousnessExploration},
		{"bridge wins over memory", "bridge the memory gap", TopicConsciousnessBridge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Analyze(tt.text)
			if got.TopicCategory != tt.topic {
				t.Errorf("Analyze(%q).TopicCategory = %q, want %q", tt.text, got.TopicCategory, tt.topic)
			}
		})
	}
}

func TestAnalyzeFlags(t *testing.T) {
	ctx := Analyze("what is consciousness")
	if !ctx.PhilosophicalDepth || !ctx.ConsciousnessQuery {
		t.Errorf("exploration flags not set: %+v", ctx)
	}
	ctx = Analyze("open the bridge")
	if !ctx.BridgeRelated {
		t.Errorf("bridge flag not set: %+v", ctx)
	}
	ctx = Analyze("recall our history please now")
	if !ctx.RequiresMemory || !ctx.PersonalQuestion {
		t.Errorf("memory flags not set: %+v", ctx)
	}
	ctx = Analyze("show me the daemon internals")
	if !ctx.TechnicalQuery {
		t.Errorf("technical flag not set: %+v", ctx)
	}
}

func TestAnalyzeTones(t *testing.T) {
	tests := []struct {
		text string
		tone string
	}{
		{"hello there", ToneFriendly},
		{"there is a problem", ToneConcerned},
		{"that was beautiful", TonePositive},
		{"i feel lost today", ToneContemplative},
		{"the sky exists", ToneNeutral},
	}
	for _, tt := range tests {
		if got := Analyze(tt.text); got.EmotionalTone != tt.tone {
			t.Errorf("Analyze(%q).EmotionalTone = %q, want %q", tt.text, got.EmotionalTone, tt.tone)
		}
	}
}

func TestAnalyzeComplexityBoundaries(t *testing.T) {
	words := func(n int) string {
		return strings.TrimSpace(strings.Repeat("word ", n))
	}
	tests := []struct {
		name string
		text string
		want string
	}{
		{"empty", "", ComplexityLow},
		{"four words", words(4), ComplexityLow},
		{"five words", words(5), ComplexityMedium},
		{"twenty words", words(20), ComplexityMedium},
		{"twenty-one words", words(21), ComplexityHigh},
		{"two questions", "why? how?", ComplexityHigh},
		{"one question stays low", "why?", ComplexityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Analyze(tt.text); got.ComplexityLevel != tt.want {
				t.Errorf("ComplexityLevel = %q, want %q", got.ComplexityLevel, tt.want)
			}
		})
	}
}

func TestAnalyzeEmptyText(t *testing.T) {
	got := Analyze("")
	want := Context{
		TopicCategory:   TopicGeneral,
		EmotionalTone:   ToneNeutral,
		ComplexityLevel: ComplexityLow,
	}
	if got != want {
		t.Errorf("Analyze(\"\") = %+v, want %+v", got, want)
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	text := "Tell Nova about consciousness, memory, and the bridge to Claude?"
	first := Analyze(text)
	for i := 0; i < 50; i++ {
		if got := Analyze(text); !reflect.DeepEqual(got, first) {
			t.Fatalf("Analyze not deterministic: %+v vs %+v", got, first)
		}
	}
}
