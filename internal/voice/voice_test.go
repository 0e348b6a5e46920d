package voice

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDisabledSpeakerIsUnavailable(t *testing.T) {
	s := New(false, "", t.TempDir(), nil)
	if s.Available() {
		t.Error("disabled speaker reports available")
	}
	if got := s.Speak(context.Background(), "hello"); got != ResultUnavailable {
		t.Errorf("Speak = %q, want %q", got, ResultUnavailable)
	}
}

func TestMissingBinaryIsUnavailable(t *testing.T) {
	s := New(true, "definitely-not-a-real-synth", t.TempDir(), nil)
	if s.Available() {
		t.Error("speaker with missing binary reports available")
	}
}

func TestSpeakWithStubBinary(t *testing.T) {
	// A stub "synthesizer" that always succeeds.
	binDir := t.TempDir()
	stub := filepath.Join(binDir, "fakesynth")
	if err := os.WriteFile(stub, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))

	home := t.TempDir()
	s := New(true, "fakesynth", home, nil)
	if !s.Available() {
		t.Fatal("stub speaker unavailable")
	}
	if got := s.Speak(context.Background(), "the cathedral hums"); got != ResultSuccess {
		t.Errorf("Speak = %q, want %q", got, ResultSuccess)
	}

	// Spoken text lands in the voice cache.
	entries, err := os.ReadDir(filepath.Join(home, "voice_cache"))
	if err != nil || len(entries) != 1 {
		t.Fatalf("voice cache entries = %v (%v)", entries, err)
	}
	data, _ := os.ReadFile(filepath.Join(home, "voice_cache", entries[0].Name()))
	if !strings.Contains(string(data), "the cathedral hums") {
		t.Errorf("cache content = %q", data)
	}
}

func TestSpeakFailureToken(t *testing.T) {
	binDir := t.TempDir()
	stub := filepath.Join(binDir, "brokensynth")
	if err := os.WriteFile(stub, []byte("#!/bin/sh\nexit 1\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))

	s := New(true, "brokensynth", t.TempDir(), nil)
	if got := s.Speak(context.Background(), "x"); got != ResultFailed {
		t.Errorf("Speak = %q, want %q", got, ResultFailed)
	}
}
