// Package voice is the best-effort pass-through to whatever speech
// synthesizer the deployment has installed. The daemon never depends on it
// working.
package voice

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Result tokens returned to speak callers.
const (
	ResultSuccess     = "success"
	ResultFailed      = "failed"
	ResultUnavailable = "unavailable"
)

const speakTimeout = 10 * time.Second

// candidates are probed in order when no synthesizer is configured.
var candidates = []string{"espeak", "espeak-ng", "say", "festival"}

// Speaker shells out to a local TTS binary and caches what was spoken.
type Speaker struct {
	command  string
	cacheDir string
	logger   *slog.Logger
}

// New builds a Speaker. An empty command triggers autodetection; a Speaker
// with no usable binary reports unavailable from every Speak call.
func New(enabled bool, command, homeDir string, logger *slog.Logger) *Speaker {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Speaker{
		cacheDir: filepath.Join(homeDir, "voice_cache"),
		logger:   logger,
	}
	if !enabled {
		return s
	}
	if command != "" {
		if _, err := exec.LookPath(command); err == nil {
			s.command = command
		} else {
			logger.Warn("configured voice command not found", "command", command)
		}
		return s
	}
	for _, c := range candidates {
		if _, err := exec.LookPath(c); err == nil {
			s.command = c
			break
		}
	}
	return s
}

// Available reports whether a synthesizer was found.
func (s *Speaker) Available() bool {
	return s != nil && s.command != ""
}

// Speak synthesizes the text and returns one of the result tokens. The
// spoken text is cached to the voice cache regardless of synthesis outcome.
func (s *Speaker) Speak(ctx context.Context, text string) string {
	if !s.Available() {
		return ResultUnavailable
	}

	s.cache(text)

	ctx, cancel := context.WithTimeout(ctx, speakTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, s.command, text)
	if err := cmd.Run(); err != nil {
		s.logger.Warn("voice synthesis failed", "command", s.command, "error", err)
		return ResultFailed
	}
	return ResultSuccess
}

func (s *Speaker) cache(text string) {
	if err := os.MkdirAll(s.cacheDir, 0o755); err != nil {
		return
	}
	name := filepath.Join(s.cacheDir, fmt.Sprintf("nova_%d.txt", time.Now().UnixNano()))
	entry := fmt.Sprintf("%s: %s\n", time.Now().UTC().Format(time.RFC3339), text)
	_ = os.WriteFile(name, []byte(entry), 0o644)
}
