// Package audit appends one JSONL entry per accepted socket command to
// <home>/logs/requests.jsonl. CLI callers and the dashboard read this file
// to reconstruct what the daemon was asked to do.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cathedral/nova/internal/shared"
)

type entry struct {
	Timestamp string `json:"timestamp"`
	Command   string `json:"command"`
	Outcome   string `json:"outcome"`
	Detail    string `json:"detail,omitempty"`
}

// Log is the append-only request log.
type Log struct {
	mu         sync.Mutex
	file       *os.File
	errorCount atomic.Int64
}

// Open creates the logs directory if needed and opens the request log
// for appending.
func Open(homeDir string) (*Log, error) {
	logDir := filepath.Join(homeDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(logDir, "requests.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Log{file: f}, nil
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// ErrorCount returns how many recorded commands ended in an error reply.
func (l *Log) ErrorCount() int64 {
	return l.errorCount.Load()
}

// Record appends one request entry. Detail is redacted before persistence.
// A nil Log or a closed file is a no-op so handlers never fail on logging.
func (l *Log) Record(command, outcome, detail string) {
	if l == nil {
		return
	}
	if outcome == "error" {
		l.errorCount.Add(1)
	}
	detail = shared.Redact(detail)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	ev := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Command:   command,
		Outcome:   outcome,
		Detail:    detail,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = l.file.Write(append(data, '\n'))
}
