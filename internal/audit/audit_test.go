package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRecordAppendsEntries(t *testing.T) {
	home := t.TempDir()
	log, err := Open(home)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	log.Record("conversation", "ok", "What is consciousness?")
	log.Record("bogus", "error", "Unknown command: bogus")
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(filepath.Join(home, "logs", "requests.jsonl"))
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("bad JSONL line: %v", err)
		}
		lines = append(lines, rec)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(lines))
	}
	if lines[0]["command"] != "conversation" || lines[0]["outcome"] != "ok" {
		t.Errorf("unexpected first entry: %v", lines[0])
	}
	if lines[1]["outcome"] != "error" {
		t.Errorf("unexpected second entry: %v", lines[1])
	}
	if log.ErrorCount() != 1 {
		t.Errorf("ErrorCount = %d, want 1", log.ErrorCount())
	}
}

func TestRecordRedactsDetail(t *testing.T) {
	home := t.TempDir()
	log, err := Open(home)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	log.Record("query", "ok", "using api_key=abc123def456ghi789jkl")
	log.Close()

	data, _ := os.ReadFile(filepath.Join(home, "logs", "requests.jsonl"))
	if strings.Contains(string(data), "abc123def456ghi789jkl") {
		t.Errorf("secret leaked into request log: %s", data)
	}
}

func TestNilLogIsNoop(t *testing.T) {
	var log *Log
	log.Record("status", "ok", "") // must not panic
}
