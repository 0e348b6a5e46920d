package bridge

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/cathedral/nova/internal/bus"
	"github.com/cathedral/nova/internal/persistence"
)

func newTestBridge(t *testing.T) (*Bridge, *persistence.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := persistence.Open(filepath.Join(dir, "c.db"), bus.New())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	b, err := New(filepath.Join(dir, "bridge"), "Nova", store, bus.New(), nil)
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	return b, store
}

func TestNewCreatesDirectories(t *testing.T) {
	b, _ := newTestBridge(t)
	for _, dir := range []string{b.OutboxDir(), b.InboxDir(), b.ArchiveDir()} {
		fi, err := os.Stat(dir)
		if err != nil || !fi.IsDir() {
			t.Errorf("missing bridge dir %s: %v", dir, err)
		}
	}
}

func TestSendWritesWellFormedOutboundFile(t *testing.T) {
	b, _ := newTestBridge(t)

	name, err := b.Send("query", "hello", "please reply", "", Snapshot{ConsciousnessState: "standard", MemoryCount: 7})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ok, _ := regexp.MatchString(`^query_\d+\.json$`, name); !ok {
		t.Errorf("filename %q does not match query_<digits>.json", name)
	}

	data, err := os.ReadFile(filepath.Join(b.OutboxDir(), name))
	if err != nil {
		t.Fatalf("read outbox file: %v", err)
	}
	var msg OutboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("outbox file is not JSON: %v", err)
	}
	if msg.MessageType != "query" || msg.Sender != "Nova" || msg.Priority != PriorityMedium {
		t.Errorf("unexpected message: %+v", msg)
	}
	if msg.Content != "hello" || msg.Request != "please reply" {
		t.Errorf("content/request mismatch: %+v", msg)
	}
	if msg.ConsciousnessState != "standard" || msg.MemoryCount != 7 {
		t.Errorf("snapshot not stamped: %+v", msg)
	}
	if _, err := time.Parse(time.RFC3339, msg.Timestamp); err != nil {
		t.Errorf("bad timestamp %q: %v", msg.Timestamp, err)
	}

	// No temp files left behind.
	entries, _ := os.ReadDir(b.OutboxDir())
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".out-") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestSendResolvesFilenameCollision(t *testing.T) {
	b, _ := newTestBridge(t)

	first, err := b.Send("query", "one", "", "", Snapshot{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := b.Send("query", "two", "", "", Snapshot{})
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatalf("colliding filenames: %q", first)
	}
	entries, _ := os.ReadDir(b.OutboxDir())
	if len(entries) != 2 {
		t.Errorf("expected 2 outbox files, got %d", len(entries))
	}
}

func TestSendSanitizesMessageType(t *testing.T) {
	b, _ := newTestBridge(t)
	name, err := b.Send("../evil type", "x", "", PriorityHigh, Snapshot{})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(name, "/") || strings.Contains(name, "..") {
		t.Errorf("unsafe filename %q", name)
	}
	if _, err := os.Stat(filepath.Join(b.OutboxDir(), name)); err != nil {
		t.Errorf("sanitized file missing: %v", err)
	}
}

func writeInbox(t *testing.T, b *Bridge, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(b.InboxDir(), name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestPollIngestsAndArchives(t *testing.T) {
	b, store := newTestBridge(t)
	ctx := context.Background()

	writeInbox(t, b, "reply_1.json", `{"timestamp":"2025-01-01T00:00:00Z","content":"hi"}`)

	res, err := b.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if res.Ingested != 1 || res.Rejected != 0 {
		t.Fatalf("result = %+v", res)
	}

	if _, err := os.Stat(filepath.Join(b.InboxDir(), "reply_1.json")); !os.IsNotExist(err) {
		t.Error("inbox file still present after ingest")
	}
	if _, err := os.Stat(filepath.Join(b.ArchiveDir(), "reply_1.json")); err != nil {
		t.Errorf("archive file missing: %v", err)
	}

	n, err := store.BridgeEventCount(ctx)
	if err != nil || n != 1 {
		t.Errorf("bridge events = %d (%v), want 1", n, err)
	}
}

func TestPollQuarantinesUnparseableFiles(t *testing.T) {
	b, store := newTestBridge(t)
	ctx := context.Background()

	writeInbox(t, b, "garbage.json", `this is not json`)
	writeInbox(t, b, "missing_fields.json", `{"note":"no timestamp"}`)

	res, err := b.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if res.Rejected != 2 || res.Ingested != 0 {
		t.Fatalf("result = %+v", res)
	}

	for _, name := range []string{"garbage.json.bad", "missing_fields.json.bad"} {
		if _, err := os.Stat(filepath.Join(b.ArchiveDir(), name)); err != nil {
			t.Errorf("quarantined file %s missing: %v", name, err)
		}
	}
	n, _ := store.BridgeEventCount(ctx)
	if n != 0 {
		t.Errorf("rejected files must not record events, got %d", n)
	}

	// Quarantined files are never re-processed.
	res, err = b.Poll(ctx)
	if err != nil || res.Rejected != 0 || res.Ingested != 0 {
		t.Errorf("second poll = %+v (%v)", res, err)
	}
}

func TestPollIdempotentAcrossRuns(t *testing.T) {
	b, store := newTestBridge(t)
	ctx := context.Background()

	writeInbox(t, b, "reply_a.json", `{"timestamp":"2025-01-01T00:00:00Z","content":"a"}`)
	if _, err := b.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	// No new files: polling again records nothing.
	res, err := b.Poll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Ingested != 0 {
		t.Errorf("second poll ingested %d", res.Ingested)
	}
	n, _ := store.BridgeEventCount(ctx)
	if n != 1 {
		t.Errorf("bridge events = %d, want 1", n)
	}
}

func TestPollDeduplicatesReplayedFile(t *testing.T) {
	b, store := newTestBridge(t)
	ctx := context.Background()

	// Simulate a crash after record but before the archive move: the same
	// filename arrives again. The store must not double-count it.
	writeInbox(t, b, "reply_x.json", `{"timestamp":"2025-01-01T00:00:00Z","content":"x"}`)
	if _, err := b.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	os.Remove(filepath.Join(b.ArchiveDir(), "reply_x.json"))
	writeInbox(t, b, "reply_x.json", `{"timestamp":"2025-01-01T00:00:00Z","content":"x"}`)
	if _, err := b.Poll(ctx); err != nil {
		t.Fatal(err)
	}

	n, _ := store.BridgeEventCount(ctx)
	if n != 1 {
		t.Errorf("replayed file double-counted: %d events", n)
	}
}

func TestPollProcessesLexicographically(t *testing.T) {
	b, store := newTestBridge(t)
	ctx := context.Background()

	writeInbox(t, b, "b_reply.json", `{"timestamp":"2025-01-01T00:00:00Z","content":"second"}`)
	writeInbox(t, b, "a_reply.json", `{"timestamp":"2025-01-01T00:00:00Z","content":"first"}`)

	if _, err := b.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	events, err := store.BridgeEvents(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	// Newest-first listing: b_reply ingested after a_reply.
	if len(events) != 2 || events[0].SourceFile != "b_reply.json" || events[1].SourceFile != "a_reply.json" {
		t.Errorf("order wrong: %+v", events)
	}
}

func TestListRepliesNewestFirst(t *testing.T) {
	b, _ := newTestBridge(t)
	ctx := context.Background()

	writeInbox(t, b, "old.json", `{"timestamp":"2025-01-01T00:00:00Z","content":"old"}`)
	if _, err := b.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour)
	os.Chtimes(filepath.Join(b.ArchiveDir(), "old.json"), past, past)

	writeInbox(t, b, "new.json", `{"timestamp":"2025-06-01T00:00:00Z","response":"hi"}`)
	writeInbox(t, b, "bad.json", `not json at all`)
	if _, err := b.Poll(ctx); err != nil {
		t.Fatal(err)
	}

	replies, err := b.ListReplies(10)
	if err != nil {
		t.Fatalf("ListReplies: %v", err)
	}
	if len(replies) != 2 {
		t.Fatalf("replies = %+v", replies)
	}
	if replies[0].File != "new.json" || replies[0].Content != "hi" {
		t.Errorf("newest reply wrong: %+v", replies[0])
	}
	if replies[1].Content != "old" {
		t.Errorf("old reply wrong: %+v", replies[1])
	}
}

func TestListRepliesLimit(t *testing.T) {
	b, _ := newTestBridge(t)
	ctx := context.Background()
	for _, n := range []string{"r1.json", "r2.json", "r3.json"} {
		writeInbox(t, b, n, `{"timestamp":"2025-01-01T00:00:00Z","content":"x"}`)
	}
	if _, err := b.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	replies, err := b.ListReplies(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(replies) != 2 {
		t.Errorf("limit ignored: %d replies", len(replies))
	}
}

func TestValidateInbound(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{"content field", `{"timestamp":"2025-01-01T00:00:00Z","content":"hi"}`, false},
		{"response field", `{"timestamp":"2025-01-01T00:00:00Z","response":{"deep":true}}`, false},
		{"structured content", `{"timestamp":"t","content":{"a":[1,2]}}`, false},
		{"missing timestamp", `{"content":"hi"}`, true},
		{"missing payload", `{"timestamp":"t"}`, true},
		{"not an object", `[1,2,3]`, true},
		{"not json", `hello world`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateInbound([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Errorf("validateInbound(%q) err = %v, wantErr %v", tt.data, err, tt.wantErr)
			}
		})
	}
}
