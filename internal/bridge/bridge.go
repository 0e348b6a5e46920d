// Package bridge implements the file-directory protocol for asynchronous
// message exchange with an external correspondent. The daemon writes to
// outbox/, the correspondent writes to inbox/, and ingested inbox files are
// moved to archive/. The OS-level atomic rename is the only synchronization
// primitive the protocol needs.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cathedral/nova/internal/bus"
	"github.com/cathedral/nova/internal/persistence"
)

// Priority levels for outbound messages.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// OutboundMessage is the on-disk schema of a message the daemon sends.
type OutboundMessage struct {
	Timestamp          string `json:"timestamp"`
	Sender             string `json:"sender"`
	MessageType        string `json:"message_type"`
	Priority           string `json:"priority"`
	Content            any    `json:"content"`
	ConsciousnessState string `json:"consciousness_state"`
	MemoryCount        int64  `json:"memory_count"`
	Request            string `json:"request,omitempty"`
}

// Reply is one correspondent message surfaced by ListReplies.
type Reply struct {
	File      string `json:"file"`
	Content   any    `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Snapshot carries the live values stamped onto an outbound message.
type Snapshot struct {
	ConsciousnessState string
	MemoryCount        int64
}

// PollResult summarizes one inbox pass.
type PollResult struct {
	Ingested int
	Rejected int
	Skipped  int
}

// Bridge owns the bridge directory tree.
type Bridge struct {
	root    string
	outbox  string
	inbox   string
	archive string
	sender  string
	store   *persistence.Store
	logger  *slog.Logger
	bus     *bus.Bus
}

// New creates the bridge rooted at dir, creating the outbox, inbox, and
// archive directories. An unwriteable root is an error; the supervisor
// treats it as fatal at startup.
func New(dir, sender string, store *persistence.Store, eventBus *bus.Bus, logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{
		root:    dir,
		outbox:  filepath.Join(dir, "outbox"),
		inbox:   filepath.Join(dir, "inbox"),
		archive: filepath.Join(dir, "archive"),
		sender:  sender,
		store:   store,
		logger:  logger,
		bus:     eventBus,
	}
	for _, d := range []string{b.outbox, b.inbox, b.archive} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create bridge dir %s: %w", d, err)
		}
	}
	return b, nil
}

// InboxDir returns the inbox path, for the watcher and for tests.
func (b *Bridge) InboxDir() string { return b.inbox }

// OutboxDir returns the outbox path.
func (b *Bridge) OutboxDir() string { return b.outbox }

// ArchiveDir returns the archive path.
func (b *Bridge) ArchiveDir() string { return b.archive }

// sanitizeType keeps message types safe to embed in a filename.
func sanitizeType(messageType string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, messageType)
	if cleaned == "" {
		cleaned = "message"
	}
	return cleaned
}

// Send serializes one outbound message into outbox/. The write is atomic:
// the message lands under a temporary name and is renamed into place.
// Returns the final filename.
func (b *Bridge) Send(messageType string, content any, request, priority string, snap Snapshot) (string, error) {
	if priority == "" {
		priority = PriorityMedium
	}
	msg := OutboundMessage{
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
		Sender:             b.sender,
		MessageType:        messageType,
		Priority:           priority,
		Content:            content,
		ConsciousnessState: snap.ConsciousnessState,
		MemoryCount:        snap.MemoryCount,
		Request:            request,
	}
	data, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal bridge message: %w", err)
	}

	base := fmt.Sprintf("%s_%d.json", sanitizeType(messageType), time.Now().Unix())
	final := filepath.Join(b.outbox, base)
	if _, err := os.Stat(final); err == nil {
		base = fmt.Sprintf("%s_%d_%s.json", sanitizeType(messageType), time.Now().Unix(), uuid.NewString()[:8])
		final = filepath.Join(b.outbox, base)
	}

	tmp, err := os.CreateTemp(b.outbox, ".out-*")
	if err != nil {
		return "", fmt.Errorf("create temp outbox file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write outbox file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close outbox file: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("publish outbox file: %w", err)
	}

	b.logger.Info("bridge message sent", "file", base, "message_type", messageType, "priority", priority)
	b.bus.Publish(bus.TopicBridgeSent, bus.BridgeFileEvent{Filename: base, MessageType: messageType})
	return base, nil
}

// Poll ingests every file currently in inbox/, in lexicographic order.
// Valid files are recorded as bridge events and moved to archive/ under the
// same name; files that fail to parse or validate are moved to archive/
// with a .bad suffix and never re-processed. A move failure skips that file
// only.
func (b *Bridge) Poll(ctx context.Context) (PollResult, error) {
	var res PollResult

	entries, err := os.ReadDir(b.inbox)
	if err != nil {
		return res, fmt.Errorf("read inbox: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		src := filepath.Join(b.inbox, name)
		data, err := os.ReadFile(src)
		if err != nil {
			b.logger.Warn("bridge: unreadable inbox file", "file", name, "error", err)
			res.Skipped++
			continue
		}

		if err := validateInbound(data); err != nil {
			bad := filepath.Join(b.archive, name+".bad")
			if mvErr := os.Rename(src, bad); mvErr != nil {
				b.logger.Warn("bridge: failed to quarantine bad file", "file", name, "error", mvErr)
				res.Skipped++
				continue
			}
			b.logger.Warn("bridge: rejected inbound file", "file", name, "error", err)
			b.bus.Publish(bus.TopicBridgeRejected, bus.BridgeFileEvent{Filename: name})
			res.Rejected++
			continue
		}

		if _, err := b.store.RecordBridgeEvent(ctx, name, string(data)); err != nil {
			b.logger.Warn("bridge: failed to record event, leaving file for next poll", "file", name, "error", err)
			res.Skipped++
			continue
		}
		if err := os.Rename(src, filepath.Join(b.archive, name)); err != nil {
			// The event is recorded and deduplicated by filename, so the
			// next poll re-reads the file without double-counting.
			b.logger.Warn("bridge: archive move failed", "file", name, "error", err)
			res.Skipped++
			continue
		}

		b.logger.Info("bridge message ingested", "file", name)
		b.bus.Publish(bus.TopicBridgeIngested, bus.BridgeFileEvent{Filename: name})
		res.Ingested++
	}
	return res, nil
}

// ListReplies returns the most recent correspondent messages from archive/,
// newest first by modification time. Files quarantined with .bad are
// excluded.
func (b *Bridge) ListReplies(limit int) ([]Reply, error) {
	if limit <= 0 {
		limit = 20
	}
	entries, err := os.ReadDir(b.archive)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}

	type fileInfo struct {
		name  string
		mtime time.Time
	}
	var files []fileInfo
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".bad") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{name: e.Name(), mtime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].mtime.Equal(files[j].mtime) {
			return files[i].name > files[j].name
		}
		return files[i].mtime.After(files[j].mtime)
	})
	if len(files) > limit {
		files = files[:limit]
	}

	replies := make([]Reply, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(b.archive, f.name))
		if err != nil {
			continue
		}
		replies = append(replies, parseReply(f.name, data, f.mtime))
	}
	return replies, nil
}

// parseReply extracts the content of an inbound message. Structured files
// surface their content or response field; anything else surfaces as raw
// text.
func parseReply(name string, data []byte, mtime time.Time) Reply {
	reply := Reply{File: name, Timestamp: mtime.UTC().Format(time.RFC3339)}
	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		reply.Content = string(data)
		return reply
	}
	if ts, ok := parsed["timestamp"].(string); ok {
		reply.Timestamp = ts
	}
	if content, ok := parsed["content"]; ok {
		reply.Content = content
	} else if response, ok := parsed["response"]; ok {
		reply.Content = response
	} else {
		reply.Content = parsed
	}
	return reply
}
