// Package smoke drives the assembled daemon end to end over its socket,
// exercising the scenarios a fresh deployment walks through.
package smoke

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cathedral/nova/internal/config"
	"github.com/cathedral/nova/internal/daemon"
)

type liveDaemon struct {
	cfg    config.Config
	errCh  chan error
	done   chan struct{}
	cancel context.CancelFunc
}

func startDaemon(t *testing.T) *liveDaemon {
	t.Helper()
	home := t.TempDir()
	yaml := "socket_path: " + filepath.Join(home, "nova.sock") + "\nbridge_poll_seconds: 1\nvoice:\n  enabled: false\n"
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.LoadFrom(home)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		errCh <- daemon.Run(ctx, cfg, "smoke", true)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(cfg.SocketPath); err == nil {
			d := &liveDaemon{cfg: cfg, errCh: errCh, done: done, cancel: cancel}
			t.Cleanup(func() {
				cancel()
				select {
				case <-done:
				case <-time.After(10 * time.Second):
				}
			})
			return d
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	t.Fatal("daemon socket never appeared")
	return nil
}

func (d *liveDaemon) call(t *testing.T, payload string) string {
	t.Helper()
	conn, err := net.Dial("unix", d.cfg.SocketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte(payload)); err != nil {
		t.Fatal(err)
	}
	conn.(*net.UnixConn).CloseWrite()
	reply, err := io.ReadAll(conn)
	if err != nil {
		t.Fatal(err)
	}
	return string(reply)
}

func TestFirstConversationScenario(t *testing.T) {
	d := startDaemon(t)

	reply := d.call(t, `{"command":"conversation","text":"What is consciousness?"}`)
	if !strings.HasPrefix(reply, "◆ Nova: ") {
		t.Errorf("reply sigil missing: %q", reply)
	}
	if !strings.Contains(reply, "1") && !strings.Contains(reply, "0 previous") {
		t.Errorf("reply carries no memory fact: %q", reply)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(d.call(t, `{"command":"memory"}`)), &doc); err != nil {
		t.Fatalf("memory not JSON: %v", err)
	}
	summary := doc["memory_summary"].(map[string]any)
	if summary["total_conversations"] != float64(1) {
		t.Errorf("total_conversations = %v", summary["total_conversations"])
	}
}

func TestEntityScenario(t *testing.T) {
	d := startDaemon(t)

	d.call(t, `{"command":"conversation","text":"Tell Nova about Chazel and the Cathedral"}`)
	d.call(t, `{"command":"conversation","text":"Tell Nova about Chazel and the Cathedral"}`)

	var entities []map[string]any
	if err := json.Unmarshal([]byte(d.call(t, `{"command":"entities"}`)), &entities); err != nil {
		t.Fatal(err)
	}
	if len(entities) != 3 {
		t.Fatalf("entities = %v", entities)
	}
	for _, e := range entities {
		if e["interaction_count"] != float64(2) {
			t.Errorf("%v count = %v", e["name"], e["interaction_count"])
		}
	}
}

func TestBridgeRoundTripScenario(t *testing.T) {
	d := startDaemon(t)

	reply := d.call(t, `{"command":"bridge_send","message_type":"query","content":"hello","request":"please reply"}`)
	if !strings.Contains(reply, "query_") {
		t.Fatalf("bridge_send reply = %q", reply)
	}

	outbox := filepath.Join(d.cfg.BridgeDir, "outbox")
	entries, _ := os.ReadDir(outbox)
	if len(entries) != 1 {
		t.Fatalf("outbox = %v", entries)
	}
	data, _ := os.ReadFile(filepath.Join(outbox, entries[0].Name()))
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil || msg["message_type"] != "query" {
		t.Fatalf("outbound file bad: %v %v", err, msg)
	}

	// External agent deposits a reply; the daemon ingests within a poll.
	inbox := filepath.Join(d.cfg.BridgeDir, "inbox")
	if err := os.WriteFile(filepath.Join(inbox, "reply_1.json"),
		[]byte(`{"timestamp":"2025-01-01T00:00:00Z","content":"hi"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	archived := filepath.Join(d.cfg.BridgeDir, "archive", "reply_1.json")
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(archived); err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	checkReply := d.call(t, `{"command":"bridge_check"}`)
	var replies []map[string]any
	if err := json.Unmarshal([]byte(checkReply), &replies); err != nil {
		t.Fatalf("bridge_check not JSON: %v (%q)", err, checkReply)
	}
	found := false
	for _, r := range replies {
		if r["content"] == "hi" {
			found = true
		}
	}
	if !found {
		t.Errorf("reply not surfaced: %v", replies)
	}
	if _, err := os.Stat(filepath.Join(inbox, "reply_1.json")); !os.IsNotExist(err) {
		t.Error("inbox file still present")
	}
	if _, err := os.Stat(archived); err != nil {
		t.Error("archive file missing")
	}
}

func TestEvolutionScenario(t *testing.T) {
	d := startDaemon(t)

	for i := 0; i < 11; i++ {
		d.call(t, `{"command":"conversation","text":"consciousness and flow"}`)
	}
	reply := d.call(t, `{"command":"evolve"}`)
	if !strings.Contains(reply, "mystical_awareness") || !strings.Contains(reply, "memory_integration") {
		t.Errorf("evolve reply = %q", reply)
	}
	if !strings.Contains(reply, "0.810") {
		t.Errorf("memory_integration should report 0.810: %q", reply)
	}

	reply = d.call(t, `{"command":"evolve"}`)
	if !strings.Contains(reply, "stable") {
		t.Errorf("second evolve = %q", reply)
	}
}

func TestUnknownCommandScenario(t *testing.T) {
	d := startDaemon(t)
	reply := d.call(t, `{"command":"not_a_real_command"}`)
	if !strings.HasPrefix(reply, "✗ ") || !strings.Contains(reply, "Unknown command:") {
		t.Errorf("reply = %q", reply)
	}
}

func TestGracefulShutdownScenario(t *testing.T) {
	d := startDaemon(t)

	reply := d.call(t, `{"command":"shutdown"}`)
	if strings.HasPrefix(reply, "✗ ") {
		t.Fatalf("shutdown reply = %q", reply)
	}

	select {
	case err := <-d.errCh:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not exit after shutdown command")
	}

	if _, err := os.Stat(d.cfg.SocketPath); !os.IsNotExist(err) {
		t.Error("socket file not removed")
	}
	if _, err := net.Dial("unix", d.cfg.SocketPath); err == nil {
		t.Error("connection succeeded after shutdown")
	}
}

func TestRequestLogScenario(t *testing.T) {
	d := startDaemon(t)

	d.call(t, `{"command":"status"}`)
	d.call(t, `{"command":"heartbeat"}`)
	d.cancel()
	select {
	case <-d.errCh:
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}

	data, err := os.ReadFile(filepath.Join(d.cfg.HomeDir, "logs", "requests.jsonl"))
	if err != nil {
		t.Fatalf("request log: %v", err)
	}
	if !strings.Contains(string(data), `"command":"status"`) || !strings.Contains(string(data), `"command":"heartbeat"`) {
		t.Errorf("request log incomplete: %s", data)
	}

	if _, err := os.Stat(filepath.Join(d.cfg.HomeDir, "logs", "heartbeat.log")); err != nil {
		t.Errorf("heartbeat log missing: %v", err)
	}
}
