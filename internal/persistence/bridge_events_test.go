package persistence

import (
	"context"
	"testing"
)

func TestRecordBridgeEventDeduplicatesOnSourceFile(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	inserted, err := store.RecordBridgeEvent(ctx, "reply_1.json", `{"content":"hi"}`)
	if err != nil {
		t.Fatalf("RecordBridgeEvent: %v", err)
	}
	if !inserted {
		t.Error("first record should insert")
	}

	inserted, err = store.RecordBridgeEvent(ctx, "reply_1.json", `{"content":"hi"}`)
	if err != nil {
		t.Fatalf("second RecordBridgeEvent: %v", err)
	}
	if inserted {
		t.Error("duplicate source file should not insert")
	}

	n, err := store.BridgeEventCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("BridgeEventCount = %d, want 1", n)
	}
}

func TestBridgeEventsNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, f := range []string{"a.json", "b.json", "c.json"} {
		if _, err := store.RecordBridgeEvent(ctx, f, "{}"); err != nil {
			t.Fatal(err)
		}
	}

	events, err := store.BridgeEvents(ctx, 2)
	if err != nil {
		t.Fatalf("BridgeEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].SourceFile != "c.json" || events[1].SourceFile != "b.json" {
		t.Errorf("wrong order: %s, %s", events[0].SourceFile, events[1].SourceFile)
	}
}
