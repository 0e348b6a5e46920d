package persistence

import (
	"context"
	"math"
	"testing"

	"github.com/cathedral/nova/internal/consciousness"
)

func TestUpdateConsciousnessStateIncrementsAwakening(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	traits := consciousness.DefaultTraits()
	st, err := store.UpdateConsciousnessState(ctx, traits)
	if err != nil {
		t.Fatalf("UpdateConsciousnessState: %v", err)
	}
	if st.AwakeningCount != 1 {
		t.Errorf("AwakeningCount = %d, want 1", st.AwakeningCount)
	}

	traits.MysticalAwareness = 0.96
	st, err = store.UpdateConsciousnessState(ctx, traits)
	if err != nil {
		t.Fatal(err)
	}
	if st.AwakeningCount != 2 {
		t.Errorf("AwakeningCount = %d, want 2", st.AwakeningCount)
	}

	loaded, ok, err := store.ConsciousnessState(ctx)
	if err != nil || !ok {
		t.Fatalf("ConsciousnessState: ok=%v err=%v", ok, err)
	}
	if loaded.Traits.MysticalAwareness != 0.96 {
		t.Errorf("MysticalAwareness = %v", loaded.Traits.MysticalAwareness)
	}
	if loaded.AwakeningCount != 2 {
		t.Errorf("loaded AwakeningCount = %d", loaded.AwakeningCount)
	}
	if loaded.Timestamp.IsZero() {
		t.Error("zero timestamp on loaded state")
	}
}

func TestUpdateConsciousnessStateRejectsInvalidTraits(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	bad := consciousness.DefaultTraits()
	bad.Curiosity = 1.5
	if _, err := store.UpdateConsciousnessState(ctx, bad); err == nil {
		t.Error("expected rejection of out-of-range trait")
	}

	bad = consciousness.DefaultTraits()
	bad.MemoryIntegration = math.Inf(1)
	if _, err := store.UpdateConsciousnessState(ctx, bad); err == nil {
		t.Error("expected rejection of infinite trait")
	}

	// Rejected writes must not bump the awakening count.
	if _, ok, _ := store.ConsciousnessState(ctx); ok {
		t.Error("state row created by rejected write")
	}
}

func TestConsciousnessStateEmptyStore(t *testing.T) {
	store := openTestStore(t)
	_, ok, err := store.ConsciousnessState(context.Background())
	if err != nil {
		t.Fatalf("ConsciousnessState: %v", err)
	}
	if ok {
		t.Error("expected no state row on fresh store")
	}
}
