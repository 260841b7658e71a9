package knowledge

import (
	"context"
	"testing"
	"time"
)

func TestGarbageCollect_ConservativeProtectsRecentAndHighCount(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	// success_count=1, aged 100 days: prunable under conservative.
	old, _ := store.UpsertPattern(ctx, "RES.NAME_ERROR", "cluster-old", "fix", "", 0.8)
	store.setLastSuccessAt("cluster-old", now.AddDate(0, 0, -100))

	// success_count=1, aged 10 days: not old enough.
	recent, _ := store.UpsertPattern(ctx, "RES.NAME_ERROR", "cluster-recent", "fix", "", 0.8)
	store.setLastSuccessAt("cluster-recent", now.AddDate(0, 0, -10))

	// protected via success_count >= 10.
	for i := 0; i < 10; i++ {
		store.UpsertPattern(ctx, "RES.NAME_ERROR", "cluster-hot", "fix", "", 0.8)
	}
	store.setLastSuccessAt("cluster-hot", now.AddDate(0, 0, -200))

	result, err := GarbageCollect(ctx, store, GCConservative, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.DeletedCount != 1 {
		t.Errorf("DeletedCount = %d, want 1", result.DeletedCount)
	}
	if result.ProtectedCount != 1 {
		t.Errorf("ProtectedCount = %d, want 1", result.ProtectedCount)
	}

	remaining, _ := store.AllPatterns(ctx)
	ids := map[int64]bool{}
	for _, p := range remaining {
		ids[p.ID] = true
	}
	if ids[old.ID] {
		t.Error("expected the old, low-count pattern to be deleted")
	}
	if !ids[recent.ID] {
		t.Error("expected the recent pattern to survive")
	}
}

func TestGarbageCollect_Nuclear(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 4; i++ {
		store.UpsertPattern(ctx, "RES.NAME_ERROR", "cluster-low", "fix", "", 0.8)
	}
	for i := 0; i < 10; i++ {
		store.UpsertPattern(ctx, "RES.NAME_ERROR", "cluster-protected", "fix", "", 0.8)
	}

	result, err := GarbageCollect(ctx, store, GCNuclear, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.DeletedCount != 1 {
		t.Errorf("DeletedCount = %d, want 1 (only cluster-low, success_count=4 < 5)", result.DeletedCount)
	}
	if result.ProtectedCount != 1 {
		t.Errorf("ProtectedCount = %d, want 1", result.ProtectedCount)
	}
}

func TestGarbageCollect_UnknownStrategy(t *testing.T) {
	store := NewMemoryStore()
	_, err := GarbageCollect(context.Background(), store, GCStrategy("bogus"), time.Now())
	if err == nil {
		t.Fatal("expected an error for an unknown GC strategy")
	}
}
