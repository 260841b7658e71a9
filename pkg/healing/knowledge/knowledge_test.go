package knowledge

import (
	"context"
	"testing"
)

// TestGetSimilarSuccessPatterns_ThreeLevelFallback grounds spec.md
// scenario S5: three patterns share an error_code but none has the
// queried cluster_id, plus one unrelated pattern of the same family;
// the error_code level must surface the three, without the unrelated one.
func TestGetSimilarSuccessPatterns_ThreeLevelFallback(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.UpsertPattern(ctx, "RES.NAME_ERROR", "RES.NAME_ERROR:requests", "import requests", "", 0.85)
	store.UpsertPattern(ctx, "RES.NAME_ERROR", "RES.NAME_ERROR:pandas", "import pandas", "", 0.8)
	store.UpsertPattern(ctx, "RES.NAME_ERROR", "RES.NAME_ERROR:numpy", "import numpy", "", 0.9)
	store.UpsertPattern(ctx, "RES.FILE_NOT_FOUND", "RES.FILE_NOT_FOUND:config", "create config", "", 0.8)

	kb := New(store, nil)
	results, err := kb.GetSimilarSuccessPatterns(ctx, QueryOptions{
		ErrorCode: "RES.NAME_ERROR",
		ClusterID: "RES.NAME_ERROR:newlib",
		Limit:     5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) < 3 {
		t.Fatalf("expected >= 3 results, got %d", len(results))
	}
	for _, r := range results {
		if r.ErrorCode != "RES.NAME_ERROR" {
			t.Errorf("unexpected error_code in results: %s", r.ErrorCode)
		}
	}
	first := results[0]
	if first.FallbackLevel != FallbackErrorCode && first.FallbackLevel != FallbackFamily {
		t.Errorf("first result fallback_level = %s, want error_code or family", first.FallbackLevel)
	}
}

func TestGetSimilarSuccessPatterns_OrderedBySuccessCountThenConfidence(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.UpsertPattern(ctx, "RES.NAME_ERROR", "cluster-a", "fix weak", "", 0.75)
	for i := 0; i < 3; i++ {
		store.UpsertPattern(ctx, "RES.NAME_ERROR", "cluster-a", "fix strong", "", 0.95)
	}

	kb := New(store, nil)
	results, err := kb.GetSimilarSuccessPatterns(ctx, QueryOptions{ClusterID: "cluster-a", Limit: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 de-duplicated patterns, got %d", len(results))
	}
	if results[0].FixDescription != "fix strong" {
		t.Errorf("expected the higher success_count pattern first, got %q", results[0].FixDescription)
	}
}

func TestGetSimilarSuccessPatterns_MinConfidenceFilters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.UpsertPattern(ctx, "RES.NAME_ERROR", "cluster-a", "low-conf fix", "", 0.5)

	kb := New(store, nil)
	results, err := kb.GetSimilarSuccessPatterns(ctx, QueryOptions{ClusterID: "cluster-a", Limit: 5, MinConfidence: 0.7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected min_confidence to filter out the low-confidence row, got %d results", len(results))
	}
}

func TestUpsertOnPromote_GatesOnConfidenceFloor(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	kb := New(store, nil)

	p, err := kb.UpsertOnPromote(ctx, "RES.NAME_ERROR", "cluster-a", "", "diff", 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Fatal("expected no upsert below the 0.7 confidence floor")
	}

	p, err = kb.UpsertOnPromote(ctx, "RES.NAME_ERROR", "cluster-a", "", "diff", 0.8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected an upsert at or above the 0.7 confidence floor")
	}
	if p.FixDescription != "Fix for RES.NAME_ERROR" {
		t.Errorf("FixDescription = %q, want synthesized default", p.FixDescription)
	}
}

func TestUpsertOnPromote_NoOpWithoutErrorCode(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	kb := New(store, nil)
	p, err := kb.UpsertOnPromote(ctx, "", "cluster-a", "desc", "diff", 0.9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Fatal("expected no upsert without an error_code")
	}
}

func TestKnowledgeBase_RecordAttemptFeedsHotTier(t *testing.T) {
	kb := New(NewMemoryStore(), NewHotTier(3))
	kb.RecordAttempt(HotEntry{PatchID: "p1", Decision: "PROMOTE"})
	if kb.Hot.Size() != 1 {
		t.Errorf("Hot.Size() = %d, want 1", kb.Hot.Size())
	}
}
