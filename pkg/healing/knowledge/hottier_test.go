package knowledge

import (
	"testing"
	"time"
)

func TestHotTier_EvictsOldest(t *testing.T) {
	h := NewHotTier(2)
	h.Push(HotEntry{PatchID: "p1"})
	h.Push(HotEntry{PatchID: "p2"})
	h.Push(HotEntry{PatchID: "p3"})

	if h.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", h.Size())
	}
	recent := h.Recent(0)
	if recent[0].PatchID != "p3" || recent[1].PatchID != "p2" {
		t.Errorf("expected [p3 p2], got %v", recent)
	}
}

func TestHotTier_DefaultSize(t *testing.T) {
	h := NewHotTier(0)
	for i := 0; i < DefaultHotTierSize+5; i++ {
		h.Push(HotEntry{PatchID: "x"})
	}
	if h.Size() != DefaultHotTierSize {
		t.Errorf("Size() = %d, want %d", h.Size(), DefaultHotTierSize)
	}
}

func TestHotTier_Trend(t *testing.T) {
	h := NewHotTier(10)
	if got := h.Trend(10); got != TrendUnknown {
		t.Errorf("Trend on empty ring = %s, want unknown", got)
	}

	base := time.Now()
	confidences := []float64{0.3, 0.5, 0.7, 0.9}
	for i, c := range confidences {
		h.Push(HotEntry{PatchID: "p", Confidence: c, Timestamp: base.Add(time.Duration(i) * time.Second)})
	}
	if got := h.Trend(10); got != TrendImproving {
		t.Errorf("Trend() = %s, want improving", got)
	}
}

func TestHotTier_LLMContext(t *testing.T) {
	h := NewHotTier(10)
	if got := h.LLMContext(5); got != "No recent healing attempts in memory." {
		t.Errorf("empty LLMContext = %q", got)
	}

	h.Push(HotEntry{PatchID: "p1", Decision: "PROMOTE", Confidence: 0.9, Message: "err"})
	h.Push(HotEntry{PatchID: "p2", Decision: "RETRY", Confidence: 0.4})
	out := h.LLMContext(5)
	if out == "" {
		t.Fatal("expected non-empty context")
	}
}

func TestHotTier_Clear(t *testing.T) {
	h := NewHotTier(5)
	h.Push(HotEntry{PatchID: "p1"})
	h.Clear()
	if h.Size() != 0 {
		t.Errorf("Size() after Clear = %d, want 0", h.Size())
	}
}

func TestHotTier_PatternInsights(t *testing.T) {
	h := NewHotTier(5)
	h.Push(HotEntry{ErrorClass: "syntax"})
	h.Push(HotEntry{ErrorClass: "syntax"})
	h.Push(HotEntry{ErrorClass: "logic"})
	insights := h.PatternInsights()
	if insights["syntax"] != 2 || insights["logic"] != 1 {
		t.Errorf("PatternInsights() = %v", insights)
	}
}
