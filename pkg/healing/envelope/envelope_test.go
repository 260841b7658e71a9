package envelope

import (
	"testing"

	"github.com/codeheals/codeheal/pkg/healing/breaker"
	"github.com/codeheals/codeheal/pkg/healing/confidence"
	"github.com/codeheals/codeheal/pkg/healing/packet"
)

func samplePatchData() PatchData {
	return PatchData{
		ErrorClass:   "syntax",
		Message:      "SyntaxError: invalid syntax",
		PatchedCode:  "def x(): pass",
		OriginalCode: "def x(: pass",
	}
}

func TestNew_PatchIDAndHash(t *testing.T) {
	e := New(samplePatchData())
	if e.PatchID == "" {
		t.Fatal("expected non-empty patch_id")
	}
	if e.EnvelopeHash == "" {
		t.Fatal("expected non-empty envelope_hash")
	}
}

func TestAppendAttemptTimeline_DoesNotChangeHash(t *testing.T) {
	e := New(samplePatchData())
	before := e.EnvelopeHash
	e.AppendAttempt(Attempt{Decision: "RETRY", Note: "first try"})
	e.AppendTimeline("attempt", "first try")
	if e.EnvelopeHash != before {
		t.Errorf("EnvelopeHash changed after appending attempts/timeline: %s -> %s", before, e.EnvelopeHash)
	}
}

func TestDeveloperMessageAndReason_DoNotChangeHash(t *testing.T) {
	e := New(samplePatchData())
	e.SetCascadeDepth(1) // force a real mutation so before != zero-state hash
	before := e.EnvelopeHash
	e.DeveloperMessage = "manual note"
	e.DeveloperFlagReason = "manual reason"
	if e.EnvelopeHash != before {
		t.Error("directly setting developer_message/developer_flag_reason fields should not be read by Hash()")
	}
	// FlagForDeveloper recomputes because flagged_for_developer itself
	// is not volatile, but the reason/message strings still don't leak
	// into two different hashes for the same boolean state.
	e.FlagForDeveloper("risk_gate", "flagged for risky keyword")
	afterFlag := e.EnvelopeHash
	e.FlagForDeveloper("risk_gate", "a totally different message")
	if e.EnvelopeHash != afterFlag {
		t.Error("changing only developer_message/reason text should not change EnvelopeHash")
	}
}

func TestIdenticalNonVolatileContent_SameHash(t *testing.T) {
	e1 := New(samplePatchData())
	e2 := New(samplePatchData())
	// Patch IDs differ (timestamp component) so force them equal to
	// isolate the "identical non-volatile content" comparison.
	e2.PatchID = e1.PatchID
	e2.recomputeHash()
	e1.recomputeHash()
	if e1.EnvelopeHash != e2.EnvelopeHash {
		t.Errorf("expected identical hash for identical non-volatile content, got %s vs %s", e1.EnvelopeHash, e2.EnvelopeHash)
	}
}

func TestSetConfidenceComponents_Clamps(t *testing.T) {
	e := New(samplePatchData())
	e.SetConfidenceComponents(confidence.Components{
		HistoricalSuccessRate: 1.5,
		PatternSimilarity:     -0.2,
		ComplexityPenalty:     2,
		TestCoverage:          0.5,
	})
	c := e.ConfidenceComponents
	if c.HistoricalSuccessRate != 1 || c.PatternSimilarity != 0 || c.ComplexityPenalty != 1 {
		t.Errorf("expected clamped components, got %+v", c)
	}
}

func TestSetCascadeDepth_CoercesNonNegative(t *testing.T) {
	e := New(samplePatchData())
	e.SetCascadeDepth(-3)
	if e.CascadeDepth != 0 {
		t.Errorf("CascadeDepth = %d, want 0", e.CascadeDepth)
	}
}

func TestPromote_IsOneWayLatch(t *testing.T) {
	e := New(samplePatchData())
	e.Promote()
	if !e.Success {
		t.Fatal("expected Success true after Promote")
	}
	hashAfterFirstPromote := e.EnvelopeHash
	e.Success = false // simulate an attempted external mutation
	e.Promote()
	if !e.Success {
		t.Fatal("Promote must latch Success true even if something flipped it")
	}
	_ = hashAfterFirstPromote
}

func TestSetRebanker_HashInvariantHolds(t *testing.T) {
	e := New(samplePatchData())
	clean := packet.Clean()
	e.SetRebanker(clean)
	if !packet.Verify(e.Metadata.RebankerRaw, e.Metadata.RebankerHash) {
		t.Fatal("expected rebanker_hash to verify against rebanker_raw")
	}
	if e.Metadata.RebankerInterpreted != nil {
		t.Fatal("expected rebanker_interpreted to reset to nil on SetRebanker")
	}
}

func TestSetInterpretation_OnlyTouchesInterpretedField(t *testing.T) {
	e := New(samplePatchData())
	raw := packet.Clean()
	e.SetRebanker(raw)
	wantHash := e.Metadata.RebankerHash
	e.SetInterpretation("looks clean to me")
	if e.Metadata.RebankerHash != wantHash {
		t.Error("SetInterpretation must not touch rebanker_hash")
	}
	if e.Metadata.RebankerInterpreted == nil || *e.Metadata.RebankerInterpreted != "looks clean to me" {
		t.Error("expected rebanker_interpreted to be set")
	}
}

func TestSetBreakerState_RecomputesHash(t *testing.T) {
	e := New(samplePatchData())
	before := e.EnvelopeHash
	e.SetBreakerState(breaker.Snapshot{State: breaker.StateSyntaxOpen, SyntaxAttempts: 3})
	if e.EnvelopeHash == before {
		t.Error("expected hash to change after SetBreakerState")
	}
}

func TestValidate_ValidEnvelopePasses(t *testing.T) {
	e := New(samplePatchData())
	if err := Validate(e); err != nil {
		t.Fatalf("expected a freshly created envelope to validate, got %v", err)
	}
}
