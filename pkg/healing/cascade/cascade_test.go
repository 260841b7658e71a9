package cascade

import "testing"

func TestAppend_MarksCascadingAfterFirst(t *testing.T) {
	c := New()
	first := c.Append(ClassSyntax, "bad syntax", 0.9)
	second := c.Append(ClassSyntax, "still bad", 0.8)
	if first.IsCascading {
		t.Error("first entry should not be marked cascading")
	}
	if !second.IsCascading {
		t.Error("second entry should be marked cascading")
	}
}

func TestShouldStop_DepthLimit(t *testing.T) {
	c := New()
	// Alternate classes with flat confidence and no severity increase so
	// only the depth condition can trip.
	for _, class := range []ErrorClass{ClassLogic, ClassSyntax, ClassLogic, ClassSyntax} {
		c.Append(class, "e", 0.9)
	}
	if stop, _ := c.ShouldStop(); stop {
		t.Fatal("should not stop before depth 5")
	}
	c.Append(ClassLogic, "e", 0.9)
	stop, reason := c.ShouldStop()
	if !stop || reason == "" {
		t.Fatalf("expected stop at depth 5, got stop=%v reason=%q", stop, reason)
	}
}

func TestShouldStop_RepeatingClass(t *testing.T) {
	c := New()
	c.Append(ClassLogic, "e1", 0.9)
	c.Append(ClassLogic, "e2", 0.8)
	c.Append(ClassLogic, "e3", 0.7)
	if stop, _ := c.ShouldStop(); !stop {
		t.Fatal("expected stop on repeating error class across last three")
	}
}

func TestShouldStop_ConfidenceDecay(t *testing.T) {
	c := New()
	c.Append(ClassLogic, "e1", 0.9)
	c.Append(ClassRuntime, "e2", 0.6)
	c.Append(ClassSecurity, "e3", 0.3)
	if stop, reason := c.ShouldStop(); !stop {
		t.Fatal("expected stop on decreasing confidence")
	} else if reason == "" {
		t.Fatal("expected non-empty reason")
	}
}

func TestShouldStop_SeverityEscalation(t *testing.T) {
	c := New()
	c.Append(ClassSyntax, "e1", 0.9)
	c.Append(ClassSecurity, "e2", 0.95)
	if stop, _ := c.ShouldStop(); !stop {
		t.Fatal("expected stop on severity escalation from syntax to security")
	}
}

func TestShouldStop_StickyUntilReset(t *testing.T) {
	c := New()
	for i := 0; i < 5; i++ {
		c.Append(ClassLogic, "e", 0.9)
	}
	stop, reason := c.ShouldStop()
	if !stop {
		t.Fatal("expected stop at depth 5")
	}

	// Appending an entry that on its own would not trip any condition
	// must not clear the sticky stop.
	c.Append(ClassLogic, "e6", 0.9)
	if stop2, reason2 := c.ShouldStop(); !stop2 || reason2 != reason {
		t.Fatalf("expected sticky stop to persist, got stop=%v reason=%q want reason=%q", stop2, reason2, reason)
	}

	c.Reset()
	if stop3, _ := c.ShouldStop(); stop3 {
		t.Fatal("expected ShouldStop to clear after Reset")
	}
}

func TestShouldStop_NotTrippedInitially(t *testing.T) {
	c := New()
	c.Append(ClassSyntax, "e1", 0.9)
	if stop, _ := c.ShouldStop(); stop {
		t.Fatal("should not stop after a single entry")
	}
}

func TestDepthAndEntries(t *testing.T) {
	c := New()
	c.Append(ClassSyntax, "e1", 0.9)
	c.Append(ClassLogic, "e2", 0.8)
	if c.Depth() != 2 {
		t.Fatalf("Depth() = %d, want 2", c.Depth())
	}
	entries := c.Entries()
	if len(entries) != 2 {
		t.Fatalf("Entries() len = %d, want 2", len(entries))
	}
	entries[0].Message = "mutated copy"
	if c.Entries()[0].Message == "mutated copy" {
		t.Fatal("Entries() should return a defensive copy")
	}
}
