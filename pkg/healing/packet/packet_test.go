package packet

import (
	"testing"
)

func intPtr(i int) *int { return &i }

func TestCanonicalJSON_Deterministic(t *testing.T) {
	a := &Diagnostic{Code: "SYN.001", Message: "bad", Line: intPtr(3)}
	b := &Diagnostic{Line: intPtr(3), Message: "bad", Code: "SYN.001"}

	ca, err := CanonicalJSON(a)
	if err != nil {
		t.Fatalf("CanonicalJSON(a): %v", err)
	}
	cb, err := CanonicalJSON(b)
	if err != nil {
		t.Fatalf("CanonicalJSON(b): %v", err)
	}
	if string(ca) != string(cb) {
		t.Errorf("canonical JSON differs for structurally equal values:\n%s\n%s", ca, cb)
	}
}

func TestCanonicalJSON_NoWhitespace(t *testing.T) {
	d := &Diagnostic{Code: "SYN.001"}
	canon, err := CanonicalJSON(d)
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	for _, b := range canon {
		if b == ' ' || b == '\n' || b == '\t' {
			t.Fatalf("canonical JSON contains whitespace: %q", canon)
		}
	}
}

func TestHash_SameInputSameHash(t *testing.T) {
	d1 := &Diagnostic{Code: "SYN.001", Line: intPtr(1)}
	d2 := &Diagnostic{Code: "SYN.001", Line: intPtr(1)}
	if Hash(d1) != Hash(d2) {
		t.Error("identical packets must hash identically")
	}
}

func TestHash_DifferentInputDifferentHash(t *testing.T) {
	d1 := &Diagnostic{Code: "SYN.001"}
	d2 := &Diagnostic{Code: "SYN.002"}
	if Hash(d1) == Hash(d2) {
		t.Error("different packets must not collide")
	}
}

func TestClean_HasDistinguishedHash(t *testing.T) {
	c := Clean()
	if !c.IsClean() {
		t.Fatal("Clean() packet should report IsClean() == true")
	}
	if Hash(c) != CleanHash {
		t.Error("Clean() packet must hash to the distinguished CleanHash")
	}
}

func TestVerify(t *testing.T) {
	d := &Diagnostic{Code: "SYN.001", Line: intPtr(5)}
	h := Hash(d)
	if !Verify(d, h) {
		t.Error("Verify should succeed for an unmutated packet")
	}
	d.Message = "tampered"
	if Verify(d, h) {
		t.Error("Verify should fail once the packet is mutated")
	}
}

func TestIsClean_NilSafe(t *testing.T) {
	var d *Diagnostic
	if !d.IsClean() {
		t.Error("a nil *Diagnostic should be treated as clean")
	}
}
