package ledger

import "testing"

func TestEntryDigestDeterministic(t *testing.T) {
	e := Entry{Position: 3, Sender: "0xaaa", Content: "hola", State: StatePending, Timestamp: 1700000000}
	d1 := EntryDigest(e)
	d2 := EntryDigest(e)
	if d1 == "" || d1 != d2 {
		t.Fatalf("expected deterministic digest, got %q and %q", d1, d2)
	}
}

func TestEntryDigestChangesWithState(t *testing.T) {
	e := Entry{Position: 0, Sender: "0xaaa", Content: "hola", State: StatePending, Timestamp: 1700000000}
	pending := EntryDigest(e)
	e.State = StateConfirmed
	confirmed := EntryDigest(e)
	if pending == confirmed {
		t.Fatal("state change must change the digest")
	}
}

func TestLogDigestOrderSensitive(t *testing.T) {
	a := Entry{Position: 0, Content: "primero"}
	b := Entry{Position: 1, Content: "segundo"}
	if LogDigest([]Entry{a, b}) == LogDigest([]Entry{b, a}) {
		t.Fatal("log digest must depend on entry order")
	}
	if LogDigest(nil) != LogDigest([]Entry{}) {
		t.Fatal("empty logs must share one digest")
	}
}
