package ulid

import (
	"strings"
	"testing"
	"time"
)

func TestNewLengthAndAlphabet(t *testing.T) {
	id := New()
	if len(id) != 26 {
		t.Fatalf("expected 26 chars, got %d (%q)", len(id), id)
	}
	for _, r := range id {
		if !strings.ContainsRune(encoding, r) {
			t.Fatalf("unexpected character %q in %q", r, id)
		}
	}
}

func TestNewAtIsMonotonicByTimestamp(t *testing.T) {
	earlier := newAt(time.UnixMilli(1000))
	later := newAt(time.UnixMilli(2000))
	if !(earlier[:10] < later[:10]) {
		t.Fatalf("expected timestamp prefix ordering: %q vs %q", earlier, later)
	}
}

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("truth")
	if !strings.HasPrefix(id, "truth-") {
		t.Fatalf("expected truth- prefix, got %q", id)
	}
	if len(id) != len("truth-")+26 {
		t.Fatalf("unexpected length: %q", id)
	}
}
