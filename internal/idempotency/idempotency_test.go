package idempotency

import (
	"fmt"
	"testing"
)

func TestObserveDeduplicates(t *testing.T) {
	t.Parallel()

	s := NewSeenSet(8)
	key := MessageKey("T1", "C1", "100.000")
	if s.Observe(key) {
		t.Fatalf("Observe(first) = true, want false")
	}
	if !s.Observe(key) {
		t.Fatalf("Observe(second) = false, want true")
	}
}

func TestObserveEvictsOldest(t *testing.T) {
	t.Parallel()

	s := NewSeenSet(3)
	for i := 0; i < 4; i++ {
		s.Observe(fmt.Sprintf("k%d", i))
	}
	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}
	if s.Observe("k0") {
		t.Fatalf("Observe(evicted key) = true, want false")
	}
	if !s.Observe("k3") {
		t.Fatalf("Observe(recent key) = false, want true")
	}
}

func TestEmptyKeyNeverDeduplicated(t *testing.T) {
	t.Parallel()

	s := NewSeenSet(4)
	if s.Observe("") || s.Observe("") {
		t.Fatalf("Observe(empty) = true")
	}
	if got := MessageKey("T1", "", "100.000"); got != "" {
		t.Fatalf("MessageKey(missing channel) = %q, want empty", got)
	}
}
