package chartsync

import (
	"fmt"
	"testing"
	"time"
)

func TestErrorRing_PushAndAll(t *testing.T) {
	ring := newErrorRing(3)
	now := time.Now()

	ring.push(fmt.Errorf("one"), now)
	ring.push(fmt.Errorf("two"), now)

	got := ring.all()
	if len(got) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(got))
	}
	if got[0].Error() != "one" || got[1].Error() != "two" {
		t.Errorf("expected oldest first, got %v", got)
	}
}

func TestErrorRing_Wraps(t *testing.T) {
	ring := newErrorRing(2)
	now := time.Now()

	ring.push(fmt.Errorf("one"), now)
	ring.push(fmt.Errorf("two"), now)
	ring.push(fmt.Errorf("three"), now)

	got := ring.all()
	if len(got) != 2 {
		t.Fatalf("expected capacity 2, got %d", len(got))
	}
	if got[0].Error() != "two" || got[1].Error() != "three" {
		t.Errorf("expected oldest dropped, got %v", got)
	}
}

func TestErrorRing_Clear(t *testing.T) {
	ring := newErrorRing(3)
	ring.push(fmt.Errorf("one"), time.Now())
	ring.clear()

	if got := ring.all(); got != nil {
		t.Errorf("expected empty after clear, got %v", got)
	}
}

func TestErrorRing_Disabled(t *testing.T) {
	ring := newErrorRing(0)
	if ring != nil {
		t.Fatal("expected nil ring for size 0")
	}

	// Nil receiver is safe.
	ring.push(fmt.Errorf("ignored"), time.Now())
	ring.clear()
	if got := ring.all(); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}
