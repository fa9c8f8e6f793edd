package chartsync

import (
	"context"
	"testing"
	"time"
)

func TestChannelWatcher_Forwards(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan []byte, 1)
	w := NewChannelWatcher(ch)

	out, err := w.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	ch <- []byte("payload")
	select {
	case v := <-out:
		if string(v) != "payload" {
			t.Errorf("expected payload, got %q", v)
		}
	case <-time.After(time.Second):
		t.Fatal("value never forwarded")
	}
}

func TestChannelWatcher_ClosesOnSourceClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan []byte)
	w := NewChannelWatcher(ch)

	out, err := w.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	close(ch)

	select {
	case _, ok := <-out:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("output never closed")
	}
}

func TestChannelWatcher_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	ch := make(chan []byte)
	w := NewChannelWatcher(ch)

	out, err := w.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	cancel()

	select {
	case _, ok := <-out:
		if ok {
			t.Error("expected closed channel after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("output never closed after cancel")
	}
}

func TestSyncChannelWatcher_ReturnsSourceDirectly(t *testing.T) {
	ch := make(chan []byte, 1)
	w := NewSyncChannelWatcher(ch)

	out, err := w.Watch(context.Background())
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	ch <- []byte("direct")
	select {
	case v := <-out:
		if string(v) != "direct" {
			t.Errorf("expected direct, got %q", v)
		}
	default:
		t.Fatal("expected value available without goroutine handoff")
	}
}
