package chartsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zoobzio/pipz"
)

// Test identities for pipeline option tests.
var (
	testFlakyID   = pipz.NewIdentity("test:flaky", "Fails until the retry budget covers it")
	testTagID     = pipz.NewIdentity("test:tag", "Tags series with a render option")
	testCountID   = pipz.NewIdentity("test:count", "Counts processed cycles")
	testObserveID = pipz.NewIdentity("test:observe", "Records pipeline errors")
	testPassID    = pipz.NewIdentity("test:pass", "Passes the request through")
)

func TestWithRetry_RecoversTransientApplyFailure(t *testing.T) {
	ctx := context.Background()
	chart := newFakeChart()
	h := NewHandle(chart)
	ch := make(chan []byte, 1)

	var attempts int
	scheduler := Observe[samplePayload](
		NewSyncChannelWatcher(ch),
		sampleTransform,
		NewReconciler(),
		h,
		WithMiddleware(
			UseApply[samplePayload](testFlakyID, func(_ context.Context, req *Request[samplePayload]) (*Request[samplePayload], error) {
				attempts++
				if attempts < 3 {
					return req, errors.New("transient failure")
				}
				return req, nil
			}),
		),
		WithRetry[samplePayload](3),
	).SyncMode()

	ch <- []byte(`[{"name": "cpu", "values": [1, 2]}]`)
	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}

	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	order := chart.displayOrder()
	if len(order) != 1 || order[0] != "cpu" {
		t.Errorf("expected series cpu applied after retry, got %v", order)
	}
}

func TestWithMiddleware_UseTransform_TagsSeries(t *testing.T) {
	ctx := context.Background()
	chart := newFakeChart()
	h := NewHandle(chart)
	ch := make(chan []byte, 1)

	scheduler := Observe[samplePayload](
		NewSyncChannelWatcher(ch),
		sampleTransform,
		NewReconciler(),
		h,
		WithMiddleware(
			UseTransform[samplePayload](testTagID, func(_ context.Context, req *Request[samplePayload]) *Request[samplePayload] {
				tagged := make([]Series, 0, req.Next.Len())
				for _, id := range req.Next.IDs() {
					s, _ := req.Next.Get(id)
					s.Options = map[string]any{"smooth": true}
					tagged = append(tagged, s)
				}
				next, err := NewSeriesSet(tagged...)
				if err == nil {
					req.Next = next
				}
				return req
			}),
		),
	).SyncMode()

	ch <- []byte(`[{"name": "cpu", "values": [1, 2]}]`)
	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stored, ok := chart.storedSeries("cpu")
	if !ok {
		t.Fatal("expected series cpu applied")
	}
	if stored.Options["smooth"] != true {
		t.Errorf("expected middleware tag to reach the chart, got %v", stored.Options)
	}
	if last, _ := scheduler.Last().Get("cpu"); last.Options["smooth"] != true {
		t.Errorf("expected tagged set recorded as last applied, got %v", last.Options)
	}
}

func TestWithMiddleware_UseEffect_ObservesCycles(t *testing.T) {
	ctx := context.Background()
	h := NewHandle(newFakeChart())
	ch := make(chan []byte, 2)

	var cycles int
	scheduler := Observe[samplePayload](
		NewSyncChannelWatcher(ch),
		sampleTransform,
		NewReconciler(),
		h,
		WithMiddleware(
			UseEffect[samplePayload](testCountID, func(_ context.Context, _ *Request[samplePayload]) error {
				cycles++
				return nil
			}),
		),
	).SyncMode()

	ch <- []byte(`[{"name": "cpu", "values": [1]}]`)
	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ch <- []byte(`[{"name": "cpu", "values": [1, 2]}]`)
	scheduler.Process(ctx)

	if cycles != 2 {
		t.Errorf("expected effect on both cycles, got %d", cycles)
	}
}

func TestUseRateLimit_PassesWithinBurst(t *testing.T) {
	ctx := context.Background()
	chart := newFakeChart()
	h := NewHandle(chart)
	ch := make(chan []byte, 1)

	scheduler := Observe[samplePayload](
		NewSyncChannelWatcher(ch),
		sampleTransform,
		NewReconciler(),
		h,
		WithMiddleware(
			UseRateLimit[samplePayload](100, 10,
				UseTransform[samplePayload](testPassID, func(_ context.Context, req *Request[samplePayload]) *Request[samplePayload] {
					return req
				}),
			),
		),
	).SyncMode()

	ch <- []byte(`[{"name": "cpu", "values": [1]}]`)
	start := time.Now()
	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("expected immediate processing within burst, took %v", elapsed)
	}
	if len(chart.displayOrder()) != 1 {
		t.Errorf("expected series applied, got %v", chart.displayOrder())
	}
}

func TestWithErrorHandler_ObservesApplyErrors(t *testing.T) {
	ctx := context.Background()
	h := NewHandle(newFakeChart())
	ch := make(chan []byte, 2)

	var observed error
	errorHandler := pipz.Effect(testObserveID, func(_ context.Context, err *pipz.Error[*Request[samplePayload]]) error {
		observed = err.Err
		return nil
	})

	scheduler := Observe[samplePayload](
		NewSyncChannelWatcher(ch),
		sampleTransform,
		NewReconciler(),
		h,
		WithErrorHandler[samplePayload](errorHandler),
	).SyncMode()

	ch <- []byte(`[{"name": "cpu", "values": [1]}]`)
	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	h.Destroy()
	ch <- []byte(`[{"name": "cpu", "values": [1, 2]}]`)
	scheduler.Process(ctx)

	if !errors.Is(observed, ErrHandleDestroyed) {
		t.Errorf("expected handler to observe destroyed-handle error, got %v", observed)
	}
}

func TestWithTimeout_EnforcesDeadline(t *testing.T) {
	ctx := context.Background()
	h := NewHandle(newFakeChart())
	ch := make(chan []byte, 1)

	scheduler := Observe[samplePayload](
		NewSyncChannelWatcher(ch),
		sampleTransform,
		NewReconciler(),
		h,
		WithMiddleware(
			UseApply[samplePayload](testFlakyID, func(ctx context.Context, req *Request[samplePayload]) (*Request[samplePayload], error) {
				select {
				case <-time.After(1 * time.Second):
					return req, nil
				case <-ctx.Done():
					return req, ctx.Err()
				}
			}),
		),
		WithTimeout[samplePayload](20*time.Millisecond),
	).SyncMode()

	ch <- []byte(`[{"name": "cpu", "values": [1]}]`)
	if err := scheduler.Start(ctx); err == nil {
		t.Fatal("expected timeout error")
	}
	if scheduler.LastError() == nil {
		t.Error("expected timeout recorded as cycle error")
	}
}
