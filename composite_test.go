package chartsync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

// mergeReducer produces one series per feed, named by feed index.
func mergeReducer(_ context.Context, _, curr [][]float64, _ *Handle) (*SeriesSet, error) {
	series := make([]Series, 0, len(curr))
	for i, values := range curr {
		points := make([]Point, len(values))
		for j, v := range values {
			points[j] = Point{X: j, Y: v}
		}
		series = append(series, Series{ID: fmt.Sprintf("feed-%d", i), Points: points})
	}
	return NewSeriesSet(series...)
}

func TestCompose_MergesTwoFeeds(t *testing.T) {
	ctx := context.Background()
	chart := newFakeChart()
	h := NewHandle(chart)
	ch1 := make(chan []byte, 1)
	ch2 := make(chan []byte, 1)

	scheduler := Compose[[]float64](
		mergeReducer,
		[]Watcher{NewSyncChannelWatcher(ch1), NewSyncChannelWatcher(ch2)},
		NewReconciler(),
		h,
	).SyncMode()

	ch1 <- []byte(`[1, 2]`)
	ch2 <- []byte(`[3, 4]`)

	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	order := chart.displayOrder()
	if len(order) != 2 || order[0] != "feed-0" || order[1] != "feed-1" {
		t.Errorf("expected both feeds merged in order, got %v", order)
	}
	if scheduler.State() != StateLoaded {
		t.Errorf("expected loaded, got %s", scheduler.State())
	}
}

func TestCompose_OneFeedChangeTriggersMerge(t *testing.T) {
	ctx := context.Background()
	chart := newFakeChart()
	h := NewHandle(chart)
	ch1 := make(chan []byte, 2)
	ch2 := make(chan []byte, 1)

	scheduler := Compose[[]float64](
		mergeReducer,
		[]Watcher{NewSyncChannelWatcher(ch1), NewSyncChannelWatcher(ch2)},
		NewReconciler(),
		h,
	).SyncMode()

	ch1 <- []byte(`[1]`)
	ch2 <- []byte(`[2]`)
	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Only feed 0 changes; feed 1's last value is retained.
	ch1 <- []byte(`[9]`)
	if !scheduler.Process(ctx) {
		t.Fatal("expected a change to process")
	}

	s, ok := scheduler.Last().Get("feed-0")
	if !ok || s.Points[0].Y != 9.0 {
		t.Errorf("expected feed-0 updated, got %+v", s.Points)
	}
	if _, ok := scheduler.Last().Get("feed-1"); !ok {
		t.Error("expected feed-1 retained in merged set")
	}
}

func TestCompose_DecodeFailureIdentifiesFeed(t *testing.T) {
	ctx := context.Background()
	ch1 := make(chan []byte, 1)
	ch2 := make(chan []byte, 1)

	scheduler := Compose[[]float64](
		mergeReducer,
		[]Watcher{NewSyncChannelWatcher(ch1), NewSyncChannelWatcher(ch2)},
		NewReconciler(),
		NewHandle(newFakeChart()),
	).SyncMode()

	ch1 <- []byte(`[1]`)
	ch2 <- []byte(`{not json`)

	err := scheduler.Start(ctx)
	var terr *TransformError
	if !errors.As(err, &terr) {
		t.Fatalf("expected *TransformError, got %v", err)
	}
	if terr.Stage != "decode" {
		t.Errorf("expected decode stage, got %q", terr.Stage)
	}

	srcErrs := scheduler.SourceErrors()
	if len(srcErrs) != 1 || srcErrs[0].Index != 1 {
		t.Errorf("expected failure attributed to feed 1, got %+v", srcErrs)
	}
}

func TestCompose_EmptyFeedParksLoading(t *testing.T) {
	ctx := context.Background()
	chart := newFakeChart()
	h := NewHandle(chart)
	ch1 := make(chan []byte, 2)
	ch2 := make(chan []byte, 2)

	scheduler := Compose[[]float64](
		mergeReducer,
		[]Watcher{NewSyncChannelWatcher(ch1), NewSyncChannelWatcher(ch2)},
		NewReconciler(),
		h,
	).SyncMode().LoadingIndicator()

	ch1 <- []byte(`[1]`)
	ch2 <- []byte(``)
	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if scheduler.State() != StateLoading {
		t.Errorf("expected loading while a feed is empty, got %s", scheduler.State())
	}
	if chart.hideLoading != 0 {
		t.Error("indicator must stay visible while a feed is empty")
	}

	ch2 <- []byte(`[2]`)
	scheduler.Process(ctx)
	if scheduler.State() != StateLoaded {
		t.Errorf("expected loaded once all feeds carry data, got %s", scheduler.State())
	}
	if chart.hideLoading != 1 {
		t.Errorf("expected hideLoading exactly once, got %d", chart.hideLoading)
	}
}

func TestCompose_ReducerErrorRetainsPreviousState(t *testing.T) {
	ctx := context.Background()
	chart := newFakeChart()
	h := NewHandle(chart)
	ch1 := make(chan []byte, 2)

	calls := 0
	scheduler := Compose[[]float64](
		func(ctx context.Context, prev, curr [][]float64, chart *Handle) (*SeriesSet, error) {
			calls++
			if calls > 1 {
				return nil, fmt.Errorf("merge conflict")
			}
			return mergeReducer(ctx, prev, curr, chart)
		},
		[]Watcher{NewSyncChannelWatcher(ch1)},
		NewReconciler(),
		h,
	).SyncMode()

	ch1 <- []byte(`[1]`)
	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	before := len(chart.opLog())

	ch1 <- []byte(`[2]`)
	scheduler.Process(ctx)

	if got := len(chart.opLog()); got != before {
		t.Errorf("expected chart untouched by failed merge, extra ops %v", chart.opLog()[before:])
	}
	var terr *TransformError
	if !errors.As(scheduler.LastError(), &terr) {
		t.Fatalf("expected *TransformError, got %v", scheduler.LastError())
	}
}

func TestCompose_FeedsClosedAppliesFinalMerge(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockz.NewFakeClock()
	chart := newFakeChart()
	h := NewHandle(chart)
	ch1 := make(chan []byte, 2)
	ch2 := make(chan []byte, 1)

	stopped := make(chan State, 1)
	scheduler := Compose[[]float64](
		mergeReducer,
		[]Watcher{NewSyncChannelWatcher(ch1), NewSyncChannelWatcher(ch2)},
		NewReconciler(),
		h,
	).Clock(clock).OnStop(func(s State) { stopped <- s })

	ch1 <- []byte(`[1]`)
	ch2 <- []byte(`[2]`)
	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// A last change followed by every feed closing: the pending merge
	// must still apply even though the debounce timer never fires.
	ch1 <- []byte(`[9]`)
	time.Sleep(10 * time.Millisecond)
	close(ch1)
	close(ch2)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after all feeds closed")
	}
	time.Sleep(10 * time.Millisecond)

	s, ok := scheduler.Last().Get("feed-0")
	if !ok || s.Points[0].Y != 9.0 {
		t.Errorf("expected final change applied after feeds closed, got %+v", s.Points)
	}
}

func TestCompose_NoFeeds(t *testing.T) {
	scheduler := Compose[[]float64](
		mergeReducer,
		nil,
		NewReconciler(),
		NewHandle(newFakeChart()),
	).SyncMode()

	if err := scheduler.Start(context.Background()); err == nil {
		t.Error("expected error for zero feeds")
	}
}
