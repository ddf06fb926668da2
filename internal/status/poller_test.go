package status

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/exeteres/wg-relay/internal/model"
)

type fakeSource struct {
	calls atomic.Int32
	next  func(n int32) model.ConnectionStatus
}

func (f *fakeSource) Status(context.Context) model.ConnectionStatus {
	n := f.calls.Add(1)
	if f.next != nil {
		return f.next(n)
	}
	return model.ConnectionStatus{Connected: true}
}

func waitFor(t *testing.T, ch <-chan model.ConnectionStatus) model.ConnectionStatus {
	t.Helper()
	select {
	case st := <-ch:
		return st
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for status")
		return model.ConnectionStatus{}
	}
}

func TestPoller_ImmediateThenPeriodic(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	p := New(src, nil)
	got := make(chan model.ConnectionStatus, 16)

	h := p.Start(context.Background(), 10*time.Millisecond, func(st model.ConnectionStatus) { got <- st })
	defer p.Stop(h)

	for i := 0; i < 3; i++ {
		if st := waitFor(t, got); !st.Connected {
			t.Fatalf("unexpected status: %#v", st)
		}
	}
}

func TestPoller_FailedTickDoesNotStopPolling(t *testing.T) {
	t.Parallel()

	src := &fakeSource{next: func(n int32) model.ConnectionStatus {
		if n == 1 {
			return model.ConnectionStatus{Error: "Failed to parse status"}
		}
		return model.ConnectionStatus{Connected: true}
	}}
	p := New(src, nil)
	got := make(chan model.ConnectionStatus, 16)

	h := p.Start(context.Background(), 10*time.Millisecond, func(st model.ConnectionStatus) { got <- st })
	defer p.Stop(h)

	if st := waitFor(t, got); st.Connected || st.Error != "Failed to parse status" {
		t.Fatalf("unexpected first status: %#v", st)
	}
	if st := waitFor(t, got); !st.Connected {
		t.Fatalf("unexpected second status: %#v", st)
	}
}

func TestPoller_StopEndsCallbacks(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	p := New(src, nil)
	var delivered atomic.Int32

	first := make(chan model.ConnectionStatus, 1)
	h := p.Start(context.Background(), 5*time.Millisecond, func(st model.ConnectionStatus) {
		if delivered.Add(1) == 1 {
			first <- st
		}
	})
	waitFor(t, first)
	p.Stop(h)

	after := delivered.Load()
	time.Sleep(30 * time.Millisecond)
	if delivered.Load() != after {
		t.Fatalf("callback ran after Stop")
	}
	p.Stop(h)
}

func TestPoller_StartReplacesPrevious(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	p := New(src, nil)

	var mu sync.Mutex
	var oldAfterReplace int
	replaced := false

	oldSeen := make(chan model.ConnectionStatus, 1)
	h1 := p.Start(context.Background(), 5*time.Millisecond, func(st model.ConnectionStatus) {
		mu.Lock()
		defer mu.Unlock()
		if replaced {
			oldAfterReplace++
		}
		select {
		case oldSeen <- st:
		default:
		}
	})
	waitFor(t, oldSeen)

	newSeen := make(chan model.ConnectionStatus, 16)
	h2 := p.Start(context.Background(), 5*time.Millisecond, func(st model.ConnectionStatus) { newSeen <- st })
	mu.Lock()
	replaced = true
	mu.Unlock()
	defer p.Stop(h2)

	if h1.ID == h2.ID {
		t.Fatalf("expected distinct handle ids")
	}
	select {
	case <-h1.done:
	default:
		t.Fatalf("previous loop still running")
	}
	waitFor(t, newSeen)
	waitFor(t, newSeen)

	mu.Lock()
	defer mu.Unlock()
	if oldAfterReplace != 0 {
		t.Fatalf("previous callback ran %d times after replacement", oldAfterReplace)
	}
}

func TestPoller_RefreshDeliversToActiveCallback(t *testing.T) {
	t.Parallel()

	src := &fakeSource{next: func(n int32) model.ConnectionStatus {
		return model.ConnectionStatus{Connected: true, CurrentServer: "n" + string(rune('0'+n))}
	}}
	p := New(src, nil)
	got := make(chan model.ConnectionStatus, 16)

	h := p.Start(context.Background(), time.Hour, func(st model.ConnectionStatus) { got <- st })
	defer p.Stop(h)
	waitFor(t, got)

	st := p.Refresh(context.Background())
	if delivered := waitFor(t, got); delivered != st {
		t.Fatalf("unexpected delivered status: %#v vs %#v", delivered, st)
	}
	if latest, ok := p.Latest(); !ok || latest != st {
		t.Fatalf("unexpected latest: %#v", latest)
	}
}

func TestPoller_ContextCancelStops(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	p := New(&fakeSource{}, nil)
	h := p.Start(ctx, 5*time.Millisecond, nil)
	cancel()

	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("loop did not exit on context cancel")
	}
}
