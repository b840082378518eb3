package taskpool

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSubmitExecutesTasks(t *testing.T) {
	p := New(Config{Workers: 2, QueueSize: 16}, nil, testLogger())
	defer p.Stop()

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		if err := p.Submit(func() {
			defer wg.Done()
			ran.Add(1)
		}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	wg.Wait()
	if got := ran.Load(); got != 10 {
		t.Errorf("ran = %d, want 10", got)
	}
}

func TestStopDrainsQueue(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 16}, nil, testLogger())

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		if err := p.Submit(func() {
			time.Sleep(time.Millisecond)
			ran.Add(1)
		}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	p.Stop()
	if got := ran.Load(); got != 5 {
		t.Errorf("ran = %d after Stop, want 5 (queued tasks drained)", got)
	}

	// Idempotent.
	p.Stop()

	if err := p.Submit(func() {}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("submit after stop = %v, want ErrPoolClosed", err)
	}
}

func TestSubmitNeverBlocksWhenFull(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1}, nil, testLogger())
	defer p.Stop()

	block := make(chan struct{})
	defer close(block)

	// Occupy the single worker, then fill the one queue slot.
	if err := p.Submit(func() { <-block }); err != nil {
		t.Fatalf("submit blocker: %v", err)
	}
	// The worker may not have picked up the blocker yet; keep feeding
	// until the queue itself is full.
	deadline := time.After(time.Second)
	for {
		err := p.Submit(func() { <-block })
		if errors.Is(err, ErrQueueFull) {
			return // saturated without blocking, as intended
		}
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		select {
		case <-deadline:
			t.Fatal("queue never reported full")
		default:
		}
	}
}

func TestPanicDoesNotKillWorker(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 16}, nil, testLogger())
	defer p.Stop()

	done := make(chan struct{})
	if err := p.Submit(func() { panic("boom") }); err != nil {
		t.Fatalf("submit panicking task: %v", err)
	}
	if err := p.Submit(func() { close(done) }); err != nil {
		t.Fatalf("submit follow-up task: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive task panic")
	}
}
