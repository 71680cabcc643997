package workers

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPoolRunsJobs(t *testing.T) {
	p := NewPool(zap.NewNop(), DefaultConfig())
	defer p.Stop()

	var ran atomic.Int64
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("job-%d", i)
		if err := p.Submit(id, func(context.Context) error {
			ran.Add(1)
			return nil
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	waitFor(t, func() bool { return p.GetStats().Completed == 5 })
	if ran.Load() != 5 {
		t.Errorf("ran %d jobs, want 5", ran.Load())
	}

	rec, ok := p.Job("job-0")
	if !ok {
		t.Fatal("job-0 record missing")
	}
	if rec.Status != StatusDone || rec.StartedAt == nil || rec.FinishedAt == nil {
		t.Errorf("record = %+v, want done with timestamps", rec)
	}
}

func TestPoolJobFailureAndPanic(t *testing.T) {
	p := NewPool(zap.NewNop(), DefaultConfig())
	defer p.Stop()

	if err := p.Submit("fails", func(context.Context) error {
		return fmt.Errorf("bad input")
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := p.Submit("panics", func(context.Context) error {
		panic("boom")
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	waitFor(t, func() bool { return p.GetStats().Failed == 2 })

	rec, _ := p.Job("fails")
	if rec.Status != StatusFailed || rec.Error != "bad input" {
		t.Errorf("record = %+v, want failed with error", rec)
	}
	rec, _ = p.Job("panics")
	if rec.Status != StatusFailed {
		t.Errorf("panicking job status = %s, want failed", rec.Status)
	}
	if p.GetStats().Recovered != 1 {
		t.Errorf("recovered = %d, want 1", p.GetStats().Recovered)
	}
}

func TestPoolDuplicateAndFullQueue(t *testing.T) {
	p := NewPool(zap.NewNop(), Config{Workers: 1, QueueSize: 1, ShutdownTimeout: time.Second})
	defer p.Stop()

	block := make(chan struct{})
	if err := p.Submit("blocker", func(context.Context) error {
		<-block
		return nil
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	waitFor(t, func() bool {
		rec, _ := p.Job("blocker")
		return rec.Status == StatusRunning
	})

	if err := p.Submit("blocker", func(context.Context) error { return nil }); err == nil {
		t.Error("expected duplicate ID error")
	}

	// Fill the single queue slot, then overflow.
	if err := p.Submit("queued", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Submit queued: %v", err)
	}
	err := p.Submit("overflow", func(context.Context) error { return nil })
	if err == nil {
		t.Error("expected queue-full error")
	}
	if _, ok := p.Job("overflow"); ok {
		t.Error("rejected job should leave no record")
	}

	close(block)
}

func TestPoolJobTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JobTimeout = 20 * time.Millisecond
	p := NewPool(zap.NewNop(), cfg)
	defer p.Stop()

	if err := p.Submit("slow", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	waitFor(t, func() bool {
		rec, _ := p.Job("slow")
		return rec.Status == StatusFailed
	})
}
