package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolProcessesTasks(t *testing.T) {
	var processed int64
	p, err := New(Config{Workers: 4, QueueSize: 16}, func(ctx context.Context, task *Task) error {
		atomic.AddInt64(&processed, 1)
		return nil
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	p.Start()

	for i := 0; i < 10; i++ {
		if err := p.Submit(&Task{ID: "t", Payload: []byte("x")}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	p.Stop()

	if got := atomic.LoadInt64(&processed); got != 10 {
		t.Errorf("processed = %d, want 10", got)
	}
	if stats := p.Stats(); stats.Completed != 10 {
		t.Errorf("completed = %d, want 10", stats.Completed)
	}
}

func TestPoolRetriesThenFails(t *testing.T) {
	var attempts int64
	p, err := New(Config{Workers: 1, QueueSize: 1, MaxRetries: 2, RetryDelay: time.Millisecond},
		func(ctx context.Context, task *Task) error {
			atomic.AddInt64(&attempts, 1)
			return errors.New("downstream unavailable")
		}, nil)
	if err != nil {
		t.Fatal(err)
	}
	p.Start()

	if err := p.Submit(&Task{ID: "t"}); err != nil {
		t.Fatal(err)
	}
	p.Stop()

	if got := atomic.LoadInt64(&attempts); got != 3 {
		t.Errorf("attempts = %d, want initial try plus 2 retries", got)
	}
	if stats := p.Stats(); stats.Failed != 1 {
		t.Errorf("failed = %d, want 1", stats.Failed)
	}
}

func TestSubmitFailsFastWhenFull(t *testing.T) {
	block := make(chan struct{})
	p, err := New(Config{Workers: 1, QueueSize: 1}, func(ctx context.Context, task *Task) error {
		<-block
		return nil
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	p.Start()
	defer func() {
		close(block)
		p.Stop()
	}()

	// First task occupies the worker, second fills the queue.
	p.Submit(&Task{ID: "a"})
	time.Sleep(10 * time.Millisecond)
	p.Submit(&Task{ID: "b"})

	if err := p.Submit(&Task{ID: "c"}); err == nil {
		t.Error("expected fail-fast error on a full queue")
	}
}

func TestNewRequiresWorkerFunc(t *testing.T) {
	if _, err := New(DefaultConfig(), nil, nil); err == nil {
		t.Error("expected error for nil worker func")
	}
}
