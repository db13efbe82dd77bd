package queue

import (
	"sync"
	"testing"
	"time"
)

func TestQueueOrder(t *testing.T) {
	mq := New(0)
	var got []int
	for i := range 100 {
		if err := mq.Push(func() { got = append(got, i) }); err != nil {
			t.Fatal(err)
		}
	}
	mq.Close()
	<-mq.Done()
	if len(got) != 100 {
		t.Fatalf("expected 100 tasks, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestQueuePostFromTask(t *testing.T) {
	mq := New(0)
	defer mq.Close()
	done := make(chan []string, 1)
	var trace []string
	mq.Push(func() {
		trace = append(trace, "first")
		mq.Push(func() {
			trace = append(trace, "posted")
			done <- trace
		})
		trace = append(trace, "first-end")
	})
	select {
	case trace := <-done:
		if len(trace) != 3 || trace[1] != "first-end" {
			t.Errorf("posted task must run after the poster returns: %v", trace)
		}
	case <-time.After(time.Second):
		t.Fatal("posted task never ran")
	}
}

func TestQueueJump(t *testing.T) {
	mq := New(0)
	block := make(chan struct{})
	var mu sync.Mutex
	var got []string
	record := func(s string) func() {
		return func() {
			mu.Lock()
			got = append(got, s)
			mu.Unlock()
		}
	}
	mq.Push(func() { <-block })
	mq.Push(record("task"))
	mq.Jump(record("jump"))
	close(block)
	mq.Close()
	<-mq.Done()
	if len(got) != 2 || got[0] != "jump" {
		t.Errorf("jump should run first: %v", got)
	}
}

func TestQueueLimitAndClose(t *testing.T) {
	mq := New(1)
	block := make(chan struct{})
	mq.Push(func() { <-block })
	// the runner may not have picked up the blocking task yet
	for mq.Len() != 0 {
		time.Sleep(time.Millisecond)
	}
	if err := mq.Push(func() {}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mq.Push(func() {}); err != ErrQueueIsFull {
		t.Errorf("expected ErrQueueIsFull, got %v", err)
	}
	close(block)
	mq.Close()
	if err := mq.Push(func() {}); err != ErrQueueIsStoped {
		t.Errorf("expected ErrQueueIsStoped, got %v", err)
	}
	<-mq.Done()
}

func BenchmarkPush(b *testing.B) {
	mq := New(0)
	defer mq.Close()
	for b.Loop() {
		mq.Push(func() {})
	}
}
