package pacer

import (
	"sync"
	"testing"
	"time"
)

func TestDispatchQueueOrder(t *testing.T) {
	t.Parallel()

	q := NewDispatchQueue()
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		q.Submit(func() { got = append(got, i) })
	}
	q.Close()

	if len(got) != 100 {
		t.Fatalf("ran %d functions, want 100", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("position %d ran %d", i, v)
		}
	}
}

func TestDispatchQueueRemovePending(t *testing.T) {
	t.Parallel()

	q := NewDispatchQueue()
	release := make(chan struct{})
	started := make(chan struct{})
	q.Submit(func() {
		close(started)
		<-release
	})
	<-started

	var mu sync.Mutex
	ran := 0
	for i := 0; i < 10; i++ {
		q.Submit(func() {
			mu.Lock()
			ran++
			mu.Unlock()
		})
	}
	if q.Pending() != 10 {
		t.Fatalf("Pending = %d, want 10", q.Pending())
	}

	q.RemovePending()
	close(release)
	q.Close()

	if ran != 0 {
		t.Errorf("%d removed functions ran", ran)
	}
}

func TestDispatchQueueSubmitAfterClose(t *testing.T) {
	t.Parallel()

	q := NewDispatchQueue()
	q.Close()
	if q.Submit(func() {}) {
		t.Error("Submit succeeded after Close")
	}

	done := make(chan struct{})
	go func() {
		q.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second Close blocked")
	}
}
