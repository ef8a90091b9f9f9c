package scheduler

import (
	"testing"
	"time"
)

func TestQueueOrdersByPriorityThenFIFO(t *testing.T) {
	q := newJobQueue()
	q.Enqueue("low-1", 5)
	q.Enqueue("high", 1)
	q.Enqueue("low-2", 5)
	q.Enqueue("mid", 3)

	want := []string{"high", "mid", "low-1", "low-2"}
	for _, expected := range want {
		got, ok := q.Dequeue()
		if !ok {
			t.Fatal("queue drained early")
		}
		if got != expected {
			t.Errorf("dequeued %q, want %q", got, expected)
		}
	}
	if q.Len() != 0 {
		t.Errorf("queue not empty: %d", q.Len())
	}
}

func TestQueueBlocksUntilEnqueue(t *testing.T) {
	q := newJobQueue()
	got := make(chan string, 1)
	go func() {
		id, ok := q.Dequeue()
		if ok {
			got <- id
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Enqueue("late", 0)

	select {
	case id := <-got:
		if id != "late" {
			t.Errorf("dequeued %q, want late", id)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not wake up")
	}
}

func TestQueueCloseWakesConsumers(t *testing.T) {
	q := newJobQueue()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Dequeue()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("expected closed-and-drained signal")
		}
	case <-time.After(time.Second):
		t.Fatal("consumer not woken by close")
	}

	if q.Enqueue("x", 0) {
		t.Error("enqueue after close must be rejected")
	}
}

func TestQueueDrainsAfterClose(t *testing.T) {
	q := newJobQueue()
	q.Enqueue("a", 0)
	q.Enqueue("b", 0)
	q.Close()

	if id, ok := q.Dequeue(); !ok || id != "a" {
		t.Errorf("got %q/%v, want a", id, ok)
	}
	if id, ok := q.Dequeue(); !ok || id != "b" {
		t.Errorf("got %q/%v, want b", id, ok)
	}
	if _, ok := q.Dequeue(); ok {
		t.Error("expected drained queue to report closed")
	}
}
