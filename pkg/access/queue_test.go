package access

import "testing"

func TestQueuePushDrainOrder(t *testing.T) {
	q := newQueue()
	for i := 0; i < 5; i++ {
		q.push(Access{URI: "/a"})
	}

	batch, closed := q.drain(3)
	if len(batch) != 3 {
		t.Fatalf("expected 3 items, got %d", len(batch))
	}
	if closed {
		t.Fatal("queue should not report closed")
	}

	batch, closed = q.drain(10)
	if len(batch) != 2 {
		t.Fatalf("expected remaining 2 items, got %d", len(batch))
	}
	if closed {
		t.Fatal("queue should not report closed")
	}
}

func TestQueueCloseWithEmptyDrainSignalsClosed(t *testing.T) {
	q := newQueue()
	q.push(Access{URI: "/a"})
	q.close()

	batch, closed := q.drain(10)
	if len(batch) != 1 {
		t.Fatalf("expected the one pending item to drain first, got %d", len(batch))
	}
	if closed {
		t.Fatal("expected closed=false while items remained")
	}

	batch, closed = q.drain(10)
	if len(batch) != 0 || !closed {
		t.Fatalf("expected empty batch and closed=true, got %d items closed=%v", len(batch), closed)
	}
}

func TestQueuePushAfterCloseIsDropped(t *testing.T) {
	q := newQueue()
	q.close()
	q.push(Access{URI: "/dropped"})

	batch, closed := q.drain(10)
	if len(batch) != 0 || !closed {
		t.Fatalf("expected push after close to be dropped, got %d items closed=%v", len(batch), closed)
	}
}
