package queue

import (
	"context"
	"testing"
	"time"
)

func TestMemoryQueue_FIFOOrder(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	for _, s := range []string{"e1", "e2", "e3"} {
		if err := q.Push(ctx, []byte(s)); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	for _, want := range []string{"e1", "e2", "e3"} {
		got, err := q.Pop(ctx, time.Second)
		if err != nil {
			t.Fatalf("pop: %v", err)
		}
		if string(got) != want {
			t.Errorf("expected %s, got %s", want, got)
		}
	}
}

func TestMemoryQueue_PopTimeout(t *testing.T) {
	q := NewMemoryQueue()
	start := time.Now()
	got, err := q.Pop(context.Background(), 20*time.Millisecond)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil on timeout, got %q", got)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("pop returned before timeout elapsed")
	}
}

func TestMemoryQueue_PopWakesOnPush(t *testing.T) {
	q := NewMemoryQueue()
	done := make(chan []byte, 1)
	go func() {
		item, _ := q.Pop(context.Background(), 5*time.Second)
		done <- item
	}()

	time.Sleep(10 * time.Millisecond)
	if err := q.Push(context.Background(), []byte("wake")); err != nil {
		t.Fatal(err)
	}

	select {
	case item := <-done:
		if string(item) != "wake" {
			t.Errorf("expected wake, got %q", item)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked pop did not wake on push")
	}
}

func TestMemoryQueue_Len(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	_ = q.Push(ctx, []byte("a"))
	_ = q.Push(ctx, []byte("b"))

	n, err := q.Len(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected len 2, got %d", n)
	}
}

func TestMemoryQueue_Closed(t *testing.T) {
	q := NewMemoryQueue()
	_ = q.Close()
	if err := q.Push(context.Background(), []byte("x")); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := q.Pop(context.Background(), time.Millisecond); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestFromDSN_Memory(t *testing.T) {
	q, err := FromDSN("memory://", "test", nil)
	if err != nil {
		t.Fatalf("memory dsn: %v", err)
	}
	if _, ok := q.(*MemoryQueue); !ok {
		t.Errorf("expected *MemoryQueue, got %T", q)
	}
}

func TestFromDSN_Redis(t *testing.T) {
	q, err := FromDSN("redis://localhost:6379/0", "test", nil)
	if err != nil {
		t.Fatalf("redis dsn: %v", err)
	}
	if _, ok := q.(*RedisQueue); !ok {
		t.Errorf("expected *RedisQueue, got %T", q)
	}
}

func TestFromDSN_UnknownScheme(t *testing.T) {
	if _, err := FromDSN("kafka://broker:9092", "test", nil); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestFromDSN_Empty(t *testing.T) {
	if _, err := FromDSN("", "test", nil); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}
