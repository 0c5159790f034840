package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestGrowableBuffer_FIFOAcrossGrowth(t *testing.T) {
	buf := NewGrowableBuffer[int](4)

	for i := 0; i < 100; i++ {
		if !buf.Send(i) {
			t.Fatalf("Send(%d) returned false", i)
		}
	}

	stats := buf.Stats()
	if stats.Count != 100 {
		t.Errorf("Count = %d, want 100", stats.Count)
	}
	if stats.ResizeCount < 3 {
		t.Errorf("ResizeCount = %d, expected at least 3 resizes", stats.ResizeCount)
	}

	for i := 0; i < 100; i++ {
		val, ok := buf.TryReceive()
		if !ok {
			t.Fatalf("TryReceive() returned false for item %d", i)
		}
		if val != i {
			t.Errorf("received %d, want %d", val, i)
		}
	}
}

func TestGrowableBuffer_GrowAt70Percent(t *testing.T) {
	buf := NewGrowableBuffer[int](10)

	for i := 0; i < 7; i++ {
		buf.Send(i)
	}

	stats := buf.Stats()
	if stats.Capacity != 20 {
		t.Errorf("Capacity = %d, want 20 after 70%% fill", stats.Capacity)
	}
	if stats.ResizeCount != 1 {
		t.Errorf("ResizeCount = %d, want 1", stats.ResizeCount)
	}
}

func TestGrowableBuffer_WrapAround(t *testing.T) {
	buf := NewGrowableBuffer[int](5)

	buf.Send(1)
	buf.Send(2)
	buf.Send(3)
	buf.TryReceive()
	buf.TryReceive()

	// Wraps, then grows while wrapped
	for _, v := range []int{4, 5, 6, 7, 8} {
		buf.Send(v)
	}

	for _, want := range []int{3, 4, 5, 6, 7, 8} {
		got, ok := buf.TryReceive()
		if !ok {
			t.Fatalf("TryReceive failed, expected %d", want)
		}
		if got != want {
			t.Errorf("got %d, want %d", got, want)
		}
	}
}

func TestGrowableBuffer_Close(t *testing.T) {
	buf := NewGrowableBuffer[int](10)
	buf.Send(1)
	buf.Close()

	if buf.Send(2) {
		t.Error("Send should return false after Close")
	}
	if !buf.Closed() {
		t.Error("Closed() = false after Close")
	}

	val, ok := buf.Receive()
	if !ok || val != 1 {
		t.Errorf("Receive() = %d, %v; want 1, true", val, ok)
	}
	if _, ok := buf.Receive(); ok {
		t.Error("Receive should return false when closed and empty")
	}
}

func TestGrowableBuffer_CloseUnblocksReceive(t *testing.T) {
	buf := NewGrowableBuffer[int](10)

	done := make(chan bool, 1)
	go func() {
		_, ok := buf.Receive()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	buf.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Receive should return false when closed and empty")
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock Receive")
	}
}

func TestGrowableBuffer_ReceiveContext(t *testing.T) {
	t.Run("returns buffered item", func(t *testing.T) {
		buf := NewGrowableBuffer[string](4)
		buf.Send("a")

		got, err := buf.ReceiveContext(context.Background())
		if err != nil {
			t.Fatalf("ReceiveContext failed: %v", err)
		}
		if got != "a" {
			t.Errorf("got %q, want %q", got, "a")
		}
	})

	t.Run("wakes on send", func(t *testing.T) {
		buf := NewGrowableBuffer[string](4)
		go func() {
			time.Sleep(10 * time.Millisecond)
			buf.Send("late")
		}()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		got, err := buf.ReceiveContext(ctx)
		if err != nil {
			t.Fatalf("ReceiveContext failed: %v", err)
		}
		if got != "late" {
			t.Errorf("got %q, want %q", got, "late")
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		buf := NewGrowableBuffer[string](4)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := buf.ReceiveContext(ctx)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want context.DeadlineExceeded", err)
		}
	})

	t.Run("closed", func(t *testing.T) {
		buf := NewGrowableBuffer[string](4)
		buf.Close()

		_, err := buf.ReceiveContext(context.Background())
		if !errors.Is(err, ErrClosed) {
			t.Errorf("err = %v, want ErrClosed", err)
		}
	})
}

func TestGrowableBuffer_DrainTo(t *testing.T) {
	buf := NewGrowableBuffer[int](10)
	for i := 0; i < 10; i++ {
		buf.Send(i)
	}

	items := buf.DrainTo(5)
	if len(items) != 5 {
		t.Fatalf("DrainTo(5) returned %d items, want 5", len(items))
	}
	for i, val := range items {
		if val != i {
			t.Errorf("items[%d] = %d, want %d", i, val, i)
		}
	}

	items = buf.DrainTo(0)
	if len(items) != 5 {
		t.Errorf("DrainTo(0) returned %d items, want 5", len(items))
	}
	if buf.DrainTo(0) != nil {
		t.Error("DrainTo on empty buffer should return nil")
	}
}

func TestGrowableBuffer_ConcurrentSendReceive(t *testing.T) {
	buf := NewGrowableBuffer[int](10)
	const numItems = 1000

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < numItems; i++ {
			buf.Send(i)
		}
	}()

	received := make([]int, 0, numItems)
	go func() {
		defer wg.Done()
		for i := 0; i < numItems; i++ {
			if val, ok := buf.Receive(); ok {
				received = append(received, val)
			}
		}
	}()

	wg.Wait()

	if len(received) != numItems {
		t.Fatalf("received %d items, want %d", len(received), numItems)
	}
	// Single producer, single consumer: order is preserved.
	for i, val := range received {
		if val != i {
			t.Fatalf("received[%d] = %d, want %d", i, val, i)
		}
	}

	stats := buf.Stats()
	if stats.Enqueued != numItems || stats.Dequeued != numItems {
		t.Errorf("stats = %+v, want %d enqueued and dequeued", stats, numItems)
	}
}

func TestNewGrowableBuffer_MinCapacity(t *testing.T) {
	if got := NewGrowableBuffer[int](0).Cap(); got != 1 {
		t.Errorf("Cap() = %d, want 1 for initial capacity 0", got)
	}
	if got := NewGrowableBuffer[int](-5).Cap(); got != 1 {
		t.Errorf("Cap() = %d, want 1 for negative initial capacity", got)
	}
}
