package correlation

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestPendingTable_Isolation(t *testing.T) {
	table := NewPendingTable(nil)

	slot1, err := table.Register("c1", "", time.Time{})
	if err != nil {
		t.Fatalf("Register c1: %v", err)
	}
	slot2, err := table.Register("c2", "", time.Time{})
	if err != nil {
		t.Fatalf("Register c2: %v", err)
	}

	if !table.Resolve("c1", envelope(t, "pong", "c1", map[string]int{"n": 1})) {
		t.Fatal("Resolve(c1) = false, want true")
	}

	r := recv(t, slot1)
	if r.Err != nil || r.Envelope.CorrelationID != "c1" {
		t.Errorf("slot1 = %+v, want c1 envelope", r)
	}
	assertEmpty(t, slot2)
	if table.Len() != 1 {
		t.Errorf("Len() = %d, want 1", table.Len())
	}
}

func TestPendingTable_ConcurrentIsolation(t *testing.T) {
	table := NewPendingTable(nil)
	const n = 100

	slots := make([]<-chan Result, n)
	for i := range n {
		slot, err := table.Register(fmt.Sprintf("c%d", i), "", time.Time{})
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
		slots[i] = slot
	}

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			table.Resolve(id, envelope(t, "reply", id, map[string]int{"i": i}))
		}(i)
	}
	wg.Wait()

	for i, slot := range slots {
		r := recv(t, slot)
		if want := fmt.Sprintf("c%d", i); r.Envelope.CorrelationID != want {
			t.Errorf("slot %d resolved with %q, want %q", i, r.Envelope.CorrelationID, want)
		}
	}
}

func TestPendingTable_ResolveOnce(t *testing.T) {
	table := NewPendingTable(nil)
	slot, _ := table.Register("c1", "", time.Time{})

	env := envelope(t, "pong", "c1", nil)
	if !table.Resolve("c1", env) {
		t.Fatal("first Resolve = false, want true")
	}
	if table.Resolve("c1", env) {
		t.Error("second Resolve = true, want false")
	}
	if table.Expire("c1") {
		t.Error("Expire after Resolve = true, want false")
	}

	recv(t, slot)
	assertEmpty(t, slot)
}

func TestPendingTable_DuplicateID(t *testing.T) {
	table := NewPendingTable(nil)
	if _, err := table.Register("c1", "", time.Time{}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, err := table.Register("c1", "", time.Time{})
	if !errors.Is(err, ErrDuplicateCorrelationID) {
		t.Errorf("err = %v, want ErrDuplicateCorrelationID", err)
	}
}

func TestPendingTable_DrainAllAsFailed(t *testing.T) {
	table := NewPendingTable(nil)
	const n = 5

	var slots []<-chan Result
	for i := range n {
		slot, _ := table.Register(fmt.Sprintf("c%d", i), "", time.Now().Add(time.Hour))
		slots = append(slots, slot)
	}

	if got := table.DrainAllAsFailed(ErrConnectionClosed); got != n {
		t.Errorf("DrainAllAsFailed = %d, want %d", got, n)
	}
	for _, slot := range slots {
		if r := recv(t, slot); !errors.Is(r.Err, ErrConnectionClosed) {
			t.Errorf("err = %v, want ErrConnectionClosed", r.Err)
		}
	}
	if table.Len() != 0 {
		t.Errorf("Len() = %d, want 0", table.Len())
	}
}

func TestPendingTable_TimerExpiry(t *testing.T) {
	table := NewPendingTable(nil)
	slot, _ := table.Register("c1", "", time.Now().Add(20*time.Millisecond))

	if r := recv(t, slot); !errors.Is(r.Err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", r.Err)
	}
	if table.Resolve("c1", envelope(t, "pong", "c1", nil)) {
		t.Error("Resolve after expiry = true, want false")
	}
}

func TestPendingTable_LateReplyIsTimeout(t *testing.T) {
	table := NewPendingTable(nil)
	slot, _ := table.Register("c1", "", time.Now().Add(-time.Millisecond))

	if table.Resolve("c1", envelope(t, "pong", "c1", nil)) {
		t.Error("Resolve past deadline = true, want false")
	}
	if r := recv(t, slot); !errors.Is(r.Err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", r.Err)
	}
	assertEmpty(t, slot)
}

func TestPendingTable_ExpectedKind(t *testing.T) {
	table := NewPendingTable(nil)
	slot, _ := table.Register("c1", "candles", time.Time{})

	if table.Resolve("c1", envelope(t, "result", "c1", map[string]bool{"success": true})) {
		t.Error("Resolve with wrong kind = true, want false")
	}
	assertEmpty(t, slot)
	if table.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", table.Len())
	}

	if !table.Resolve("c1", envelope(t, "candles", "c1", map[string]any{"candles": []any{}})) {
		t.Error("Resolve with expected kind = false, want true")
	}
	if r := recv(t, slot); r.Envelope.Kind != "candles" {
		t.Errorf("kind = %q, want candles", r.Envelope.Kind)
	}
}

func TestPendingTable_Cancel(t *testing.T) {
	table := NewPendingTable(nil)
	slot, _ := table.Register("c1", "", time.Now().Add(time.Hour))

	if !table.Cancel("c1") {
		t.Fatal("Cancel = false, want true")
	}
	if table.Cancel("c1") {
		t.Error("second Cancel = true, want false")
	}
	assertEmpty(t, slot)
	if table.Len() != 0 {
		t.Errorf("Len() = %d, want 0", table.Len())
	}
}
