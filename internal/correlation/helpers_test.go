package correlation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeTransport is an in-memory Transport. Frames pushed with push are read
// by the client; frames the client writes arrive on writes.
type fakeTransport struct {
	mu           sync.Mutex
	connected    bool
	connectErr   error
	writeErr     error
	inbound      chan []byte
	closed       chan struct{}
	closeErr     error
	fired        bool
	connects     int
	onDisconnect func(error)

	writes chan []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{writes: make(chan []byte, 64)}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	f.fired = false
	f.closeErr = nil
	f.inbound = make(chan []byte, 64)
	f.closed = make(chan struct{})
	f.connects++
	return nil
}

func (f *fakeTransport) WriteFrame(ctx context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return ErrTransportUnavailable
	}
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes <- data
	return nil
}

func (f *fakeTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	inbound, closed := f.inbound, f.closed
	f.mu.Unlock()

	select {
	case data := <-inbound:
		return data, nil
	case <-closed:
		f.mu.Lock()
		err := f.closeErr
		f.mu.Unlock()
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) OnDisconnect(fn func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDisconnect = fn
}

func (f *fakeTransport) Close() error {
	f.end(ErrConnectionClosed)
	return nil
}

// drop simulates the server going away with cause.
func (f *fakeTransport) drop(cause error) {
	f.end(cause)
}

func (f *fakeTransport) end(cause error) {
	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return
	}
	f.connected = false
	f.closeErr = cause
	close(f.closed)

	var cb func(error)
	if !f.fired {
		f.fired = true
		cb = f.onDisconnect
	}
	f.mu.Unlock()

	if cb != nil {
		cb(cause)
	}
}

// push queues an inbound frame.
func (f *fakeTransport) push(t *testing.T, kind, id string, msg any) {
	t.Helper()

	f.mu.Lock()
	inbound := f.inbound
	f.mu.Unlock()

	inbound <- frame(t, kind, id, msg)
}

// nextWrite returns the next frame the client wrote, decoded.
func (f *fakeTransport) nextWrite(t *testing.T) Envelope {
	t.Helper()

	select {
	case data := <-f.writes:
		env, err := JSONCodec{}.Decode(data)
		if err != nil {
			t.Fatalf("decode written frame: %v", err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a written frame")
		return Envelope{}
	}
}

func (f *fakeTransport) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

// frame builds a raw wire frame.
func frame(t *testing.T, kind, id string, msg any) []byte {
	t.Helper()

	wire := map[string]any{"name": kind}
	if id != "" {
		wire["request_id"] = id
	}
	if msg != nil {
		wire["msg"] = msg
	}
	data, err := json.Marshal(wire)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	return data
}

// envelope builds a decoded inbound envelope.
func envelope(t *testing.T, kind, id string, msg any) Envelope {
	t.Helper()

	env, err := JSONCodec{}.Decode(frame(t, kind, id, msg))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

// newConnectedClient returns a connected client with sequential ids r1, r2, ...
func newConnectedClient(t *testing.T, cfg Config) (*Client, *fakeTransport) {
	t.Helper()

	tr := newFakeTransport()
	c := New(tr, cfg, WithIDGenerator(NewSequenceGenerator("r")))
	if err := c.SubscribeRaw(context.Background()); err != nil {
		t.Fatalf("SubscribeRaw failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, tr
}

// eventually polls cond until it holds or a second passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// recv reads a result slot with a timeout.
func recv(t *testing.T, slot <-chan Result) Result {
	t.Helper()

	select {
	case r := <-slot:
		return r
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for result")
		return Result{}
	}
}

// assertEmpty fails if slot already holds a result.
func assertEmpty(t *testing.T, slot <-chan Result) {
	t.Helper()

	select {
	case r := <-slot:
		t.Fatalf("unexpected result: %+v", r)
	default:
	}
}

func payloadString(t *testing.T, env Envelope, key string) string {
	t.Helper()

	v, ok := env.Field(key)
	if !ok {
		t.Fatalf("payload of %s has no %q", env.Kind, key)
	}
	return fmt.Sprint(v)
}

var errServerGone = errors.New("server went away")
