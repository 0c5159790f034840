package correlation

import "context"

// Transport is a single framed, bidirectional connection.
//
// WriteFrame may be called from many goroutines; implementations serialize
// writes. ReadFrame is only ever called from the client's reader goroutine.
type Transport interface {
	// Connect opens a new connection lifetime.
	Connect(ctx context.Context) error

	// WriteFrame writes one complete frame.
	WriteFrame(ctx context.Context, data []byte) error

	// ReadFrame blocks for the next inbound frame. It fails with an error
	// wrapping ErrConnectionClosed after a normal close.
	ReadFrame(ctx context.Context) ([]byte, error)

	// OnDisconnect registers fn to be called at most once per connection
	// lifetime with the cause of the disconnect.
	OnDisconnect(fn func(err error))

	// Close ends the current connection lifetime.
	Close() error
}
