package correlation

import "errors"

// Errors
var (
	// ErrNotConnected is returned by Send, WaitFor and Subscribe outside the Connected state.
	ErrNotConnected = errors.New("not connected")

	// ErrDuplicateCorrelationID means an id generator produced an id that is still pending.
	ErrDuplicateCorrelationID = errors.New("duplicate correlation id")

	// ErrTimeout is delivered when a waiter's deadline elapses before a match.
	ErrTimeout = errors.New("correlation timeout")

	// ErrConnectionClosed is delivered to every waiter drained on disconnect.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrTransportUnavailable means the transport had no live connection for a write.
	ErrTransportUnavailable = errors.New("transport unavailable")

	// ErrConnect wraps failures of Transport.Connect.
	ErrConnect = errors.New("connect failed")

	// ErrWrite wraps failures of Transport.WriteFrame.
	ErrWrite = errors.New("write failed")

	// ErrRead wraps failures of Transport.ReadFrame that ended a connection.
	ErrRead = errors.New("read failed")

	// ErrNoReplyExpected is returned by Await for fire-and-forget handles.
	ErrNoReplyExpected = errors.New("request expects no reply")

	// ErrSubscriptionClosed is returned by Subscription.Next after unsubscribe or disconnect.
	ErrSubscriptionClosed = errors.New("subscription closed")
)

// ErrMalformedFrame is returned by a Codec for frames that are not envelopes.
var ErrMalformedFrame = errors.New("malformed frame")
