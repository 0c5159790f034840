// Package correlation matches inbound websocket frames to the callers
// waiting for them.
//
// One Client owns one Transport connection. Callers:
//   - Send a request and Await the reply correlated by request id
//   - WaitFor the next message of a kind that satisfies a Matcher,
//     independent of who triggered it
//   - Subscribe to every matching push message
//
// A single Dispatcher goroutine reads frames in server order and resolves
// waiters through the PendingTable (O(1) by id) and the WaitRegistry (scan
// of one kind, registration order). Delivery is a non-blocking hand-off, so
// a slow caller never stalls the reader. Every waiter is resolved at most
// once: with a reply, ErrTimeout, or ErrConnectionClosed.
package correlation
