// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Connection state and inbound frame rates
//   - Pending request and wait predicate counts
//   - Waiter outcomes (resolved, timeout, closed, cancelled)
//   - Reply latency per message kind
//   - Candle writer throughput and errors
package metrics
