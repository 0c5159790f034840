// Package database provides connection pool management for TimescaleDB.
//
// The gatherer keeps candles in a single hypertable keyed by
// (active_id, size, from_ts), with timestamps in microseconds since epoch.
package database
