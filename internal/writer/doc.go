// Package writer implements batch writers for TimescaleDB.
//
// The candle writer upserts on (active_id, size, from_ts): history
// backfills insert closed candles, and live candle-generated updates
// overwrite the still-open candle until it closes. Updates to the same
// candle within one batch are coalesced so only the latest is written.
package writer
