// Package model defines shared data types used across the IQ Option data gatherer.
//
// Conventions:
//   - Prices: decimal.Decimal, exactly as quoted by the server
//   - Timestamps: int64 microseconds since Unix epoch
//   - Candle sizes: seconds (60 = one-minute candles)
package model
