package model

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Candle is one OHLC bar of an active.
type Candle struct {
	ActiveID   int             // Instrument id (e.g., 76 = EURUSD-OTC)
	Size       int             // Candle size in seconds
	ID         int64           // Server candle sequence id
	FromTS     int64           // Candle open time (µs since epoch)
	ToTS       int64           // Candle close time (µs since epoch)
	Open       decimal.Decimal // Opening price
	Close      decimal.Decimal // Closing (or latest) price
	Min        decimal.Decimal // Lowest price
	Max        decimal.Decimal // Highest price
	Volume     decimal.Decimal // Traded volume
	ReceivedAt int64           // Gatherer receive timestamp (µs since epoch)
}

// CandleKey identifies a candle for upserts.
type CandleKey struct {
	ActiveID int
	Size     int
	FromTS   int64
}

// Key returns the candle's identity.
func (c Candle) Key() CandleKey {
	return CandleKey{ActiveID: c.ActiveID, Size: c.Size, FromTS: c.FromTS}
}

var errInvalidCandle = errors.New("invalid candle")

// Validate checks the candle is internally consistent.
func (c Candle) Validate() error {
	switch {
	case c.ActiveID <= 0:
		return fmt.Errorf("%w: active_id %d", errInvalidCandle, c.ActiveID)
	case c.Size <= 0:
		return fmt.Errorf("%w: size %d", errInvalidCandle, c.Size)
	case c.ToTS < c.FromTS:
		return fmt.Errorf("%w: to %d before from %d", errInvalidCandle, c.ToTS, c.FromTS)
	case c.Min.GreaterThan(c.Max):
		return fmt.Errorf("%w: min %s above max %s", errInvalidCandle, c.Min, c.Max)
	}

	for _, p := range []decimal.Decimal{c.Open, c.Close} {
		if p.LessThan(c.Min) || p.GreaterThan(c.Max) {
			return fmt.Errorf("%w: price %s outside [%s, %s]", errInvalidCandle, p, c.Min, c.Max)
		}
	}
	return nil
}
