package iqoption

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/iqoption-data/internal/correlation"
	"github.com/rickgao/iqoption-data/internal/model"
)

// MaxCandlesPerRequest is the server's limit for one get-candles call.
const MaxCandlesPerRequest = 1000

// ErrNoCandles is returned when the server answers with an empty candle list.
var ErrNoCandles = errors.New("candles not found")

var errInvalidRequest = errors.New("invalid candles request")

// CandlesRequest asks for the Count candles of ActiveID with the given Size
// (seconds) ending at To.
type CandlesRequest struct {
	ActiveID int
	Size     int
	To       time.Time // Zero means now
	Count    int
}

func (r CandlesRequest) validate() error {
	switch {
	case r.ActiveID <= 0:
		return fmt.Errorf("%w: active_id %d", errInvalidRequest, r.ActiveID)
	case r.Size <= 0:
		return fmt.Errorf("%w: size %d", errInvalidRequest, r.Size)
	case r.Count <= 0 || r.Count > MaxCandlesPerRequest:
		return fmt.Errorf("%w: count %d not in [1, %d]", errInvalidRequest, r.Count, MaxCandlesPerRequest)
	}
	return nil
}

type getCandlesMessage struct {
	Name    string           `json:"name"`
	Version string           `json:"version"`
	Body    getCandlesParams `json:"body"`
}

type getCandlesParams struct {
	ActiveID int   `json:"active_id"`
	Size     int   `json:"size"`
	To       int64 `json:"to"`
	Count    int   `json:"count"`
}

type candlesReply struct {
	Candles []wireCandle `json:"candles"`
}

// wireCandle is a candle as the server encodes it. Times are unix seconds.
type wireCandle struct {
	ActiveID int             `json:"active_id"`
	Size     int             `json:"size"`
	ID       int64           `json:"id"`
	From     int64           `json:"from"`
	To       int64           `json:"to"`
	Open     decimal.Decimal `json:"open"`
	Close    decimal.Decimal `json:"close"`
	Min      decimal.Decimal `json:"min"`
	Max      decimal.Decimal `json:"max"`
	Volume   decimal.Decimal `json:"volume"`
}

func (w wireCandle) toModel(receivedAt time.Time) model.Candle {
	return model.Candle{
		ActiveID:   w.ActiveID,
		Size:       w.Size,
		ID:         w.ID,
		FromTS:     w.From * int64(time.Second/time.Microsecond),
		ToTS:       w.To * int64(time.Second/time.Microsecond),
		Open:       w.Open,
		Close:      w.Close,
		Min:        w.Min,
		Max:        w.Max,
		Volume:     w.Volume,
		ReceivedAt: receivedAt.UnixMicro(),
	}
}

// GetCandles requests historical candles and waits for the reply carrying
// the same request id.
func GetCandles(ctx context.Context, c Client, req CandlesRequest) ([]model.Candle, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	to := req.To
	if to.IsZero() {
		to = time.Now()
	}

	h, err := c.Send(ctx, KindSendMessage, getCandlesMessage{
		Name:    "get-candles",
		Version: "2.0",
		Body: getCandlesParams{
			ActiveID: req.ActiveID,
			Size:     req.Size,
			To:       to.Unix(),
			Count:    req.Count,
		},
	}, correlation.ExpectReply(KindCandles))
	if err != nil {
		return nil, fmt.Errorf("get-candles active %d: %w", req.ActiveID, err)
	}

	env, err := h.Await(ctx)
	if err != nil {
		return nil, fmt.Errorf("get-candles active %d: %w", req.ActiveID, err)
	}

	var reply candlesReply
	if err := env.Decode(&reply); err != nil {
		return nil, fmt.Errorf("decode candles active %d: %w", req.ActiveID, err)
	}
	if len(reply.Candles) == 0 {
		return nil, fmt.Errorf("active %d size %d: %w", req.ActiveID, req.Size, ErrNoCandles)
	}

	candles := make([]model.Candle, 0, len(reply.Candles))
	for _, w := range reply.Candles {
		// History replies omit the routing fields.
		w.ActiveID, w.Size = req.ActiveID, req.Size
		candle := w.toModel(env.Timestamp)
		if err := candle.Validate(); err != nil {
			return nil, fmt.Errorf("candle %d of active %d: %w", w.ID, req.ActiveID, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// FetchCandles runs the requests concurrently over the one connection, at
// most concurrency at a time, and returns the candles in request order.
// A request answered with no candles yields an empty slice; any other
// failure cancels the remaining requests.
func FetchCandles(ctx context.Context, c Client, reqs []CandlesRequest, concurrency int) ([][]model.Candle, error) {
	results := make([][]model.Candle, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	for i, req := range reqs {
		g.Go(func() error {
			candles, err := GetCandles(gctx, c, req)
			if errors.Is(err, ErrNoCandles) {
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = candles
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
