package iqoption

import (
	"context"
	"time"

	"github.com/rickgao/iqoption-data/internal/correlation"
)

// Message kinds used on the wire.
const (
	KindSendMessage        = "sendMessage"
	KindSubscribeMessage   = "subscribeMessage"
	KindUnsubscribeMessage = "unsubscribeMessage"
	KindCandles            = "candles"
	KindCandleGenerated    = "candle-generated"
	KindTimeSync           = "timeSync"
)

// Client is the subset of *correlation.Client this package needs.
type Client interface {
	Send(ctx context.Context, kind string, body any, opts ...correlation.SendOption) (*correlation.Handle, error)
	WaitFor(ctx context.Context, kind string, m correlation.Matcher, timeout time.Duration) (correlation.Envelope, error)
	Subscribe(kind string, m correlation.Matcher) (*correlation.Subscription, error)
}

var _ Client = (*correlation.Client)(nil)
