package iqoption

import (
	"context"
	"fmt"

	"github.com/rickgao/iqoption-data/internal/correlation"
	"github.com/rickgao/iqoption-data/internal/model"
)

type subscribeMessage struct {
	Name   string          `json:"name"`
	Params subscribeParams `json:"params"`
}

type subscribeParams struct {
	RoutingFilters routingFilters `json:"routingFilters"`
}

type routingFilters struct {
	ActiveID int `json:"active_id"`
	Size     int `json:"size"`
}

// CandleStream delivers live candle-generated updates for one active and size.
type CandleStream struct {
	client   Client
	sub      *correlation.Subscription
	ActiveID int
	Size     int
}

// SubscribeCandles starts streaming live candles. The subscription is
// registered before the request is sent so no update is missed.
func SubscribeCandles(ctx context.Context, c Client, activeID, size int) (*CandleStream, error) {
	sub, err := c.Subscribe(KindCandleGenerated, correlation.All(
		correlation.FieldEquals("active_id", activeID),
		correlation.FieldEquals("size", size),
	))
	if err != nil {
		return nil, err
	}

	if _, err := c.Send(ctx, KindSubscribeMessage, candleSubscription(activeID, size), correlation.NoReply()); err != nil {
		sub.Unsubscribe()
		return nil, fmt.Errorf("subscribe candles active %d: %w", activeID, err)
	}

	return &CandleStream{client: c, sub: sub, ActiveID: activeID, Size: size}, nil
}

// Next blocks for the next update. It returns correlation.ErrSubscriptionClosed
// once the stream is closed or the connection is lost.
func (s *CandleStream) Next(ctx context.Context) (model.Candle, error) {
	env, err := s.sub.Next(ctx)
	if err != nil {
		return model.Candle{}, err
	}
	return DecodeCandle(env)
}

// Close asks the server to stop the stream and drops the subscription.
func (s *CandleStream) Close(ctx context.Context) error {
	s.sub.Unsubscribe()
	_, err := s.client.Send(ctx, KindUnsubscribeMessage, candleSubscription(s.ActiveID, s.Size), correlation.NoReply())
	return err
}

func candleSubscription(activeID, size int) subscribeMessage {
	return subscribeMessage{
		Name: KindCandleGenerated,
		Params: subscribeParams{
			RoutingFilters: routingFilters{ActiveID: activeID, Size: size},
		},
	}
}

// DecodeCandle converts a candle-generated push into a Candle.
func DecodeCandle(env correlation.Envelope) (model.Candle, error) {
	var w wireCandle
	if err := env.Decode(&w); err != nil {
		return model.Candle{}, fmt.Errorf("decode %s: %w", env.Kind, err)
	}
	c := w.toModel(env.Timestamp)
	if err := c.Validate(); err != nil {
		return model.Candle{}, err
	}
	return c, nil
}
