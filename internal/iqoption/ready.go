package iqoption

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/iqoption-data/internal/correlation"
)

// ErrNotReady is returned when the readiness event does not arrive in time.
var ErrNotReady = errors.New("session not ready")

// WaitReady blocks until a message of kind arrives. An empty kind returns
// immediately.
func WaitReady(ctx context.Context, c Client, kind string, timeout time.Duration) error {
	if kind == "" {
		return nil
	}

	_, err := c.WaitFor(ctx, kind, correlation.MatchAny(), timeout)
	if errors.Is(err, correlation.ErrTimeout) {
		return fmt.Errorf("%w: no %q within %s", ErrNotReady, kind, timeout)
	}
	return err
}
