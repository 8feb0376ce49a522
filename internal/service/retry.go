package service

import (
	"context"
	"fmt"
)

// withRetry runs a store write, retrying it once immediately. A second
// failure is wrapped in ErrIOFailure.
func withRetry(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err = fn(); err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrIOFailure, op, err)
}
