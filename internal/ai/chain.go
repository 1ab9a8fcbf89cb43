package ai

import (
	"context"

	"github.com/sirupsen/logrus"
)

type extractorChain struct {
	primary  Extractor
	fallback Extractor
}

// WithFallback returns an extractor that first tries the primary implementation and
// falls back to the provided extractor when the primary is unavailable or fails.
func WithFallback(primary, fallback Extractor) Extractor {
	if primary == nil {
		return fallback
	}
	if fallback == nil {
		return primary
	}
	return &extractorChain{primary: primary, fallback: fallback}
}

func (c *extractorChain) Enabled() bool {
	if c == nil {
		return false
	}
	if c.primary != nil && c.primary.Enabled() {
		return true
	}
	if c.fallback != nil && c.fallback.Enabled() {
		return true
	}
	return false
}

func (c *extractorChain) Extract(ctx context.Context, req Request) (Extraction, error) {
	if c == nil {
		return Extraction{}, ErrDisabled
	}
	var primaryErr error
	if c.primary != nil && c.primary.Enabled() {
		extraction, err := c.primary.Extract(ctx, req)
		if err == nil {
			return extraction, nil
		}
		if ctx.Err() != nil {
			return Extraction{}, ctx.Err()
		}
		primaryErr = err
		logrus.WithError(err).Warn("primary extractor failed, trying fallback")
	}
	if c.fallback != nil && c.fallback.Enabled() {
		return c.fallback.Extract(ctx, req)
	}
	if primaryErr != nil {
		return Extraction{}, primaryErr
	}
	return Extraction{}, ErrDisabled
}
