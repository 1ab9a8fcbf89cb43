package config

import (
	"errors"
	"fmt"

	"email-task-extractor/internal/ai"
)

// Extractor assembles the configured provider chain, wrapped in the response
// cache when enabled. It returns ai.ErrDisabled when no provider has a key.
func (c *Config) Extractor() (ai.Extractor, error) {
	if c.AI.Disabled {
		return nil, ai.ErrDisabled
	}
	var primary, secondary ai.Extractor
	client, err := ai.NewClient(c.AI.Primary())
	switch {
	case err == nil:
		primary = client
	case !errors.Is(err, ai.ErrDisabled):
		return nil, fmt.Errorf("ai client: %w", err)
	}
	if fallbackCfg, ok := c.AI.Secondary(); ok {
		client, err := ai.NewClient(fallbackCfg)
		switch {
		case err == nil:
			secondary = client
		case !errors.Is(err, ai.ErrDisabled):
			return nil, fmt.Errorf("fallback ai client: %w", err)
		}
	}

	extractor := ai.WithFallback(primary, secondary)
	if extractor == nil {
		return nil, ai.ErrDisabled
	}
	if c.Cache.Enabled {
		cached, err := ai.WithCache(extractor, ai.CacheConfig{MaxCost: c.Cache.MaxCost, TTL: c.Cache.TTL})
		if err != nil {
			return nil, err
		}
		extractor = cached
	}
	return extractor, nil
}
