package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Chain is a Provider that speaks through the first engine that works.
//
// Engines found missing are remembered and never tried again, and the
// engine that last succeeded is tried first on the next call, so a
// machine with only `say` does not pay for an espeak-ng lookup every turn.
type Chain struct {
	providers []Provider
	logger    *slog.Logger

	mu        sync.Mutex
	preferred int
	missing   map[int]bool
}

// NewChain creates a chain over providers, tried in the given order.
// At least one provider is required.
func NewChain(providers ...Provider) (*Chain, error) {
	return NewChainWithLogger(nil, providers...)
}

// NewChainWithLogger is NewChain with a logger.
func NewChainWithLogger(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		providers: providers,
		logger:    logger.With("component", "tts.chain"),
		missing:   make(map[int]bool),
	}, nil
}

// Name lists the chained engines, e.g. "espeak-ng>say".
func (c *Chain) Name() string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, ">")
}

// order returns provider indexes to try: the preferred engine first, then
// the rest in chain order, leaving out engines known to be missing.
func (c *Chain) order() []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := make([]int, 0, len(c.providers))
	if !c.missing[c.preferred] {
		idx = append(idx, c.preferred)
	}
	for i := range c.providers {
		if i != c.preferred && !c.missing[i] {
			idx = append(idx, i)
		}
	}
	return idx
}

func (c *Chain) markMissing(i int) {
	c.mu.Lock()
	c.missing[i] = true
	c.mu.Unlock()
}

func (c *Chain) prefer(i int) {
	c.mu.Lock()
	c.preferred = i
	c.mu.Unlock()
}

// Synthesize speaks text with the first engine that succeeds.
func (c *Chain) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	order := c.order()
	if len(order) == 0 {
		return nil, fmt.Errorf("%w: no engine installed", ErrProviderUnavailable)
	}

	var errs []error
	for n, i := range order {
		p := c.providers[i]
		result, err := p.Synthesize(ctx, text)
		if err == nil {
			if n > 0 {
				c.logger.Info("switched speech engine", "engine", p.Name(), "chars", len(text))
			}
			c.prefer(i)
			return result, nil
		}

		errs = append(errs, err)
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, ErrEmptyText):
			return nil, err
		case errors.Is(err, ErrEngineNotFound):
			c.logger.Debug("engine not installed", "engine", p.Name())
			c.markMissing(i)
		default:
			c.logger.Warn("engine failed, trying next", "engine", p.Name(), "error", err)
		}
	}

	return nil, &ChainError{Errors: errs}
}

// Health succeeds when at least one engine can run.
func (c *Chain) Health(ctx context.Context) error {
	var errs []error
	for i, p := range c.providers {
		err := p.Health(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrEngineNotFound) {
			c.markMissing(i)
		}
		errs = append(errs, err)
	}
	return fmt.Errorf("%w: %w", ErrProviderUnavailable, errors.Join(errs...))
}

// Close closes every engine.
func (c *Chain) Close() error {
	var errs []error
	for _, p := range c.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ChainError aggregates errors from all providers in a chain.
type ChainError struct {
	Errors []error
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "tts chain: no errors recorded"
	case 1:
		return fmt.Sprintf("tts chain: %v", e.Errors[0])
	default:
		return fmt.Sprintf("tts chain: all %d engines failed, last error: %v", len(e.Errors), e.Errors[len(e.Errors)-1])
	}
}

// Unwrap exposes every engine error to errors.Is and errors.As.
func (e *ChainError) Unwrap() []error {
	return e.Errors
}

var _ Provider = (*Chain)(nil)
