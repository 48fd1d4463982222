package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllBackendsFailed is returned when every backend in a [Chain] failed or
// had an open breaker.
var ErrAllBackendsFailed = errors.New("resilience: all backends failed")

// chainEntry pairs one backend with its dedicated breaker.
type chainEntry[T any] struct {
	name    string
	backend T
	breaker *Breaker
}

// Chain holds a primary backend and zero or more fallbacks of the same
// provider type, each behind its own [Breaker]. Backends are tried in
// registration order; open-breaker entries are skipped.
type Chain[T any] struct {
	entries []chainEntry[T]
	breaker BreakerConfig
}

// NewChain creates a [Chain] with primary as the first backend. The breaker
// config is cloned per backend, with Name set to the backend name.
func NewChain[T any](primaryName string, primary T, breaker BreakerConfig) *Chain[T] {
	c := &Chain[T]{breaker: breaker}
	c.Add(primaryName, primary)
	return c
}

// Add appends a fallback backend. Not safe to call concurrently with Try;
// build the chain fully before serving calls.
func (c *Chain[T]) Add(name string, backend T) {
	cfg := c.breaker
	cfg.Name = name
	c.entries = append(c.entries, chainEntry[T]{
		name:    name,
		backend: backend,
		breaker: NewBreaker(cfg),
	})
}

// Names lists the backends in try order.
func (c *Chain[T]) Names() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.name
	}
	return names
}

// Try runs fn against each backend in order until one succeeds. It is a
// package-level function because Go has no method-level type parameters.
// When every backend fails, the last error is wrapped in
// [ErrAllBackendsFailed].
func Try[T, R any](c *Chain[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range c.entries {
		entry := &c.entries[i]
		var result R
		err := entry.breaker.Do(func() error {
			var innerErr error
			result, innerErr = fn(entry.backend)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("skipping backend, breaker open", "backend", entry.name)
		} else {
			slog.Warn("backend failed, trying next", "backend", entry.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllBackendsFailed, lastErr)
}
