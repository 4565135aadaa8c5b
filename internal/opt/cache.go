package opt

import (
	"context"
	"sync"

	"github.com/cwbudde/distlbfgs/internal/metrics"
	"github.com/cwbudde/distlbfgs/internal/tensor"
)

// CachedDiffFunction remembers the most recent evaluation so that asking for
// the same point twice in a row costs one distributed pass.
type CachedDiffFunction struct {
	fn DiffFunction

	mu        sync.Mutex
	lastX     *tensor.Tensor
	lastValue float64
	lastGrad  *tensor.Tensor
}

// Cached wraps fn with a one-entry cache.
func Cached(fn DiffFunction) *CachedDiffFunction {
	return &CachedDiffFunction{fn: fn}
}

// Calculate returns the cached result when x equals the last point, and
// evaluates fn otherwise. Failed evaluations are not cached.
func (c *CachedDiffFunction) Calculate(ctx context.Context, x *tensor.Tensor) (float64, *tensor.Tensor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastX != nil && c.lastX.Equal(x) {
		metrics.CostCacheHits.Inc()
		return c.lastValue, c.lastGrad.Clone(), nil
	}

	value, grad, err := c.fn.Calculate(ctx, x)
	if err != nil {
		return 0, nil, err
	}

	c.lastX = x.Clone()
	c.lastValue = value
	c.lastGrad = grad.Clone()
	return value, grad, nil
}
