package opt

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cwbudde/distlbfgs/internal/data"
	"github.com/cwbudde/distlbfgs/internal/engine"
	"github.com/cwbudde/distlbfgs/internal/metrics"
	"github.com/cwbudde/distlbfgs/internal/tensor"
)

// DiffFunction evaluates an objective and its gradient at x.
type DiffFunction interface {
	Calculate(ctx context.Context, x *tensor.Tensor) (float64, *tensor.Tensor, error)
}

// CostFun is the regularized average loss over a partitioned dataset.
// Every evaluation is one broadcast, parallel fold and tree reduce.
type CostFun struct {
	data        *engine.Dataset[data.LabeledPoint]
	gradient    Gradient
	updater     Updater
	regParam    float64
	numExamples int64

	evaluations atomic.Int64
}

// partialSum is the per-partition accumulator of one evaluation.
type partialSum struct {
	gradient *tensor.Tensor
	loss     float64
}

// NewCostFun binds the cost function to a dataset of numExamples examples.
func NewCostFun(ds *engine.Dataset[data.LabeledPoint], gradient Gradient, updater Updater, regParam float64, numExamples int64) (*CostFun, error) {
	if numExamples <= 0 {
		return nil, ErrEmptyDataset
	}
	return &CostFun{
		data:        ds,
		gradient:    gradient,
		updater:     updater,
		regParam:    regParam,
		numExamples: numExamples,
	}, nil
}

// Evaluations returns how many distributed passes have been run.
func (c *CostFun) Evaluations() int64 {
	return c.evaluations.Load()
}

// Calculate returns the average loss plus regularization at weights, and its
// gradient. weights is not modified.
func (c *CostFun) Calculate(ctx context.Context, weights *tensor.Tensor) (float64, *tensor.Tensor, error) {
	start := time.Now()
	n := weights.Len()

	bcW := engine.NewBroadcast(weights.Clone())
	defer bcW.Destroy()

	localGradient := c.gradient
	sum, err := engine.TreeAggregate(ctx, c.data,
		func() *partialSum {
			return &partialSum{gradient: tensor.Zeros(n)}
		},
		func(acc *partialSum, p data.LabeledPoint) *partialSum {
			acc.loss += localGradient.Compute(p.Features, p.Label, bcW.Value(), acc.gradient)
			return acc
		},
		func(a, b *partialSum) *partialSum {
			a.gradient.Axpy(1, b.gradient)
			a.loss += b.loss
			return a
		},
	)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to aggregate loss and gradient: %w", err)
	}

	m := float64(c.numExamples)

	dataGradient := sum.gradient.Clone()
	dataGradient.Scale(1 / m)
	_, regVal := c.updater.Compute(weights, dataGradient, 1, 0, c.regParam)

	loss := sum.loss/m + regVal

	// w - step(w, 0) is the regularization gradient at w.
	stepped, _ := c.updater.Compute(weights, tensor.Zeros(n), 1, 1, c.regParam)
	gradientTotal := weights.Clone()
	gradientTotal.Axpy(-1, stepped)
	gradientTotal.Axpy(1/m, sum.gradient)

	c.evaluations.Add(1)
	metrics.CostEvaluations.Inc()
	metrics.CostEvaluationSeconds.Observe(time.Since(start).Seconds())
	slog.Debug("Evaluated cost",
		"broadcast", bcW.ID(),
		"loss", loss,
		"reg_value", regVal,
		"partitions", c.data.NumPartitions(),
		"elapsed", time.Since(start),
	)

	return loss, gradientTotal, nil
}
