package opt

import (
	"fmt"
	"math"

	"github.com/cwbudde/distlbfgs/internal/tensor"
)

// Updater performs one regularized gradient step.
//
// The L-BFGS cost function never takes a real step with it. It probes the
// regularizer in two ways:
//   - stepSize 0: the returned value is the regularization term at weights.
//   - zero gradient, stepSize 1, iter 1: weights minus the returned weights
//     is the gradient of the regularization term at weights.
type Updater interface {
	// Compute returns new weights and the regularization value at them.
	// It must not modify weights or gradient.
	Compute(weights, gradient *tensor.Tensor, iter int, stepSize, regParam float64) (*tensor.Tensor, float64)
}

// stepSizeAt is the decaying step size stepSize/sqrt(iter).
func stepSizeAt(stepSize float64, iter int) float64 {
	return stepSize / math.Sqrt(float64(iter))
}

// SimpleUpdater takes a plain gradient step without regularization.
type SimpleUpdater struct{}

func (SimpleUpdater) Compute(weights, gradient *tensor.Tensor, iter int, stepSize, regParam float64) (*tensor.Tensor, float64) {
	next := weights.Clone()
	next.Axpy(-stepSizeAt(stepSize, iter), gradient)
	return next, 0
}

// SquaredL2Updater regularizes with regParam/2 * ||w||².
type SquaredL2Updater struct{}

func (SquaredL2Updater) Compute(weights, gradient *tensor.Tensor, iter int, stepSize, regParam float64) (*tensor.Tensor, float64) {
	step := stepSizeAt(stepSize, iter)
	next := weights.Clone()
	next.Scale(1 - step*regParam)
	next.Axpy(-step, gradient)
	norm := next.Norm(2)
	return next, 0.5 * regParam * norm * norm
}

// L1Updater regularizes with regParam * ||w||₁ using soft thresholding.
type L1Updater struct{}

func (L1Updater) Compute(weights, gradient *tensor.Tensor, iter int, stepSize, regParam float64) (*tensor.Tensor, float64) {
	step := stepSizeAt(stepSize, iter)
	next := weights.Clone()
	next.Axpy(-step, gradient)

	shrinkage := regParam * step
	values := next.Values()
	for i, w := range values {
		values[i] = math.Copysign(math.Max(0, math.Abs(w)-shrinkage), w)
	}
	return next, regParam * next.Norm(1)
}

// UpdaterByName returns the updater registered under name.
func UpdaterByName(name string) (Updater, error) {
	switch name {
	case "simple", "none":
		return SimpleUpdater{}, nil
	case "l2", "squaredl2":
		return SquaredL2Updater{}, nil
	case "l1":
		return L1Updater{}, nil
	default:
		return nil, fmt.Errorf("unknown updater: %s", name)
	}
}
