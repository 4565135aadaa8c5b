package opt

import (
	"fmt"
	"math"

	"github.com/cwbudde/distlbfgs/internal/tensor"
)

// Gradient computes the loss of a single example and its gradient.
type Gradient interface {
	// Compute returns the loss for (features, label) at weights and adds the
	// gradient of that loss into cumGradient. It must not modify features or
	// weights, and must have no other side effects.
	Compute(features *tensor.Tensor, label float64, weights, cumGradient *tensor.Tensor) float64
}

// LeastSquaresGradient is the squared error (w·x - y)²/2 used for linear regression.
type LeastSquaresGradient struct{}

func (LeastSquaresGradient) Compute(features *tensor.Tensor, label float64, weights, cumGradient *tensor.Tensor) float64 {
	diff := features.Dot(weights) - label
	cumGradient.Axpy(diff, features)
	return diff * diff / 2
}

// LogisticGradient is the binary logistic loss. Labels are 0 or 1.
type LogisticGradient struct{}

func (LogisticGradient) Compute(features *tensor.Tensor, label float64, weights, cumGradient *tensor.Tensor) float64 {
	margin := -features.Dot(weights)
	multiplier := 1/(1+math.Exp(margin)) - label
	cumGradient.Axpy(multiplier, features)
	if label > 0 {
		return log1pExp(margin)
	}
	return log1pExp(margin) - margin
}

// log1pExp computes log(1 + exp(x)) without overflowing for large x.
func log1pExp(x float64) float64 {
	if x > 0 {
		return x + math.Log1p(math.Exp(-x))
	}
	return math.Log1p(math.Exp(x))
}

// HingeGradient is the SVM hinge loss. Labels 0 and 1 are mapped to -1 and +1.
type HingeGradient struct{}

func (HingeGradient) Compute(features *tensor.Tensor, label float64, weights, cumGradient *tensor.Tensor) float64 {
	y := 2*label - 1
	dot := features.Dot(weights)
	if 1 > y*dot {
		cumGradient.Axpy(-y, features)
		return 1 - y*dot
	}
	return 0
}

// GradientByName returns the gradient registered under name.
func GradientByName(name string) (Gradient, error) {
	switch name {
	case "leastsquares", "squared":
		return LeastSquaresGradient{}, nil
	case "logistic":
		return LogisticGradient{}, nil
	case "hinge":
		return HingeGradient{}, nil
	default:
		return nil, fmt.Errorf("unknown gradient: %s", name)
	}
}
