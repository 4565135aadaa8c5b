// Package opt minimizes a regularized average loss over a partitioned dataset
// with L-BFGS.
//
// The loss and regularizer are pluggable through the Gradient and Updater
// interfaces. CostFun turns them into a distributed loss/gradient oracle, and
// RunLBFGS feeds that oracle to gonum's L-BFGS, recording one loss per
// iteration.
package opt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cwbudde/distlbfgs/internal/data"
	"github.com/cwbudde/distlbfgs/internal/engine"
	"github.com/cwbudde/distlbfgs/internal/metrics"
	"github.com/cwbudde/distlbfgs/internal/tensor"
)

// Default hyperparameters.
const (
	DefaultNumCorrections   = 10
	DefaultConvergenceTol   = 1e-6
	DefaultMaxNumIterations = 100
	DefaultRegParam         = 0.0
)

// lossSummaryLength is how many trailing losses are logged at completion.
const lossSummaryLength = 10

// historyPrealloc bounds the loss history capacity reserved up front. The
// iteration cap is only an upper bound and may be huge.
const historyPrealloc = 1024

// Result holds the output of an optimization run.
type Result struct {
	Weights     *tensor.Tensor
	LossHistory []float64
	Iterations  int
	Reason      Reason
	Evaluations int64
}

// LBFGS holds hyperparameters and forwards to RunLBFGS.
type LBFGS struct {
	gradient         Gradient
	updater          Updater
	numCorrections   int
	convergenceTol   float64
	maxNumIterations int
	regParam         float64
}

// NewLBFGS returns an optimizer with default hyperparameters.
func NewLBFGS(gradient Gradient, updater Updater) *LBFGS {
	return &LBFGS{
		gradient:         gradient,
		updater:          updater,
		numCorrections:   DefaultNumCorrections,
		convergenceTol:   DefaultConvergenceTol,
		maxNumIterations: DefaultMaxNumIterations,
		regParam:         DefaultRegParam,
	}
}

// SetNumCorrections sets the number of corrections kept in the inverse
// Hessian approximation. Values of 3 to 10 are usual.
func (l *LBFGS) SetNumCorrections(n int) error {
	if err := validateNumCorrections(n); err != nil {
		return err
	}
	l.numCorrections = n
	return nil
}

// SetConvergenceTol sets the relative tolerance used by the convergence
// tests. Smaller values run longer and give more accurate weights.
func (l *LBFGS) SetConvergenceTol(tol float64) error {
	if err := validateConvergenceTol(tol); err != nil {
		return err
	}
	l.convergenceTol = tol
	return nil
}

// SetNumIterations sets the maximum number of iterations. Zero evaluates
// the initial weights only.
func (l *LBFGS) SetNumIterations(n int) error {
	if err := validateMaxNumIterations(n); err != nil {
		return err
	}
	l.maxNumIterations = n
	return nil
}

// SetMaxNumIterations is an alias of SetNumIterations.
//
// Deprecated: use SetNumIterations.
func (l *LBFGS) SetMaxNumIterations(n int) error {
	return l.SetNumIterations(n)
}

// SetRegParam sets the regularization strength.
func (l *LBFGS) SetRegParam(regParam float64) error {
	if err := validateRegParam(regParam); err != nil {
		return err
	}
	l.regParam = regParam
	return nil
}

// SetGradient sets the per-example loss.
func (l *LBFGS) SetGradient(gradient Gradient) error {
	if gradient == nil {
		return &ParamError{Name: "gradient", Value: nil, Reason: "must not be nil"}
	}
	l.gradient = gradient
	return nil
}

// SetUpdater sets the regularizer.
func (l *LBFGS) SetUpdater(updater Updater) error {
	if updater == nil {
		return &ParamError{Name: "updater", Value: nil, Reason: "must not be nil"}
	}
	l.updater = updater
	return nil
}

// NumCorrections returns the number of corrections kept by the search.
func (l *LBFGS) NumCorrections() int { return l.numCorrections }

// ConvergenceTol returns the convergence tolerance.
func (l *LBFGS) ConvergenceTol() float64 { return l.convergenceTol }

// NumIterations returns the maximum number of iterations.
func (l *LBFGS) NumIterations() int { return l.maxNumIterations }

// RegParam returns the regularization parameter.
func (l *LBFGS) RegParam() float64 { return l.regParam }

// Gradient returns the loss gradient in use.
func (l *LBFGS) Gradient() Gradient { return l.gradient }

// Updater returns the regularizing updater in use.
func (l *LBFGS) Updater() Updater { return l.updater }

// Optimize returns the weights minimizing the regularized average loss over
// ds, starting from initialWeights. The loss history is discarded; use
// RunLBFGSWithResult to keep it.
func (l *LBFGS) Optimize(ctx context.Context, ds *engine.Dataset[data.LabeledPoint], initialWeights *tensor.Tensor) (*tensor.Tensor, error) {
	weights, _, err := RunLBFGS(ctx, ds, l.gradient, l.updater,
		l.numCorrections, l.convergenceTol, l.maxNumIterations, l.regParam, initialWeights)
	return weights, err
}

// RunLBFGS minimizes the regularized average loss over ds and returns the
// final weights together with the loss recorded at every iteration.
func RunLBFGS(
	ctx context.Context,
	ds *engine.Dataset[data.LabeledPoint],
	gradient Gradient,
	updater Updater,
	numCorrections int,
	convergenceTol float64,
	maxNumIterations int,
	regParam float64,
	initialWeights *tensor.Tensor,
) (*tensor.Tensor, []float64, error) {
	res, err := RunLBFGSWithResult(ctx, ds, gradient, updater,
		numCorrections, convergenceTol, maxNumIterations, regParam, initialWeights)
	if err != nil {
		return nil, nil, err
	}
	return res.Weights, res.LossHistory, nil
}

// RunLBFGSWithResult is RunLBFGS with iteration count, stop reason and
// evaluation count included.
func RunLBFGSWithResult(
	ctx context.Context,
	ds *engine.Dataset[data.LabeledPoint],
	gradient Gradient,
	updater Updater,
	numCorrections int,
	convergenceTol float64,
	maxNumIterations int,
	regParam float64,
	initialWeights *tensor.Tensor,
) (*Result, error) {
	if err := validate(gradient, updater, numCorrections, convergenceTol, maxNumIterations, regParam, initialWeights); err != nil {
		return nil, err
	}

	start := time.Now()

	numExamples, err := ds.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count examples: %w", err)
	}
	costFun, err := NewCostFun(ds, gradient, updater, regParam, numExamples)
	if err != nil {
		return nil, err
	}

	slog.Info("Starting L-BFGS",
		"examples", numExamples,
		"features", initialWeights.Len(),
		"partitions", ds.NumPartitions(),
		"corrections", numCorrections,
		"tolerance", convergenceTol,
		"max_iterations", maxNumIterations,
		"reg_param", regParam,
	)

	search := QuasiNewton{
		MaxIterations:  maxNumIterations,
		NumCorrections: numCorrections,
		Tolerance:      convergenceTol,
	}
	states := search.Iterations(ctx, Cached(costFun), initialWeights)
	defer states.Close()

	state, ok := states.Next()
	if !ok {
		if err := states.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("search stopped before evaluating the initial weights")
	}

	// The loss recorded for an iteration is the one of the state we just
	// left, so history lags the search by one state until the final append.
	lossHistory := make([]float64, 0, min(maxNumIterations, historyPrealloc)+1)
	for {
		next, ok := states.Next()
		if !ok {
			break
		}
		lossHistory = append(lossHistory, state.Value)
		metrics.Loss.Set(state.Value)
		slog.Debug("L-BFGS iteration", "iteration", state.Iter, "loss", state.Value)
		state = next
	}
	if err := states.Err(); err != nil {
		return nil, err
	}
	lossHistory = append(lossHistory, state.Value)
	metrics.Loss.Set(state.Value)

	slog.Info("L-BFGS finished",
		"iterations", state.Iter,
		"reason", states.Reason().String(),
		"evaluations", costFun.Evaluations(),
		"last_losses", lastLosses(lossHistory, lossSummaryLength),
		"elapsed", time.Since(start),
	)

	return &Result{
		Weights:     state.X,
		LossHistory: lossHistory,
		Iterations:  state.Iter,
		Reason:      states.Reason(),
		Evaluations: costFun.Evaluations(),
	}, nil
}

func lastLosses(history []float64, n int) []float64 {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

func validate(gradient Gradient, updater Updater, numCorrections int, convergenceTol float64, maxNumIterations int, regParam float64, initialWeights *tensor.Tensor) error {
	if gradient == nil {
		return &ParamError{Name: "gradient", Value: nil, Reason: "must not be nil"}
	}
	if updater == nil {
		return &ParamError{Name: "updater", Value: nil, Reason: "must not be nil"}
	}
	if initialWeights == nil || initialWeights.Len() == 0 {
		return &ParamError{Name: "initial weights", Value: initialWeights, Reason: "must not be empty"}
	}
	if err := validateNumCorrections(numCorrections); err != nil {
		return err
	}
	if err := validateConvergenceTol(convergenceTol); err != nil {
		return err
	}
	if err := validateMaxNumIterations(maxNumIterations); err != nil {
		return err
	}
	return validateRegParam(regParam)
}

func validateNumCorrections(n int) error {
	if n <= 0 {
		return &ParamError{Name: "number of corrections", Value: n, Reason: "must be positive"}
	}
	return nil
}

func validateConvergenceTol(tol float64) error {
	if math.IsNaN(tol) || tol < 0 {
		return &ParamError{Name: "convergence tolerance", Value: tol, Reason: "must be non-negative"}
	}
	return nil
}

func validateMaxNumIterations(n int) error {
	if n < 0 {
		return &ParamError{Name: "number of iterations", Value: n, Reason: "must be non-negative"}
	}
	return nil
}

func validateRegParam(regParam float64) error {
	if math.IsNaN(regParam) || regParam < 0 {
		return &ParamError{Name: "regularization parameter", Value: regParam, Reason: "must be non-negative"}
	}
	return nil
}
