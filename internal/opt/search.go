package opt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/optimize"

	"github.com/cwbudde/distlbfgs/internal/tensor"
)

const evaluationMask = optimize.FuncEvaluation | optimize.GradEvaluation | optimize.HessEvaluation

// State is one point yielded by the search.
type State struct {
	Iter     int            // 0 for the initial point
	X        *tensor.Tensor // Current weights
	Value    float64        // Objective at X
	Gradient *tensor.Tensor // Objective gradient at X
}

// QuasiNewton configures gonum's L-BFGS as a pull-based search.
type QuasiNewton struct {
	MaxIterations  int
	NumCorrections int
	Tolerance      float64
}

// Iterations returns an iterator over the states visited while minimizing fn
// from x0. Nothing is evaluated until the first call to Next.
func (q QuasiNewton) Iterations(ctx context.Context, fn DiffFunction, x0 *tensor.Tensor) *Iterator {
	it := &Iterator{
		ctx: ctx,
		fn:  fn,
		method: &optimize.LBFGS{
			Store: q.NumCorrections,
			Linesearcher: &optimize.MoreThuente{
				DecreaseFactor:  1e-4,
				CurvatureFactor: 0.9,
			},
		},
		x0:       append([]float64(nil), x0.Values()...),
		converge: newConvergenceCheck(q.MaxIterations, q.Tolerance),
	}
	if len(it.x0) == 0 {
		it.err = optimize.ErrZeroDimensional
		it.done = true
	}
	return it
}

// Iterator pulls states out of a running L-BFGS method. The method runs in
// its own goroutine and blocks between states, so an Iterator must be
// drained or closed.
type Iterator struct {
	ctx      context.Context
	fn       DiffFunction
	method   *optimize.LBFGS
	x0       []float64
	converge *convergenceCheck

	operation chan optimize.Task
	result    chan optimize.Task
	pending   optimize.Task // Last MajorIteration, held until the next call to Next

	started bool
	done    bool
	iter    int
	reason  Reason
	err     error
}

// Next returns the next state, or false when the search has terminated.
func (it *Iterator) Next() (State, bool) {
	if it.done {
		return State{}, false
	}

	switch {
	case !it.started:
		it.start()
	case it.reason != NotConverged:
		it.shutdown()
		return State{}, false
	default:
		it.result <- it.pending
	}

	for task := range it.operation {
		switch {
		case task.Op == optimize.MajorIteration:
			state := State{
				Iter:     it.iter,
				X:        tensor.FromSlice(task.X),
				Value:    task.F,
				Gradient: tensor.FromSlice(task.Gradient),
			}
			it.iter++
			it.reason = it.converge.Update(state)
			it.pending = task
			return state, true

		case task.Op == optimize.MethodDone:
			it.shutdown()
			it.methodDone()
			return State{}, false

		case task.Op == optimize.NoOperation:
			it.result <- task

		case task.Op&evaluationMask != 0:
			if err := it.evaluate(task); err != nil {
				it.err = err
				it.shutdown()
				return State{}, false
			}
			it.result <- task

		default:
			it.err = fmt.Errorf("unexpected search operation %v", task.Op)
			it.shutdown()
			return State{}, false
		}
	}

	it.done = true
	return State{}, false
}

// Err returns the error that stopped the search, if any.
func (it *Iterator) Err() error {
	return it.err
}

// Reason returns why the search stopped, or NotConverged while it is running.
func (it *Iterator) Reason() Reason {
	return it.reason
}

// Close stops the search. It is safe to call more than once.
func (it *Iterator) Close() {
	it.shutdown()
}

func (it *Iterator) start() {
	dim := len(it.x0)
	it.method.Init(dim, 1)

	it.operation = make(chan optimize.Task, 1)
	it.result = make(chan optimize.Task, 1)
	tasks := []optimize.Task{{
		Op:       optimize.NoOperation,
		Location: &optimize.Location{X: it.x0},
	}}

	go it.method.Run(it.operation, it.result, tasks)
	it.started = true
}

// shutdown tells the method to finish. The method is always blocked on
// result when this runs, since every operation it sends waits for a reply.
func (it *Iterator) shutdown() {
	if it.done {
		return
	}
	it.done = true
	if !it.started {
		return
	}

	it.result <- optimize.Task{Op: optimize.PostIteration}
	close(it.result)
	for range it.operation {
	}
}

// methodDone records why the method stopped on its own. Status may only be
// read after the operation channel has been closed.
func (it *Iterator) methodDone() {
	status, err := it.method.Status()
	switch {
	case err == nil && status == optimize.GradientThreshold:
		it.reason = GradientConverged
	case errors.Is(err, optimize.ErrLinesearcherFailure),
		errors.Is(err, optimize.ErrNoProgress),
		errors.Is(err, optimize.ErrNonDescentDirection),
		errors.Is(err, optimize.ErrLinesearcherBound):
		slog.Warn("Line search could not make progress, stopping", "iteration", it.iter, "error", err)
		it.reason = SearchFailed
	case err != nil:
		it.err = fmt.Errorf("quasi-Newton search failed: %w", err)
	default:
		it.reason = SearchFailed
	}
}

func (it *Iterator) evaluate(task optimize.Task) error {
	if task.Op&optimize.HessEvaluation != 0 {
		return errors.New("hessian evaluation is not supported")
	}

	value, grad, err := it.fn.Calculate(it.ctx, tensor.FromSlice(task.X))
	if err != nil {
		return err
	}

	if task.Op&optimize.FuncEvaluation != 0 {
		task.F = value
	}
	if task.Op&optimize.GradEvaluation != 0 {
		if len(task.Gradient) == 0 {
			task.Gradient = make([]float64, len(task.X))
		}
		copy(task.Gradient, grad.Values())
	}
	return nil
}
