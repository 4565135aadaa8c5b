package opt

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/distlbfgs/internal/data"
	"github.com/cwbudde/distlbfgs/internal/engine"
	"github.com/cwbudde/distlbfgs/internal/tensor"
)

func point(label float64, features ...float64) data.LabeledPoint {
	return data.LabeledPoint{Label: label, Features: tensor.FromSlice(features)}
}

func parallelize(t *testing.T, points []data.LabeledPoint, partitions int) *engine.Dataset[data.LabeledPoint] {
	t.Helper()
	ds, err := engine.Parallelize(points, partitions, engine.DefaultConfig())
	require.NoError(t, err)
	return ds
}

func randomPoints(seed int64, n, dim int) []data.LabeledPoint {
	rng := rand.New(rand.NewSource(seed))
	points := make([]data.LabeledPoint, n)
	for i := range points {
		x := make([]float64, dim)
		for j := range x {
			x[j] = rng.NormFloat64()
		}
		points[i] = point(rng.NormFloat64(), x...)
	}
	return points
}

func TestCostFunLeastSquaresL2(t *testing.T) {
	points := []data.LabeledPoint{
		point(3, 1, 2),
		point(-1, 0, 1),
		point(1, 2, 0),
	}
	costFun, err := NewCostFun(parallelize(t, points, 2), LeastSquaresGradient{}, SquaredL2Updater{}, 0.1, 3)
	require.NoError(t, err)

	w := tensor.FromSlice([]float64{0.5, -0.5})
	loss, grad, err := costFun.Calculate(context.Background(), w)
	require.NoError(t, err)

	// Residuals are -3.5, 0.5 and 0.
	dataLoss := (6.125 + 0.125 + 0) / 3
	regLoss := 0.5 * 0.1 * 0.5
	assert.InDelta(t, dataLoss+regLoss, loss, 1e-12)
	assert.InDeltaSlice(t, []float64{-3.5/3 + 0.05, -6.5/3 - 0.05}, grad.Values(), 1e-12)

	assert.Equal(t, []float64{0.5, -0.5}, w.Values(), "weights must not change")
	assert.Equal(t, int64(1), costFun.Evaluations())
}

func TestCostFunPartitionInvariance(t *testing.T) {
	points := randomPoints(1, 200, 5)
	w := tensor.FromSlice([]float64{0.3, -0.1, 0.7, 0, -1.2})

	var refLoss float64
	var refGrad *tensor.Tensor
	for _, partitions := range []int{1, 4, 16} {
		costFun, err := NewCostFun(parallelize(t, points, partitions), LogisticGradient{}, SquaredL2Updater{}, 0.01, int64(len(points)))
		require.NoError(t, err)

		loss, grad, err := costFun.Calculate(context.Background(), w)
		require.NoError(t, err)

		if refGrad == nil {
			refLoss, refGrad = loss, grad
			continue
		}
		assert.InDelta(t, refLoss, loss, 1e-9*math.Abs(refLoss), "partitions=%d", partitions)
		assert.InDeltaSlice(t, refGrad.Values(), grad.Values(), 1e-9, "partitions=%d", partitions)
	}
}

func TestCostFunEmptyDataset(t *testing.T) {
	_, err := NewCostFun(parallelize(t, nil, 2), LeastSquaresGradient{}, SimpleUpdater{}, 0, 0)
	assert.ErrorIs(t, err, ErrEmptyDataset)
}

func TestCostFunTaskFailure(t *testing.T) {
	ds, err := engine.Parallelize([]data.LabeledPoint{point(1, 1), point(2, 2)}, 2, engine.Config{Parallelism: 1, MaxAttempts: 2})
	require.NoError(t, err)

	costFun, err := NewCostFun(ds, panickingGradient{}, SimpleUpdater{}, 0, 2)
	require.NoError(t, err)

	_, _, err = costFun.Calculate(context.Background(), tensor.Zeros(1))
	require.Error(t, err)

	var taskErr *engine.TaskError
	require.True(t, errors.As(err, &taskErr))
	assert.Equal(t, 2, taskErr.Attempts)
	assert.Zero(t, costFun.Evaluations())
}

type panickingGradient struct{}

func (panickingGradient) Compute(*tensor.Tensor, float64, *tensor.Tensor, *tensor.Tensor) float64 {
	panic("corrupt record")
}
