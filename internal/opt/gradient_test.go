package opt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/distlbfgs/internal/tensor"
)

func TestLeastSquaresGradient(t *testing.T) {
	x := tensor.FromSlice([]float64{1, 2})
	w := tensor.FromSlice([]float64{0.5, -0.5})
	cum := tensor.FromSlice([]float64{1, 1})

	loss := LeastSquaresGradient{}.Compute(x, 3, w, cum)

	// diff = 0.5 - 1 - 3 = -3.5
	assert.InDelta(t, 6.125, loss, 1e-12)
	assert.InDeltaSlice(t, []float64{1 - 3.5, 1 - 7}, cum.Values(), 1e-12)
	assert.Equal(t, []float64{0.5, -0.5}, w.Values(), "weights must not change")
}

func TestLogisticGradient(t *testing.T) {
	x := tensor.FromSlice([]float64{2, -1})
	zero := tensor.Zeros(2)

	tests := []struct {
		name  string
		label float64
	}{
		{"positive", 1},
		{"negative", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cum := tensor.Zeros(2)
			loss := LogisticGradient{}.Compute(x, tt.label, zero, cum)

			assert.InDelta(t, math.Ln2, loss, 1e-12)
			mult := 0.5 - tt.label
			assert.InDeltaSlice(t, []float64{2 * mult, -mult}, cum.Values(), 1e-12)
		})
	}
}

func TestLogisticGradientLargeMargin(t *testing.T) {
	x := tensor.FromSlice([]float64{1})
	w := tensor.FromSlice([]float64{-1000})
	cum := tensor.Zeros(1)

	loss := LogisticGradient{}.Compute(x, 1, w, cum)

	assert.False(t, math.IsInf(loss, 0))
	assert.InDelta(t, 1000, loss, 1e-9)
	assert.InDelta(t, -1, cum.Values()[0], 1e-12)
}

func TestHingeGradient(t *testing.T) {
	x := tensor.FromSlice([]float64{1, 1})

	cum := tensor.Zeros(2)
	loss := HingeGradient{}.Compute(x, 1, tensor.Zeros(2), cum)
	assert.InDelta(t, 1, loss, 1e-12)
	assert.Equal(t, []float64{-1, -1}, cum.Values())

	cum = tensor.Zeros(2)
	loss = HingeGradient{}.Compute(x, 1, tensor.FromSlice([]float64{1, 1}), cum)
	assert.Zero(t, loss)
	assert.Equal(t, []float64{0, 0}, cum.Values())

	cum = tensor.Zeros(2)
	loss = HingeGradient{}.Compute(x, 0, tensor.FromSlice([]float64{1, 1}), cum)
	assert.InDelta(t, 3, loss, 1e-12)
	assert.Equal(t, []float64{1, 1}, cum.Values())
}

func TestGradientByName(t *testing.T) {
	for _, name := range []string{"leastsquares", "squared", "logistic", "hinge"} {
		g, err := GradientByName(name)
		require.NoError(t, err, name)
		assert.NotNil(t, g)
	}

	_, err := GradientByName("poisson")
	assert.Error(t, err)
}
