package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		shape   []int
		data    []float64
		wantErr bool
	}{
		{"vector", []int{3}, []float64{1, 2, 3}, false},
		{"matrix", []int{2, 2}, []float64{1, 2, 3, 4}, false},
		{"length mismatch", []int{4}, []float64{1, 2, 3}, true},
		{"negative dimension", []int{-1}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New(tt.shape, tt.data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.data), got.Len())
			assert.Equal(t, 0, got.Offset)
		})
	}
}

func TestFromSliceCopies(t *testing.T) {
	src := []float64{1, 2, 3}
	v := FromSlice(src)
	src[0] = 100

	assert.Equal(t, []float64{1, 2, 3}, v.Values())
	assert.Equal(t, []int{3}, v.Shape)
}

func TestCloneIsIndependent(t *testing.T) {
	a := FromSlice([]float64{1, 2})
	b := a.Clone()
	b.Data[0] = 5

	assert.Equal(t, 1.0, a.Data[0])
	assert.False(t, a.Equal(b))
}

func TestArithmetic(t *testing.T) {
	a := FromSlice([]float64{1, 2, 3})
	b := FromSlice([]float64{4, 5, 6})

	assert.Equal(t, 32.0, a.Dot(b))

	a.Axpy(2, b)
	assert.Equal(t, []float64{9, 12, 15}, a.Values())

	a.Scale(1.0 / 3)
	assert.InDeltaSlice(t, []float64{3, 4, 5}, a.Values(), 1e-12)

	d := b.Sub(a)
	assert.InDeltaSlice(t, []float64{1, 1, 1}, d.Values(), 1e-12)

	assert.InDelta(t, 5.0, FromSlice([]float64{3, 4}).Norm(2), 1e-12)
	assert.Equal(t, 4.0, FromSlice([]float64{3, -4}).Norm(math.Inf(1)))
}

func TestEqual(t *testing.T) {
	a := FromSlice([]float64{1, 2})
	assert.True(t, a.Equal(a))
	assert.True(t, a.Equal(FromSlice([]float64{1, 2})))
	assert.False(t, a.Equal(FromSlice([]float64{1, 2, 3})))
	assert.False(t, a.Equal(nil))
}
