// Package tensor provides the dense float64 vector used for weights, gradients
// and feature vectors.
package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Tensor is a flat, array-backed vector with shape metadata.
// Offset is reserved for sub-vector views and is always 0 today.
type Tensor struct {
	Data   []float64
	Shape  []int
	Offset int
}

// New creates a Tensor over data. The length of data must match the
// product of shape.
func New(shape []int, data []float64) (*Tensor, error) {
	size := 1
	for _, dim := range shape {
		if dim < 0 {
			return nil, fmt.Errorf("negative dimension %d in shape %v", dim, shape)
		}
		size *= dim
	}
	if len(data) != size {
		return nil, fmt.Errorf("data length (%d) does not match shape dimensions (%d)", len(data), size)
	}
	return &Tensor{
		Data:  data,
		Shape: append([]int(nil), shape...),
	}, nil
}

// Zeros returns a rank-1 tensor of n zeros.
func Zeros(n int) *Tensor {
	return &Tensor{
		Data:  make([]float64, n),
		Shape: []int{n},
	}
}

// FromSlice returns a rank-1 tensor holding a copy of values.
func FromSlice(values []float64) *Tensor {
	t := Zeros(len(values))
	copy(t.Data, values)
	return t
}

// Len returns the number of elements.
func (t *Tensor) Len() int {
	n := 1
	for _, dim := range t.Shape {
		n *= dim
	}
	return n
}

// Values returns the live view of the tensor's elements.
func (t *Tensor) Values() []float64 {
	return t.Data[t.Offset : t.Offset+t.Len()]
}

// Clone returns an independently owned copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		Data:  append([]float64(nil), t.Values()...),
		Shape: append([]int(nil), t.Shape...),
	}
}

// Dot returns the inner product with x.
func (t *Tensor) Dot(x *Tensor) float64 {
	return floats.Dot(t.Values(), x.Values())
}

// Axpy adds alpha*x into t in place.
func (t *Tensor) Axpy(alpha float64, x *Tensor) {
	floats.AddScaled(t.Values(), alpha, x.Values())
}

// Scale multiplies every element by c in place.
func (t *Tensor) Scale(c float64) {
	floats.Scale(c, t.Values())
}

// Sub returns t - x as a new tensor.
func (t *Tensor) Sub(x *Tensor) *Tensor {
	out := Zeros(t.Len())
	floats.SubTo(out.Data, t.Values(), x.Values())
	return out
}

// Norm returns the L-norm of the elements.
func (t *Tensor) Norm(L float64) float64 {
	return floats.Norm(t.Values(), L)
}

// Equal reports whether both tensors hold bit-identical values.
func (t *Tensor) Equal(x *Tensor) bool {
	if t == x {
		return true
	}
	if t == nil || x == nil {
		return false
	}
	return floats.Equal(t.Values(), x.Values())
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v%v", t.Shape, t.Values())
}
