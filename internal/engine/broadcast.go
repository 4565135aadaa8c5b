package engine

import (
	"errors"
	"sync/atomic"

	"github.com/google/uuid"
)

// ErrBroadcastDestroyed is the panic value raised when a destroyed broadcast
// is read. Inside a partition task this surfaces as a task failure.
var ErrBroadcastDestroyed = errors.New("broadcast value has been destroyed")

// Broadcast is a read-only value shared by every partition task of a job.
// The value must not be mutated after NewBroadcast returns.
type Broadcast[T any] struct {
	id        string
	value     T
	destroyed atomic.Bool
}

// NewBroadcast wraps value for sharing across tasks.
func NewBroadcast[T any](value T) *Broadcast[T] {
	return &Broadcast[T]{
		id:    uuid.NewString(),
		value: value,
	}
}

// ID identifies the broadcast in logs.
func (b *Broadcast[T]) ID() string {
	return b.id
}

// Value returns the shared value. It panics with ErrBroadcastDestroyed after
// Destroy.
func (b *Broadcast[T]) Value() T {
	if b.destroyed.Load() {
		panic(ErrBroadcastDestroyed)
	}
	return b.value
}

// Destroy marks the value as released. Later reads panic.
func (b *Broadcast[T]) Destroy() {
	b.destroyed.Store(true)
}

// Destroyed reports whether Destroy has been called.
func (b *Broadcast[T]) Destroyed() bool {
	return b.destroyed.Load()
}
