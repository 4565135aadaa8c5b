// Package engine is a local, in-process partitioned execution engine.
//
// A Dataset is split into disjoint partitions. Work is expressed as a
// per-partition sequential fold followed by an associative combine, which the
// engine schedules across goroutines and reduces pairwise in a tree. Partition
// tasks that fail are re-executed from a fresh accumulator, so folds must be
// pure functions of (partition data, broadcast values).
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/distlbfgs/internal/metrics"
)

// cancelCheckInterval is how many items a fold processes between context checks.
const cancelCheckInterval = 1024

// Config controls task scheduling.
type Config struct {
	Parallelism int // Maximum number of concurrently running tasks.
	MaxAttempts int // Attempts per partition task before the job fails.
}

// DefaultConfig returns defaults based on CPU count.
func DefaultConfig() Config {
	return Config{
		Parallelism: runtime.NumCPU(),
		MaxAttempts: 4,
	}
}

func (c Config) parallelism() int {
	if c.Parallelism <= 0 {
		return runtime.NumCPU()
	}
	return c.Parallelism
}

func (c Config) maxAttempts() int {
	if c.MaxAttempts <= 0 {
		return 1
	}
	return c.MaxAttempts
}

// TaskError is returned when a partition task keeps failing.
type TaskError struct {
	Partition int
	Attempts  int
	Err       error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("partition %d failed after %d attempt(s): %v", e.Partition, e.Attempts, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Dataset is an immutable collection split into partitions.
type Dataset[T any] struct {
	partitions [][]T
	cfg        Config
}

// Parallelize slices items into numPartitions contiguous partitions of
// near-equal size. Partition i holds items[i*n/p : (i+1)*n/p]. The items
// slice is shared, not copied, and must not be modified afterwards.
func Parallelize[T any](items []T, numPartitions int, cfg Config) (*Dataset[T], error) {
	if numPartitions <= 0 {
		return nil, fmt.Errorf("number of partitions must be positive, got %d", numPartitions)
	}

	n := len(items)
	partitions := make([][]T, numPartitions)
	for i := range partitions {
		start := i * n / numPartitions
		end := (i + 1) * n / numPartitions
		partitions[i] = items[start:end:end]
	}

	return &Dataset[T]{partitions: partitions, cfg: cfg}, nil
}

// NumPartitions returns the number of partitions.
func (d *Dataset[T]) NumPartitions() int {
	return len(d.partitions)
}

// Partition returns the items of partition i. Callers must not modify them.
func (d *Dataset[T]) Partition(i int) []T {
	return d.partitions[i]
}

// Config returns the scheduling configuration of the dataset.
func (d *Dataset[T]) Config() Config {
	return d.cfg
}

// Count returns the total number of items.
func (d *Dataset[T]) Count(ctx context.Context) (int64, error) {
	return TreeAggregate(ctx, d,
		func() int64 { return 0 },
		func(c int64, _ T) int64 { return c + 1 },
		func(a, b int64) int64 { return a + b },
	)
}

// TreeAggregate folds every partition with seqOp, starting each task from a
// fresh zero() accumulator, and then combines the partition results pairwise
// by partition index until one value remains. seqOp may mutate and return
// the accumulator it is given; combOp may mutate and return its first argument.
// Each accumulator is owned by exactly one task at a time.
//
// For a fixed partitioning the combine order is fixed, so the result is
// deterministic given deterministic seqOp and combOp.
func TreeAggregate[T, U any](ctx context.Context, d *Dataset[T], zero func() U, seqOp func(U, T) U, combOp func(U, U) U) (U, error) {
	var empty U

	if len(d.partitions) == 0 {
		return zero(), nil
	}

	results := make([]U, len(d.partitions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.parallelism())
	for i, items := range d.partitions {
		g.Go(func() error {
			acc, err := runTask(gctx, i, items, d.cfg.maxAttempts(), zero, seqOp)
			if err != nil {
				return err
			}
			results[i] = acc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return empty, err
	}

	for len(results) > 1 {
		next := make([]U, (len(results)+1)/2)
		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(d.cfg.parallelism())
		for i := range next {
			left, right := 2*i, 2*i+1
			if right >= len(results) {
				next[i] = results[left]
				continue
			}
			g.Go(func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("combine panicked: %v", r)
					}
				}()
				next[i] = combOp(results[left], results[right])
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return empty, err
		}
		if err := ctx.Err(); err != nil {
			return empty, err
		}
		results = next
	}

	return results[0], nil
}

func runTask[T, U any](ctx context.Context, partition int, items []T, maxAttempts int, zero func() U, seqOp func(U, T) U) (U, error) {
	var empty U
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		acc, err := foldPartition(ctx, items, zero, seqOp)
		if err == nil {
			metrics.PartitionTasks.WithLabelValues("success").Inc()
			return acc, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return empty, err
		}

		metrics.PartitionTasks.WithLabelValues("failure").Inc()
		lastErr = err
		slog.Warn("Partition task failed",
			"partition", partition,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", err,
		)
	}

	return empty, &TaskError{Partition: partition, Attempts: maxAttempts, Err: lastErr}
}

func foldPartition[T, U any](ctx context.Context, items []T, zero func() U, seqOp func(U, T) U) (acc U, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	acc = zero()
	for i, item := range items {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return acc, err
			}
		}
		acc = seqOp(acc, item)
	}
	return acc, nil
}
