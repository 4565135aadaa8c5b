package opt

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Reason explains why a search stopped.
type Reason int

const (
	NotConverged Reason = iota
	MaxIterations
	FunctionValuesConverged
	GradientConverged
	SearchFailed
)

func (r Reason) String() string {
	switch r {
	case NotConverged:
		return "not converged"
	case MaxIterations:
		return "max iterations reached"
	case FunctionValuesConverged:
		return "function values converged"
	case GradientConverged:
		return "gradient converged"
	case SearchFailed:
		return "line search failed"
	default:
		return "unknown"
	}
}

const (
	// functionHistoryLength is how many past values the improvement test looks back over.
	functionHistoryLength = 10

	minImprovementScale = 1e-8
	minGradientNorm     = 1e-8
)

// convergenceCheck decides after every yielded state whether the search is done.
type convergenceCheck struct {
	maxIterations int
	tolerance     float64
	history       []float64 // Last values, oldest first
}

func newConvergenceCheck(maxIterations int, tolerance float64) *convergenceCheck {
	return &convergenceCheck{
		maxIterations: maxIterations,
		tolerance:     tolerance,
		history:       make([]float64, 0, functionHistoryLength),
	}
}

// Update records the state and returns NotConverged if the search should
// continue past it.
func (c *convergenceCheck) Update(s State) Reason {
	reason := c.check(s)

	c.history = append(c.history, s.Value)
	if len(c.history) > functionHistoryLength {
		c.history = c.history[1:]
	}

	if reason != NotConverged {
		slog.Debug("Search converged",
			"iteration", s.Iter,
			"value", s.Value,
			"reason", reason.String(),
		)
	}
	return reason
}

func (c *convergenceCheck) check(s State) Reason {
	if s.Iter >= c.maxIterations {
		return MaxIterations
	}

	if len(c.history) > 0 {
		prevMax := floats.Max(c.history)
		scale := math.Max(math.Max(math.Abs(s.Value), math.Abs(prevMax)), minImprovementScale)
		if (prevMax-s.Value)/scale <= c.tolerance {
			return FunctionValuesConverged
		}
	}

	if s.Gradient != nil {
		norm := s.Gradient.Norm(math.Inf(1))
		if norm <= math.Max(c.tolerance*math.Abs(s.Value), minGradientNorm) {
			return GradientConverged
		}
	}

	return NotConverged
}
