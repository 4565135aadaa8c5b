package store

import (
	"fmt"
	"math"
	"time"
)

// RunConfig records the hyperparameters and inputs of a training run.
// It is kept with the model so that evaluation and warm starts can check
// they are looking at the same problem.
type RunConfig struct {
	DataPath       string  `json:"dataPath"`
	NumFeatures    int     `json:"numFeatures"`
	Partitions     int     `json:"partitions"`
	Gradient       string  `json:"gradient"` // leastsquares, logistic, hinge
	Updater        string  `json:"updater"`  // simple, l2, l1
	NumCorrections int     `json:"numCorrections"`
	ConvergenceTol float64 `json:"convergenceTol"`
	MaxIterations  int     `json:"maxIterations"`
	RegParam       float64 `json:"regParam"`
	InitFrom       string  `json:"initFrom,omitempty"` // Run ID the weights were warm-started from
}

// Model is the persisted outcome of a training run.
//
// Only the final weights and the per-iteration loss history are kept. The
// L-BFGS correction pairs are not: a warm start from a Model begins a fresh
// search at its weights, so the first iterations of the new run rebuild the
// curvature estimate from scratch.
type Model struct {
	// RunID identifies the run.
	RunID string `json:"runId"`

	// Weights are the final weights, one per feature.
	Weights []float64 `json:"weights"`

	// LossHistory holds the loss after every iteration, starting with the
	// loss of the initial weights.
	LossHistory []float64 `json:"lossHistory"`

	// FinalLoss is the last entry of LossHistory.
	FinalLoss float64 `json:"finalLoss"`

	// Iterations is the number of completed iterations.
	Iterations int `json:"iterations"`

	// Reason describes why the search stopped.
	Reason string `json:"reason"`

	Timestamp time.Time `json:"timestamp"`

	Config RunConfig `json:"config"`
}

// ModelInfo is the listing view of a Model without weights or history.
type ModelInfo struct {
	RunID       string    `json:"runId"`
	FinalLoss   float64   `json:"finalLoss"`
	Iterations  int       `json:"iterations"`
	Reason      string    `json:"reason"`
	Timestamp   time.Time `json:"timestamp"`
	Gradient    string    `json:"gradient"`
	Updater     string    `json:"updater"`
	NumFeatures int       `json:"numFeatures"`
	DataPath    string    `json:"dataPath"`
}

// NewModel creates a model from the output of a run. FinalLoss is taken from
// the end of lossHistory.
func NewModel(runID string, weights, lossHistory []float64, iterations int, reason string, config RunConfig) *Model {
	var final float64
	if len(lossHistory) > 0 {
		final = lossHistory[len(lossHistory)-1]
	}
	return &Model{
		RunID:       runID,
		Weights:     weights,
		LossHistory: lossHistory,
		FinalLoss:   final,
		Iterations:  iterations,
		Reason:      reason,
		Timestamp:   time.Now(),
		Config:      config,
	}
}

// ToInfo converts a full Model to ModelInfo.
func (m *Model) ToInfo() ModelInfo {
	return ModelInfo{
		RunID:       m.RunID,
		FinalLoss:   m.FinalLoss,
		Iterations:  m.Iterations,
		Reason:      m.Reason,
		Timestamp:   m.Timestamp,
		Gradient:    m.Config.Gradient,
		Updater:     m.Config.Updater,
		NumFeatures: m.Config.NumFeatures,
		DataPath:    m.Config.DataPath,
	}
}

// Validate checks that the model is complete and self-consistent.
func (m *Model) Validate() error {
	if m.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if len(m.Weights) == 0 {
		return &ValidationError{Field: "Weights", Reason: "cannot be empty"}
	}
	if len(m.LossHistory) == 0 {
		return &ValidationError{Field: "LossHistory", Reason: "cannot be empty"}
	}
	if m.Iterations < 0 {
		return &ValidationError{Field: "Iterations", Reason: "cannot be negative"}
	}
	if len(m.LossHistory) != m.Iterations+1 {
		return &ValidationError{
			Field:  "LossHistory",
			Reason: fmt.Sprintf("length %d does not match %d iterations", len(m.LossHistory), m.Iterations),
		}
	}
	if math.IsNaN(m.FinalLoss) || math.IsInf(m.FinalLoss, 0) {
		return &ValidationError{Field: "FinalLoss", Reason: "must be finite"}
	}
	if m.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if m.Config.Gradient == "" {
		return &ValidationError{Field: "Config.Gradient", Reason: "cannot be empty"}
	}
	if m.Config.NumFeatures != len(m.Weights) {
		return &ValidationError{
			Field:  "Weights",
			Reason: fmt.Sprintf("length mismatch: got %d weights for %d features", len(m.Weights), m.Config.NumFeatures),
		}
	}
	return nil
}

// ValidationError represents a model validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks whether the model's weights can seed or be evaluated
// under config. The feature count and the loss must match; regularization
// and search settings may differ.
func (m *Model) IsCompatible(config RunConfig) error {
	if m.Config.NumFeatures != config.NumFeatures {
		return &CompatibilityError{
			Field:    "NumFeatures",
			Expected: fmt.Sprintf("%d", m.Config.NumFeatures),
			Actual:   fmt.Sprintf("%d", config.NumFeatures),
		}
	}
	if m.Config.Gradient != config.Gradient {
		return &CompatibilityError{
			Field:    "Gradient",
			Expected: m.Config.Gradient,
			Actual:   config.Gradient,
		}
	}
	return nil
}

// CompatibilityError represents a model compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
