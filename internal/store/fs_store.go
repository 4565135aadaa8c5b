package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// FSStore implements Store on the filesystem.
// Each run lives in <baseDir>/runs/<runID>/ with model.json and trace.jsonl.
//
// Writes go through a temp file and rename, so concurrent readers never see
// a partially written model.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a filesystem store, creating baseDir if needed.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSStore{
		baseDir: baseDir,
	}, nil
}

// BaseDir returns the root directory of the store.
func (fs *FSStore) BaseDir() string {
	return fs.baseDir
}

// RunDir returns the directory holding every artifact of a run.
func (fs *FSStore) RunDir(runID string) string {
	return runDir(fs.baseDir, runID)
}

func runDir(baseDir, runID string) string {
	return filepath.Join(baseDir, "runs", runID)
}

func (fs *FSStore) modelPath(runID string) string {
	return filepath.Join(fs.RunDir(runID), "model.json")
}

// SaveModel validates and atomically saves the model of a run.
func (fs *FSStore) SaveModel(runID string, model *Model) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	if model == nil {
		return fmt.Errorf("model cannot be nil")
	}
	if err := model.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid model: %w", err)
	}

	dir := fs.RunDir(runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	data, err := json.MarshalIndent(model, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize model: %w", err)
	}

	tempPath := fs.modelPath(runID) + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp model file: %w", err)
	}

	finalPath := fs.modelPath(runID)
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename model file: %w", err)
	}

	slog.Debug("Model saved", "runID", runID, "path", finalPath)
	return nil
}

// LoadModel retrieves the model of a run.
func (fs *FSStore) LoadModel(runID string) (*Model, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}

	path := fs.modelPath(runID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{RunID: runID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	var model Model
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("failed to deserialize model: %w", err)
	}

	slog.Debug("Model loaded", "runID", runID, "path", path)
	return &model, nil
}

// ListModels returns metadata for all saved models, newest first.
func (fs *FSStore) ListModels() ([]ModelInfo, error) {
	runsDir := filepath.Join(fs.baseDir, "runs")

	entries, err := os.ReadDir(runsDir)
	if os.IsNotExist(err) {
		return []ModelInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	infos := []ModelInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		runID := entry.Name()
		if _, err := os.Stat(fs.modelPath(runID)); os.IsNotExist(err) {
			continue // Run still in progress or failed before saving
		}

		model, err := fs.LoadModel(runID)
		if err != nil {
			slog.Warn("Failed to load model for listing", "runID", runID, "error", err)
			continue
		}

		infos = append(infos, model.ToInfo())
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Timestamp.After(infos[j].Timestamp)
	})

	slog.Debug("Listed models", "count", len(infos))
	return infos, nil
}

// DeleteModel removes the run directory and everything in it.
func (fs *FSStore) DeleteModel(runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}

	dir := fs.RunDir(runID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return &NotFoundError{RunID: runID}
	} else if err != nil {
		return fmt.Errorf("failed to stat run directory: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove run directory: %w", err)
	}

	slog.Debug("Run deleted", "runID", runID, "path", dir)
	return nil
}
