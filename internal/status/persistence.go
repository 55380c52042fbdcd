package status

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

//go:generate mockgen -destination=mocks/mock_status_persistence.go -package=mocks github.com/stacklok/repo-activity-sync/internal/status StatusPersistence

const (
	// StatusFileName is the name of the status file
	StatusFileName = "last_batch.json"
)

// StatusPersistence defines the interface for last-batch persistence
//
//nolint:revive // This name is fine
type StatusPersistence interface {
	// SaveLastBatch stores the summary of the last finished batch
	SaveLastBatch(ctx context.Context, summary *BatchSummary) error

	// LoadLastBatch loads the summary of the last finished batch.
	// Returns nil without error if nothing was stored yet (first run).
	LoadLastBatch(ctx context.Context) (*BatchSummary, error)
}

// fileStatusPersistence implements StatusPersistence using local filesystem
type fileStatusPersistence struct {
	basePath string
}

// NewFileStatusPersistence creates a new file-based status persistence
// basePath is the directory where the status file is stored
func NewFileStatusPersistence(basePath string) StatusPersistence {
	return &fileStatusPersistence{
		basePath: basePath,
	}
}

// SaveLastBatch writes the summary to a JSON file, replacing it atomically
func (f *fileStatusPersistence) SaveLastBatch(_ context.Context, summary *BatchSummary) error {
	if err := os.MkdirAll(f.basePath, 0750); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}

	filePath := filepath.Join(f.basePath, StatusFileName)

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal batch summary: %w", err)
	}

	// Write to temporary file first for atomic operation
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary status file: %w", err)
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename status file: %w", err)
	}

	return nil
}

// LoadLastBatch reads the summary back from the JSON file
func (f *fileStatusPersistence) LoadLastBatch(_ context.Context) (*BatchSummary, error) {
	filePath := filepath.Join(f.basePath, StatusFileName)

	// #nosec G304 -- filePath is built from the configured status directory
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read status file: %w", err)
	}

	var summary BatchSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status file: %w", err)
	}

	return &summary, nil
}
