package storage

import (
	"context"
	"errors"

	"github.com/Epistemic-Technology/doc-commenter/models"
)

// ErrRunNotFound is returned for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

// Store defines the interface for keeping run reports
type Store interface {
	// SaveRun stores a completed run under its RunID
	SaveRun(ctx context.Context, report *models.RunReport) error

	// GetRun retrieves the report of a run by ID
	GetRun(ctx context.Context, runID string) (*models.RunReport, error)

	// GetEntry retrieves one entry report of a run (1-indexed)
	GetEntry(ctx context.Context, runID string, entry int) (*models.EntryReport, error)

	// ListRuns returns summaries of all stored runs, newest first
	ListRuns(ctx context.Context) ([]models.RunInfo, error)

	// DeleteRun removes a run
	DeleteRun(ctx context.Context, runID string) error

	// Close releases the store
	Close() error
}
