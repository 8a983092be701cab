// Package store provides the session scan log interface and SQLite
// implementation.
package store

import (
	"context"
	"time"

	"github.com/rcliao/movemate/internal/model"
)

// RoundParams holds parameters for recording a classification round.
type RoundParams struct {
	StartedAt  time.Time
	FinishedAt time.Time
	FrameBytes int
	Provider   string
	Err        error
	Candidates []model.DetectedItem
	Admitted   []bool // parallel to Candidates
	Added      string
}

// ListParams holds parameters for listing rounds.
type ListParams struct {
	Limit          int
	FailedOnly     bool
	WithDetections bool
}

// Log defines the scan log interface.
type Log interface {
	// RecordRound stores a round and its candidates. Returns the stored round.
	RecordRound(ctx context.Context, p RoundParams) (*model.Round, error)

	// GetRound retrieves a round with its detections.
	GetRound(ctx context.Context, id string) (*model.Round, error)

	// ListRounds lists rounds, newest first.
	ListRounds(ctx context.Context, p ListParams) ([]model.Round, error)

	// Stats aggregates all recorded rounds.
	Stats(ctx context.Context) (*Stats, error)

	// Close closes the log.
	Close() error
}
