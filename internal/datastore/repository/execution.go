package repository

import (
	"context"
	"time"

	"github.com/regwatch/regwatch/internal/datastore/entities"
)

// ExecutionRepository is the append-only ledger of rule runs.
type ExecutionRepository interface {
	// Create inserts a pending execution.
	Create(ctx context.Context, exec *entities.RuleExecution) error
	// Start transitions pending → running and stamps started_at.
	Start(ctx context.Context, id uint, at time.Time) error
	// Finish writes the terminal status, counts and finished_at exactly
	// once. Returns ErrExecutionFinished if already terminal.
	Finish(ctx context.Context, id uint, outcome ExecutionOutcome) error

	Get(ctx context.Context, id uint) (*entities.RuleExecution, error)
	List(ctx context.Context, filter ExecutionFilter) ([]entities.RuleExecution, int64, error)

	// CountRunning reports executions stuck in a non-terminal status.
	CountRunning(ctx context.Context) (int64, error)
	// DeleteFinishedBefore prunes finished ledger entries for retention.
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
}

// ExecutionOutcome carries the terminal state of a run.
type ExecutionOutcome struct {
	Status            string // completed or failed
	FinishedAt        time.Time
	EntitiesEvaluated int
	EntitiesMatched   int
	AlertsCreated     int
	WarningsCreated   int
	NotificationsSent int
	Error             string // set iff failed
}

// ExecutionFilter controls ledger listing queries.
type ExecutionFilter struct {
	RuleID uint
	Status string
	Limit  int
	Offset int
}
