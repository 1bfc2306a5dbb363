package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/regwatch/regwatch/internal/datastore/entities"
	"github.com/regwatch/regwatch/internal/errors"
	"gorm.io/gorm"
)

// executionRepository implements ExecutionRepository.
type executionRepository struct {
	db *gorm.DB
}

// NewExecutionRepository creates a new ExecutionRepository.
func NewExecutionRepository(db *gorm.DB) ExecutionRepository {
	return &executionRepository{db: db}
}

// Create inserts a pending execution.
func (r *executionRepository) Create(ctx context.Context, exec *entities.RuleExecution) error {
	if exec.Status == "" {
		exec.Status = entities.ExecutionStatusPending
	}
	if err := r.db.WithContext(ctx).Create(exec).Error; err != nil {
		return fmt.Errorf("failed to create rule execution: %w", err)
	}
	return nil
}

// Start transitions a pending execution to running. The guard on status
// keeps a finished execution from being reopened.
func (r *executionRepository) Start(ctx context.Context, id uint, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&entities.RuleExecution{}).
		Where("id = ? AND status = ?", id, entities.ExecutionStatusPending).
		Updates(map[string]any{
			"status":     entities.ExecutionStatusRunning,
			"started_at": at,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to start rule execution %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return r.notStartable(ctx, id)
	}
	return nil
}

// notStartable distinguishes a missing execution from one past pending.
func (r *executionRepository) notStartable(ctx context.Context, id uint) error {
	var exec entities.RuleExecution
	if err := r.db.WithContext(ctx).First(&exec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrExecutionNotFound
		}
		return fmt.Errorf("failed to inspect rule execution %d: %w", id, err)
	}
	return ErrExecutionFinished
}

// Finish writes the terminal status and counts. The finished_at IS NULL
// guard makes the write idempotent-safe under races: only the first caller
// wins, later ones get ErrExecutionFinished.
func (r *executionRepository) Finish(ctx context.Context, id uint, outcome ExecutionOutcome) error {
	if outcome.Status != entities.ExecutionStatusCompleted && outcome.Status != entities.ExecutionStatusFailed {
		return fmt.Errorf("invalid terminal execution status %q", outcome.Status)
	}
	result := r.db.WithContext(ctx).Model(&entities.RuleExecution{}).
		Where("id = ? AND finished_at IS NULL", id).
		Updates(map[string]any{
			"status":             outcome.Status,
			"finished_at":        outcome.FinishedAt,
			"entities_evaluated": outcome.EntitiesEvaluated,
			"entities_matched":   outcome.EntitiesMatched,
			"alerts_created":     outcome.AlertsCreated,
			"warnings_created":   outcome.WarningsCreated,
			"notifications_sent": outcome.NotificationsSent,
			"error":              outcome.Error,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finish rule execution %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		var exec entities.RuleExecution
		if err := r.db.WithContext(ctx).First(&exec, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrExecutionNotFound
			}
			return fmt.Errorf("failed to inspect rule execution %d: %w", id, err)
		}
		return ErrExecutionFinished
	}
	return nil
}

// Get returns a single execution by ID.
func (r *executionRepository) Get(ctx context.Context, id uint) (*entities.RuleExecution, error) {
	var exec entities.RuleExecution
	if err := r.db.WithContext(ctx).First(&exec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExecutionNotFound
		}
		return nil, fmt.Errorf("failed to get rule execution %d: %w", id, err)
	}
	return &exec, nil
}

// List returns ledger entries matching the filter, newest first, with the
// total count before pagination.
func (r *executionRepository) List(ctx context.Context, filter ExecutionFilter) ([]entities.RuleExecution, int64, error) {
	var items []entities.RuleExecution
	var total int64

	base := r.db.WithContext(ctx).Model(&entities.RuleExecution{})
	if filter.RuleID > 0 {
		base = base.Where("rule_id = ?", filter.RuleID)
	}
	if filter.Status != "" {
		base = base.Where("status = ?", filter.Status)
	}
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count rule executions: %w", err)
	}

	query := base.Session(&gorm.Session{}).Order("id DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if err := query.Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list rule executions: %w", err)
	}
	return items, total, nil
}

// CountRunning reports executions not yet terminal.
func (r *executionRepository) CountRunning(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.RuleExecution{}).
		Where("status IN ?", []string{entities.ExecutionStatusPending, entities.ExecutionStatusRunning}).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count running executions: %w", err)
	}
	return count, nil
}

// DeleteFinishedBefore prunes finished executions older than the cutoff.
func (r *executionRepository) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("finished_at IS NOT NULL AND finished_at < ?", before).
		Delete(&entities.RuleExecution{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune rule executions before %v: %w", before, result.Error)
	}
	return result.RowsAffected, nil
}
