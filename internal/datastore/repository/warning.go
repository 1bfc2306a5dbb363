package repository

import (
	"context"

	"github.com/regwatch/regwatch/internal/datastore/entities"
)

// WarningRepository owns preventive warning persistence.
type WarningRepository interface {
	// CreateWarning inserts a pending warning unless a pending warning
	// already covers its dedup key (ErrDuplicateAlert).
	CreateWarning(ctx context.Context, warning *entities.PreventiveWarning) error

	GetWarning(ctx context.Context, id uint) (*entities.PreventiveWarning, error)
	ListWarnings(ctx context.Context, filter WarningFilter) ([]entities.PreventiveWarning, int64, error)

	// OpenDedupKeys returns dedup keys of pending warnings for the rule.
	OpenDedupKeys(ctx context.Context, ruleID uint) (map[string]struct{}, error)

	// SetStatus moves pending → acknowledged|dismissed. Terminal statuses
	// reject further transitions with ErrAlertResolved semantics.
	SetStatus(ctx context.Context, id uint, status string) (*entities.PreventiveWarning, error)
}

// WarningFilter controls warning listing queries.
type WarningFilter struct {
	EntityID uint
	RuleID   uint
	Status   string
	Limit    int
	Offset   int
}
