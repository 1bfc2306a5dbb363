package repository

import (
	"context"
	"time"

	"github.com/regwatch/regwatch/internal/datastore/entities"
)

// AlertRepository owns alert persistence and the forward-only lifecycle.
type AlertRepository interface {
	// CreateAlert inserts a new active alert unless an open alert already
	// covers its dedup key, in which case it returns ErrDuplicateAlert.
	// The check and insert run in one transaction; distinct rules write
	// disjoint dedup keys, so no cross-rule locking is needed.
	CreateAlert(ctx context.Context, alert *entities.Alert) error

	GetAlert(ctx context.Context, id uint) (*entities.Alert, error)
	ListAlerts(ctx context.Context, q AlertQuery, limit, offset int) ([]entities.Alert, int64, error)

	// OpenDedupKeys returns the dedup keys of all non-resolved alerts for
	// the rule, captured once at the start of an execution.
	OpenDedupKeys(ctx context.Context, ruleID uint) (map[string]struct{}, error)

	// Acknowledge stamps acknowledged_at and moves active → acknowledged.
	// A second acknowledge is a no-op success; a resolved alert returns
	// ErrAlertResolved.
	Acknowledge(ctx context.Context, id uint, at time.Time) (*entities.Alert, error)

	// Resolve moves active|acknowledged → resolved with the intervention
	// action and notes. Returns ErrAlertResolved on a resolved alert.
	Resolve(ctx context.Context, id uint, action, notes string, at time.Time) (*entities.Alert, error)

	// AppendResolutionNote adds a postscript to a resolved alert's notes
	// (used to record downstream enforcement failures).
	AppendResolutionNote(ctx context.Context, id uint, note string) error

	// Aggregations for the dashboard. GroupBy must be one of
	// "severity", "category", "region".
	Count(ctx context.Context, q AlertQuery) (int64, error)
	CountGrouped(ctx context.Context, q AlertQuery, groupBy string) (map[string]int64, error)
	CountDistinctEntities(ctx context.Context, q AlertQuery) (int64, error)
	OldestUnresolved(ctx context.Context, q AlertQuery) (*entities.Alert, error)
	ResolvedBetween(ctx context.Context, q AlertQuery, from, to time.Time) ([]entities.Alert, error)
}

// AlertQuery is the composable filter used by listing and aggregation
// queries. Zero values mean "no constraint"; all set fields AND together.
type AlertQuery struct {
	Status         string
	OpenOnly       bool // status != resolved
	Severity       string
	Region         string
	Category       string
	EntityID       uint
	RuleID         *uint
	CreatedFrom    *time.Time
	CreatedTo      *time.Time
	CreatedBefore  *time.Time
	NeverAcked     bool // acknowledged_at IS NULL
	ResolvedFrom   *time.Time
	ResolvedTo     *time.Time
}
