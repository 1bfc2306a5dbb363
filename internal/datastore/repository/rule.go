package repository

import (
	"context"
	"time"

	"github.com/regwatch/regwatch/internal/datastore/entities"
)

// RuleRepository handles compliance rule CRUD and the denormalized
// last-run stamp.
type RuleRepository interface {
	ListRules(ctx context.Context, filter RuleFilter) ([]entities.ComplianceRule, error)
	GetRule(ctx context.Context, id uint) (*entities.ComplianceRule, error)
	CreateRule(ctx context.Context, rule *entities.ComplianceRule) error
	UpdateRule(ctx context.Context, rule *entities.ComplianceRule) error
	DeleteRule(ctx context.Context, id uint) error
	ToggleRule(ctx context.Context, id uint, enabled bool) error

	GetEnabledRules(ctx context.Context) ([]entities.ComplianceRule, error)
	CountRulesByName(ctx context.Context, name string) (int64, error)
	DeleteBuiltInRules(ctx context.Context) (int64, error)

	// RecordExecutionStamp updates the denormalized last_executed_at /
	// last_execution_result cache. Written alongside ledger finishes; the
	// ledger stays authoritative.
	RecordExecutionStamp(ctx context.Context, id uint, at time.Time, result string) error
}

// RuleFilter controls rule listing queries.
type RuleFilter struct {
	TriggerType string
	MetricName  string
	Severity    string
	Enabled     *bool
	BuiltIn     *bool
}
