package entities

import "time"

// Execution statuses. Lifecycle is pending → running → {completed|failed};
// a finished execution is never reopened.
const (
	ExecutionStatusPending   = "pending"
	ExecutionStatusRunning   = "running"
	ExecutionStatusCompleted = "completed"
	ExecutionStatusFailed    = "failed"
)

// RuleExecution is one ledger entry for one run of one rule. Rows are
// append-only: counts and the terminal status are written exactly once,
// when the run finishes.
type RuleExecution struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	RuleID  uint   `gorm:"not null;index:idx_executions_rule_status,priority:1" json:"rule_id"`
	TraceID string `gorm:"size:36;not null" json:"trace_id"`
	Status  string `gorm:"size:20;not null;index:idx_executions_rule_status,priority:2" json:"status"`

	StartedAt  *time.Time `gorm:"default:null" json:"started_at,omitempty"`
	FinishedAt *time.Time `gorm:"default:null" json:"finished_at,omitempty"`

	EntitiesEvaluated int `gorm:"not null;default:0" json:"entities_evaluated"`
	EntitiesMatched   int `gorm:"not null;default:0" json:"entities_matched"`
	AlertsCreated     int `gorm:"not null;default:0" json:"alerts_created"`
	WarningsCreated   int `gorm:"not null;default:0" json:"warnings_created"`
	NotificationsSent int `gorm:"not null;default:0" json:"notifications_sent"`

	// Error is set iff Status is failed.
	Error string `gorm:"type:text;default:''" json:"error,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for GORM.
func (RuleExecution) TableName() string {
	return "rule_executions"
}

// Finished reports whether the execution reached a terminal status.
func (e *RuleExecution) Finished() bool {
	return e.FinishedAt != nil
}
