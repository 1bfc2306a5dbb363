package entities

import "time"

// ComplianceRule defines a configurable monitoring rule evaluated against
// the regulated-entity population. A rule is either threshold-based
// (metric + operator + value) or event-based (event type + conditions);
// exactly one of the two modes is populated.
type ComplianceRule struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"size:255;not null;uniqueIndex" json:"name"`
	Description string `gorm:"size:1000;default:''" json:"description"`
	Enabled     bool   `gorm:"not null;index" json:"enabled"`
	BuiltIn     bool   `gorm:"not null;default:false" json:"built_in"`

	// TriggerType is "threshold" or "event".
	TriggerType string `gorm:"size:20;not null" json:"trigger_type"`

	// Threshold mode.
	MetricName string  `gorm:"size:100;default:''" json:"metric_name"`
	Operator   string  `gorm:"size:20;default:''" json:"operator"`
	Value      float64 `gorm:"default:0" json:"value"`
	// WarningValue is an optional softer threshold. Entities between
	// WarningValue and Value are "approaching" and feed the preventive
	// warning path instead of the alert path.
	WarningValue *float64 `gorm:"default:null" json:"warning_value,omitempty"`

	// Event mode.
	EventType  string             `gorm:"size:100;default:'';index" json:"event_type"`
	Conditions []TriggerCondition `gorm:"foreignKey:RuleID;constraint:OnDelete:CASCADE" json:"conditions"`

	Severity   string `gorm:"size:20;not null" json:"severity"`
	AutoAction string `gorm:"size:40;not null" json:"auto_action"`

	// Target scope. TargetRoles is a comma-separated role list; empty
	// means all roles. TargetRegion empty means all regions.
	TargetRoles  string `gorm:"size:255;default:''" json:"target_roles"`
	TargetRegion string `gorm:"size:100;default:''" json:"target_region"`

	// ScheduleIntervalSec is the periodic evaluation interval for
	// scheduler-driven rules, in seconds.
	ScheduleIntervalSec int `gorm:"not null;default:3600" json:"schedule_interval_sec"`

	// Denormalized last-run stamp for fast status display. The execution
	// ledger is authoritative; never read these for concurrency decisions.
	LastExecutedAt      *time.Time `gorm:"default:null" json:"last_executed_at,omitempty"`
	LastExecutionResult string     `gorm:"size:255;default:''" json:"last_execution_result"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (ComplianceRule) TableName() string {
	return "compliance_rules"
}

// TriggerCondition is a single property condition within an event rule.
// All conditions in a rule use AND logic.
type TriggerCondition struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	RuleID    uint   `gorm:"not null;index" json:"rule_id"`
	Property  string `gorm:"size:100;not null" json:"property"`
	Operator  string `gorm:"size:20;not null" json:"operator"`
	Value     string `gorm:"size:500;not null" json:"value"`
	SortOrder int    `gorm:"default:0" json:"sort_order"`
}

// TableName returns the table name for GORM.
func (TriggerCondition) TableName() string {
	return "trigger_conditions"
}
