package entities

import "time"

// Preventive warning statuses. Warnings need only entity-side
// acknowledgment, not administrative intervention.
const (
	WarningStatusPending      = "pending"
	WarningStatusAcknowledged = "acknowledged"
	WarningStatusDismissed    = "dismissed"
)

// PreventiveWarning is a lighter-weight, entity-facing notice raised before
// a condition hardens into an Alert (e.g. approaching a threshold).
type PreventiveWarning struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	EntityID uint   `gorm:"not null;index" json:"entity_id"`
	RuleID   uint   `gorm:"not null;index" json:"rule_id"`
	Status   string `gorm:"size:20;not null;index" json:"status"`
	Message  string `gorm:"size:1000;not null" json:"message"`

	// DedupKey mirrors Alert.DedupKey; a pending warning blocks re-raising.
	DedupKey string `gorm:"size:255;not null;index" json:"dedup_key"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (PreventiveWarning) TableName() string {
	return "preventive_warnings"
}
