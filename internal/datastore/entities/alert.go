package entities

import "time"

// Alert statuses. Transitions are forward-only:
// active → acknowledged → resolved, or active → resolved directly.
const (
	AlertStatusActive       = "active"
	AlertStatusAcknowledged = "acknowledged"
	AlertStatusResolved     = "resolved"
)

// Resolution actions recorded by an administrative intervention.
const (
	ResolutionActionWarning      = "warning"
	ResolutionActionSuspend      = "suspend"
	ResolutionActionBlockLicense = "block_license"
)

// Alert is a materialized, administratively-actionable compliance finding.
type Alert struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	EntityID   uint   `gorm:"not null;index" json:"entity_id"`
	EntityName string `gorm:"size:255;default:''" json:"entity_name"`
	Category   string `gorm:"size:100;not null;index" json:"category"`
	Severity   string `gorm:"size:20;not null;index" json:"severity"`
	Status     string `gorm:"size:20;not null;index" json:"status"`
	Region     string `gorm:"size:100;default:'';index" json:"region"`

	// SourceRuleID is nil for manually raised alerts.
	SourceRuleID *uint `gorm:"index" json:"source_rule_id,omitempty"`

	// DedupKey identifies "this condition for this entity". At most one
	// open (non-resolved) alert exists per key; the evaluation engine
	// skips entities whose key is already covered.
	DedupKey string `gorm:"size:255;not null;index" json:"dedup_key"`

	// MetricSnapshot is the JSON-encoded metric values captured at
	// creation time, kept for audit and oldest-unresolved display.
	MetricSnapshot string `gorm:"type:text;default:''" json:"metric_snapshot"`

	Message string `gorm:"size:1000;default:''" json:"message"`

	CreatedAt      time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	AcknowledgedAt *time.Time `gorm:"default:null" json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `gorm:"default:null" json:"resolved_at,omitempty"`

	// ResolutionAction and ResolutionNotes are set only when resolved.
	ResolutionAction string `gorm:"size:40;default:''" json:"resolution_action,omitempty"`
	ResolutionNotes  string `gorm:"type:text;default:''" json:"resolution_notes,omitempty"`
}

// TableName returns the table name for GORM.
func (Alert) TableName() string {
	return "alerts"
}

// Open reports whether the alert still covers its dedup key.
func (a *Alert) Open() bool {
	return a.Status != AlertStatusResolved
}
