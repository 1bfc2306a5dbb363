// Package monitor is the compliance monitoring engine: rule evaluation,
// scheduling, alert and warning production.
package monitor

// Trigger types define how a rule is activated.
const (
	TriggerTypeThreshold = "threshold"
	TriggerTypeEvent     = "event"
)

// Event types identify portal events that event rules match against.
const (
	EventLicenseExpired    = "license.expired"
	EventLicenseSuspended  = "license.suspended"
	EventViolationRecorded = "violation.recorded"
	EventInspectionFailed  = "inspection.failed"
	EventTrainingLapsed    = "training.lapsed"
	EventRenewalMissed     = "renewal.missed"
)

// Threshold operators compare a metric value against the rule threshold.
const (
	OperatorGreaterThan    = "gt"
	OperatorGreaterOrEqual = "gte"
	OperatorLessThan       = "lt"
	OperatorLessOrEqual    = "lte"
	OperatorEqual          = "eq"
)

// Condition operators compare event properties.
const (
	OperatorIs          = "is"
	OperatorIsNot       = "is_not"
	OperatorContains    = "contains"
	OperatorNotContains = "not_contains"
)

// Severities order alert urgency.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Auto actions define what a matching rule produces.
const (
	ActionRaiseAlert  = "raise_alert"
	ActionSendWarning = "send_preventive_warning"
	ActionNone        = "none"
)

// Portal roles used for rule scope and notification audiences.
const (
	RoleAdmin     = "admin"
	RoleInspector = "inspector"
	RoleOperator  = "operator"
	RoleDealer    = "dealer"
	RoleCitizen   = "citizen"
)

// Rule categories derived from the triggering metric or event, recorded on
// alerts for dashboard grouping.
const (
	CategoryCompliance = "compliance"
	CategoryTraining   = "training"
	CategoryViolations = "violations"
	CategoryLicensing  = "licensing"
	CategoryInspection = "inspection"
)

// validSeverities is the allowlist used by rule validation.
var validSeverities = map[string]bool{
	SeverityLow:      true,
	SeverityMedium:   true,
	SeverityHigh:     true,
	SeverityCritical: true,
}

// validThresholdOperators is the allowlist for threshold rules.
var validThresholdOperators = map[string]bool{
	OperatorGreaterThan:    true,
	OperatorGreaterOrEqual: true,
	OperatorLessThan:       true,
	OperatorLessOrEqual:    true,
	OperatorEqual:          true,
}

// validConditionOperators is the allowlist for event rule conditions.
var validConditionOperators = map[string]bool{
	OperatorIs:             true,
	OperatorIsNot:          true,
	OperatorContains:       true,
	OperatorNotContains:    true,
	OperatorGreaterThan:    true,
	OperatorGreaterOrEqual: true,
	OperatorLessThan:       true,
	OperatorLessOrEqual:    true,
	OperatorEqual:          true,
}

// validAutoActions is the allowlist for rule auto actions.
var validAutoActions = map[string]bool{
	ActionRaiseAlert:  true,
	ActionSendWarning: true,
	ActionNone:        true,
}
