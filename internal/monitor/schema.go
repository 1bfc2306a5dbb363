package monitor

import "github.com/regwatch/regwatch/internal/metricstore"

// Schema describes the catalog of metrics, events, operators and actions
// available for rule building in the administrative UI.
type Schema struct {
	Metrics    []MetricSchema   `json:"metrics"`
	Events     []EventSchema    `json:"events"`
	Operators  []OperatorSchema `json:"operators"`
	Severities []string         `json:"severities"`
	Actions    []string         `json:"actions"`
	Roles      []string         `json:"roles"`
}

// MetricSchema describes a threshold metric.
type MetricSchema struct {
	Name      string   `json:"name"`
	Label     string   `json:"label"`
	Unit      string   `json:"unit"`
	Operators []string `json:"operators"`
}

// EventSchema describes an event trigger and its condition properties.
type EventSchema struct {
	Name       string           `json:"name"`
	Label      string           `json:"label"`
	Properties []PropertySchema `json:"properties"`
}

// PropertySchema describes a property available for condition building.
type PropertySchema struct {
	Name      string   `json:"name"`
	Label     string   `json:"label"`
	Type      string   `json:"type"` // "string" or "number"
	Operators []string `json:"operators"`
}

// OperatorSchema describes an operator for the UI.
type OperatorSchema struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Type  string `json:"type"` // "string" or "number"
}

var thresholdOperators = []string{
	OperatorGreaterThan, OperatorGreaterOrEqual,
	OperatorLessThan, OperatorLessOrEqual, OperatorEqual,
}

var stringOperators = []string{
	OperatorIs, OperatorIsNot, OperatorContains, OperatorNotContains,
}

// GetSchema returns the full rule-building schema for the UI.
func GetSchema() Schema {
	return Schema{
		Metrics: []MetricSchema{
			{Name: metricstore.MetricComplianceScore, Label: "Compliance Score", Unit: "points", Operators: thresholdOperators},
			{Name: metricstore.MetricTrainingHours, Label: "Training Hours", Unit: "hours", Operators: thresholdOperators},
			{Name: metricstore.MetricViolationCount, Label: "Violation Count", Unit: "violations", Operators: thresholdOperators},
		},
		Events: []EventSchema{
			{Name: EventLicenseExpired, Label: "License Expired", Properties: licenseProperties()},
			{Name: EventLicenseSuspended, Label: "License Suspended", Properties: licenseProperties()},
			{Name: EventViolationRecorded, Label: "Violation Recorded", Properties: violationProperties()},
			{Name: EventInspectionFailed, Label: "Inspection Failed", Properties: inspectionProperties()},
			{Name: EventTrainingLapsed, Label: "Training Lapsed", Properties: nil},
			{Name: EventRenewalMissed, Label: "Renewal Deadline Missed", Properties: licenseProperties()},
		},
		Operators: []OperatorSchema{
			{Name: OperatorIs, Label: "is", Type: "string"},
			{Name: OperatorIsNot, Label: "is not", Type: "string"},
			{Name: OperatorContains, Label: "contains", Type: "string"},
			{Name: OperatorNotContains, Label: "does not contain", Type: "string"},
			{Name: OperatorGreaterThan, Label: "greater than", Type: "number"},
			{Name: OperatorGreaterOrEqual, Label: "greater or equal", Type: "number"},
			{Name: OperatorLessThan, Label: "less than", Type: "number"},
			{Name: OperatorLessOrEqual, Label: "less or equal", Type: "number"},
			{Name: OperatorEqual, Label: "equal to", Type: "number"},
		},
		Severities: []string{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical},
		Actions:    []string{ActionRaiseAlert, ActionSendWarning, ActionNone},
		Roles:      []string{RoleAdmin, RoleInspector, RoleOperator, RoleDealer},
	}
}

func licenseProperties() []PropertySchema {
	return []PropertySchema{
		{Name: "license_class", Label: "License Class", Type: "string", Operators: stringOperators},
		{Name: "days_overdue", Label: "Days Overdue", Type: "number", Operators: thresholdOperators},
	}
}

func violationProperties() []PropertySchema {
	return []PropertySchema{
		{Name: "violation_type", Label: "Violation Type", Type: "string", Operators: stringOperators},
		{Name: "count", Label: "Count", Type: "number", Operators: thresholdOperators},
	}
}

func inspectionProperties() []PropertySchema {
	return []PropertySchema{
		{Name: "inspection_type", Label: "Inspection Type", Type: "string", Operators: stringOperators},
		{Name: "score", Label: "Inspection Score", Type: "number", Operators: thresholdOperators},
	}
}
