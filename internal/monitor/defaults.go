package monitor

import (
	"github.com/regwatch/regwatch/internal/datastore/entities"
	"github.com/regwatch/regwatch/internal/metricstore"
)

func floatPtr(v float64) *float64 { return &v }

// DefaultRules returns the built-in compliance rules seeded on first start
// and restorable via reset-defaults.
func DefaultRules() []entities.ComplianceRule {
	return []entities.ComplianceRule{
		{
			Name:                "Compliance score critical",
			Description:         "Raises an alert when an entity's compliance score falls below 40",
			Enabled:             true,
			BuiltIn:             true,
			TriggerType:         TriggerTypeThreshold,
			MetricName:          metricstore.MetricComplianceScore,
			Operator:            OperatorLessThan,
			Value:               40,
			WarningValue:        floatPtr(55),
			Severity:            SeverityCritical,
			AutoAction:          ActionRaiseAlert,
			ScheduleIntervalSec: 3600,
		},
		{
			Name:                "Compliance score low",
			Description:         "Warns operators when an entity's compliance score falls below 60",
			Enabled:             true,
			BuiltIn:             true,
			TriggerType:         TriggerTypeThreshold,
			MetricName:          metricstore.MetricComplianceScore,
			Operator:            OperatorLessThan,
			Value:               60,
			Severity:            SeverityMedium,
			AutoAction:          ActionSendWarning,
			TargetRoles:         RoleOperator,
			ScheduleIntervalSec: 3600,
		},
		{
			Name:                "Training hours deficit",
			Description:         "Raises an alert when logged training hours fall below 10 for the period",
			Enabled:             true,
			BuiltIn:             true,
			TriggerType:         TriggerTypeThreshold,
			MetricName:          metricstore.MetricTrainingHours,
			Operator:            OperatorLessThan,
			Value:               10,
			WarningValue:        floatPtr(15),
			Severity:            SeverityMedium,
			AutoAction:          ActionRaiseAlert,
			ScheduleIntervalSec: 86400,
		},
		{
			Name:                "Repeated violations",
			Description:         "Raises an alert when an entity accumulates more than 3 violations",
			Enabled:             true,
			BuiltIn:             true,
			TriggerType:         TriggerTypeThreshold,
			MetricName:          metricstore.MetricViolationCount,
			Operator:            OperatorGreaterThan,
			Value:               3,
			Severity:            SeverityHigh,
			AutoAction:          ActionRaiseAlert,
			ScheduleIntervalSec: 21600,
		},
		{
			Name:                "License expired",
			Description:         "Raises a critical alert when a license expiry event is recorded",
			Enabled:             true,
			BuiltIn:             true,
			TriggerType:         TriggerTypeEvent,
			EventType:           EventLicenseExpired,
			Severity:            SeverityCritical,
			AutoAction:          ActionRaiseAlert,
			ScheduleIntervalSec: 1800,
		},
		{
			Name:                "Failed inspection",
			Description:         "Raises an alert when an inspection failure event is recorded",
			Enabled:             true,
			BuiltIn:             true,
			TriggerType:         TriggerTypeEvent,
			EventType:           EventInspectionFailed,
			Severity:            SeverityHigh,
			AutoAction:          ActionRaiseAlert,
			ScheduleIntervalSec: 3600,
		},
		{
			Name:                "Renewal deadline missed",
			Description:         "Warns an entity when it misses a license renewal deadline",
			Enabled:             true,
			BuiltIn:             true,
			TriggerType:         TriggerTypeEvent,
			EventType:           EventRenewalMissed,
			Severity:            SeverityMedium,
			AutoAction:          ActionSendWarning,
			TargetRoles:         RoleOperator + "," + RoleDealer,
			ScheduleIntervalSec: 21600,
		},
	}
}
