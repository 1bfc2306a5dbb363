package monitor

import (
	"strings"

	"github.com/regwatch/regwatch/internal/datastore/entities"
	"github.com/regwatch/regwatch/internal/errors"
	"github.com/regwatch/regwatch/internal/metricstore"
)

// knownMetrics is the set of metric names threshold rules may watch.
var knownMetrics = map[string]bool{
	metricstore.MetricComplianceScore: true,
	metricstore.MetricTrainingHours:   true,
	metricstore.MetricViolationCount:  true,
}

// ValidateRule checks a rule for structural problems before persistence.
// All failures carry the validation category so the API maps them to 400.
func ValidateRule(rule *entities.ComplianceRule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return errors.Newf("rule name is required").Category(errors.CategoryValidation).Context("field", "name")
	}
	if !validSeverities[rule.Severity] {
		return errors.Newf("invalid severity %q", rule.Severity).Category(errors.CategoryValidation).Context("field", "severity")
	}
	if !validAutoActions[rule.AutoAction] {
		return errors.Newf("invalid auto action %q", rule.AutoAction).Category(errors.CategoryValidation).Context("field", "auto_action")
	}
	if rule.ScheduleIntervalSec < 0 {
		return errors.Newf("schedule interval must not be negative").Category(errors.CategoryValidation).Context("field", "schedule_interval_sec")
	}

	switch rule.TriggerType {
	case TriggerTypeThreshold:
		return validateThresholdRule(rule)
	case TriggerTypeEvent:
		return validateEventRule(rule)
	default:
		return errors.Newf("invalid trigger type %q", rule.TriggerType).Category(errors.CategoryValidation).Context("field", "trigger_type")
	}
}

func validateThresholdRule(rule *entities.ComplianceRule) error {
	if !knownMetrics[rule.MetricName] {
		return errors.Newf("unknown metric %q", rule.MetricName).Category(errors.CategoryValidation).Context("field", "metric_name")
	}
	if !validThresholdOperators[rule.Operator] {
		return errors.Newf("invalid operator %q", rule.Operator).Category(errors.CategoryValidation).Context("field", "operator")
	}
	if rule.EventType != "" {
		return errors.Newf("threshold rules must not set an event type").Category(errors.CategoryValidation).Context("field", "event_type")
	}
	if rule.WarningValue != nil {
		// The warning value must sit on the clear side of the threshold,
		// otherwise the approaching zone is empty or inverted.
		if !CompareNumeric(rule.Operator, rule.Value, *rule.WarningValue) && *rule.WarningValue != rule.Value {
			return errors.Newf("warning value %v does not precede threshold %v for operator %s",
				*rule.WarningValue, rule.Value, rule.Operator).
				Category(errors.CategoryValidation).Context("field", "warning_value")
		}
	}
	return nil
}

func validateEventRule(rule *entities.ComplianceRule) error {
	if strings.TrimSpace(rule.EventType) == "" {
		return errors.Newf("event rules require an event type").Category(errors.CategoryValidation).Context("field", "event_type")
	}
	if rule.MetricName != "" || rule.Operator != "" {
		return errors.Newf("event rules must not set threshold fields").Category(errors.CategoryValidation).Context("field", "metric_name")
	}
	for i := range rule.Conditions {
		cond := &rule.Conditions[i]
		if strings.TrimSpace(cond.Property) == "" {
			return errors.Newf("condition %d: property is required", i).Category(errors.CategoryValidation).Context("field", "conditions")
		}
		if !validConditionOperators[cond.Operator] {
			return errors.Newf("condition %d: invalid operator %q", i, cond.Operator).Category(errors.CategoryValidation).Context("field", "conditions")
		}
	}
	return nil
}
