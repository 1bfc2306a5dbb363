package monitor

import (
	"strconv"
	"strings"

	"github.com/regwatch/regwatch/internal/datastore/entities"
)

// Threshold outcomes. An entity either breaches the hard threshold,
// sits in the approaching zone before it, or is clear.
const (
	outcomeClear       = "clear"
	outcomeApproaching = "approaching"
	outcomeMatched     = "matched"
)

// CompareNumeric applies a threshold operator to a metric value.
func CompareNumeric(operator string, value, threshold float64) bool {
	switch operator {
	case OperatorGreaterThan:
		return value > threshold
	case OperatorGreaterOrEqual:
		return value >= threshold
	case OperatorLessThan:
		return value < threshold
	case OperatorLessOrEqual:
		return value <= threshold
	case OperatorEqual:
		return value == threshold
	default:
		return false
	}
}

// classifyThreshold evaluates a metric value against a threshold rule.
// The approaching zone lies strictly between the warning value and the
// hard threshold: a value breaching the hard threshold is matched, never
// approaching, regardless of the warning value.
func classifyThreshold(rule *entities.ComplianceRule, value float64) string {
	if CompareNumeric(rule.Operator, value, rule.Value) {
		return outcomeMatched
	}
	if rule.WarningValue != nil && CompareNumeric(rule.Operator, value, *rule.WarningValue) {
		return outcomeApproaching
	}
	return outcomeClear
}

// EvaluateConditions checks all conditions against event properties with
// AND logic. An empty condition list always matches; a condition on an
// absent property never does.
func EvaluateConditions(conditions []entities.TriggerCondition, properties map[string]string) bool {
	for i := range conditions {
		if !evaluateCondition(&conditions[i], properties) {
			return false
		}
	}
	return true
}

func evaluateCondition(cond *entities.TriggerCondition, properties map[string]string) bool {
	propVal, exists := properties[cond.Property]
	if !exists {
		return false
	}

	switch cond.Operator {
	case OperatorIs:
		return strings.EqualFold(propVal, cond.Value)
	case OperatorIsNot:
		return !strings.EqualFold(propVal, cond.Value)
	case OperatorContains:
		return strings.Contains(strings.ToLower(propVal), strings.ToLower(cond.Value))
	case OperatorNotContains:
		return !strings.Contains(strings.ToLower(propVal), strings.ToLower(cond.Value))
	case OperatorGreaterThan, OperatorGreaterOrEqual, OperatorLessThan, OperatorLessOrEqual, OperatorEqual:
		propFloat, err := strconv.ParseFloat(propVal, 64)
		if err != nil {
			return false
		}
		condFloat, err := strconv.ParseFloat(cond.Value, 64)
		if err != nil {
			return false
		}
		return CompareNumeric(cond.Operator, propFloat, condFloat)
	default:
		return false
	}
}

// categoryForRule derives the alert category from what the rule watches.
func categoryForRule(rule *entities.ComplianceRule) string {
	if rule.TriggerType == TriggerTypeEvent {
		switch {
		case strings.HasPrefix(rule.EventType, "license."), rule.EventType == EventRenewalMissed:
			return CategoryLicensing
		case rule.EventType == EventViolationRecorded:
			return CategoryViolations
		case rule.EventType == EventInspectionFailed:
			return CategoryInspection
		case rule.EventType == EventTrainingLapsed:
			return CategoryTraining
		default:
			return CategoryCompliance
		}
	}
	switch rule.MetricName {
	case "training_hours":
		return CategoryTraining
	case "violation_count":
		return CategoryViolations
	default:
		return CategoryCompliance
	}
}
