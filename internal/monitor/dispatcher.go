package monitor

import (
	"fmt"
	"strings"

	"github.com/regwatch/regwatch/internal/datastore/entities"
	"github.com/regwatch/regwatch/internal/logger"
	"github.com/regwatch/regwatch/internal/notification"
)

// defaultAudience receives notifications when a rule names no target roles.
const defaultAudience = RoleAdmin + "," + RoleInspector

// NotificationCreator abstracts the notification service for testability.
type NotificationCreator interface {
	Create(n notification.Notification) *notification.Notification
}

// Dispatcher turns created alerts and warnings into notification records
// addressed to the rule's target roles.
type Dispatcher struct {
	notifier NotificationCreator
	log      logger.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(notifier NotificationCreator, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Default()
	}
	return &Dispatcher{notifier: notifier, log: log}
}

// NotifyAlert records a notification for a freshly created alert. Returns
// the number of notifications sent.
func (d *Dispatcher) NotifyAlert(rule *entities.ComplianceRule, alert *entities.Alert) int {
	if d.notifier == nil {
		return 0
	}
	d.notifier.Create(notification.Notification{
		Type:     notification.TypeAlert,
		Title:    fmt.Sprintf("Compliance alert: %s", rule.Name),
		Message:  alert.Message,
		Severity: alert.Severity,
		Audience: audienceFor(rule),
		EntityID: alert.EntityID,
		AlertID:  alert.ID,
		RuleID:   rule.ID,
	})
	return 1
}

// NotifyWarning records a notification for a preventive warning. Warnings
// are entity-facing, so the audience includes the entity's own operators.
func (d *Dispatcher) NotifyWarning(rule *entities.ComplianceRule, warning *entities.PreventiveWarning) int {
	if d.notifier == nil {
		return 0
	}
	d.notifier.Create(notification.Notification{
		Type:     notification.TypeWarning,
		Title:    fmt.Sprintf("Preventive warning: %s", rule.Name),
		Message:  warning.Message,
		Severity: SeverityLow,
		Audience: audienceFor(rule),
		EntityID: warning.EntityID,
		RuleID:   rule.ID,
	})
	return 1
}

func audienceFor(rule *entities.ComplianceRule) string {
	if strings.TrimSpace(rule.TargetRoles) != "" {
		return rule.TargetRoles
	}
	return defaultAudience
}

// alertMessage renders the human-readable alert text for a threshold match.
func alertMessage(rule *entities.ComplianceRule, entityName string, value float64) string {
	return fmt.Sprintf("%s: %s has %s %s %s (threshold %s)",
		rule.Name, entityName, rule.MetricName,
		operatorPhrase(rule.Operator), formatNumber(value), formatNumber(rule.Value))
}

// warningMessage renders the text for an approaching-threshold warning.
func warningMessage(rule *entities.ComplianceRule, entityName string, value float64) string {
	return fmt.Sprintf("%s: %s is approaching the %s threshold with %s (limit %s)",
		rule.Name, entityName, rule.MetricName,
		formatNumber(value), formatNumber(rule.Value))
}

// eventMessage renders the text for an event rule match.
func eventMessage(rule *entities.ComplianceRule, entityName, eventType string) string {
	return fmt.Sprintf("%s: %s triggered %s", rule.Name, entityName, eventType)
}

func operatorPhrase(operator string) string {
	switch operator {
	case OperatorGreaterThan:
		return "above"
	case OperatorGreaterOrEqual:
		return "at or above"
	case OperatorLessThan:
		return "below"
	case OperatorLessOrEqual:
		return "at or below"
	case OperatorEqual:
		return "equal to"
	default:
		return operator
	}
}

func formatNumber(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
