package monitor

import (
	"testing"

	"github.com/regwatch/regwatch/internal/datastore/entities"
	"github.com/regwatch/regwatch/internal/errors"
	"github.com/regwatch/regwatch/internal/metricstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validThreshold() *entities.ComplianceRule {
	return &entities.ComplianceRule{
		Name:        "Score floor",
		TriggerType: TriggerTypeThreshold,
		MetricName:  metricstore.MetricComplianceScore,
		Operator:    OperatorLessThan,
		Value:       40,
		Severity:    SeverityHigh,
		AutoAction:  ActionRaiseAlert,
	}
}

func TestValidateRule(t *testing.T) {
	t.Run("valid threshold rule", func(t *testing.T) {
		assert.NoError(t, ValidateRule(validThreshold()))
	})

	t.Run("valid event rule", func(t *testing.T) {
		rule := &entities.ComplianceRule{
			Name:        "Expiry",
			TriggerType: TriggerTypeEvent,
			EventType:   EventLicenseExpired,
			Severity:    SeverityCritical,
			AutoAction:  ActionRaiseAlert,
			Conditions: []entities.TriggerCondition{
				{Property: "license_class", Operator: OperatorIs, Value: "dealer"},
			},
		}
		assert.NoError(t, ValidateRule(rule))
	})

	tests := []struct {
		name   string
		mutate func(*entities.ComplianceRule)
	}{
		{"empty name", func(r *entities.ComplianceRule) { r.Name = "  " }},
		{"bad severity", func(r *entities.ComplianceRule) { r.Severity = "urgent" }},
		{"bad action", func(r *entities.ComplianceRule) { r.AutoAction = "page_oncall" }},
		{"bad trigger type", func(r *entities.ComplianceRule) { r.TriggerType = "cron" }},
		{"unknown metric", func(r *entities.ComplianceRule) { r.MetricName = "karma" }},
		{"bad operator", func(r *entities.ComplianceRule) { r.Operator = "~=" }},
		{"negative interval", func(r *entities.ComplianceRule) { r.ScheduleIntervalSec = -1 }},
		{"threshold with event type", func(r *entities.ComplianceRule) { r.EventType = EventLicenseExpired }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := validThreshold()
			tt.mutate(rule)
			err := ValidateRule(rule)
			require.Error(t, err)
			assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
		})
	}

	t.Run("warning value on wrong side of threshold", func(t *testing.T) {
		rule := validThreshold()
		wrong := 30.0 // below the lt-40 threshold: zone inverted
		rule.WarningValue = &wrong
		err := ValidateRule(rule)
		require.Error(t, err)
		assert.True(t, errors.HasCategory(err, errors.CategoryValidation))

		right := 55.0
		rule.WarningValue = &right
		assert.NoError(t, ValidateRule(rule))
	})

	t.Run("event rule without event type", func(t *testing.T) {
		rule := &entities.ComplianceRule{
			Name:        "x",
			TriggerType: TriggerTypeEvent,
			Severity:    SeverityLow,
			AutoAction:  ActionNone,
		}
		assert.Error(t, ValidateRule(rule))
	})

	t.Run("event rule with bad condition operator", func(t *testing.T) {
		rule := &entities.ComplianceRule{
			Name:        "x",
			TriggerType: TriggerTypeEvent,
			EventType:   EventViolationRecorded,
			Severity:    SeverityLow,
			AutoAction:  ActionNone,
			Conditions: []entities.TriggerCondition{
				{Property: "count", Operator: "between", Value: "1"},
			},
		}
		assert.Error(t, ValidateRule(rule))
	})
}

func TestGetSchema(t *testing.T) {
	schema := GetSchema()

	assert.Len(t, schema.Metrics, 3)
	assert.NotEmpty(t, schema.Events)
	assert.NotEmpty(t, schema.Operators)
	assert.Contains(t, schema.Severities, SeverityCritical)
	assert.Contains(t, schema.Actions, ActionSendWarning)

	// Every metric in the schema passes rule validation.
	for _, m := range schema.Metrics {
		rule := validThreshold()
		rule.MetricName = m.Name
		assert.NoError(t, ValidateRule(rule), "schema metric %q", m.Name)
	}

	// Citizens never appear as a rule audience.
	assert.NotContains(t, schema.Roles, RoleCitizen)
}
