package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/regwatch/regwatch/internal/datastore/entities"
	"github.com/regwatch/regwatch/internal/datastore/repository"
	"github.com/regwatch/regwatch/internal/metricstore"
	"github.com/regwatch/regwatch/internal/notification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func thresholdRule(t *testing.T, repos Repositories, warningValue *float64) *entities.ComplianceRule {
	t.Helper()
	rule := &entities.ComplianceRule{
		Name:                "Training hours deficit",
		Enabled:             true,
		TriggerType:         TriggerTypeThreshold,
		MetricName:          metricstore.MetricTrainingHours,
		Operator:            OperatorLessThan,
		Value:               10,
		WarningValue:        warningValue,
		Severity:            SeverityMedium,
		AutoAction:          ActionRaiseAlert,
		ScheduleIntervalSec: 3600,
	}
	require.NoError(t, repos.Rules.CreateRule(t.Context(), rule))
	return rule
}

func entity(id uint, name, region string, hours float64) metricstore.EntityMetrics {
	return metricstore.EntityMetrics{
		EntityID:   id,
		EntityName: name,
		Region:     region,
		Roles:      []string{RoleOperator},
		Metrics:    map[string]float64{metricstore.MetricTrainingHours: hours},
	}
}

func TestEngine_ThresholdEvaluation(t *testing.T) {
	repos := setupRepos(t)
	warning := 15.0
	rule := thresholdRule(t, repos, &warning)

	provider := &stubProvider{snapshot: []metricstore.EntityMetrics{
		entity(1, "Acme", "north", 4),   // matched
		entity(2, "Borealis", "north", 12), // approaching
		entity(3, "Cirrus", "south", 30),   // clear
	}}
	notifier := &recordingNotifier{}
	engine := newTestEngine(t, repos, provider, notifier)

	result, err := engine.Evaluate(t.Context(), rule)
	require.NoError(t, err)

	assert.Equal(t, entities.ExecutionStatusCompleted, result.Status)
	assert.Equal(t, 3, result.EntitiesEvaluated)
	assert.Equal(t, 1, result.EntitiesMatched)
	assert.Equal(t, 1, result.AlertsCreated)
	assert.Equal(t, 1, result.WarningsCreated)
	assert.Equal(t, 2, result.NotificationsSent)

	alerts, _, err := repos.Alerts.ListAlerts(t.Context(), repository.AlertQuery{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, uint(1), alerts[0].EntityID)
	assert.Equal(t, CategoryTraining, alerts[0].Category)
	assert.Equal(t, SeverityMedium, alerts[0].Severity)
	assert.Equal(t, "e1|r1|mtraining_hours", alerts[0].DedupKey)
	assert.Contains(t, alerts[0].Message, "Acme")

	warnings, _, err := repos.Warnings.ListWarnings(t.Context(), repository.WarningFilter{})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, uint(2), warnings[0].EntityID)

	require.Len(t, notifier.created, 2)
	assert.Equal(t, notification.TypeAlert, notifier.created[0].Type)
	assert.Equal(t, notification.TypeWarning, notifier.created[1].Type)

	// Ledger entry carries the same counts.
	exec, err := repos.Executions.Get(t.Context(), result.ExecutionID)
	require.NoError(t, err)
	assert.True(t, exec.Finished())
	assert.Equal(t, 1, exec.AlertsCreated)
	assert.Equal(t, result.TraceID, exec.TraceID)

	// Denormalized stamp updated.
	got, err := repos.Rules.GetRule(t.Context(), rule.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastExecutedAt)
	assert.Contains(t, got.LastExecutionResult, "completed")
}

func TestEngine_RepeatRunDoesNotDuplicate(t *testing.T) {
	repos := setupRepos(t)
	rule := thresholdRule(t, repos, nil)

	provider := &stubProvider{snapshot: []metricstore.EntityMetrics{
		entity(1, "Acme", "north", 4),
	}}
	notifier := &recordingNotifier{}
	engine := newTestEngine(t, repos, provider, notifier)

	first, err := engine.Evaluate(t.Context(), rule)
	require.NoError(t, err)
	assert.Equal(t, 1, first.AlertsCreated)

	second, err := engine.Evaluate(t.Context(), rule)
	require.NoError(t, err)
	assert.Equal(t, 1, second.EntitiesMatched)
	assert.Zero(t, second.AlertsCreated, "open alert must suppress re-raising")
	assert.Zero(t, second.NotificationsSent)

	// Resolving the alert releases the dedup key for the next run.
	alerts, _, err := repos.Alerts.ListAlerts(t.Context(), repository.AlertQuery{}, 0, 0)
	require.NoError(t, err)
	_, err = repos.Alerts.Resolve(t.Context(), alerts[0].ID, entities.ResolutionActionWarning, "handled", time.Now())
	require.NoError(t, err)

	third, err := engine.Evaluate(t.Context(), rule)
	require.NoError(t, err)
	assert.Equal(t, 1, third.AlertsCreated)

	// Three runs, three ledger entries.
	_, total, err := repos.Executions.List(t.Context(), repository.ExecutionFilter{RuleID: rule.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
}

func TestEngine_ScopeFiltering(t *testing.T) {
	repos := setupRepos(t)
	rule := thresholdRule(t, repos, nil)
	rule.TargetRegion = "north"
	rule.TargetRoles = RoleDealer
	require.NoError(t, repos.Rules.UpdateRule(t.Context(), rule))

	inScopeEntity := entity(1, "Acme", "north", 4)
	inScopeEntity.Roles = []string{RoleDealer}
	provider := &stubProvider{snapshot: []metricstore.EntityMetrics{
		inScopeEntity,
		entity(2, "Borealis", "south", 4), // wrong region
		entity(3, "Cirrus", "north", 4),   // wrong role
	}}
	engine := newTestEngine(t, repos, provider, &recordingNotifier{})

	result, err := engine.Evaluate(t.Context(), rule)
	require.NoError(t, err)
	assert.Equal(t, 1, result.EntitiesEvaluated)
	assert.Equal(t, 1, result.AlertsCreated)
}

func TestEngine_SnapshotRetry(t *testing.T) {
	repos := setupRepos(t)
	rule := thresholdRule(t, repos, nil)

	provider := &stubProvider{
		snapshotErrs: 1,
		snapshot:     []metricstore.EntityMetrics{entity(1, "Acme", "north", 4)},
	}
	engine := newTestEngine(t, repos, provider, &recordingNotifier{})

	result, err := engine.Evaluate(t.Context(), rule)
	require.NoError(t, err)
	assert.Equal(t, entities.ExecutionStatusCompleted, result.Status)
	assert.Equal(t, 2, provider.calls)
}

func TestEngine_SnapshotFailureFinishesLedger(t *testing.T) {
	repos := setupRepos(t)
	rule := thresholdRule(t, repos, nil)

	// More failures than the engine's one retry tolerates.
	provider := &stubProvider{snapshotErrs: 5}
	engine := newTestEngine(t, repos, provider, &recordingNotifier{})

	result, err := engine.Evaluate(t.Context(), rule)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, entities.ExecutionStatusFailed, result.Status)
	assert.NotEmpty(t, result.Error)

	exec, getErr := repos.Executions.Get(t.Context(), result.ExecutionID)
	require.NoError(t, getErr)
	assert.Equal(t, entities.ExecutionStatusFailed, exec.Status)
	assert.True(t, exec.Finished())
	assert.NotEmpty(t, exec.Error)

	got, getErr := repos.Rules.GetRule(t.Context(), rule.ID)
	require.NoError(t, getErr)
	assert.Contains(t, got.LastExecutionResult, "failed")
}

func TestEngine_EventEvaluation(t *testing.T) {
	repos := setupRepos(t)
	rule := &entities.ComplianceRule{
		Name:        "License expired",
		Enabled:     true,
		TriggerType: TriggerTypeEvent,
		EventType:   EventLicenseExpired,
		Severity:    SeverityCritical,
		AutoAction:  ActionRaiseAlert,
		Conditions: []entities.TriggerCondition{
			{Property: "license_class", Operator: OperatorIs, Value: "dealer"},
		},
	}
	require.NoError(t, repos.Rules.CreateRule(t.Context(), rule))

	occurred := time.Now().Add(-time.Hour)
	provider := &stubProvider{events: []metricstore.EntityEvent{
		{
			EntityID: 1, EntityName: "Acme", Region: "north",
			Type:       EventLicenseExpired,
			Properties: map[string]string{"license_class": "dealer"},
			OccurredAt: occurred,
		},
		{
			EntityID: 2, EntityName: "Borealis", Region: "north",
			Type:       EventLicenseExpired,
			Properties: map[string]string{"license_class": "operator"},
			OccurredAt: occurred,
		},
		{
			EntityID: 3, EntityName: "Cirrus", Region: "north",
			Type:       EventViolationRecorded,
			OccurredAt: occurred,
		},
	}}
	notifier := &recordingNotifier{}
	engine := newTestEngine(t, repos, provider, notifier)

	result, err := engine.Evaluate(t.Context(), rule)
	require.NoError(t, err)
	assert.Equal(t, 2, result.EntitiesEvaluated, "only matching event types count")
	assert.Equal(t, 1, result.EntitiesMatched)
	assert.Equal(t, 1, result.AlertsCreated)

	alerts, _, err := repos.Alerts.ListAlerts(t.Context(), repository.AlertQuery{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, CategoryLicensing, alerts[0].Category)
	assert.Contains(t, alerts[0].DedupKey, "|p"+occurred.UTC().Format("2006-01-02"))

	// Re-running within the same day does not re-alert.
	again, err := engine.Evaluate(t.Context(), rule)
	require.NoError(t, err)
	assert.Zero(t, again.AlertsCreated)
}

// stallingProvider blocks Snapshot until the caller's context expires.
type stallingProvider struct {
	stubProvider
}

func (s *stallingProvider) Snapshot(ctx context.Context) ([]metricstore.EntityMetrics, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestEngine_ExpiredContextStillFinishesLedger(t *testing.T) {
	repos := setupRepos(t)
	rule := thresholdRule(t, repos, nil)
	engine := newTestEngine(t, repos, &stallingProvider{}, &recordingNotifier{})

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	result, err := engine.Evaluate(ctx, rule)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, entities.ExecutionStatusFailed, result.Status)

	// The ledger entry must not stay stuck in running just because the
	// evaluation deadline fired.
	exec, getErr := repos.Executions.Get(t.Context(), result.ExecutionID)
	require.NoError(t, getErr)
	assert.Equal(t, entities.ExecutionStatusFailed, exec.Status)
	require.NotNil(t, exec.FinishedAt)

	got, getErr := repos.Rules.GetRule(t.Context(), rule.ID)
	require.NoError(t, getErr)
	assert.Contains(t, got.LastExecutionResult, "failed")
}

func TestEngine_ActionNoneOnlyCounts(t *testing.T) {
	repos := setupRepos(t)
	rule := thresholdRule(t, repos, nil)
	rule.AutoAction = ActionNone
	require.NoError(t, repos.Rules.UpdateRule(t.Context(), rule))

	provider := &stubProvider{snapshot: []metricstore.EntityMetrics{
		entity(1, "Acme", "north", 4),
	}}
	engine := newTestEngine(t, repos, provider, &recordingNotifier{})

	result, err := engine.Evaluate(t.Context(), rule)
	require.NoError(t, err)
	assert.Equal(t, 1, result.EntitiesMatched)
	assert.Zero(t, result.AlertsCreated)
	assert.Zero(t, result.WarningsCreated)
}

func TestEngine_ActionNoneSkipsApproachingWarnings(t *testing.T) {
	repos := setupRepos(t)
	warning := 15.0
	rule := thresholdRule(t, repos, &warning)
	rule.AutoAction = ActionNone
	require.NoError(t, repos.Rules.UpdateRule(t.Context(), rule))

	// 12 sits between the hard threshold (10) and the warning value (15).
	provider := &stubProvider{snapshot: []metricstore.EntityMetrics{
		entity(1, "Acme", "north", 12),
	}}
	engine := newTestEngine(t, repos, provider, &recordingNotifier{})

	result, err := engine.Evaluate(t.Context(), rule)
	require.NoError(t, err)
	assert.Equal(t, 1, result.EntitiesEvaluated)
	assert.Zero(t, result.WarningsCreated)
	assert.Zero(t, result.NotificationsSent)

	warnings, _, err := repos.Warnings.ListWarnings(t.Context(), repository.WarningFilter{})
	require.NoError(t, err)
	assert.Empty(t, warnings, "dry-run rules must not persist warnings")
}
