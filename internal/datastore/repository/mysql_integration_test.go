//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/regwatch/regwatch/internal/conf"
	"github.com/regwatch/regwatch/internal/datastore"
	"github.com/regwatch/regwatch/internal/datastore/entities"
	"github.com/regwatch/regwatch/internal/testutil/containers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMySQLRoundTrip exercises the MySQL datastore path end to end: open,
// migrate, and run the dedup and lifecycle queries that SQLite-backed unit
// tests cover in memory.
func TestMySQLRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()
	container, err := containers.NewMySQLContainer(ctx, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Errorf("failed to terminate container: %v", err)
		}
	})
	require.NoError(t, container.HealthCheck(ctx))

	db, err := datastore.Open(&conf.DatabaseSettings{Type: "mysql", DSN: container.DSN()})
	require.NoError(t, err)

	alerts := NewAlertRepository(db)
	rules := NewRuleRepository(db)

	rule := &entities.ComplianceRule{
		Name:                "Training hours deficit (mysql)",
		Enabled:             true,
		TriggerType:         "threshold",
		MetricName:          "training_hours",
		Operator:            "lt",
		Value:               10,
		Severity:            "medium",
		AutoAction:          "raise_alert",
		ScheduleIntervalSec: 3600,
	}
	require.NoError(t, rules.CreateRule(ctx, rule))

	alert := &entities.Alert{
		EntityID: 1,
		Category: "training",
		Severity: "medium",
		Status:   entities.AlertStatusActive,
		Region:   "north",
		DedupKey: "e1|r1|mtraining_hours",
	}
	require.NoError(t, alerts.CreateAlert(ctx, alert))

	dup := &entities.Alert{
		EntityID: 1,
		Category: "training",
		Severity: "medium",
		Status:   entities.AlertStatusActive,
		Region:   "north",
		DedupKey: "e1|r1|mtraining_hours",
	}
	err = alerts.CreateAlert(ctx, dup)
	assert.ErrorIs(t, err, ErrDuplicateAlert, "dedup must hold on MySQL too")

	acked, err := alerts.Acknowledge(ctx, alert.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, entities.AlertStatusAcknowledged, acked.Status)

	resolved, err := alerts.Resolve(ctx, alert.ID, entities.ResolutionActionSuspend, "repeated violations", time.Now())
	require.NoError(t, err)
	assert.Equal(t, entities.AlertStatusResolved, resolved.Status)

	require.NoError(t, container.Reset(ctx, []string{"alerts", "compliance_rules"}))
	count, err := alerts.Count(ctx, AlertQuery{})
	require.NoError(t, err)
	assert.Zero(t, count)
}
