package api

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/regwatch/regwatch/internal/datastore/entities"
	"github.com/regwatch/regwatch/internal/errors"
	"github.com/regwatch/regwatch/internal/monitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListAlerts(t *testing.T) {
	f := setup(t)
	f.seedAlert(t, 1, monitor.SeverityCritical, "e1|r1|mtraining_hours")
	f.seedAlert(t, 2, monitor.SeverityMedium, "e2|r1|mtraining_hours")

	rec := f.do(t, http.MethodGet, "/api/v2/alerts", monitor.RoleInspector, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 2, body["total"])

	rec = f.do(t, http.MethodGet, "/api/v2/alerts?severity=critical", monitor.RoleInspector, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeBody(t, rec)["total"])

	rec = f.do(t, http.MethodGet, "/api/v2/alerts?entity_id=bogus", monitor.RoleInspector, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAlert(t *testing.T) {
	f := setup(t)
	alert := f.seedAlert(t, 1, monitor.SeverityHigh, "e1|r1|mcompliance_score")

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/api/v2/alerts/%d", alert.ID), monitor.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Northwind Arms", body["entity_name"])
	assert.Equal(t, entities.AlertStatusActive, body["status"])

	rec = f.do(t, http.MethodGet, "/api/v2/alerts/9999", monitor.RoleAdmin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAcknowledgeAlert(t *testing.T) {
	f := setup(t)
	alert := f.seedAlert(t, 1, monitor.SeverityHigh, "e1|r2|mcompliance_score")

	path := fmt.Sprintf("/api/v2/alerts/%d/acknowledge", alert.ID)
	rec := f.do(t, http.MethodPost, path, monitor.RoleInspector, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, entities.AlertStatusAcknowledged, body["status"])
	assert.NotEmpty(t, body["acknowledged_at"])

	// Repeat acknowledge is a no-op success.
	rec = f.do(t, http.MethodPost, path, monitor.RoleInspector, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v2/alerts/9999/acknowledge", monitor.RoleInspector, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInterveneAlert(t *testing.T) {
	f := setup(t)
	alert := f.seedAlert(t, 1, monitor.SeverityCritical, "e1|r3|mviolation_count")
	path := fmt.Sprintf("/api/v2/alerts/%d/intervene", alert.ID)

	// Missing notes is rejected before any state change.
	rec := f.do(t, http.MethodPost, path, monitor.RoleAdmin, map[string]string{"action": "suspend"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, path, monitor.RoleAdmin, map[string]string{"notes": "repeated violations"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, path, monitor.RoleAdmin,
		map[string]string{"action": "revoke_everything", "notes": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, path, monitor.RoleAdmin,
		map[string]string{"action": "suspend", "notes": "repeated violations"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, entities.AlertStatusResolved, body["status"])
	assert.Equal(t, entities.ResolutionActionSuspend, body["resolution_action"])
	assert.Equal(t, []string{"suspend"}, f.enforcer.actions)

	// Intervening on a resolved alert is a conflict.
	rec = f.do(t, http.MethodPost, path, monitor.RoleAdmin,
		map[string]string{"action": "warning", "notes": "again"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v2/alerts/9999/intervene", monitor.RoleAdmin,
		map[string]string{"action": "suspend", "notes": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInterveneAlert_EnforcementFailureTolerated(t *testing.T) {
	f := setup(t)
	f.enforcer.err = errors.NewStd("enforcement system unreachable")
	alert := f.seedAlert(t, 1, monitor.SeverityCritical, "e1|r4|mviolation_count")

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/api/v2/alerts/%d/intervene", alert.ID),
		monitor.RoleAdmin, map[string]string{"action": "block_license", "notes": "falsified records"})
	require.Equal(t, http.StatusOK, rec.Code, "dispatch failure must not fail the transition")

	stored, err := f.repos.Alerts.GetAlert(t.Context(), alert.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.AlertStatusResolved, stored.Status)
	assert.Contains(t, stored.ResolutionNotes, "falsified records")
	assert.Contains(t, stored.ResolutionNotes, "enforcement dispatch failed")
}

func TestWarningLifecycleEndpoints(t *testing.T) {
	f := setup(t)
	warning := &entities.PreventiveWarning{
		EntityID: 1,
		RuleID:   1,
		Status:   entities.WarningStatusPending,
		DedupKey: "e1|r1|mtraining_hours",
		Message:  "training hours approaching minimum",
	}
	require.NoError(t, f.repos.Warnings.CreateWarning(t.Context(), warning))

	rec := f.do(t, http.MethodGet, "/api/v2/warnings?status=pending", monitor.RoleInspector, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeBody(t, rec)["total"])

	path := fmt.Sprintf("/api/v2/warnings/%d/acknowledge", warning.ID)
	rec = f.do(t, http.MethodPost, path, monitor.RoleOperator, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, entities.WarningStatusAcknowledged, decodeBody(t, rec)["status"])

	// Closed warnings reject further transitions.
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/v2/warnings/%d/dismiss", warning.ID),
		monitor.RoleOperator, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
