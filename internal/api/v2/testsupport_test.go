package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/regwatch/regwatch/internal/conf"
	"github.com/regwatch/regwatch/internal/dashboard"
	"github.com/regwatch/regwatch/internal/datastore/entities"
	"github.com/regwatch/regwatch/internal/datastore/repository"
	"github.com/regwatch/regwatch/internal/logger"
	"github.com/regwatch/regwatch/internal/metricstore"
	"github.com/regwatch/regwatch/internal/monitor"
	"github.com/regwatch/regwatch/internal/notification"
	"github.com/regwatch/regwatch/internal/risk"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

var notifOnce sync.Once

// initNotificationService initializes the process-wide notification service
// exactly once; the manager singleton cannot be re-initialized.
func initNotificationService() *notification.Service {
	notifOnce.Do(func() {
		notification.Initialize(notification.NewService(100, testLogger()))
	})
	return notification.GetService()
}

// stubProvider serves canned metric data to the engine and aggregator.
type stubProvider struct {
	snapshot []metricstore.EntityMetrics
	events   []metricstore.EntityEvent
	pops     map[string]int64
}

func (s *stubProvider) Snapshot(context.Context) ([]metricstore.EntityMetrics, error) {
	return s.snapshot, nil
}

func (s *stubProvider) History(context.Context, uint, int) ([]metricstore.HistoryPoint, error) {
	return nil, nil
}

func (s *stubProvider) RecentEvents(context.Context, time.Time) ([]metricstore.EntityEvent, error) {
	return s.events, nil
}

func (s *stubProvider) Populations(context.Context) (map[string]int64, error) {
	return s.pops, nil
}

// stubEnforcer records enforcement dispatches and optionally fails them.
type stubEnforcer struct {
	err     error
	actions []string
}

func (s *stubEnforcer) Dispatch(_ context.Context, _ *entities.Alert, action string) error {
	s.actions = append(s.actions, action)
	return s.err
}

type fixture struct {
	e        *echo.Echo
	repos    monitor.Repositories
	provider *stubProvider
	enforcer *stubEnforcer
	svc      *notification.Service
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_foreign_keys=ON"), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&entities.ComplianceRule{},
		&entities.TriggerCondition{},
		&entities.RuleExecution{},
		&entities.Alert{},
		&entities.PreventiveWarning{},
	))

	repos := monitor.Repositories{
		Rules:      repository.NewRuleRepository(db),
		Executions: repository.NewExecutionRepository(db),
		Alerts:     repository.NewAlertRepository(db),
		Warnings:   repository.NewWarningRepository(db),
	}

	provider := &stubProvider{
		snapshot: []metricstore.EntityMetrics{
			{EntityID: 1, EntityName: "Northwind Arms", Region: "north", Roles: []string{"dealer"},
				Metrics: map[string]float64{metricstore.MetricTrainingHours: 4, metricstore.MetricComplianceScore: 45}},
			{EntityID: 2, EntityName: "Southfield Range", Region: "south", Roles: []string{"operator"},
				Metrics: map[string]float64{metricstore.MetricTrainingHours: 30, metricstore.MetricComplianceScore: 90}},
		},
		pops: map[string]int64{"north": 100, "south": 100},
	}

	log := testLogger()
	svc := initNotificationService()
	settings := conf.Default()

	engine := monitor.NewEngine(monitor.EngineConfig{
		Rules:         repos.Rules,
		Executions:    repos.Executions,
		Alerts:        repos.Alerts,
		Warnings:      repos.Warnings,
		Provider:      provider,
		Dispatcher:    monitor.NewDispatcher(svc, log),
		Log:           log,
		RetryAttempts: 1,
		RetryBackoff:  time.Millisecond,
		EventWindow:   24 * time.Hour,
	})
	scheduler := monitor.NewScheduler(engine, repos.Rules, repos.Executions, &settings.Scheduler, log)
	t.Cleanup(scheduler.Stop)

	predictor := risk.NewPredictor(provider, settings.Risk.HistoryPeriods, log)
	aggregator := dashboard.NewAggregator(repos.Alerts, provider, predictor, settings.Regions, log)

	enforcer := &stubEnforcer{}
	ctrl := New(echo.New(), Options{
		Repos:      repos,
		Scheduler:  scheduler,
		Aggregator: aggregator,
		Enforcer:   enforcer,
		Log:        log,
	})

	return &fixture{
		e:        ctrl.Echo,
		repos:    repos,
		provider: provider,
		enforcer: enforcer,
		svc:      svc,
	}
}

// do issues a request with principal headers for the given role. An empty
// role sends no principal headers at all.
func (f *fixture) do(t *testing.T, method, path, role string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if role != "" {
		req.Header.Set(HeaderPrincipalID, "principal-1")
		req.Header.Set(HeaderPrincipalRole, role)
	}

	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// seedAlert inserts an active alert directly through the repository.
func (f *fixture) seedAlert(t *testing.T, entityID uint, severity, dedupKey string) *entities.Alert {
	t.Helper()
	alert := &entities.Alert{
		EntityID:   entityID,
		EntityName: "Northwind Arms",
		Category:   "training",
		Severity:   severity,
		Status:     entities.AlertStatusActive,
		Region:     "north",
		DedupKey:   dedupKey,
		Message:    "training hours below required minimum",
	}
	require.NoError(t, f.repos.Alerts.CreateAlert(t.Context(), alert))
	return alert
}

// seedRule inserts an enabled threshold rule.
func (f *fixture) seedRule(t *testing.T, name string) *entities.ComplianceRule {
	t.Helper()
	warning := 15.0
	rule := &entities.ComplianceRule{
		Name:                name,
		Enabled:             true,
		TriggerType:         monitor.TriggerTypeThreshold,
		MetricName:          metricstore.MetricTrainingHours,
		Operator:            monitor.OperatorLessThan,
		Value:               10,
		WarningValue:        &warning,
		Severity:            monitor.SeverityMedium,
		AutoAction:          monitor.ActionRaiseAlert,
		ScheduleIntervalSec: 3600,
	}
	require.NoError(t, f.repos.Rules.CreateRule(t.Context(), rule))
	return rule
}
