package monitor

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/regwatch/regwatch/internal/datastore/entities"
	"github.com/regwatch/regwatch/internal/datastore/repository"
	"github.com/regwatch/regwatch/internal/logger"
	"github.com/regwatch/regwatch/internal/metricstore"
	"github.com/regwatch/regwatch/internal/notification"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

func setupRepos(t *testing.T) Repositories {
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

	return Repositories{
		Rules:      repository.NewRuleRepository(db),
		Executions: repository.NewExecutionRepository(db),
		Alerts:     repository.NewAlertRepository(db),
		Warnings:   repository.NewWarningRepository(db),
	}
}

// stubProvider serves canned metric data and optionally fails snapshots.
type stubProvider struct {
	snapshot     []metricstore.EntityMetrics
	events       []metricstore.EntityEvent
	snapshotErrs int
	calls        int
}

func (s *stubProvider) Snapshot(context.Context) ([]metricstore.EntityMetrics, error) {
	s.calls++
	if s.snapshotErrs > 0 {
		s.snapshotErrs--
		return nil, context.DeadlineExceeded
	}
	return s.snapshot, nil
}

func (s *stubProvider) History(context.Context, uint, int) ([]metricstore.HistoryPoint, error) {
	return nil, nil
}

func (s *stubProvider) RecentEvents(context.Context, time.Time) ([]metricstore.EntityEvent, error) {
	return s.events, nil
}

func (s *stubProvider) Populations(context.Context) (map[string]int64, error) {
	return nil, nil
}

// recordingNotifier captures dispatched notifications.
type recordingNotifier struct {
	created []notification.Notification
}

func (r *recordingNotifier) Create(n notification.Notification) *notification.Notification {
	r.created = append(r.created, n)
	return &n
}

func newTestEngine(t *testing.T, repos Repositories, provider metricstore.Provider, notifier NotificationCreator) *Engine {
	t.Helper()
	return NewEngine(EngineConfig{
		Rules:         repos.Rules,
		Executions:    repos.Executions,
		Alerts:        repos.Alerts,
		Warnings:      repos.Warnings,
		Provider:      provider,
		Dispatcher:    NewDispatcher(notifier, testLogger()),
		Log:           testLogger(),
		RetryAttempts: 1,
		RetryBackoff:  time.Millisecond,
		EventWindow:   24 * time.Hour,
	})
}
