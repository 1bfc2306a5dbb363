package monitor

import (
	"context"

	"github.com/regwatch/regwatch/internal/conf"
	"github.com/regwatch/regwatch/internal/datastore/repository"
	"github.com/regwatch/regwatch/internal/logger"
	"github.com/regwatch/regwatch/internal/metricstore"
	"github.com/regwatch/regwatch/internal/notification"
)

// Repositories bundles the persistence interfaces the monitor needs.
type Repositories struct {
	Rules      repository.RuleRepository
	Executions repository.ExecutionRepository
	Alerts     repository.AlertRepository
	Warnings   repository.WarningRepository
}

// notificationAdapter lazily resolves the notification service so the
// monitor and notification subsystems have no initialization ordering.
type notificationAdapter struct{}

func (notificationAdapter) Create(n notification.Notification) *notification.Notification {
	svc := notification.GetService()
	if svc == nil {
		return nil
	}
	return svc.Create(n)
}

// Initialize seeds default rules, builds the engine and returns a stopped
// scheduler. Callers decide when to Start it.
func Initialize(
	repos Repositories,
	provider metricstore.Provider,
	settings *conf.Settings,
	recorder ExecutionRecorder,
	log logger.Logger,
) (*Scheduler, error) {
	ctx := context.Background()
	if log == nil {
		log = logger.Default()
	}

	if err := seedDefaultRules(ctx, repos.Rules, log); err != nil {
		return nil, err
	}

	dispatcher := NewDispatcher(notificationAdapter{}, log)
	engine := NewEngine(EngineConfig{
		Rules:         repos.Rules,
		Executions:    repos.Executions,
		Alerts:        repos.Alerts,
		Warnings:      repos.Warnings,
		Provider:      provider,
		Dispatcher:    dispatcher,
		Recorder:      recorder,
		Log:           log,
		RetryAttempts: settings.MetricStore.RetryAttempts,
		RetryBackoff:  settings.MetricStore.RetryBackoff.Std(),
		EventWindow:   settings.MetricStore.EventWindow.Std(),
	})

	scheduler := NewScheduler(engine, repos.Rules, repos.Executions, &settings.Scheduler, log)
	log.Info("monitoring engine initialized")
	return scheduler, nil
}

// seedDefaultRules ensures all built-in rules exist. It checks by name so
// partial seeds from previous runs self-heal on restart.
func seedDefaultRules(ctx context.Context, rules repository.RuleRepository, log logger.Logger) error {
	existing, err := rules.ListRules(ctx, repository.RuleFilter{})
	if err != nil {
		return err
	}

	existingNames := make(map[string]struct{}, len(existing))
	for i := range existing {
		existingNames[existing[i].Name] = struct{}{}
	}

	defaults := DefaultRules()
	var created int
	for i := range defaults {
		if _, exists := existingNames[defaults[i].Name]; exists {
			continue
		}
		if err := rules.CreateRule(ctx, &defaults[i]); err != nil {
			return err
		}
		created++
	}
	if created > 0 {
		log.Info("seeded default compliance rules", logger.Int("created", created))
	}
	return nil
}

// ResetDefaults removes built-in rules and reseeds them, leaving custom
// rules untouched.
func ResetDefaults(ctx context.Context, rules repository.RuleRepository, log logger.Logger) (int, error) {
	if _, err := rules.DeleteBuiltInRules(ctx); err != nil {
		return 0, err
	}
	defaults := DefaultRules()
	for i := range defaults {
		if err := rules.CreateRule(ctx, &defaults[i]); err != nil {
			return i, err
		}
	}
	log.Info("restored default compliance rules", logger.Int("count", len(defaults)))
	return len(defaults), nil
}
