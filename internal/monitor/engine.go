package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/regwatch/regwatch/internal/datastore/entities"
	"github.com/regwatch/regwatch/internal/datastore/repository"
	"github.com/regwatch/regwatch/internal/errors"
	"github.com/regwatch/regwatch/internal/logger"
	"github.com/regwatch/regwatch/internal/metricstore"
)

// finishWriteTimeout bounds the ledger finish and rule stamp writes, which
// run on their own context so an expired evaluation deadline cannot strand
// the entry in running state.
const finishWriteTimeout = 10 * time.Second

// EvalResult summarizes one rule execution. The same data lands in the
// execution ledger; callers get it back directly so the API can return it
// without re-reading the row.
type EvalResult struct {
	ExecutionID uint   `json:"execution_id"`
	TraceID     string `json:"trace_id"`
	Status      string `json:"status"`

	EntitiesEvaluated int `json:"entities_evaluated"`
	EntitiesMatched   int `json:"entities_matched"`
	AlertsCreated     int `json:"alerts_created"`
	WarningsCreated   int `json:"warnings_created"`
	NotificationsSent int `json:"notifications_sent"`

	Error string `json:"error,omitempty"`
}

// Engine evaluates compliance rules against the metric store and records
// every run in the execution ledger.
type Engine struct {
	rules      repository.RuleRepository
	executions repository.ExecutionRepository
	alerts     repository.AlertRepository
	warnings   repository.WarningRepository
	provider   metricstore.Provider
	dispatcher *Dispatcher
	recorder   ExecutionRecorder
	log        logger.Logger

	retryAttempts int
	retryBackoff  time.Duration
	eventWindow   time.Duration
}

// ExecutionRecorder receives counters for completed and failed runs.
// Implemented by the observability metrics; nil disables recording.
type ExecutionRecorder interface {
	RecordExecution(status string, duration time.Duration)
	RecordAlertsCreated(n int)
	RecordWarningsCreated(n int)
}

// EngineConfig bundles the Engine's collaborators.
type EngineConfig struct {
	Rules      repository.RuleRepository
	Executions repository.ExecutionRepository
	Alerts     repository.AlertRepository
	Warnings   repository.WarningRepository
	Provider   metricstore.Provider
	Dispatcher *Dispatcher
	Recorder   ExecutionRecorder
	Log        logger.Logger

	RetryAttempts int
	RetryBackoff  time.Duration
	EventWindow   time.Duration
}

// NewEngine creates an evaluation engine.
func NewEngine(cfg EngineConfig) *Engine {
	log := cfg.Log
	if log == nil {
		log = logger.Default()
	}
	if cfg.EventWindow <= 0 {
		cfg.EventWindow = 24 * time.Hour
	}
	return &Engine{
		rules:         cfg.Rules,
		executions:    cfg.Executions,
		alerts:        cfg.Alerts,
		warnings:      cfg.Warnings,
		provider:      cfg.Provider,
		dispatcher:    cfg.Dispatcher,
		recorder:      cfg.Recorder,
		log:           log,
		retryAttempts: cfg.RetryAttempts,
		retryBackoff:  cfg.RetryBackoff,
		eventWindow:   cfg.EventWindow,
	}
}

// Evaluate runs one rule once. Every invocation leaves exactly one ledger
// entry; evaluation failures finish the entry as failed and are also
// returned as an error.
func (e *Engine) Evaluate(ctx context.Context, rule *entities.ComplianceRule) (*EvalResult, error) {
	exec := &entities.RuleExecution{
		RuleID:  rule.ID,
		TraceID: uuid.New().String(),
	}
	if err := e.executions.Create(ctx, exec); err != nil {
		return nil, errors.New(err).Category(errors.CategoryDependency)
	}

	startedAt := time.Now()
	if err := e.executions.Start(ctx, exec.ID, startedAt); err != nil {
		return nil, errors.New(err).Category(errors.CategoryDependency)
	}

	log := e.log.With(
		logger.Uint64("rule_id", uint64(rule.ID)),
		logger.String("trace_id", exec.TraceID))

	result := &EvalResult{ExecutionID: exec.ID, TraceID: exec.TraceID}
	var evalErr error
	switch rule.TriggerType {
	case TriggerTypeThreshold:
		evalErr = e.evaluateThreshold(ctx, rule, result)
	case TriggerTypeEvent:
		evalErr = e.evaluateEvents(ctx, rule, result)
	default:
		evalErr = errors.Newf("unknown trigger type %q", rule.TriggerType).Category(errors.CategoryExecution)
	}

	finishedAt := time.Now()
	outcome := repository.ExecutionOutcome{
		FinishedAt:        finishedAt,
		EntitiesEvaluated: result.EntitiesEvaluated,
		EntitiesMatched:   result.EntitiesMatched,
		AlertsCreated:     result.AlertsCreated,
		WarningsCreated:   result.WarningsCreated,
		NotificationsSent: result.NotificationsSent,
	}
	var stamp string
	if evalErr != nil {
		outcome.Status = entities.ExecutionStatusFailed
		outcome.Error = evalErr.Error()
		stamp = truncate("failed: "+evalErr.Error(), 255)
		log.Error("rule evaluation failed", logger.Error(evalErr))
	} else {
		outcome.Status = entities.ExecutionStatusCompleted
		stamp = fmt.Sprintf("completed: %d matched, %d alerts, %d warnings",
			result.EntitiesMatched, result.AlertsCreated, result.WarningsCreated)
		log.Info("rule evaluation completed",
			logger.Int("evaluated", result.EntitiesEvaluated),
			logger.Int("matched", result.EntitiesMatched),
			logger.Int("alerts", result.AlertsCreated),
			logger.Int("warnings", result.WarningsCreated))
	}
	result.Status = outcome.Status
	result.Error = outcome.Error

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishWriteTimeout)
	defer cancel()
	if err := e.executions.Finish(finishCtx, exec.ID, outcome); err != nil {
		log.Error("failed to finish execution ledger entry", logger.Error(err))
	}
	if err := e.rules.RecordExecutionStamp(finishCtx, rule.ID, finishedAt, stamp); err != nil {
		log.Warn("failed to record rule execution stamp", logger.Error(err))
	}
	if e.recorder != nil {
		e.recorder.RecordExecution(outcome.Status, finishedAt.Sub(startedAt))
		e.recorder.RecordAlertsCreated(result.AlertsCreated)
		e.recorder.RecordWarningsCreated(result.WarningsCreated)
	}
	return result, evalErr
}

// loadSnapshot reads the metric snapshot with bounded retries. Exhausted
// retries surface as a dependency failure.
func (e *Engine) loadSnapshot(ctx context.Context) ([]metricstore.EntityMetrics, error) {
	var lastErr error
	for attempt := 0; attempt <= e.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.retryBackoff):
			}
		}
		snapshot, err := e.provider.Snapshot(ctx)
		if err == nil {
			return snapshot, nil
		}
		lastErr = err
		e.log.Warn("metric snapshot read failed",
			logger.Int("attempt", attempt+1),
			logger.Error(err))
	}
	return nil, errors.Newf("metric store unavailable after %d attempts: %w", e.retryAttempts+1, lastErr).
		Category(errors.CategoryDependency)
}

func (e *Engine) evaluateThreshold(ctx context.Context, rule *entities.ComplianceRule, result *EvalResult) error {
	snapshot, err := e.loadSnapshot(ctx)
	if err != nil {
		return err
	}

	for i := range snapshot {
		em := &snapshot[i]
		if !inScope(rule, em.Region, em.Roles) {
			continue
		}
		result.EntitiesEvaluated++

		value, ok := em.Metrics[rule.MetricName]
		if !ok {
			continue
		}
		switch classifyThreshold(rule, value) {
		case outcomeMatched:
			result.EntitiesMatched++
			e.actOnMatch(ctx, rule, em, value, result)
		case outcomeApproaching:
			// Dry-run rules count matches but never persist anything,
			// warnings included.
			if rule.AutoAction != ActionNone {
				e.raiseWarning(ctx, rule, em.EntityID,
					thresholdDedupKey(em.EntityID, rule), warningMessage(rule, em.EntityName, value), result)
			}
		}
	}
	return nil
}

func (e *Engine) evaluateEvents(ctx context.Context, rule *entities.ComplianceRule, result *EvalResult) error {
	since := time.Now().Add(-e.eventWindow)
	events, err := e.provider.RecentEvents(ctx, since)
	if err != nil {
		return errors.Newf("failed to read recent events: %w", err).Category(errors.CategoryDependency)
	}

	for i := range events {
		ev := &events[i]
		if ev.Type != rule.EventType {
			continue
		}
		if !inScope(rule, ev.Region, nil) {
			continue
		}
		result.EntitiesEvaluated++
		if !EvaluateConditions(rule.Conditions, ev.Properties) {
			continue
		}
		result.EntitiesMatched++

		key := eventDedupKey(ev.EntityID, rule, ev.OccurredAt)
		switch rule.AutoAction {
		case ActionRaiseAlert:
			snapshotJSON, _ := json.Marshal(ev.Properties)
			e.raiseAlert(ctx, rule, &entities.Alert{
				EntityID:       ev.EntityID,
				EntityName:     ev.EntityName,
				Region:         ev.Region,
				DedupKey:       key,
				MetricSnapshot: string(snapshotJSON),
				Message:        eventMessage(rule, ev.EntityName, ev.Type),
			}, result)
		case ActionSendWarning:
			e.raiseWarning(ctx, rule, ev.EntityID, key,
				eventMessage(rule, ev.EntityName, ev.Type), result)
		}
	}
	return nil
}

// actOnMatch routes a threshold match to the rule's auto action.
func (e *Engine) actOnMatch(ctx context.Context, rule *entities.ComplianceRule, em *metricstore.EntityMetrics, value float64, result *EvalResult) {
	key := thresholdDedupKey(em.EntityID, rule)
	switch rule.AutoAction {
	case ActionRaiseAlert:
		snapshotJSON, _ := json.Marshal(em.Metrics)
		e.raiseAlert(ctx, rule, &entities.Alert{
			EntityID:       em.EntityID,
			EntityName:     em.EntityName,
			Region:         em.Region,
			DedupKey:       key,
			MetricSnapshot: string(snapshotJSON),
			Message:        alertMessage(rule, em.EntityName, value),
		}, result)
	case ActionSendWarning:
		e.raiseWarning(ctx, rule, em.EntityID, key,
			warningMessage(rule, em.EntityName, value), result)
	}
}

// raiseAlert persists an alert unless its dedup key is already open.
// Persistence failures are logged, not propagated: one entity's bad row
// should not abort the rest of the run.
func (e *Engine) raiseAlert(ctx context.Context, rule *entities.ComplianceRule, alert *entities.Alert, result *EvalResult) {
	ruleID := rule.ID
	alert.SourceRuleID = &ruleID
	alert.Category = categoryForRule(rule)
	alert.Severity = rule.Severity

	err := e.alerts.CreateAlert(ctx, alert)
	switch {
	case err == nil:
		result.AlertsCreated++
		if e.dispatcher != nil {
			result.NotificationsSent += e.dispatcher.NotifyAlert(rule, alert)
		}
	case errors.Is(err, repository.ErrDuplicateAlert):
		// Already covered by an open alert.
	default:
		e.log.Error("failed to create alert",
			logger.Uint64("rule_id", uint64(rule.ID)),
			logger.Uint64("entity_id", uint64(alert.EntityID)),
			logger.Error(err))
	}
}

// raiseWarning persists a preventive warning unless one is already pending.
func (e *Engine) raiseWarning(ctx context.Context, rule *entities.ComplianceRule, entityID uint, dedupKey, message string, result *EvalResult) {
	warning := &entities.PreventiveWarning{
		EntityID: entityID,
		RuleID:   rule.ID,
		Message:  message,
		DedupKey: dedupKey,
	}
	err := e.warnings.CreateWarning(ctx, warning)
	switch {
	case err == nil:
		result.WarningsCreated++
		if e.dispatcher != nil {
			result.NotificationsSent += e.dispatcher.NotifyWarning(rule, warning)
		}
	case errors.Is(err, repository.ErrDuplicateAlert):
		// Already pending.
	default:
		e.log.Error("failed to create preventive warning",
			logger.Uint64("rule_id", uint64(rule.ID)),
			logger.Uint64("entity_id", uint64(entityID)),
			logger.Error(err))
	}
}

// inScope applies the rule's region and role targeting.
func inScope(rule *entities.ComplianceRule, region string, roles []string) bool {
	if rule.TargetRegion != "" && !strings.EqualFold(rule.TargetRegion, region) {
		return false
	}
	wanted := splitList(rule.TargetRoles)
	if len(wanted) == 0 || roles == nil {
		return true
	}
	em := metricstore.EntityMetrics{Roles: roles}
	return em.HasRole(wanted)
}

// thresholdDedupKey identifies "this metric condition for this entity".
// Stable across runs so an open alert suppresses re-raising.
func thresholdDedupKey(entityID uint, rule *entities.ComplianceRule) string {
	return fmt.Sprintf("e%d|r%d|m%s", entityID, rule.ID, rule.MetricName)
}

// eventDedupKey scopes event alerts to the occurrence day, so a repeating
// event re-raises at most once per day per entity once the prior alert is
// resolved.
func eventDedupKey(entityID uint, rule *entities.ComplianceRule, occurredAt time.Time) string {
	return fmt.Sprintf("e%d|r%d|p%s", entityID, rule.ID, occurredAt.UTC().Format("2006-01-02"))
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
