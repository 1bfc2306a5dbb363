package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/regwatch/regwatch/internal/conf"
	"github.com/regwatch/regwatch/internal/datastore/entities"
	"github.com/regwatch/regwatch/internal/datastore/repository"
	"github.com/regwatch/regwatch/internal/errors"
	"github.com/regwatch/regwatch/internal/logger"
)

// cleanupInterval is how often the ledger retention pass runs.
const cleanupInterval = 1 * time.Hour

// cleanupTimeout bounds one retention delete.
const cleanupTimeout = 30 * time.Second

// ErrExecutionInFlight is returned when a rule is already being evaluated.
var ErrExecutionInFlight = errors.NewStd("rule execution already in flight")

// SchedulerStatus is the externally visible scheduler state.
type SchedulerStatus struct {
	Running       bool       `json:"running"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CheckInterval string     `json:"check_interval"`
	RulesInFlight int        `json:"rules_in_flight"`
}

// Scheduler drives periodic rule evaluation. Start and Stop are idempotent;
// each rule runs at most once concurrently regardless of how it was
// triggered (tick or on-demand).
type Scheduler struct {
	engine *Engine
	rules  repository.RuleRepository
	execs  repository.ExecutionRepository
	log    logger.Logger

	checkInterval    time.Duration
	executionTimeout time.Duration
	retentionDays    int

	mu        sync.Mutex
	running   bool
	startedAt time.Time
	stop      chan struct{}
	wg        sync.WaitGroup

	inFlight   map[uint]struct{}
	inFlightMu sync.Mutex
}

// NewScheduler creates a Scheduler around the engine.
func NewScheduler(engine *Engine, rules repository.RuleRepository, execs repository.ExecutionRepository, settings *conf.SchedulerSettings, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Default()
	}
	return &Scheduler{
		engine:           engine,
		rules:            rules,
		execs:            execs,
		log:              log,
		checkInterval:    settings.CheckInterval.Std(),
		executionTimeout: settings.ExecutionTimeout.Std(),
		retentionDays:    settings.LedgerRetentionDays,
		inFlight:         make(map[uint]struct{}),
	}
}

// Start launches the scheduling loop. Calling Start on a running scheduler
// is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.startedAt = time.Now()
	s.stop = make(chan struct{})

	s.wg.Add(1)
	go s.loop(s.stop)
	if s.retentionDays > 0 {
		s.wg.Add(1)
		go s.cleanupLoop(s.stop)
	}
	s.log.Info("scheduler started",
		logger.String("check_interval", s.checkInterval.String()))
}

// Stop halts the loop and waits for in-flight evaluations to drain.
// Calling Stop on a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

// Status reports the current scheduler state.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	running := s.running
	startedAt := s.startedAt
	s.mu.Unlock()

	s.inFlightMu.Lock()
	inFlight := len(s.inFlight)
	s.inFlightMu.Unlock()

	status := SchedulerStatus{
		Running:       running,
		CheckInterval: s.checkInterval.String(),
		RulesInFlight: inFlight,
	}
	if running {
		status.StartedAt = &startedAt
	}
	return status
}

func (s *Scheduler) loop(stop chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	// First pass immediately so a restart doesn't wait a full interval.
	s.runDueRules()
	for {
		select {
		case <-ticker.C:
			s.runDueRules()
		case <-stop:
			return
		}
	}
}

// runDueRules evaluates every enabled rule whose interval has elapsed.
// Failures are isolated per rule.
func (s *Scheduler) runDueRules() {
	ctx, cancel := context.WithTimeout(context.Background(), s.checkInterval)
	rules, err := s.rules.GetEnabledRules(ctx)
	cancel()
	if err != nil {
		s.log.Error("failed to load enabled rules", logger.Error(err))
		return
	}

	now := time.Now()
	for i := range rules {
		rule := rules[i]
		if !s.isDue(&rule, now) {
			continue
		}
		if _, err := s.execute(&rule); err != nil && !errors.Is(err, ErrExecutionInFlight) {
			s.log.Warn("scheduled evaluation failed",
				logger.Uint64("rule_id", uint64(rule.ID)),
				logger.Error(err))
		}
	}
}

// isDue checks the rule's interval against its last run, flooring the
// interval at the configured sanity minimum.
func (s *Scheduler) isDue(rule *entities.ComplianceRule, now time.Time) bool {
	if rule.LastExecutedAt == nil {
		return true
	}
	interval := time.Duration(rule.ScheduleIntervalSec) * time.Second
	if interval < conf.MinScheduleInterval {
		interval = conf.MinScheduleInterval
	}
	return now.Sub(*rule.LastExecutedAt) >= interval
}

// ExecuteRule runs one rule on demand, bypassing the schedule but not the
// in-flight guard. Disabled rules run when explicitly requested.
func (s *Scheduler) ExecuteRule(ctx context.Context, ruleID uint) (*EvalResult, error) {
	rule, err := s.rules.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	return s.execute(rule)
}

// RunAll evaluates every enabled rule immediately, isolating per-rule
// failures. Returns results for rules that produced a ledger entry.
func (s *Scheduler) RunAll(ctx context.Context) ([]EvalResult, error) {
	rules, err := s.rules.GetEnabledRules(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]EvalResult, 0, len(rules))
	for i := range rules {
		result, err := s.execute(&rules[i])
		if err != nil && result == nil {
			s.log.Warn("rule skipped in run-all",
				logger.Uint64("rule_id", uint64(rules[i].ID)),
				logger.Error(err))
			continue
		}
		if result != nil {
			results = append(results, *result)
		}
	}
	return results, nil
}

// execute runs the engine for one rule under the in-flight guard and the
// execution timeout.
func (s *Scheduler) execute(rule *entities.ComplianceRule) (*EvalResult, error) {
	s.inFlightMu.Lock()
	if _, busy := s.inFlight[rule.ID]; busy {
		s.inFlightMu.Unlock()
		return nil, ErrExecutionInFlight
	}
	s.inFlight[rule.ID] = struct{}{}
	// Registered under the same lock so Stop waits for request-triggered
	// executions, not just the loop.
	s.wg.Add(1)
	s.inFlightMu.Unlock()

	defer func() {
		s.inFlightMu.Lock()
		delete(s.inFlight, rule.ID)
		s.inFlightMu.Unlock()
		s.wg.Done()
	}()

	// Detached from the caller: an HTTP disconnect must not abort a
	// half-written evaluation.
	ctx, cancel := context.WithTimeout(context.Background(), s.executionTimeout)
	defer cancel()
	return s.engine.Evaluate(ctx, rule)
}

// cleanupLoop prunes finished ledger entries past the retention window.
func (s *Scheduler) cleanupLoop(stop chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
			ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
			deleted, err := s.execs.DeleteFinishedBefore(ctx, cutoff)
			cancel()
			if err != nil {
				s.log.Error("execution ledger cleanup failed", logger.Error(err))
			} else if deleted > 0 {
				s.log.Info("execution ledger cleanup completed",
					logger.Int64("deleted", deleted),
					logger.Int("retention_days", s.retentionDays))
			}
		case <-stop:
			return
		}
	}
}
