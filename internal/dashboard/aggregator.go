// Package dashboard aggregates alert, resolution and risk data into the
// read models the administrative dashboard renders.
package dashboard

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/regwatch/regwatch/internal/datastore/entities"
	"github.com/regwatch/regwatch/internal/datastore/repository"
	"github.com/regwatch/regwatch/internal/errors"
	"github.com/regwatch/regwatch/internal/logger"
	"github.com/regwatch/regwatch/internal/metricstore"
	"github.com/regwatch/regwatch/internal/monitor"
	"github.com/regwatch/regwatch/internal/risk"
)

// Supported time periods for windowed aggregations.
const (
	Period24h = "24h"
	Period7d  = "7d"
	Period30d = "30d"
	Period90d = "90d"
	PeriodAll = "all"
)

// trendEpsilon is the relative change below which a trend reads as stable.
const trendEpsilon = 0.01

// Priority queue age cutoffs.
const (
	criticalAgeCutoff = 24 * time.Hour
	highAgeCutoff     = 48 * time.Hour
)

var periodDurations = map[string]time.Duration{
	Period24h: 24 * time.Hour,
	Period7d:  7 * 24 * time.Hour,
	Period30d: 30 * 24 * time.Hour,
	Period90d: 90 * 24 * time.Hour,
}

// ParsePeriod validates a period string, defaulting empty to 7d. The
// returned duration is zero for "all".
func ParsePeriod(s string) (string, time.Duration, error) {
	if s == "" {
		s = Period7d
	}
	if s == PeriodAll {
		return s, 0, nil
	}
	d, ok := periodDurations[s]
	if !ok {
		return "", 0, errors.Newf("invalid time period %q", s).
			Category(errors.CategoryValidation).Context("field", "period")
	}
	return s, d, nil
}

// Filter narrows dashboard aggregations to one severity, region or alert
// category. Empty fields match everything; set fields compose with AND.
type Filter struct {
	Severity string
	Region   string
	Category string
}

// apply copies the filter's dimensions onto an alert query.
func (f Filter) apply(q repository.AlertQuery) repository.AlertQuery {
	q.Severity = f.Severity
	q.Region = f.Region
	q.Category = f.Category
	return q
}

// Summary is the headline dashboard block.
type Summary struct {
	TimePeriod string `json:"time_period"`

	TotalActive     int64            `json:"total_active"`
	BySeverity      map[string]int64 `json:"by_severity"`
	ByCategory      map[string]int64 `json:"by_category"`
	FlaggedEntities int64            `json:"flagged_entities"`

	CreatedInPeriod  int64 `json:"created_in_period"`
	ResolvedInPeriod int64 `json:"resolved_in_period"`

	// ResolutionRate is resolved/created in the period, as a percentage.
	ResolutionRate float64 `json:"resolution_rate"`

	// TotalPopulation is the tracked entity count across all regions.
	TotalPopulation int64 `json:"total_population"`
	// AlertRatePct is open alerts as a percentage of the population.
	AlertRatePct float64 `json:"alert_rate_pct"`
	// AlertsPer10k is open alerts per 10k tracked entities.
	AlertsPer10k float64 `json:"alerts_per_10k"`
}

// TrendPoint compares the current window against the previous one.
type TrendPoint struct {
	Current   int64   `json:"current"`
	Previous  int64   `json:"previous"`
	ChangePct float64 `json:"change_pct"`
	Direction string  `json:"direction"` // up, down or stable
}

// Trends is the movement block of the dashboard.
type Trends struct {
	TimePeriod string     `json:"time_period"`
	Created    TrendPoint `json:"created"`
	Resolved   TrendPoint `json:"resolved"`

	// ResolutionVelocity is resolutions per day in the current window.
	ResolutionVelocity float64 `json:"resolution_velocity"`
	// AvgResolutionHours is the mean age of alerts resolved in the window.
	AvgResolutionHours float64 `json:"avg_resolution_hours"`
}

// RegionHealth is one row of the regional heat map.
type RegionHealth struct {
	Region       string  `json:"region"`
	OpenAlerts   int64   `json:"open_alerts"`
	Population   int64   `json:"population"`
	AlertsPer10k float64 `json:"alerts_per_10k"`
	Status       string  `json:"status"`
}

// PriorityEntry is one alert needing administrative attention.
type PriorityEntry struct {
	Alert  entities.Alert `json:"alert"`
	Reason string         `json:"reason"`
	AgeHrs float64        `json:"age_hours"`
}

// ResolutionMetrics summarizes intervention throughput for a period.
type ResolutionMetrics struct {
	TimePeriod string `json:"time_period"`

	Resolved          int64            `json:"resolved"`
	ByAction          map[string]int64 `json:"by_action"`
	AvgHoursToAck     float64          `json:"avg_hours_to_ack"`
	AvgHoursToResolve float64          `json:"avg_hours_to_resolve"`
}

// Aggregator assembles dashboard read models.
type Aggregator struct {
	alerts    repository.AlertRepository
	provider  metricstore.Provider
	predictor *risk.Predictor
	regions   []string
	log       logger.Logger
}

// NewAggregator creates an Aggregator. regions is the configured region
// list; the heat map always returns one entry per region.
func NewAggregator(alerts repository.AlertRepository, provider metricstore.Provider, predictor *risk.Predictor, regions []string, log logger.Logger) *Aggregator {
	if log == nil {
		log = logger.Default()
	}
	return &Aggregator{
		alerts:    alerts,
		provider:  provider,
		predictor: predictor,
		regions:   regions,
		log:       log,
	}
}

// Summary builds the headline block for a period, narrowed by the filter.
func (a *Aggregator) Summary(ctx context.Context, period string, filter Filter) (*Summary, error) {
	period, window, err := ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	open := filter.apply(repository.AlertQuery{OpenOnly: true})

	totalActive, err := a.alerts.Count(ctx, open)
	if err != nil {
		return nil, fmt.Errorf("failed to count active alerts: %w", err)
	}
	bySeverity, err := a.alerts.CountGrouped(ctx, open, "severity")
	if err != nil {
		return nil, fmt.Errorf("failed to group alerts by severity: %w", err)
	}
	byCategory, err := a.alerts.CountGrouped(ctx, open, "category")
	if err != nil {
		return nil, fmt.Errorf("failed to group alerts by category: %w", err)
	}
	flagged, err := a.alerts.CountDistinctEntities(ctx, open)
	if err != nil {
		return nil, fmt.Errorf("failed to count flagged entities: %w", err)
	}

	var created, resolved int64
	if window > 0 {
		from := now.Add(-window)
		created, err = a.alerts.Count(ctx, filter.apply(repository.AlertQuery{CreatedFrom: &from}))
		if err != nil {
			return nil, fmt.Errorf("failed to count created alerts: %w", err)
		}
		resolved, err = a.alerts.Count(ctx, filter.apply(repository.AlertQuery{
			Status: entities.AlertStatusResolved, ResolvedFrom: &from,
		}))
	} else {
		created, err = a.alerts.Count(ctx, filter.apply(repository.AlertQuery{}))
		if err != nil {
			return nil, fmt.Errorf("failed to count created alerts: %w", err)
		}
		resolved, err = a.alerts.Count(ctx, filter.apply(repository.AlertQuery{Status: entities.AlertStatusResolved}))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to count resolved alerts: %w", err)
	}

	s := &Summary{
		TimePeriod:       period,
		TotalActive:      totalActive,
		BySeverity:       bySeverity,
		ByCategory:       byCategory,
		FlaggedEntities:  flagged,
		CreatedInPeriod:  created,
		ResolvedInPeriod: resolved,
	}
	if created > 0 {
		s.ResolutionRate = round2(float64(resolved) / float64(created) * 100)
	}

	populations, err := a.provider.Populations(ctx)
	if err != nil {
		// The summary is still useful without per-capita rates.
		a.log.Warn("failed to load populations for summary", logger.Error(err))
		return s, nil
	}
	var total int64
	for region, n := range populations {
		if filter.Region != "" && region != filter.Region {
			continue
		}
		total += n
	}
	s.TotalPopulation = total
	if total > 0 {
		s.AlertRatePct = round2(float64(totalActive) / float64(total) * 100)
		s.AlertsPer10k = round2(float64(totalActive) / float64(total) * 10000)
	}
	return s, nil
}

// Trends compares the current window against the previous one, narrowed by
// the filter. Period "all" has no previous window and is rejected.
func (a *Aggregator) Trends(ctx context.Context, period string, filter Filter) (*Trends, error) {
	period, window, err := ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	if window == 0 {
		return nil, errors.Newf("trends require a bounded period").
			Category(errors.CategoryValidation).Context("field", "period")
	}

	now := time.Now()
	curFrom := now.Add(-window)
	prevFrom := now.Add(-2 * window)

	curCreated, err := a.alerts.Count(ctx, filter.apply(repository.AlertQuery{CreatedFrom: &curFrom}))
	if err != nil {
		return nil, fmt.Errorf("failed to count current created: %w", err)
	}
	prevCreated, err := a.alerts.Count(ctx, filter.apply(repository.AlertQuery{CreatedFrom: &prevFrom, CreatedTo: &curFrom}))
	if err != nil {
		return nil, fmt.Errorf("failed to count previous created: %w", err)
	}

	curResolved, err := a.alerts.ResolvedBetween(ctx, filter.apply(repository.AlertQuery{}), curFrom, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list current resolved: %w", err)
	}
	prevResolved, err := a.alerts.ResolvedBetween(ctx, filter.apply(repository.AlertQuery{}), prevFrom, curFrom)
	if err != nil {
		return nil, fmt.Errorf("failed to list previous resolved: %w", err)
	}

	t := &Trends{
		TimePeriod: period,
		Created:    trendPoint(curCreated, prevCreated),
		Resolved:   trendPoint(int64(len(curResolved)), int64(len(prevResolved))),
	}

	days := window.Hours() / 24
	if days > 0 {
		t.ResolutionVelocity = round2(float64(len(curResolved)) / days)
	}
	if len(curResolved) > 0 {
		var totalHours float64
		for i := range curResolved {
			if curResolved[i].ResolvedAt != nil {
				totalHours += curResolved[i].ResolvedAt.Sub(curResolved[i].CreatedAt).Hours()
			}
		}
		t.AvgResolutionHours = round2(totalHours / float64(len(curResolved)))
	}
	return t, nil
}

// HeatMap returns one entry per configured region, in configuration order,
// regardless of alert counts. A severity or category filter narrows which
// open alerts each region counts.
func (a *Aggregator) HeatMap(ctx context.Context, filter Filter) ([]RegionHealth, error) {
	byRegion, err := a.alerts.CountGrouped(ctx, filter.apply(repository.AlertQuery{OpenOnly: true}), "region")
	if err != nil {
		return nil, fmt.Errorf("failed to group alerts by region: %w", err)
	}
	populations, err := a.provider.Populations(ctx)
	if err != nil {
		return nil, errors.Newf("failed to load region populations: %w", err).
			Category(errors.CategoryDependency)
	}

	out := make([]RegionHealth, 0, len(a.regions))
	for _, region := range a.regions {
		entry := RegionHealth{
			Region:     region,
			OpenAlerts: byRegion[region],
			Population: populations[region],
			Status:     risk.HealthHealthy,
		}
		if entry.Population > 0 {
			entry.AlertsPer10k = round2(float64(entry.OpenAlerts) / float64(entry.Population) * 10000)
			entry.Status = risk.HealthStatusForRate(entry.AlertsPer10k)
		}
		out = append(out, entry)
	}
	return out, nil
}

// PriorityQueue returns open alerts needing attention, most urgent first:
// aged criticals, never-acknowledged criticals, aged highs, and always the
// oldest unresolved alert.
func (a *Aggregator) PriorityQueue(ctx context.Context, limit int, filter Filter) ([]PriorityEntry, error) {
	open, _, err := a.alerts.ListAlerts(ctx, filter.apply(repository.AlertQuery{OpenOnly: true}), 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list open alerts: %w", err)
	}

	now := time.Now()
	entries := make([]PriorityEntry, 0)
	seen := make(map[uint]struct{})
	add := func(alert *entities.Alert, reason string) {
		if _, dup := seen[alert.ID]; dup {
			return
		}
		seen[alert.ID] = struct{}{}
		entries = append(entries, PriorityEntry{
			Alert:  *alert,
			Reason: reason,
			AgeHrs: round2(now.Sub(alert.CreatedAt).Hours()),
		})
	}

	for i := range open {
		alert := &open[i]
		age := now.Sub(alert.CreatedAt)
		switch {
		case alert.Severity == monitor.SeverityCritical && age > criticalAgeCutoff:
			add(alert, "critical alert open beyond 24h")
		case alert.Severity == monitor.SeverityCritical && alert.AcknowledgedAt == nil:
			add(alert, "critical alert never acknowledged")
		case alert.Severity == monitor.SeverityHigh && age > highAgeCutoff:
			add(alert, "high alert open beyond 48h")
		}
	}

	oldest, err := a.alerts.OldestUnresolved(ctx, filter.apply(repository.AlertQuery{}))
	if err != nil {
		return nil, fmt.Errorf("failed to find oldest unresolved alert: %w", err)
	}
	if oldest != nil {
		add(oldest, "oldest unresolved alert")
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Resolutions summarizes intervention throughput for a period, narrowed by
// the filter.
func (a *Aggregator) Resolutions(ctx context.Context, period string, filter Filter) (*ResolutionMetrics, error) {
	period, window, err := ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	from := time.Time{}
	if window > 0 {
		from = now.Add(-window)
	}

	resolved, err := a.alerts.ResolvedBetween(ctx, filter.apply(repository.AlertQuery{}), from, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list resolved alerts: %w", err)
	}

	m := &ResolutionMetrics{
		TimePeriod: period,
		Resolved:   int64(len(resolved)),
		ByAction:   make(map[string]int64),
	}
	var ackHours, resolveHours float64
	var acked int
	for i := range resolved {
		alert := &resolved[i]
		m.ByAction[alert.ResolutionAction]++
		if alert.ResolvedAt != nil {
			resolveHours += alert.ResolvedAt.Sub(alert.CreatedAt).Hours()
		}
		if alert.AcknowledgedAt != nil {
			ackHours += alert.AcknowledgedAt.Sub(alert.CreatedAt).Hours()
			acked++
		}
	}
	if len(resolved) > 0 {
		m.AvgHoursToResolve = round2(resolveHours / float64(len(resolved)))
	}
	if acked > 0 {
		m.AvgHoursToAck = round2(ackHours / float64(acked))
	}
	return m, nil
}

// CommonRiskFactors surfaces the most frequent risk drivers across the
// tracked population.
func (a *Aggregator) CommonRiskFactors(ctx context.Context) ([]risk.FactorCount, error) {
	predictions, err := a.predictor.PredictAll(ctx)
	if err != nil {
		return nil, errors.Newf("failed to score entities: %w", err).
			Category(errors.CategoryDependency)
	}
	return risk.CommonFactors(predictions), nil
}

// AtRiskEntities returns the highest-risk entities, worst first.
func (a *Aggregator) AtRiskEntities(ctx context.Context, limit int) ([]risk.Prediction, error) {
	predictions, err := a.predictor.PredictAll(ctx)
	if err != nil {
		return nil, errors.Newf("failed to score entities: %w", err).
			Category(errors.CategoryDependency)
	}
	if limit > 0 && len(predictions) > limit {
		predictions = predictions[:limit]
	}
	return predictions, nil
}

func trendPoint(current, previous int64) TrendPoint {
	p := TrendPoint{Current: current, Previous: previous}
	switch {
	case previous == 0 && current == 0:
		p.Direction = "stable"
	case previous == 0:
		p.Direction = "up"
		p.ChangePct = 100
	default:
		change := float64(current-previous) / float64(previous)
		p.ChangePct = round2(change * 100)
		switch {
		case change > trendEpsilon:
			p.Direction = "up"
		case change < -trendEpsilon:
			p.Direction = "down"
		default:
			p.Direction = "stable"
		}
	}
	return p
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
