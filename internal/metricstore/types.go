// Package metricstore reads the compliance metrics the portal writes for
// each regulated entity. The engine never writes these tables; it treats
// them as an upstream data source that may be temporarily unavailable.
package metricstore

import (
	"context"
	"strings"
	"time"
)

// Well-known metric names produced by the portal.
const (
	MetricComplianceScore = "compliance_score"
	MetricTrainingHours   = "training_hours"
	MetricViolationCount  = "violation_count"
)

// EntityMetrics is the current snapshot for one regulated entity.
type EntityMetrics struct {
	EntityID   uint
	EntityName string
	Region     string
	// Roles are the portal roles associated with the entity's users,
	// used for rule scope filtering.
	Roles []string
	// Metrics maps metric name to its current value.
	Metrics map[string]float64
	// UpdatedAt is when the portal last refreshed this snapshot.
	UpdatedAt time.Time
}

// HasRole reports whether any of the entity's roles matches one of the
// wanted roles. An empty wanted list matches everything.
func (m *EntityMetrics) HasRole(wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, w := range wanted {
		for _, r := range m.Roles {
			if strings.EqualFold(r, w) {
				return true
			}
		}
	}
	return false
}

// EntityEvent is a discrete portal event (license expiry, violation
// recorded) that event-trigger rules match against.
type EntityEvent struct {
	ID         uint
	EntityID   uint
	EntityName string
	Region     string
	Type       string
	// Properties are event attributes matched by trigger conditions.
	Properties map[string]string
	OccurredAt time.Time
}

// HistoryPoint is one aggregation period of an entity's metrics, used by
// the risk predictor for trajectory classification.
type HistoryPoint struct {
	PeriodStart time.Time
	Metrics     map[string]float64
}

// Provider is the read-side interface over the portal's metric data.
type Provider interface {
	// Snapshot returns the current metrics for every tracked entity.
	Snapshot(ctx context.Context) ([]EntityMetrics, error)
	// History returns up to periods recent history points for an entity,
	// oldest first.
	History(ctx context.Context, entityID uint, periods int) ([]HistoryPoint, error)
	// RecentEvents returns events that occurred at or after since.
	RecentEvents(ctx context.Context, since time.Time) ([]EntityEvent, error)
	// Populations returns the licensed entity count per region, used for
	// per-capita alert rates.
	Populations(ctx context.Context) (map[string]int64, error)
}
