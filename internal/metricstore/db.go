package metricstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// entityMetricRow mirrors the portal's per-metric snapshot table. One row
// per entity per metric; the provider pivots rows into EntityMetrics.
type entityMetricRow struct {
	EntityID   uint      `gorm:"column:entity_id"`
	EntityName string    `gorm:"column:entity_name"`
	Region     string    `gorm:"column:region"`
	Roles      string    `gorm:"column:roles"`
	MetricName string    `gorm:"column:metric_name"`
	Value      float64   `gorm:"column:value"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (entityMetricRow) TableName() string { return "entity_metrics" }

// entityEventRow mirrors the portal's event table.
type entityEventRow struct {
	ID         uint      `gorm:"column:id;primaryKey"`
	EntityID   uint      `gorm:"column:entity_id"`
	EntityName string    `gorm:"column:entity_name"`
	Region     string    `gorm:"column:region"`
	EventType  string    `gorm:"column:event_type"`
	Properties string    `gorm:"column:properties"`
	OccurredAt time.Time `gorm:"column:occurred_at"`
}

func (entityEventRow) TableName() string { return "entity_events" }

// metricHistoryRow mirrors the portal's per-period metric aggregates.
type metricHistoryRow struct {
	EntityID    uint      `gorm:"column:entity_id"`
	PeriodStart time.Time `gorm:"column:period_start"`
	MetricName  string    `gorm:"column:metric_name"`
	Value       float64   `gorm:"column:value"`
}

func (metricHistoryRow) TableName() string { return "entity_metric_history" }

// DatabaseProvider reads metric data from the portal's tables over GORM.
type DatabaseProvider struct {
	db *gorm.DB
}

// NewDatabaseProvider creates a Provider backed by the portal database.
func NewDatabaseProvider(db *gorm.DB) *DatabaseProvider {
	return &DatabaseProvider{db: db}
}

// Snapshot returns the current metrics for every tracked entity.
func (p *DatabaseProvider) Snapshot(ctx context.Context) ([]EntityMetrics, error) {
	var rows []entityMetricRow
	if err := p.db.WithContext(ctx).Order("entity_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read entity metrics: %w", err)
	}

	byEntity := make(map[uint]*EntityMetrics)
	order := make([]uint, 0)
	for _, row := range rows {
		em, ok := byEntity[row.EntityID]
		if !ok {
			em = &EntityMetrics{
				EntityID:   row.EntityID,
				EntityName: row.EntityName,
				Region:     row.Region,
				Roles:      splitRoles(row.Roles),
				Metrics:    make(map[string]float64),
				UpdatedAt:  row.UpdatedAt,
			}
			byEntity[row.EntityID] = em
			order = append(order, row.EntityID)
		}
		em.Metrics[row.MetricName] = row.Value
		if row.UpdatedAt.After(em.UpdatedAt) {
			em.UpdatedAt = row.UpdatedAt
		}
	}

	out := make([]EntityMetrics, 0, len(order))
	for _, id := range order {
		out = append(out, *byEntity[id])
	}
	return out, nil
}

// History returns up to periods recent history points, oldest first.
func (p *DatabaseProvider) History(ctx context.Context, entityID uint, periods int) ([]HistoryPoint, error) {
	if periods <= 0 {
		return nil, nil
	}
	var rows []metricHistoryRow
	err := p.db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order("period_start DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read metric history for entity %d: %w", entityID, err)
	}

	// Rows arrive newest first, one per metric per period. Collect the
	// newest N periods, then reverse into chronological order.
	byPeriod := make(map[time.Time]*HistoryPoint)
	newest := make([]time.Time, 0)
	for _, row := range rows {
		hp, ok := byPeriod[row.PeriodStart]
		if !ok {
			if len(newest) >= periods {
				continue
			}
			hp = &HistoryPoint{PeriodStart: row.PeriodStart, Metrics: make(map[string]float64)}
			byPeriod[row.PeriodStart] = hp
			newest = append(newest, row.PeriodStart)
		}
		hp.Metrics[row.MetricName] = row.Value
	}

	out := make([]HistoryPoint, 0, len(newest))
	for i := len(newest) - 1; i >= 0; i-- {
		out = append(out, *byPeriod[newest[i]])
	}
	return out, nil
}

// RecentEvents returns events that occurred at or after since.
func (p *DatabaseProvider) RecentEvents(ctx context.Context, since time.Time) ([]EntityEvent, error) {
	var rows []entityEventRow
	err := p.db.WithContext(ctx).
		Where("occurred_at >= ?", since).
		Order("occurred_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read entity events: %w", err)
	}

	out := make([]EntityEvent, 0, len(rows))
	for _, row := range rows {
		props := make(map[string]string)
		if row.Properties != "" {
			if err := json.Unmarshal([]byte(row.Properties), &props); err != nil {
				return nil, fmt.Errorf("failed to decode properties of event %d: %w", row.ID, err)
			}
		}
		out = append(out, EntityEvent{
			ID:         row.ID,
			EntityID:   row.EntityID,
			EntityName: row.EntityName,
			Region:     row.Region,
			Type:       row.EventType,
			Properties: props,
			OccurredAt: row.OccurredAt,
		})
	}
	return out, nil
}

// Populations counts tracked entities per region.
func (p *DatabaseProvider) Populations(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Region string
		Count  int64
	}
	var rows []row
	err := p.db.WithContext(ctx).Model(&entityMetricRow{}).
		Select("region, COUNT(DISTINCT entity_id) AS count").
		Group("region").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count entity populations: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Region] = r.Count
	}
	return out, nil
}

func splitRoles(s string) []string {
	if s == "" {
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
