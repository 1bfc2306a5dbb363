package metricstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

func setupMetricDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_foreign_keys=ON"), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&entityMetricRow{}, &entityEventRow{}, &metricHistoryRow{}))
	return db
}

func seedMetric(t *testing.T, db *gorm.DB, entityID uint, name, region, roles, metric string, value float64) {
	t.Helper()
	require.NoError(t, db.Create(&entityMetricRow{
		EntityID:   entityID,
		EntityName: name,
		Region:     region,
		Roles:      roles,
		MetricName: metric,
		Value:      value,
		UpdatedAt:  time.Now(),
	}).Error)
}

func TestDatabaseProvider_SnapshotPivots(t *testing.T) {
	db := setupMetricDB(t)
	provider := NewDatabaseProvider(db)
	ctx := t.Context()

	seedMetric(t, db, 1, "Acme Ltd", "north", "dealer,operator", MetricComplianceScore, 82)
	seedMetric(t, db, 1, "Acme Ltd", "north", "dealer,operator", MetricTrainingHours, 14)
	seedMetric(t, db, 2, "Borealis", "south", "operator", MetricComplianceScore, 45)

	snap, err := provider.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 2)

	acme := snap[0]
	assert.Equal(t, uint(1), acme.EntityID)
	assert.Equal(t, "Acme Ltd", acme.EntityName)
	assert.Equal(t, []string{"dealer", "operator"}, acme.Roles)
	assert.InDelta(t, 82, acme.Metrics[MetricComplianceScore], 0.001)
	assert.InDelta(t, 14, acme.Metrics[MetricTrainingHours], 0.001)

	assert.Equal(t, "south", snap[1].Region)
}

func TestEntityMetrics_HasRole(t *testing.T) {
	em := EntityMetrics{Roles: []string{"dealer", "operator"}}
	assert.True(t, em.HasRole(nil))
	assert.True(t, em.HasRole([]string{"Dealer"}))
	assert.True(t, em.HasRole([]string{"inspector", "operator"}))
	assert.False(t, em.HasRole([]string{"inspector"}))
}

func TestDatabaseProvider_HistoryOrderAndLimit(t *testing.T) {
	db := setupMetricDB(t)
	provider := NewDatabaseProvider(db)
	ctx := t.Context()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		require.NoError(t, db.Create(&metricHistoryRow{
			EntityID:    1,
			PeriodStart: base.AddDate(0, i, 0),
			MetricName:  MetricComplianceScore,
			Value:       float64(50 + i),
		}).Error)
	}

	points, err := provider.History(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, points, 3)
	// Oldest first, and only the newest three periods.
	assert.True(t, points[0].PeriodStart.Before(points[1].PeriodStart))
	assert.InDelta(t, 55, points[0].Metrics[MetricComplianceScore], 0.001)
	assert.InDelta(t, 57, points[2].Metrics[MetricComplianceScore], 0.001)

	points, err = provider.History(ctx, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestDatabaseProvider_RecentEvents(t *testing.T) {
	db := setupMetricDB(t)
	provider := NewDatabaseProvider(db)
	ctx := t.Context()

	now := time.Now()
	require.NoError(t, db.Create(&entityEventRow{
		EntityID: 1, EntityName: "Acme Ltd", Region: "north",
		EventType:  "license.expired",
		Properties: `{"license_class":"dealer"}`,
		OccurredAt: now.Add(-time.Hour),
	}).Error)
	require.NoError(t, db.Create(&entityEventRow{
		EntityID: 2, EventType: "violation.recorded",
		OccurredAt: now.Add(-72 * time.Hour),
	}).Error)

	events, err := provider.RecentEvents(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "license.expired", events[0].Type)
	assert.Equal(t, "dealer", events[0].Properties["license_class"])
}

func TestDatabaseProvider_Populations(t *testing.T) {
	db := setupMetricDB(t)
	provider := NewDatabaseProvider(db)

	seedMetric(t, db, 1, "A", "north", "", MetricComplianceScore, 80)
	seedMetric(t, db, 1, "A", "north", "", MetricTrainingHours, 10)
	seedMetric(t, db, 2, "B", "north", "", MetricComplianceScore, 70)
	seedMetric(t, db, 3, "C", "south", "", MetricComplianceScore, 60)

	pops, err := provider.Populations(t.Context())
	require.NoError(t, err)
	assert.EqualValues(t, 2, pops["north"])
	assert.EqualValues(t, 1, pops["south"])
}

// countingProvider records how many calls reach the wrapped source.
type countingProvider struct {
	snapshots   int
	histories   int
	events      int
	populations int
}

func (c *countingProvider) Snapshot(context.Context) ([]EntityMetrics, error) {
	c.snapshots++
	return []EntityMetrics{{EntityID: 1}}, nil
}

func (c *countingProvider) History(context.Context, uint, int) ([]HistoryPoint, error) {
	c.histories++
	return []HistoryPoint{{}}, nil
}

func (c *countingProvider) RecentEvents(context.Context, time.Time) ([]EntityEvent, error) {
	c.events++
	return nil, nil
}

func (c *countingProvider) Populations(context.Context) (map[string]int64, error) {
	c.populations++
	return map[string]int64{"north": 5}, nil
}

func TestCachedProvider(t *testing.T) {
	inner := &countingProvider{}
	cached := NewCachedProvider(inner, time.Minute)
	ctx := t.Context()

	for i := 0; i < 3; i++ {
		_, err := cached.Snapshot(ctx)
		require.NoError(t, err)
		_, err = cached.History(ctx, 1, 6)
		require.NoError(t, err)
		_, err = cached.Populations(ctx)
		require.NoError(t, err)
		_, err = cached.RecentEvents(ctx, time.Now())
		require.NoError(t, err)
	}

	assert.Equal(t, 1, inner.snapshots)
	assert.Equal(t, 1, inner.histories)
	assert.Equal(t, 1, inner.populations)
	// Event windows differ per call; never cached.
	assert.Equal(t, 3, inner.events)

	cached.Flush()
	_, err := cached.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.snapshots)
}
