package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/regwatch/regwatch/internal/datastore/entities"
	"github.com/regwatch/regwatch/internal/errors"
	"gorm.io/gorm"
)

// groupColumns is the allowlist for CountGrouped. Keeps user input out of
// the GROUP BY clause.
var groupColumns = map[string]bool{
	"severity": true,
	"category": true,
	"region":   true,
}

// alertRepository implements AlertRepository.
type alertRepository struct {
	db *gorm.DB
}

// NewAlertRepository creates a new AlertRepository.
func NewAlertRepository(db *gorm.DB) AlertRepository {
	return &alertRepository{db: db}
}

// applyQuery translates an AlertQuery into WHERE clauses.
func applyQuery(db *gorm.DB, q AlertQuery) *gorm.DB {
	if q.Status != "" {
		db = db.Where("status = ?", q.Status)
	}
	if q.OpenOnly {
		db = db.Where("status <> ?", entities.AlertStatusResolved)
	}
	if q.Severity != "" {
		db = db.Where("severity = ?", q.Severity)
	}
	if q.Region != "" {
		db = db.Where("region = ?", q.Region)
	}
	if q.Category != "" {
		db = db.Where("category = ?", q.Category)
	}
	if q.EntityID > 0 {
		db = db.Where("entity_id = ?", q.EntityID)
	}
	if q.RuleID != nil {
		db = db.Where("source_rule_id = ?", *q.RuleID)
	}
	if q.CreatedFrom != nil {
		db = db.Where("created_at >= ?", *q.CreatedFrom)
	}
	if q.CreatedTo != nil {
		db = db.Where("created_at < ?", *q.CreatedTo)
	}
	if q.CreatedBefore != nil {
		db = db.Where("created_at < ?", *q.CreatedBefore)
	}
	if q.NeverAcked {
		db = db.Where("acknowledged_at IS NULL")
	}
	if q.ResolvedFrom != nil {
		db = db.Where("resolved_at >= ?", *q.ResolvedFrom)
	}
	if q.ResolvedTo != nil {
		db = db.Where("resolved_at < ?", *q.ResolvedTo)
	}
	return db
}

// CreateAlert inserts an active alert, guarded by the dedup key.
func (r *alertRepository) CreateAlert(ctx context.Context, alert *entities.Alert) error {
	if alert.Status == "" {
		alert.Status = entities.AlertStatusActive
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open int64
		err := tx.Model(&entities.Alert{}).
			Where("dedup_key = ? AND status <> ?", alert.DedupKey, entities.AlertStatusResolved).
			Count(&open).Error
		if err != nil {
			return fmt.Errorf("failed to check dedup key %q: %w", alert.DedupKey, err)
		}
		if open > 0 {
			return ErrDuplicateAlert
		}
		if err := tx.Create(alert).Error; err != nil {
			return fmt.Errorf("failed to create alert: %w", err)
		}
		return nil
	})
}

// GetAlert returns a single alert by ID.
func (r *alertRepository) GetAlert(ctx context.Context, id uint) (*entities.Alert, error) {
	var alert entities.Alert
	if err := r.db.WithContext(ctx).First(&alert, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("failed to get alert %d: %w", id, err)
	}
	return &alert, nil
}

// ListAlerts returns alerts matching the query, newest first.
func (r *alertRepository) ListAlerts(ctx context.Context, q AlertQuery, limit, offset int) ([]entities.Alert, int64, error) {
	var items []entities.Alert
	var total int64

	base := applyQuery(r.db.WithContext(ctx).Model(&entities.Alert{}), q)
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	query := base.Session(&gorm.Session{}).Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list alerts: %w", err)
	}
	return items, total, nil
}

// OpenDedupKeys returns dedup keys of non-resolved alerts for a rule.
func (r *alertRepository) OpenDedupKeys(ctx context.Context, ruleID uint) (map[string]struct{}, error) {
	var keys []string
	err := r.db.WithContext(ctx).Model(&entities.Alert{}).
		Where("source_rule_id = ? AND status <> ?", ruleID, entities.AlertStatusResolved).
		Pluck("dedup_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load open dedup keys for rule %d: %w", ruleID, err)
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set, nil
}

// Acknowledge moves active → acknowledged. Forward-only: resolved alerts
// reject the transition, repeated acknowledges keep the first timestamp.
func (r *alertRepository) Acknowledge(ctx context.Context, id uint, at time.Time) (*entities.Alert, error) {
	var out *entities.Alert
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var alert entities.Alert
		if err := tx.First(&alert, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAlertNotFound
			}
			return fmt.Errorf("failed to get alert %d: %w", id, err)
		}
		switch alert.Status {
		case entities.AlertStatusResolved:
			return ErrAlertResolved
		case entities.AlertStatusAcknowledged:
			out = &alert
			return nil
		}
		alert.Status = entities.AlertStatusAcknowledged
		alert.AcknowledgedAt = &at
		if err := tx.Save(&alert).Error; err != nil {
			return fmt.Errorf("failed to acknowledge alert %d: %w", id, err)
		}
		out = &alert
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Resolve moves active|acknowledged → resolved with action and notes.
func (r *alertRepository) Resolve(ctx context.Context, id uint, action, notes string, at time.Time) (*entities.Alert, error) {
	var out *entities.Alert
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var alert entities.Alert
		if err := tx.First(&alert, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAlertNotFound
			}
			return fmt.Errorf("failed to get alert %d: %w", id, err)
		}
		if alert.Status == entities.AlertStatusResolved {
			return ErrAlertResolved
		}
		alert.Status = entities.AlertStatusResolved
		alert.ResolvedAt = &at
		alert.ResolutionAction = action
		alert.ResolutionNotes = notes
		// Resolving straight from active implies acknowledgment.
		if alert.AcknowledgedAt == nil {
			alert.AcknowledgedAt = &at
		}
		if err := tx.Save(&alert).Error; err != nil {
			return fmt.Errorf("failed to resolve alert %d: %w", id, err)
		}
		out = &alert
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AppendResolutionNote adds a postscript to a resolved alert's notes.
func (r *alertRepository) AppendResolutionNote(ctx context.Context, id uint, note string) error {
	var alert entities.Alert
	if err := r.db.WithContext(ctx).First(&alert, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAlertNotFound
		}
		return fmt.Errorf("failed to get alert %d: %w", id, err)
	}
	notes := alert.ResolutionNotes
	if notes != "" {
		notes += "\n"
	}
	notes += note
	if err := r.db.WithContext(ctx).Model(&alert).Update("resolution_notes", notes).Error; err != nil {
		return fmt.Errorf("failed to append resolution note to alert %d: %w", id, err)
	}
	return nil
}

// Count returns the number of alerts matching the query.
func (r *alertRepository) Count(ctx context.Context, q AlertQuery) (int64, error) {
	var count int64
	if err := applyQuery(r.db.WithContext(ctx).Model(&entities.Alert{}), q).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return count, nil
}

// CountGrouped returns per-value counts for an allowlisted column.
func (r *alertRepository) CountGrouped(ctx context.Context, q AlertQuery, groupBy string) (map[string]int64, error) {
	if !groupColumns[groupBy] {
		return nil, fmt.Errorf("unsupported group column %q", groupBy)
	}
	type row struct {
		Key   string
		Count int64
	}
	var rows []row
	err := applyQuery(r.db.WithContext(ctx).Model(&entities.Alert{}), q).
		Select(groupBy + " AS key, COUNT(*) AS count").
		Group(groupBy).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to group alerts by %s: %w", groupBy, err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Count
	}
	return out, nil
}

// CountDistinctEntities counts unique flagged entities in the query set.
func (r *alertRepository) CountDistinctEntities(ctx context.Context, q AlertQuery) (int64, error) {
	var count int64
	err := applyQuery(r.db.WithContext(ctx).Model(&entities.Alert{}), q).
		Distinct("entity_id").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count distinct entities: %w", err)
	}
	return count, nil
}

// OldestUnresolved returns the oldest open alert in the query set, or nil
// when none match.
func (r *alertRepository) OldestUnresolved(ctx context.Context, q AlertQuery) (*entities.Alert, error) {
	q.OpenOnly = true
	var alert entities.Alert
	err := applyQuery(r.db.WithContext(ctx).Model(&entities.Alert{}), q).
		Order("created_at ASC, id ASC").
		First(&alert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find oldest unresolved alert: %w", err)
	}
	return &alert, nil
}

// ResolvedBetween returns alerts resolved inside [from, to).
func (r *alertRepository) ResolvedBetween(ctx context.Context, q AlertQuery, from, to time.Time) ([]entities.Alert, error) {
	q.Status = entities.AlertStatusResolved
	q.ResolvedFrom = &from
	q.ResolvedTo = &to
	var items []entities.Alert
	err := applyQuery(r.db.WithContext(ctx).Model(&entities.Alert{}), q).
		Order("resolved_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list resolved alerts: %w", err)
	}
	return items, nil
}
