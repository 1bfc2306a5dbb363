package repository

import (
	"context"
	"fmt"

	"github.com/regwatch/regwatch/internal/datastore/entities"
	"github.com/regwatch/regwatch/internal/errors"
	"gorm.io/gorm"
)

// warningRepository implements WarningRepository.
type warningRepository struct {
	db *gorm.DB
}

// NewWarningRepository creates a new WarningRepository.
func NewWarningRepository(db *gorm.DB) WarningRepository {
	return &warningRepository{db: db}
}

// CreateWarning inserts a pending warning, guarded by the dedup key.
func (r *warningRepository) CreateWarning(ctx context.Context, warning *entities.PreventiveWarning) error {
	if warning.Status == "" {
		warning.Status = entities.WarningStatusPending
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open int64
		err := tx.Model(&entities.PreventiveWarning{}).
			Where("dedup_key = ? AND status = ?", warning.DedupKey, entities.WarningStatusPending).
			Count(&open).Error
		if err != nil {
			return fmt.Errorf("failed to check warning dedup key %q: %w", warning.DedupKey, err)
		}
		if open > 0 {
			return ErrDuplicateAlert
		}
		if err := tx.Create(warning).Error; err != nil {
			return fmt.Errorf("failed to create preventive warning: %w", err)
		}
		return nil
	})
}

// GetWarning returns a single warning by ID.
func (r *warningRepository) GetWarning(ctx context.Context, id uint) (*entities.PreventiveWarning, error) {
	var warning entities.PreventiveWarning
	if err := r.db.WithContext(ctx).First(&warning, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWarningNotFound
		}
		return nil, fmt.Errorf("failed to get preventive warning %d: %w", id, err)
	}
	return &warning, nil
}

// ListWarnings returns warnings matching the filter, newest first.
func (r *warningRepository) ListWarnings(ctx context.Context, filter WarningFilter) ([]entities.PreventiveWarning, int64, error) {
	var items []entities.PreventiveWarning
	var total int64

	base := r.db.WithContext(ctx).Model(&entities.PreventiveWarning{})
	if filter.EntityID > 0 {
		base = base.Where("entity_id = ?", filter.EntityID)
	}
	if filter.RuleID > 0 {
		base = base.Where("rule_id = ?", filter.RuleID)
	}
	if filter.Status != "" {
		base = base.Where("status = ?", filter.Status)
	}
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count preventive warnings: %w", err)
	}

	query := base.Session(&gorm.Session{}).Order("id DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if err := query.Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list preventive warnings: %w", err)
	}
	return items, total, nil
}

// OpenDedupKeys returns dedup keys of pending warnings for a rule.
func (r *warningRepository) OpenDedupKeys(ctx context.Context, ruleID uint) (map[string]struct{}, error) {
	var keys []string
	err := r.db.WithContext(ctx).Model(&entities.PreventiveWarning{}).
		Where("rule_id = ? AND status = ?", ruleID, entities.WarningStatusPending).
		Pluck("dedup_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load open warning dedup keys for rule %d: %w", ruleID, err)
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set, nil
}

// SetStatus moves a pending warning to acknowledged or dismissed.
func (r *warningRepository) SetStatus(ctx context.Context, id uint, status string) (*entities.PreventiveWarning, error) {
	if status != entities.WarningStatusAcknowledged && status != entities.WarningStatusDismissed {
		return nil, fmt.Errorf("invalid warning status %q", status)
	}
	var out *entities.PreventiveWarning
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var warning entities.PreventiveWarning
		if err := tx.First(&warning, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrWarningNotFound
			}
			return fmt.Errorf("failed to get preventive warning %d: %w", id, err)
		}
		if warning.Status != entities.WarningStatusPending {
			if warning.Status == status {
				out = &warning
				return nil
			}
			return ErrAlertResolved
		}
		warning.Status = status
		if err := tx.Save(&warning).Error; err != nil {
			return fmt.Errorf("failed to update preventive warning %d: %w", id, err)
		}
		out = &warning
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
