package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/regwatch/regwatch/internal/datastore/entities"
	"github.com/regwatch/regwatch/internal/errors"
	"gorm.io/gorm"
)

// ruleRepository implements RuleRepository.
type ruleRepository struct {
	db *gorm.DB
}

// NewRuleRepository creates a new RuleRepository.
func NewRuleRepository(db *gorm.DB) RuleRepository {
	return &ruleRepository{db: db}
}

// ListRules returns compliance rules matching the given filter.
func (r *ruleRepository) ListRules(ctx context.Context, filter RuleFilter) ([]entities.ComplianceRule, error) {
	var rules []entities.ComplianceRule
	query := r.db.WithContext(ctx).Preload("Conditions")

	if filter.TriggerType != "" {
		query = query.Where("trigger_type = ?", filter.TriggerType)
	}
	if filter.MetricName != "" {
		query = query.Where("metric_name = ?", filter.MetricName)
	}
	if filter.Severity != "" {
		query = query.Where("severity = ?", filter.Severity)
	}
	if filter.Enabled != nil {
		query = query.Where("enabled = ?", *filter.Enabled)
	}
	if filter.BuiltIn != nil {
		query = query.Where("built_in = ?", *filter.BuiltIn)
	}

	if err := query.Order("id ASC").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list compliance rules: %w", err)
	}
	return rules, nil
}

// GetRule returns a single rule by ID with its trigger conditions.
// Returns ErrRuleNotFound if the rule does not exist.
func (r *ruleRepository) GetRule(ctx context.Context, id uint) (*entities.ComplianceRule, error) {
	var rule entities.ComplianceRule
	if err := r.db.WithContext(ctx).Preload("Conditions").First(&rule, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to get compliance rule %d: %w", id, err)
	}
	return &rule, nil
}

// CreateRule creates a new rule with its trigger conditions.
func (r *ruleRepository) CreateRule(ctx context.Context, rule *entities.ComplianceRule) error {
	if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("failed to create compliance rule: %w", err)
	}
	return nil
}

// UpdateRule replaces a rule, deleting existing trigger conditions first.
// Callers are responsible for preserving fields they do not intend to
// change (the API layer merges partial updates onto the stored rule).
func (r *ruleRepository) UpdateRule(ctx context.Context, rule *entities.ComplianceRule) error {
	if rule.ID == 0 {
		return fmt.Errorf("failed to update compliance rule: missing rule ID")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("rule_id = ?", rule.ID).Delete(&entities.TriggerCondition{}).Error; err != nil {
			return fmt.Errorf("failed to delete old trigger conditions: %w", err)
		}
		// Zero out IDs so GORM inserts new rows instead of trying to update deleted ones
		for i := range rule.Conditions {
			rule.Conditions[i].ID = 0
		}
		if err := tx.Save(rule).Error; err != nil {
			return fmt.Errorf("failed to update compliance rule: %w", err)
		}
		return nil
	})
}

// DeleteRule deletes a rule and its conditions via cascade.
func (r *ruleRepository) DeleteRule(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&entities.ComplianceRule{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete compliance rule %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// ToggleRule enables or disables a rule. Disabling does not cancel an
// in-flight execution; the scheduler lets it finish.
func (r *ruleRepository) ToggleRule(ctx context.Context, id uint, enabled bool) error {
	result := r.db.WithContext(ctx).Model(&entities.ComplianceRule{}).Where("id = ?", id).Update("enabled", enabled)
	if result.Error != nil {
		return fmt.Errorf("failed to toggle compliance rule %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// GetEnabledRules returns all enabled rules with their conditions.
func (r *ruleRepository) GetEnabledRules(ctx context.Context) ([]entities.ComplianceRule, error) {
	enabled := true
	return r.ListRules(ctx, RuleFilter{Enabled: &enabled})
}

// CountRulesByName returns the number of rules with the given name.
func (r *ruleRepository) CountRulesByName(ctx context.Context, name string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&entities.ComplianceRule{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count rules by name: %w", err)
	}
	return count, nil
}

// DeleteBuiltInRules deletes all built-in rules.
func (r *ruleRepository) DeleteBuiltInRules(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Where("built_in = ?", true).Delete(&entities.ComplianceRule{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete built-in rules: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// RecordExecutionStamp updates the denormalized last-run cache on the rule.
func (r *ruleRepository) RecordExecutionStamp(ctx context.Context, id uint, at time.Time, result string) error {
	res := r.db.WithContext(ctx).Model(&entities.ComplianceRule{}).Where("id = ?", id).Updates(map[string]any{
		"last_executed_at":      at,
		"last_execution_result": result,
	})
	if res.Error != nil {
		return fmt.Errorf("failed to record execution stamp for rule %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}
