package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/regwatch/regwatch/internal/datastore/entities"
	"github.com/regwatch/regwatch/internal/datastore/repository"
	"github.com/regwatch/regwatch/internal/errors"
	"github.com/regwatch/regwatch/internal/logger"
	"github.com/regwatch/regwatch/internal/monitor"
)

// initRuleRoutes registers compliance rule management endpoints.
func (c *Controller) initRuleRoutes() {
	rules := c.Group.Group("/rules", c.requireGovernment)

	rules.GET("/schema", c.GetRuleSchema)
	rules.GET("", c.ListRules)
	rules.GET("/:id", c.GetRule)
	rules.POST("", c.CreateRule)
	rules.PUT("/:id", c.UpdateRule)
	rules.PATCH("/:id/toggle", c.ToggleRule)
	rules.DELETE("/:id", c.DeleteRule)
	rules.POST("/reset-defaults", c.ResetDefaultRules)
}

// GetRuleSchema returns the rule vocabulary for UI condition builders.
func (c *Controller) GetRuleSchema(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, monitor.GetSchema())
}

// ListRules returns all compliance rules, optionally filtered.
func (c *Controller) ListRules(ctx echo.Context) error {
	filter := repository.RuleFilter{
		TriggerType: ctx.QueryParam("trigger_type"),
		Severity:    ctx.QueryParam("severity"),
	}
	if enabledParam := ctx.QueryParam("enabled"); enabledParam != "" {
		v := enabledParam == QueryValueTrue
		filter.Enabled = &v
	}
	if builtInParam := ctx.QueryParam("built_in"); builtInParam != "" {
		v := builtInParam == QueryValueTrue
		filter.BuiltIn = &v
	}

	rules, err := c.repos.Rules.ListRules(ctx.Request().Context(), filter)
	if err != nil {
		c.logErrorIfEnabled("failed to list rules", logger.Error(err))
		return c.HandleError(ctx, err, "Failed to list rules")
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

// GetRule returns a single compliance rule by ID.
func (c *Controller) GetRule(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule ID"})
	}

	rule, err := c.repos.Rules.GetRule(ctx.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Rule not found"})
		}
		c.logErrorIfEnabled("failed to get rule", logger.Error(err))
		return c.HandleError(ctx, err, "Failed to get rule")
	}

	return ctx.JSON(http.StatusOK, rule)
}

// CreateRule creates a new compliance rule.
func (c *Controller) CreateRule(ctx echo.Context) error {
	var rule entities.ComplianceRule
	if err := ctx.Bind(&rule); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	rule.ID = 0
	rule.BuiltIn = false

	if err := monitor.ValidateRule(&rule); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	count, err := c.repos.Rules.CountRulesByName(ctx.Request().Context(), rule.Name)
	if err != nil {
		c.logErrorIfEnabled("failed to check rule name uniqueness", logger.Error(err))
		return c.HandleError(ctx, err, "Failed to create rule")
	}
	if count > 0 {
		return ctx.JSON(http.StatusConflict, map[string]string{"error": "A rule with this name already exists"})
	}

	if err := c.repos.Rules.CreateRule(ctx.Request().Context(), &rule); err != nil {
		c.logErrorIfEnabled("failed to create rule", logger.Error(err))
		return c.HandleError(ctx, err, "Failed to create rule")
	}

	c.logInfoIfEnabled("compliance rule created",
		logger.String("name", rule.Name),
		logger.Uint64("id", uint64(rule.ID)))

	return ctx.JSON(http.StatusCreated, rule)
}

// UpdateRule overlays the request body onto the stored rule. Fields absent
// from the body keep their stored values.
func (c *Controller) UpdateRule(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule ID"})
	}

	existing, err := c.repos.Rules.GetRule(ctx.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Rule not found"})
		}
		return c.HandleError(ctx, err, "Failed to get rule")
	}

	rule := *existing
	if err := ctx.Bind(&rule); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	rule.ID = existing.ID
	rule.BuiltIn = existing.BuiltIn
	rule.CreatedAt = existing.CreatedAt

	if err := monitor.ValidateRule(&rule); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if err := c.repos.Rules.UpdateRule(ctx.Request().Context(), &rule); err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Rule not found"})
		}
		c.logErrorIfEnabled("failed to update rule", logger.Error(err))
		return c.HandleError(ctx, err, "Failed to update rule")
	}

	return ctx.JSON(http.StatusOK, rule)
}

// ToggleRule enables or disables a compliance rule.
func (c *Controller) ToggleRule(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule ID"})
	}

	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := ctx.Bind(&body); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	if err := c.repos.Rules.ToggleRule(ctx.Request().Context(), id, body.Enabled); err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Rule not found"})
		}
		c.logErrorIfEnabled("failed to toggle rule", logger.Error(err))
		return c.HandleError(ctx, err, "Failed to toggle rule")
	}

	return ctx.JSON(http.StatusOK, map[string]any{"id": id, "enabled": body.Enabled})
}

// DeleteRule deletes a compliance rule.
func (c *Controller) DeleteRule(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule ID"})
	}

	if err := c.repos.Rules.DeleteRule(ctx.Request().Context(), id); err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Rule not found"})
		}
		c.logErrorIfEnabled("failed to delete rule", logger.Error(err))
		return c.HandleError(ctx, err, "Failed to delete rule")
	}

	return ctx.NoContent(http.StatusNoContent)
}

// ResetDefaultRules deletes all built-in rules and re-seeds them. Custom
// rules are left untouched.
func (c *Controller) ResetDefaultRules(ctx echo.Context) error {
	count, err := monitor.ResetDefaults(ctx.Request().Context(), c.repos.Rules, c.apiLogger)
	if err != nil {
		c.logErrorIfEnabled("failed to reset default rules", logger.Error(err))
		return c.HandleError(ctx, err, "Failed to reset default rules")
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"status": "defaults reset",
		"seeded": count,
	})
}
