package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/regwatch/regwatch/internal/datastore/entities"
	"github.com/regwatch/regwatch/internal/datastore/repository"
	"github.com/regwatch/regwatch/internal/errors"
	"github.com/regwatch/regwatch/internal/logger"
)

// EnforcementNotifier dispatches the downstream consequence of an
// intervention (license suspension, dealer block) to the enforcement
// system. Dispatch failures are recorded on the alert but never roll back
// the state transition.
type EnforcementNotifier interface {
	Dispatch(ctx context.Context, alert *entities.Alert, action string) error
}

var validResolutionActions = map[string]bool{
	entities.ResolutionActionWarning:      true,
	entities.ResolutionActionSuspend:      true,
	entities.ResolutionActionBlockLicense: true,
}

// initAlertRoutes registers alert lifecycle endpoints.
func (c *Controller) initAlertRoutes() {
	alerts := c.Group.Group("/alerts", c.requireGovernment)

	alerts.GET("", c.ListAlerts)
	alerts.GET("/:id", c.GetAlert)
	alerts.POST("/:id/acknowledge", c.AcknowledgeAlert)
	alerts.POST("/:id/intervene", c.InterveneAlert)
}

// initWarningRoutes registers preventive warning endpoints. Listing is
// government-facing; acknowledge and dismiss are entity-side and stay open
// to any authenticated principal.
func (c *Controller) initWarningRoutes() {
	warnings := c.Group.Group("/warnings")

	warnings.GET("", c.ListWarnings, c.requireGovernment)
	warnings.POST("/:id/acknowledge", c.AcknowledgeWarning)
	warnings.POST("/:id/dismiss", c.DismissWarning)
}

// ListAlerts returns alerts matching the query filters, paginated.
func (c *Controller) ListAlerts(ctx echo.Context) error {
	q := repository.AlertQuery{
		Status:   ctx.QueryParam("status"),
		Severity: ctx.QueryParam("severity"),
		Region:   ctx.QueryParam("region"),
		Category: ctx.QueryParam("category"),
		OpenOnly: ctx.QueryParam("open") == QueryValueTrue,
	}
	if v := ctx.QueryParam("entity_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid entity_id"})
		}
		q.EntityID = uint(id)
	}
	if v := ctx.QueryParam("rule_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule_id"})
		}
		ruleID := uint(id)
		q.RuleID = &ruleID
	}

	limit, offset := parsePaging(ctx)
	alerts, total, err := c.repos.Alerts.ListAlerts(ctx.Request().Context(), q, limit, offset)
	if err != nil {
		c.logErrorIfEnabled("failed to list alerts", logger.Error(err))
		return c.HandleError(ctx, err, "Failed to list alerts")
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"alerts": alerts,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GetAlert returns a single alert by ID.
func (c *Controller) GetAlert(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid alert ID"})
	}

	alert, err := c.repos.Alerts.GetAlert(ctx.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrAlertNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Alert not found"})
		}
		c.logErrorIfEnabled("failed to get alert", logger.Error(err))
		return c.HandleError(ctx, err, "Failed to get alert")
	}

	return ctx.JSON(http.StatusOK, alert)
}

// AcknowledgeAlert stamps the acknowledgment timestamp. Repeating the call
// returns the alert unchanged.
func (c *Controller) AcknowledgeAlert(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid alert ID"})
	}

	alert, err := c.repos.Alerts.Acknowledge(ctx.Request().Context(), id, time.Now())
	if err != nil {
		if errors.Is(err, repository.ErrAlertNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Alert not found"})
		}
		if errors.Is(err, repository.ErrAlertResolved) {
			return ctx.JSON(http.StatusConflict, map[string]string{"error": "Alert is already resolved"})
		}
		c.logErrorIfEnabled("failed to acknowledge alert", logger.Error(err))
		return c.HandleError(ctx, err, "Failed to acknowledge alert")
	}

	return ctx.JSON(http.StatusOK, alert)
}

// InterveneAlert resolves an alert with an administrative action and
// dispatches the downstream enforcement consequence.
func (c *Controller) InterveneAlert(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid alert ID"})
	}

	var body struct {
		Action string `json:"action"`
		Notes  string `json:"notes"`
	}
	if err := ctx.Bind(&body); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if body.Action == "" || body.Notes == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Intervention requires action and notes"})
	}
	if !validResolutionActions[body.Action] {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Unknown resolution action"})
	}

	reqCtx := ctx.Request().Context()
	alert, err := c.repos.Alerts.Resolve(reqCtx, id, body.Action, body.Notes, time.Now())
	if err != nil {
		if errors.Is(err, repository.ErrAlertNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Alert not found"})
		}
		if errors.Is(err, repository.ErrAlertResolved) {
			return ctx.JSON(http.StatusConflict, map[string]string{"error": "Alert is already resolved"})
		}
		c.logErrorIfEnabled("failed to resolve alert", logger.Error(err))
		return c.HandleError(ctx, err, "Failed to resolve alert")
	}

	c.dispatchEnforcement(reqCtx, alert, body.Action)

	c.logInfoIfEnabled("alert resolved",
		logger.Uint64("id", uint64(alert.ID)),
		logger.String("action", body.Action))

	return ctx.JSON(http.StatusOK, alert)
}

// dispatchEnforcement invokes the downstream enforcement collaborator. A
// dispatch failure is recorded as a resolution note suffix; the alert stays
// resolved either way.
func (c *Controller) dispatchEnforcement(ctx context.Context, alert *entities.Alert, action string) {
	if c.enforcer == nil {
		return
	}
	if err := c.enforcer.Dispatch(ctx, alert, action); err != nil {
		c.logErrorIfEnabled("enforcement dispatch failed",
			logger.Uint64("alert_id", uint64(alert.ID)),
			logger.String("action", action),
			logger.Error(err))
		note := "enforcement dispatch failed: " + err.Error()
		if noteErr := c.repos.Alerts.AppendResolutionNote(ctx, alert.ID, note); noteErr != nil {
			c.logErrorIfEnabled("failed to record enforcement failure", logger.Error(noteErr))
		}
	}
}

// ListWarnings returns preventive warnings matching the filters.
func (c *Controller) ListWarnings(ctx echo.Context) error {
	filter := repository.WarningFilter{
		Status: ctx.QueryParam("status"),
	}
	if v := ctx.QueryParam("entity_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid entity_id"})
		}
		filter.EntityID = uint(id)
	}
	if v := ctx.QueryParam("rule_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule_id"})
		}
		filter.RuleID = uint(id)
	}
	filter.Limit, filter.Offset = parsePaging(ctx)

	warnings, total, err := c.repos.Warnings.ListWarnings(ctx.Request().Context(), filter)
	if err != nil {
		c.logErrorIfEnabled("failed to list warnings", logger.Error(err))
		return c.HandleError(ctx, err, "Failed to list warnings")
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"warnings": warnings,
		"total":    total,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

// AcknowledgeWarning marks a pending warning acknowledged by the entity.
func (c *Controller) AcknowledgeWarning(ctx echo.Context) error {
	return c.setWarningStatus(ctx, entities.WarningStatusAcknowledged)
}

// DismissWarning marks a pending warning dismissed.
func (c *Controller) DismissWarning(ctx echo.Context) error {
	return c.setWarningStatus(ctx, entities.WarningStatusDismissed)
}

func (c *Controller) setWarningStatus(ctx echo.Context, status string) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid warning ID"})
	}

	warning, err := c.repos.Warnings.SetStatus(ctx.Request().Context(), id, status)
	if err != nil {
		if errors.Is(err, repository.ErrWarningNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Warning not found"})
		}
		if errors.Is(err, repository.ErrAlertResolved) {
			return ctx.JSON(http.StatusConflict, map[string]string{"error": "Warning is already closed"})
		}
		c.logErrorIfEnabled("failed to update warning", logger.Error(err))
		return c.HandleError(ctx, err, "Failed to update warning")
	}

	return ctx.JSON(http.StatusOK, warning)
}
