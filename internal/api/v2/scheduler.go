package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/regwatch/regwatch/internal/datastore/repository"
	"github.com/regwatch/regwatch/internal/errors"
	"github.com/regwatch/regwatch/internal/logger"
	"github.com/regwatch/regwatch/internal/monitor"
)

// initSchedulerRoutes registers scheduler control and execution ledger
// endpoints.
func (c *Controller) initSchedulerRoutes() {
	scheduler := c.Group.Group("/scheduler", c.requireGovernment)
	scheduler.POST("/start", c.StartScheduler)
	scheduler.POST("/stop", c.StopScheduler)
	scheduler.GET("/status", c.GetSchedulerStatus)
	scheduler.POST("/run-all", c.RunAllRules)

	rules := c.Group.Group("/rules", c.requireGovernment)
	rules.POST("/:id/execute", c.ExecuteRule)

	executions := c.Group.Group("/executions", c.requireGovernment)
	executions.GET("", c.ListExecutions)
}

// StartScheduler starts the evaluation loop. Starting a running scheduler
// is a no-op success.
func (c *Controller) StartScheduler(ctx echo.Context) error {
	c.scheduler.Start()
	if c.recorder != nil {
		c.recorder.SetSchedulerRunning(true)
	}
	return ctx.JSON(http.StatusOK, c.scheduler.Status())
}

// StopScheduler stops the evaluation loop and drains in-flight runs.
// Stopping a stopped scheduler is a no-op success.
func (c *Controller) StopScheduler(ctx echo.Context) error {
	c.scheduler.Stop()
	if c.recorder != nil {
		c.recorder.SetSchedulerRunning(false)
	}
	return ctx.JSON(http.StatusOK, c.scheduler.Status())
}

// GetSchedulerStatus reports the current scheduler state.
func (c *Controller) GetSchedulerStatus(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.scheduler.Status())
}

// ExecuteRule runs a single rule on demand, regardless of its enabled flag.
func (c *Controller) ExecuteRule(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule ID"})
	}

	result, err := c.scheduler.ExecuteRule(ctx.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Rule not found"})
		}
		if errors.Is(err, monitor.ErrExecutionInFlight) {
			return ctx.JSON(http.StatusConflict, map[string]string{"error": "Rule execution already in flight"})
		}
		// A failed evaluation still produced a ledger entry; surface it.
		if result != nil {
			return ctx.JSON(http.StatusOK, result)
		}
		c.logErrorIfEnabled("failed to execute rule",
			logger.Uint64("rule_id", uint64(id)), logger.Error(err))
		return c.HandleError(ctx, err, "Failed to execute rule")
	}

	return ctx.JSON(http.StatusOK, result)
}

// RunAllRules evaluates every enabled rule immediately, isolating per-rule
// failures.
func (c *Controller) RunAllRules(ctx echo.Context) error {
	results, err := c.scheduler.RunAll(ctx.Request().Context())
	if err != nil {
		c.logErrorIfEnabled("failed to run all rules", logger.Error(err))
		return c.HandleError(ctx, err, "Failed to run rules")
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}

// ListExecutions returns ledger entries, newest first.
func (c *Controller) ListExecutions(ctx echo.Context) error {
	filter := repository.ExecutionFilter{
		Status: ctx.QueryParam("status"),
	}
	if v := ctx.QueryParam("rule_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule_id"})
		}
		filter.RuleID = uint(id)
	}
	filter.Limit, filter.Offset = parsePaging(ctx)

	executions, total, err := c.repos.Executions.List(ctx.Request().Context(), filter)
	if err != nil {
		c.logErrorIfEnabled("failed to list executions", logger.Error(err))
		return c.HandleError(ctx, err, "Failed to list executions")
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"executions": executions,
		"total":      total,
		"limit":      filter.Limit,
		"offset":     filter.Offset,
	})
}
