package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/regwatch/regwatch/internal/dashboard"
	"github.com/regwatch/regwatch/internal/logger"
)

const (
	defaultPriorityLimit = 10
	defaultAtRiskLimit   = 10
)

// initDashboardRoutes registers the analytics endpoints backing the
// compliance dashboard.
func (c *Controller) initDashboardRoutes() {
	dash := c.Group.Group("/dashboard", c.requireGovernment)

	dash.GET("/summary", c.GetDashboardSummary)
	dash.GET("/trends", c.GetDashboardTrends)
	dash.GET("/heatmap", c.GetRegionalHeatMap)
	dash.GET("/priority", c.GetPriorityQueue)
	dash.GET("/resolutions", c.GetResolutionMetrics)
	dash.GET("/risk/factors", c.GetCommonRiskFactors)
	dash.GET("/risk/entities", c.GetAtRiskEntities)
}

// dashboardFilter reads the shared narrowing parameters of the dashboard
// endpoints. Absent parameters leave the corresponding dimension open.
func dashboardFilter(ctx echo.Context) dashboard.Filter {
	return dashboard.Filter{
		Severity: ctx.QueryParam("severity"),
		Region:   ctx.QueryParam("region"),
		Category: ctx.QueryParam("category"),
	}
}

// GetDashboardSummary returns headline alert counts for the period.
func (c *Controller) GetDashboardSummary(ctx echo.Context) error {
	summary, err := c.aggregator.Summary(ctx.Request().Context(), ctx.QueryParam("period"), dashboardFilter(ctx))
	if err != nil {
		c.logErrorIfEnabled("failed to build dashboard summary", logger.Error(err))
		return c.HandleError(ctx, err, "Failed to build summary")
	}
	return ctx.JSON(http.StatusOK, summary)
}

// GetDashboardTrends compares the period against the preceding window of
// the same length.
func (c *Controller) GetDashboardTrends(ctx echo.Context) error {
	trends, err := c.aggregator.Trends(ctx.Request().Context(), ctx.QueryParam("period"), dashboardFilter(ctx))
	if err != nil {
		c.logErrorIfEnabled("failed to build dashboard trends", logger.Error(err))
		return c.HandleError(ctx, err, "Failed to build trends")
	}
	return ctx.JSON(http.StatusOK, trends)
}

// GetRegionalHeatMap returns per-region alert density and health status.
func (c *Controller) GetRegionalHeatMap(ctx echo.Context) error {
	regions, err := c.aggregator.HeatMap(ctx.Request().Context(), dashboardFilter(ctx))
	if err != nil {
		c.logErrorIfEnabled("failed to build regional heat map", logger.Error(err))
		return c.HandleError(ctx, err, "Failed to build heat map")
	}
	return ctx.JSON(http.StatusOK, map[string]any{"regions": regions})
}

// GetPriorityQueue returns alerts needing attention soonest.
func (c *Controller) GetPriorityQueue(ctx echo.Context) error {
	limit := defaultPriorityLimit
	if v, err := strconv.Atoi(ctx.QueryParam("limit")); err == nil && v > 0 {
		limit = v
	}

	entries, err := c.aggregator.PriorityQueue(ctx.Request().Context(), limit, dashboardFilter(ctx))
	if err != nil {
		c.logErrorIfEnabled("failed to build priority queue", logger.Error(err))
		return c.HandleError(ctx, err, "Failed to build priority queue")
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// GetResolutionMetrics returns intervention outcome statistics.
func (c *Controller) GetResolutionMetrics(ctx echo.Context) error {
	metrics, err := c.aggregator.Resolutions(ctx.Request().Context(), ctx.QueryParam("period"), dashboardFilter(ctx))
	if err != nil {
		c.logErrorIfEnabled("failed to build resolution metrics", logger.Error(err))
		return c.HandleError(ctx, err, "Failed to build resolution metrics")
	}
	return ctx.JSON(http.StatusOK, metrics)
}

// GetCommonRiskFactors returns the most frequent elevated risk factors
// across the population.
func (c *Controller) GetCommonRiskFactors(ctx echo.Context) error {
	factors, err := c.aggregator.CommonRiskFactors(ctx.Request().Context())
	if err != nil {
		c.logErrorIfEnabled("failed to compute common risk factors", logger.Error(err))
		return c.HandleError(ctx, err, "Failed to compute risk factors")
	}
	return ctx.JSON(http.StatusOK, map[string]any{"factors": factors})
}

// GetAtRiskEntities returns the highest-risk entities, most severe first.
func (c *Controller) GetAtRiskEntities(ctx echo.Context) error {
	limit := defaultAtRiskLimit
	if v, err := strconv.Atoi(ctx.QueryParam("limit")); err == nil && v > 0 {
		limit = v
	}

	predictions, err := c.aggregator.AtRiskEntities(ctx.Request().Context(), limit)
	if err != nil {
		c.logErrorIfEnabled("failed to compute at-risk entities", logger.Error(err))
		return c.HandleError(ctx, err, "Failed to compute at-risk entities")
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"entities": predictions,
		"count":    len(predictions),
	})
}
