// Package api implements the v2 HTTP API for the compliance monitoring
// engine. Authentication itself is external; callers arrive with principal
// headers set by the portal gateway, and this layer only enforces presence
// and role.
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/regwatch/regwatch/internal/dashboard"
	"github.com/regwatch/regwatch/internal/datastore/repository"
	"github.com/regwatch/regwatch/internal/errors"
	"github.com/regwatch/regwatch/internal/logger"
	"github.com/regwatch/regwatch/internal/monitor"
	"github.com/regwatch/regwatch/internal/notification"
)

// Principal headers injected by the portal gateway.
const (
	HeaderPrincipalID   = "X-Principal-ID"
	HeaderPrincipalRole = "X-Principal-Role"
)

// QueryValueTrue is the canonical truthy query parameter value.
const QueryValueTrue = "true"

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// SchedulerStateRecorder mirrors scheduler lifecycle changes into
// instrumentation. Satisfied by the observability metrics type.
type SchedulerStateRecorder interface {
	SetSchedulerRunning(running bool)
}

// Options carries the collaborators the controller exposes over HTTP.
type Options struct {
	Repos      monitor.Repositories
	Scheduler  *monitor.Scheduler
	Aggregator *dashboard.Aggregator
	Enforcer   EnforcementNotifier
	Recorder   SchedulerStateRecorder
	Metrics    http.Handler
	Log        logger.Logger
}

// Controller registers and serves all v2 API endpoints.
type Controller struct {
	Echo  *echo.Echo
	Group *echo.Group

	repos      monitor.Repositories
	scheduler  *monitor.Scheduler
	aggregator *dashboard.Aggregator
	enforcer   EnforcementNotifier
	recorder   SchedulerStateRecorder

	apiLogger logger.Logger
}

// New wires the controller onto the echo instance and registers routes.
func New(e *echo.Echo, opts Options) *Controller {
	c := &Controller{
		Echo:       e,
		repos:      opts.Repos,
		scheduler:  opts.Scheduler,
		aggregator: opts.Aggregator,
		enforcer:   opts.Enforcer,
		recorder:   opts.Recorder,
		apiLogger:  opts.Log,
	}
	if c.apiLogger == nil {
		c.apiLogger = logger.Default()
	}

	e.GET("/healthz", c.Healthz)
	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics))
	}

	// Every API route requires a principal. Government-facing operations
	// additionally reject the citizen role; entity-side warning
	// acknowledgment stays open to any authenticated principal.
	c.Group = e.Group("/api/v2", c.authMiddleware)

	c.initAlertRoutes()
	c.initWarningRoutes()
	c.initRuleRoutes()
	c.initSchedulerRoutes()
	c.initDashboardRoutes()
	c.initNotificationRoutes()

	return c
}

// Healthz reports liveness plus a few cheap operational signals.
func (c *Controller) Healthz(ctx echo.Context) error {
	body := map[string]any{"status": "ok"}
	if c.scheduler != nil {
		body["scheduler_running"] = c.scheduler.Status().Running
	}
	if c.repos.Executions != nil {
		if running, err := c.repos.Executions.CountRunning(ctx.Request().Context()); err == nil {
			body["executions_running"] = running
		}
	}
	return ctx.JSON(http.StatusOK, body)
}

// authMiddleware requires the gateway principal headers on every request.
func (c *Controller) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		id := ctx.Request().Header.Get(HeaderPrincipalID)
		role := ctx.Request().Header.Get(HeaderPrincipalRole)
		if id == "" || role == "" {
			return ctx.JSON(http.StatusUnauthorized, map[string]string{"error": "Authentication required"})
		}
		ctx.Set("principal_id", id)
		ctx.Set("principal_role", role)
		return next(ctx)
	}
}

// requireGovernment denies citizen-role principals on administrative
// endpoints.
func (c *Controller) requireGovernment(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if role, _ := ctx.Get("principal_role").(string); role == monitor.RoleCitizen {
			return ctx.JSON(http.StatusForbidden, map[string]string{"error": "Insufficient role"})
		}
		return next(ctx)
	}
}

// HandleError maps domain errors onto HTTP statuses and renders the
// standard error body.
func (c *Controller) HandleError(ctx echo.Context, err error, message string) error {
	return ctx.JSON(statusForError(err), map[string]string{
		"error":  message,
		"detail": err.Error(),
	})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, repository.ErrRuleNotFound),
		errors.Is(err, repository.ErrAlertNotFound),
		errors.Is(err, repository.ErrExecutionNotFound),
		errors.Is(err, repository.ErrWarningNotFound),
		errors.Is(err, notification.ErrNotFound),
		errors.HasCategory(err, errors.CategoryNotFound):
		return http.StatusNotFound
	case errors.HasCategory(err, errors.CategoryValidation):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrAlertResolved),
		errors.Is(err, repository.ErrExecutionFinished),
		errors.Is(err, repository.ErrDuplicateAlert),
		errors.Is(err, monitor.ErrExecutionInFlight),
		errors.HasCategory(err, errors.CategoryInvalidState):
		return http.StatusConflict
	case errors.HasCategory(err, errors.CategoryDependency):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (c *Controller) logErrorIfEnabled(msg string, fields ...logger.Field) {
	if c.apiLogger != nil {
		c.apiLogger.Error(msg, fields...)
	}
}

func (c *Controller) logInfoIfEnabled(msg string, fields ...logger.Field) {
	if c.apiLogger != nil {
		c.apiLogger.Info(msg, fields...)
	}
}

// parseUintParam parses a uint route parameter.
func parseUintParam(ctx echo.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(v), nil
}

// parsePaging reads limit/offset query parameters with bounds applied.
func parsePaging(ctx echo.Context) (limit, offset int) {
	limit = defaultListLimit
	if v, err := strconv.Atoi(ctx.QueryParam("limit")); err == nil && v > 0 {
		limit = v
		if limit > maxListLimit {
			limit = maxListLimit
		}
	}
	if v, err := strconv.Atoi(ctx.QueryParam("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
