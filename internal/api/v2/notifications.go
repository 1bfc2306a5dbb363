package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/regwatch/regwatch/internal/errors"
	"github.com/regwatch/regwatch/internal/logger"
	"github.com/regwatch/regwatch/internal/notification"
)

// initNotificationRoutes registers notification center endpoints.
func (c *Controller) initNotificationRoutes() {
	notifications := c.Group.Group("/notifications", c.requireGovernment)

	notifications.GET("", c.ListNotifications)
	notifications.GET("/unread-count", c.GetUnreadCount)
	notifications.GET("/:id", c.GetNotification)
	notifications.POST("/:id/read", c.MarkNotificationRead)
}

// ListNotifications returns notification records, newest first.
func (c *Controller) ListNotifications(ctx echo.Context) error {
	if !notification.IsInitialized() {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Notification service not available"})
	}

	filter := notification.ListFilter{
		Type:       ctx.QueryParam("type"),
		UnreadOnly: ctx.QueryParam("unread") == QueryValueTrue,
	}
	if v, err := strconv.Atoi(ctx.QueryParam("limit")); err == nil && v > 0 {
		filter.Limit = v
	}

	items := notification.GetService().List(filter)
	return ctx.JSON(http.StatusOK, map[string]any{
		"notifications": items,
		"count":         len(items),
	})
}

// GetNotification returns a single notification by ID.
func (c *Controller) GetNotification(ctx echo.Context) error {
	if !notification.IsInitialized() {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Notification service not available"})
	}

	n, err := notification.GetService().Get(ctx.Param("id"))
	if err != nil {
		if errors.Is(err, notification.ErrNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Notification not found"})
		}
		c.logErrorIfEnabled("failed to get notification", logger.Error(err))
		return c.HandleError(ctx, err, "Failed to get notification")
	}

	return ctx.JSON(http.StatusOK, n)
}

// MarkNotificationRead marks a notification as read. Repeating the call is
// a no-op success.
func (c *Controller) MarkNotificationRead(ctx echo.Context) error {
	if !notification.IsInitialized() {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Notification service not available"})
	}

	if err := notification.GetService().MarkRead(ctx.Param("id")); err != nil {
		if errors.Is(err, notification.ErrNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Notification not found"})
		}
		c.logErrorIfEnabled("failed to mark notification read", logger.Error(err))
		return c.HandleError(ctx, err, "Failed to mark notification read")
	}

	return ctx.JSON(http.StatusOK, map[string]string{"message": "Notification marked as read"})
}

// GetUnreadCount returns the number of unread notifications.
func (c *Controller) GetUnreadCount(ctx echo.Context) error {
	if !notification.IsInitialized() {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Notification service not available"})
	}

	return ctx.JSON(http.StatusOK, map[string]int{"unread": notification.GetService().UnreadCount()})
}
