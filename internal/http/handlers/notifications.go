package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GET /api/notifications?limit=50
func (h Handlers) ListNotifications(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	recipient := a.ID
	if a.IsOperator() && h.OperatorChannel != "" {
		recipient = h.OperatorChannel
	}
	list, err := h.Notifications.ListByRecipient(c.Request.Context(), recipient, limit)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}
