package handlers

import (
	"net/http"

	"rentals/internal/domain/models"
	"rentals/internal/services"

	"github.com/gin-gonic/gin"
)

type reportIssueRequest struct {
	Type        string   `json:"type" binding:"required"`
	Description string   `json:"description" binding:"required"`
	Severity    string   `json:"severity" binding:"required"`
	Images      []string `json:"images"`
}

type resolveIssueRequest struct {
	Resolution string `json:"resolution" binding:"required"`
}

// POST /api/bookings/:id/issues
func (h Handlers) ReportIssue(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req reportIssueRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	res, err := h.Issues.ReportIssue(c.Request.Context(), services.ReportIssueInput{
		BookingID:   c.Param("id"),
		Type:        models.IssueType(req.Type),
		Description: req.Description,
		Severity:    models.IssueSeverity(req.Severity),
		Images:      req.Images,
		Actor:       a,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// POST /api/bookings/:id/issues/:issueId/resolve
func (h Handlers) ResolveIssue(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req resolveIssueRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	is, err := h.Issues.ResolveIssue(c.Request.Context(), c.Param("id"), c.Param("issueId"), req.Resolution, a)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"issue": is})
}
