package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GET /api/bookings/:id/history/report returns the audit trail PDF (inline).
func (h Handlers) AuditTrailPDF(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	pdfBytes, filename, err := h.Reports.AuditTrailPDF(c.Request.Context(), c.Param("id"), a)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.Header("Content-Disposition", `inline; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", pdfBytes)
}
