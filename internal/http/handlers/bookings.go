package handlers

import (
	"net/http"

	"rentals/internal/services"

	"github.com/gin-gonic/gin"
)

type activateRequest struct {
	PartnerID          string `json:"partner_id"`
	Trigger            string `json:"trigger"`
	BypassRequirements bool   `json:"bypass_requirements"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// GET /api/bookings/:id
func (h Handlers) GetBooking(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	b, err := h.Bookings.Get(c.Request.Context(), c.Param("id"), a)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": b})
}

// GET /api/bookings/:id/history
func (h Handlers) GetHistory(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	entries, err := h.Bookings.ListHistory(c.Request.Context(), c.Param("id"), a)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

// GET /api/bookings/:id/activation-readiness
func (h Handlers) GetActivationReadiness(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	r, err := h.Bookings.CheckActivationReadiness(c.Request.Context(), c.Param("id"), a)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// POST /api/bookings/:id/activate
func (h Handlers) Activate(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req activateRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	res, err := h.Bookings.Activate(c.Request.Context(), services.ActivateInput{
		BookingID:          c.Param("id"),
		PartnerID:          req.PartnerID,
		Actor:              a,
		Trigger:            req.Trigger,
		BypassRequirements: req.BypassRequirements,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /api/bookings/:id/accept
func (h Handlers) Accept(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	b, err := h.Bookings.Accept(c.Request.Context(), c.Param("id"), a)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": b})
}

// POST /api/bookings/:id/insurance-uploaded
func (h Handlers) InsuranceUploaded(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	b, err := h.Bookings.MarkInsuranceUploaded(c.Request.Context(), c.Param("id"), a)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": b})
}

// POST /api/bookings/:id/complete
func (h Handlers) Complete(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	b, err := h.Bookings.Complete(c.Request.Context(), c.Param("id"), a)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": b})
}

// POST /api/bookings/:id/cancel
func (h Handlers) Cancel(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req reasonRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	b, err := h.Bookings.Cancel(c.Request.Context(), c.Param("id"), a, req.Reason)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": b})
}

// POST /api/bookings/:id/release-vehicle
func (h Handlers) ReleaseVehicle(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req reasonRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	res, err := h.Vehicles.ReleaseVehicle(c.Request.Context(), c.Param("id"), a, req.Reason)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
