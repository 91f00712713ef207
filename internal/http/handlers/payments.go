package handlers

import (
	"net/http"

	"rentals/internal/domain/models"

	"github.com/gin-gonic/gin"
)

type createInstructionRequest struct {
	Method string `json:"method" binding:"required"`
}

type refundRequest struct {
	Amount float64 `json:"amount"`
}

// POST /api/bookings/:id/payment-instructions
func (h Handlers) CreateWeeklyInstruction(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req createInstructionRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	res, err := h.Ledger.CreateWeeklyInstruction(c.Request.Context(), c.Param("id"), models.PaymentMethod(req.Method), a)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// POST /api/payment-instructions/:id/mark-sent
func (h Handlers) MarkSent(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	res, err := h.Ledger.MarkSent(c.Request.Context(), c.Param("id"), a)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	status := http.StatusOK
	if res.PromotionPending {
		status = http.StatusAccepted
	}
	c.JSON(status, res)
}

// POST /api/bookings/:id/payment-instructions/:instructionId/confirm
func (h Handlers) ConfirmBankTransfer(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	res, err := h.Ledger.ConfirmBankTransfer(c.Request.Context(), c.Param("id"), c.Param("instructionId"), a)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /api/payment-instructions/:id/refund
func (h Handlers) RefundDeposit(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req refundRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	res, err := h.Ledger.RefundDeposit(c.Request.Context(), c.Param("id"), req.Amount, a)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /api/payment-instructions/:id/reject-refund
func (h Handlers) RejectRefund(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req reasonRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	res, err := h.Ledger.RejectRefund(c.Request.Context(), c.Param("id"), req.Reason, a)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
