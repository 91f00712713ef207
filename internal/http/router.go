package api

import (
	"context"
	"database/sql"
	stdhttp "net/http"

	intconfig "rentals/internal/config"
	"rentals/internal/domain"
	h "rentals/internal/http/handlers"
	"rentals/internal/http/middleware"
	"rentals/internal/utils"

	"github.com/gin-gonic/gin"
)

func NewRouter(env intconfig.Env, handlers h.Handlers, db *sql.DB) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logger(), gin.Recovery(), middleware.CORS(env.AllowedOrigins()))
	r.Use(middleware.RateLimit(env.RateLimitPerMinute, env.RateLimitBurst))

	if err := r.SetTrustedProxies(nil); err != nil {
		utils.LogWarn(context.Background(), "http", "router", "failed to set trusted proxies", err)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(stdhttp.StatusNotFound, gin.H{
			"error":  "route not found",
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
	})

	api := r.Group("/api")
	{
		api.GET("/health", h.Health(db))
		api.GET("/routes", h.Routes)

		authed := api.Group("", middleware.RequireAuth(env.JWTSecret))

		partnerSide := middleware.RequireActorTypes(domain.ActorPartner, domain.ActorPartnerStaff, domain.ActorOperator, domain.ActorSystem)
		driverOnly := middleware.RequireActorTypes(domain.ActorDriver)

		bookings := authed.Group("/bookings")
		mountBookings(bookings, handlers, partnerSide)
		mountBookingPayments(bookings, handlers, partnerSide)

		authed.GET("/notifications", handlers.ListNotifications)

		instructions := authed.Group("/payment-instructions")
		instructions.POST("/:id/mark-sent", driverOnly, handlers.MarkSent)
		instructions.POST("/:id/refund", partnerSide, handlers.RefundDeposit)
		instructions.POST("/:id/reject-refund", partnerSide, handlers.RejectRefund)
	}

	h.SetRouter(r)
	return r
}

func mountBookings(g *gin.RouterGroup, handlers h.Handlers, partnerSide gin.HandlerFunc) {
	g.GET("/:id", handlers.GetBooking)
	g.GET("/:id/history", handlers.GetHistory)
	g.GET("/:id/history/report", handlers.AuditTrailPDF)
	g.GET("/:id/activation-readiness", handlers.GetActivationReadiness)

	g.POST("/:id/activate", partnerSide, handlers.Activate)
	g.POST("/:id/accept", partnerSide, handlers.Accept)
	g.POST("/:id/insurance-uploaded", handlers.InsuranceUploaded)
	g.POST("/:id/complete", partnerSide, handlers.Complete)
	g.POST("/:id/cancel", handlers.Cancel)
	g.POST("/:id/release-vehicle", handlers.ReleaseVehicle)

	g.POST("/:id/issues", handlers.ReportIssue)
	g.POST("/:id/issues/:issueId/resolve", partnerSide, handlers.ResolveIssue)
}

func mountBookingPayments(g *gin.RouterGroup, handlers h.Handlers, partnerSide gin.HandlerFunc) {
	g.POST("/:id/payment-instructions", handlers.CreateWeeklyInstruction)
	g.POST("/:id/payment-instructions/:instructionId/confirm", partnerSide, handlers.ConfirmBankTransfer)
}
