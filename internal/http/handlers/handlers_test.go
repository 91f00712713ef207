package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rentals/internal/domain"
	"rentals/internal/domain/models"
	"rentals/internal/http/middleware"
	"rentals/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "handler-secret"

type stubBookings struct {
	err      error
	gotActor domain.Actor
	gotInput services.ActivateInput
	reason   string
}

func (s *stubBookings) Get(_ context.Context, id string, a domain.Actor) (models.Booking, error) {
	s.gotActor = a
	return models.Booking{ID: id, Status: models.BookingActive}, s.err
}

func (s *stubBookings) ListHistory(context.Context, string, domain.Actor) ([]models.HistoryEntry, error) {
	return []models.HistoryEntry{}, s.err
}

func (s *stubBookings) CheckActivationReadiness(_ context.Context, id string, _ domain.Actor) (services.Readiness, error) {
	return services.Readiness{BookingID: id, Unmet: []string{"payment"}}, s.err
}

func (s *stubBookings) Activate(_ context.Context, in services.ActivateInput) (services.ActivationResult, error) {
	s.gotInput = in
	if s.err != nil {
		return services.ActivationResult{}, s.err
	}
	return services.ActivationResult{Booking: models.Booking{ID: in.BookingID, Status: models.BookingActive}}, nil
}

func (s *stubBookings) Accept(_ context.Context, id string, _ domain.Actor) (models.Booking, error) {
	return models.Booking{ID: id}, s.err
}

func (s *stubBookings) MarkInsuranceUploaded(_ context.Context, id string, _ domain.Actor) (models.Booking, error) {
	return models.Booking{ID: id}, s.err
}

func (s *stubBookings) Complete(_ context.Context, id string, _ domain.Actor) (models.Booking, error) {
	return models.Booking{ID: id}, s.err
}

func (s *stubBookings) Cancel(_ context.Context, id string, _ domain.Actor, reason string) (models.Booking, error) {
	s.reason = reason
	return models.Booking{ID: id, Status: models.BookingCancelled}, s.err
}

type stubLedger struct {
	err    error
	result services.MarkSentResult
	amount float64
	method models.PaymentMethod
}

func (s *stubLedger) CreateWeeklyInstruction(_ context.Context, _ string, m models.PaymentMethod, _ domain.Actor) (services.InstructionResult, error) {
	s.method = m
	return services.InstructionResult{}, s.err
}

func (s *stubLedger) MarkSent(context.Context, string, domain.Actor) (services.MarkSentResult, error) {
	return s.result, s.err
}

func (s *stubLedger) ConfirmBankTransfer(context.Context, string, string, domain.Actor) (services.ConfirmResult, error) {
	return services.ConfirmResult{}, s.err
}

func (s *stubLedger) RefundDeposit(_ context.Context, _ string, amount float64, _ domain.Actor) (services.InstructionResult, error) {
	s.amount = amount
	return services.InstructionResult{}, s.err
}

func (s *stubLedger) RejectRefund(context.Context, string, string, domain.Actor) (services.InstructionResult, error) {
	return services.InstructionResult{}, s.err
}

type stubReports struct{}

func (stubReports) AuditTrailPDF(context.Context, string, domain.Actor) ([]byte, string, error) {
	return []byte("%PDF-1.3"), "AUDIT_B1_20260302.pdf", nil
}

func token(t *testing.T, sub, role string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func newEngine(h Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID())
	g := r.Group("/api", middleware.RequireAuth(testSecret))
	g.GET("/bookings/:id", h.GetBooking)
	g.GET("/bookings/:id/activation-readiness", h.GetActivationReadiness)
	g.GET("/bookings/:id/history/report", h.AuditTrailPDF)
	g.POST("/bookings/:id/activate", h.Activate)
	g.POST("/bookings/:id/cancel", h.Cancel)
	g.POST("/bookings/:id/payment-instructions", h.CreateWeeklyInstruction)
	g.POST("/payment-instructions/:id/mark-sent", h.MarkSent)
	g.POST("/payment-instructions/:id/refund", h.RefundDeposit)
	return r
}

func call(t *testing.T, r *gin.Engine, method, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestDomainErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", domain.ValidationError{Field: "method"}, http.StatusBadRequest, "validation_error"},
		{"unauthorized", domain.UnauthorizedError{Resource: "booking"}, http.StatusForbidden, "forbidden"},
		{"not found", domain.NotFoundError{Resource: "booking", ID: "b1"}, http.StatusNotFound, "not_found"},
		{"terminal", domain.AlreadyInTerminalStateError{Resource: "booking", ID: "b1", State: "cancelled"}, http.StatusConflict, "already_terminal"},
		{"no vehicle", domain.NoVehicleBoundError{BookingID: "b1"}, http.StatusConflict, "no_vehicle_bound"},
		{"invalid state", domain.InvalidStateError{Resource: "booking", Current: "completed", Operation: "activate"}, http.StatusConflict, "invalid_state"},
		{"conflict", domain.ConflictError{Resource: "vehicle"}, http.StatusConflict, "conflict"},
		{"unknown", errors.New("db down"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newEngine(Handlers{Bookings: &stubBookings{err: tc.err}})
			w := call(t, r, http.MethodGet, "/api/bookings/b1", "", token(t, "drv-1", "driver"))
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tc.status, w.Body.String())
			}
			if got := decode(t, w)["code"]; got != tc.code {
				t.Fatalf("code = %v, want %s", got, tc.code)
			}
		})
	}
}

func TestInternalErrorHidesCause(t *testing.T) {
	r := newEngine(Handlers{Bookings: &stubBookings{err: errors.New("dial tcp 10.0.0.1:3306")}})
	w := call(t, r, http.MethodGet, "/api/bookings/b1", "", token(t, "drv-1", "driver"))
	if strings.Contains(w.Body.String(), "10.0.0.1") {
		t.Fatalf("internal cause leaked: %s", w.Body.String())
	}
}

func TestActivateRequirementsNotMetListsUnmet(t *testing.T) {
	stub := &stubBookings{err: domain.RequirementsNotMetError{BookingID: "b1", Unmet: []string{"payment", "insurance"}}}
	r := newEngine(Handlers{Bookings: stub})

	w := call(t, r, http.MethodPost, "/api/bookings/b1/activate", "", token(t, "ptn-1", "partner"))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	details, ok := decode(t, w)["details"].(map[string]any)
	if !ok {
		t.Fatalf("details missing: %s", w.Body.String())
	}
	unmet, _ := details["unmet"].([]any)
	if len(unmet) != 2 || unmet[0] != "payment" || unmet[1] != "insurance" {
		t.Fatalf("unmet = %v", unmet)
	}
}

func TestActivatePassesActorAndBody(t *testing.T) {
	stub := &stubBookings{}
	r := newEngine(Handlers{Bookings: stub})

	w := call(t, r, http.MethodPost, "/api/bookings/b1/activate", `{"trigger":"manual","bypass_requirements":true}`, token(t, "ops-1", "admin"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	in := stub.gotInput
	if in.BookingID != "b1" || in.Trigger != "manual" || !in.BypassRequirements {
		t.Fatalf("input = %+v", in)
	}
	if in.Actor != (domain.Actor{ID: "ops-1", Type: domain.ActorOperator}) {
		t.Fatalf("actor = %+v", in.Actor)
	}
}

func TestActivateRejectsMalformedBody(t *testing.T) {
	r := newEngine(Handlers{Bookings: &stubBookings{}})
	w := call(t, r, http.MethodPost, "/api/bookings/b1/activate", `{"trigger":`, token(t, "ptn-1", "partner"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestCancelReason(t *testing.T) {
	stub := &stubBookings{}
	r := newEngine(Handlers{Bookings: stub})
	w := call(t, r, http.MethodPost, "/api/bookings/b1/cancel", `{"reason":"changed plans"}`, token(t, "drv-1", "driver"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if stub.reason != "changed plans" {
		t.Fatalf("reason = %q", stub.reason)
	}
}

func TestMissingTokenIs401(t *testing.T) {
	r := newEngine(Handlers{Bookings: &stubBookings{}})
	w := call(t, r, http.MethodGet, "/api/bookings/b1", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestMarkSentAcceptedWhenPromotionDeferred(t *testing.T) {
	ledger := &stubLedger{result: services.MarkSentResult{PromotionPending: true}}
	r := newEngine(Handlers{Ledger: ledger})
	w := call(t, r, http.MethodPost, "/api/payment-instructions/pi-1/mark-sent", "", token(t, "drv-1", "driver"))
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}

	ledger.result = services.MarkSentResult{Promoted: true}
	w = call(t, r, http.MethodPost, "/api/payment-instructions/pi-1/mark-sent", "", token(t, "drv-1", "driver"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestCreateInstructionRequiresBody(t *testing.T) {
	ledger := &stubLedger{}
	r := newEngine(Handlers{Ledger: ledger})

	w := call(t, r, http.MethodPost, "/api/bookings/b1/payment-instructions", "", token(t, "drv-1", "driver"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}

	w = call(t, r, http.MethodPost, "/api/bookings/b1/payment-instructions", `{"method":"bank_transfer"}`, token(t, "drv-1", "driver"))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if ledger.method != models.MethodBankTransfer {
		t.Fatalf("method = %q", ledger.method)
	}
}

func TestRefundAmount(t *testing.T) {
	ledger := &stubLedger{}
	r := newEngine(Handlers{Ledger: ledger})
	w := call(t, r, http.MethodPost, "/api/payment-instructions/pi-1/refund", `{"amount":150.5}`, token(t, "ptn-1", "partner"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if ledger.amount != 150.5 {
		t.Fatalf("amount = %v", ledger.amount)
	}
}

func TestAuditTrailPDFInline(t *testing.T) {
	r := newEngine(Handlers{Reports: stubReports{}})
	w := call(t, r, http.MethodGet, "/api/bookings/b1/history/report", "", token(t, "ops-1", "admin"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("content type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != `inline; filename="AUDIT_B1_20260302.pdf"` {
		t.Fatalf("disposition = %q", cd)
	}
}

type stubNotifications struct {
	recipient string
	limit     int
}

func (s *stubNotifications) ListByRecipient(_ context.Context, recipientID string, limit int) ([]models.Notification, error) {
	s.recipient, s.limit = recipientID, limit
	return []models.Notification{{ID: "n1", RecipientID: recipientID}}, nil
}

func TestListNotificationsUsesOperatorChannel(t *testing.T) {
	stub := &stubNotifications{}
	h := Handlers{Notifications: stub, OperatorChannel: "platform_operators"}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/notifications", middleware.RequireAuth(testSecret), h.ListNotifications)

	w := call(t, r, http.MethodGet, "/api/notifications?limit=10", "", token(t, "ops-1", "admin"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if stub.recipient != "platform_operators" || stub.limit != 10 {
		t.Fatalf("recipient=%q limit=%d", stub.recipient, stub.limit)
	}

	call(t, r, http.MethodGet, "/api/notifications", "", token(t, "drv-1", "driver"))
	if stub.recipient != "drv-1" || stub.limit != 50 {
		t.Fatalf("recipient=%q limit=%d", stub.recipient, stub.limit)
	}
}
