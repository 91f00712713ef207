package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"rentals/internal/domain"
	"rentals/internal/domain/models"
	"rentals/internal/utils"

	"go.uber.org/zap"
)

var errStoreDown = errors.New("store unavailable")

type memBookings struct {
	mu        sync.Mutex
	rows      map[string]models.Booking
	updateErr error
}

func (m *memBookings) GetByID(_ context.Context, id string) (models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok {
		return models.Booking{}, domain.NotFoundError{Resource: "booking", ID: id}
	}
	return b, nil
}

func (m *memBookings) UpdateIf(_ context.Context, id string, cond models.BookingCondition, patch models.BookingPatch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return false, m.updateErr
	}
	b, ok := m.rows[id]
	if !ok || !cond.Matches(b) {
		return false, nil
	}
	patch.Apply(&b)
	m.rows[id] = b
	return true, nil
}

func (m *memBookings) get(t *testing.T, id string) models.Booking {
	t.Helper()
	b, err := m.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("booking %s: %v", id, err)
	}
	return b
}

type memVehicles struct {
	mu         sync.Mutex
	rows       map[string]models.Vehicle
	releaseErr error
}

func (m *memVehicles) GetByID(_ context.Context, id string) (models.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.rows[id]
	if !ok {
		return models.Vehicle{}, domain.NotFoundError{Resource: "vehicle", ID: id}
	}
	return v, nil
}

func (m *memVehicles) Bind(_ context.Context, vehicleID, bookingID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.rows[vehicleID]
	if !ok {
		return domain.NotFoundError{Resource: "vehicle", ID: vehicleID}
	}
	if v.CurrentBookingID != "" && v.CurrentBookingID != bookingID {
		return domain.ConflictError{Resource: "vehicle", Msg: "bound to another booking"}
	}
	if v.Status != models.VehicleMaintenanceRequired {
		v.Status = models.VehicleBooked
	}
	v.CurrentBookingID = bookingID
	if v.ActiveBookingStartedAt == nil {
		t := at
		v.ActiveBookingStartedAt = &t
	}
	m.rows[vehicleID] = v
	return nil
}

func (m *memVehicles) Release(_ context.Context, vehicleID, bookingID string, rel models.VehicleRelease) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.releaseErr != nil {
		return false, m.releaseErr
	}
	v, ok := m.rows[vehicleID]
	if !ok || v.CurrentBookingID != bookingID {
		return false, nil
	}
	v.Status = models.VehicleAvailable
	v.CurrentBookingID = ""
	v.ActiveBookingStartedAt = nil
	r := rel
	v.LastRelease = &r
	m.rows[vehicleID] = v
	return true, nil
}

func (m *memVehicles) SetStatus(_ context.Context, vehicleID string, status models.VehicleStatus, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.rows[vehicleID]
	if !ok {
		return domain.NotFoundError{Resource: "vehicle", ID: vehicleID}
	}
	v.Status = status
	m.rows[vehicleID] = v
	return nil
}

func (m *memVehicles) get(t *testing.T, id string) models.Vehicle {
	t.Helper()
	v, err := m.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("vehicle %s: %v", id, err)
	}
	return v
}

type memInstructions struct {
	mu   sync.Mutex
	rows map[string]models.PaymentInstruction
}

func (m *memInstructions) GetByID(_ context.Context, id string) (models.PaymentInstruction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.rows[id]
	if !ok {
		return models.PaymentInstruction{}, domain.NotFoundError{Resource: "payment instruction", ID: id}
	}
	return in, nil
}

func (m *memInstructions) Create(_ context.Context, in models.PaymentInstruction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in.Type == models.InstructionWeeklyRent {
		for _, existing := range m.rows {
			if existing.BookingID == in.BookingID && existing.Type == models.InstructionWeeklyRent {
				return domain.ConflictError{Resource: "payment instruction", Msg: "duplicate weekly"}
			}
		}
	}
	m.rows[in.ID] = in
	return nil
}

func (m *memInstructions) FindActiveWeekly(_ context.Context, bookingID string) (*models.PaymentInstruction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, in := range m.rows {
		if in.BookingID == bookingID && in.Type == models.InstructionWeeklyRent {
			cp := in
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memInstructions) ListByBooking(_ context.Context, bookingID string) ([]models.PaymentInstruction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.PaymentInstruction{}
	for _, in := range m.rows {
		if in.BookingID == bookingID {
			out = append(out, in)
		}
	}
	return out, nil
}

func (m *memInstructions) UpdateIf(_ context.Context, id string, cond models.InstructionCondition, patch models.InstructionPatch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.rows[id]
	if !ok || !cond.Matches(in) {
		return false, nil
	}
	patch.Apply(&in)
	m.rows[id] = in
	return true, nil
}

func (m *memInstructions) MarkPendingReceived(_ context.Context, bookingID, exceptID, confirmedBy string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, in := range m.rows {
		if in.BookingID != bookingID || id == exceptID || in.Method != models.MethodBankTransfer {
			continue
		}
		if in.Status != models.InstructionPending || in.Type == models.InstructionDeposit {
			continue
		}
		t := at
		in.Status = models.InstructionReceived
		in.ConfirmedAt = &t
		in.ConfirmedBy = confirmedBy
		m.rows[id] = in
		n++
	}
	return n, nil
}

func (m *memInstructions) get(t *testing.T, id string) models.PaymentInstruction {
	t.Helper()
	in, err := m.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("instruction %s: %v", id, err)
	}
	return in
}

type memTransactions struct {
	mu   sync.Mutex
	rows []models.Transaction
}

func (m *memTransactions) HasRefundFor(_ context.Context, instructionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.rows {
		if t.InstructionID == instructionID && t.Category == models.CategoryDepositRefund {
			return true, nil
		}
	}
	return false, nil
}

func (m *memTransactions) CreateRefundPair(_ context.Context, expense, income models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.rows {
		if t.InstructionID == expense.InstructionID && t.Category == expense.Category {
			return nil
		}
	}
	m.rows = append(m.rows, expense, income)
	return nil
}

type memIssues struct {
	mu   sync.Mutex
	rows []models.Issue
}

func (m *memIssues) Create(_ context.Context, is models.Issue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, is)
	return nil
}

func (m *memIssues) GetByID(_ context.Context, bookingID, issueID string) (models.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, is := range m.rows {
		if is.ID == issueID && is.BookingID == bookingID {
			return is, nil
		}
	}
	return models.Issue{}, domain.NotFoundError{Resource: "issue", ID: issueID}
}

func (m *memIssues) ListByBooking(_ context.Context, bookingID string) ([]models.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Issue{}
	for _, is := range m.rows {
		if is.BookingID == bookingID {
			out = append(out, is)
		}
	}
	return out, nil
}

func (m *memIssues) Resolve(_ context.Context, bookingID, issueID, resolution, by, byType string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, is := range m.rows {
		if is.ID != issueID || is.BookingID != bookingID || is.Status != models.IssueOpen {
			continue
		}
		r, b, bt, t := resolution, by, byType, at
		is.Status = models.IssueResolved
		is.Resolution, is.ResolvedBy, is.ResolvedByType, is.ResolvedAt = &r, &b, &bt, &t
		m.rows[i] = is
		return true, nil
	}
	return false, nil
}

// memOutbox records enqueued events; histories and notifications decode their payloads.
type memOutbox struct {
	mu     sync.Mutex
	events []models.OutboxEvent
}

func (m *memOutbox) Enqueue(_ context.Context, ev models.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memOutbox) ofKind(kind models.OutboxKind) []models.OutboxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.OutboxEvent{}
	for _, ev := range m.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (m *memOutbox) histories(t *testing.T, action string) []models.HistoryEntry {
	t.Helper()
	out := []models.HistoryEntry{}
	for _, ev := range m.ofKind(models.OutboxHistory) {
		var h models.HistoryEntry
		if err := json.Unmarshal(ev.Payload, &h); err != nil {
			t.Fatalf("decode history: %v", err)
		}
		if action == "" || h.Action == action {
			out = append(out, h)
		}
	}
	return out
}

func (m *memOutbox) notifications(t *testing.T, typ string) []models.Notification {
	t.Helper()
	out := []models.Notification{}
	for _, ev := range m.ofKind(models.OutboxNotification) {
		var n models.Notification
		if err := json.Unmarshal(ev.Payload, &n); err != nil {
			t.Fatalf("decode notification: %v", err)
		}
		if typ == "" || n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

func (m *memOutbox) notificationsFor(t *testing.T, typ, recipientID string) []models.Notification {
	t.Helper()
	out := []models.Notification{}
	for _, n := range m.notifications(t, typ) {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	return out
}

type fakeDirectory struct {
	bank  models.BankDetails
	staff []models.StaffMember
}

func (f fakeDirectory) BankDetails(context.Context, string) (models.BankDetails, error) {
	return f.bank, nil
}

func (f fakeDirectory) FinanceStaff(context.Context, string) ([]models.StaffMember, error) {
	return f.staff, nil
}

type fakeVerification struct {
	mu    sync.Mutex
	facts map[string]models.ActivationFacts
}

func (f *fakeVerification) ActivationFacts(_ context.Context, bookingID string) (models.ActivationFacts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.facts[bookingID], nil
}

func (f *fakeVerification) MarkInsuranceUploaded(_ context.Context, bookingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	facts := f.facts[bookingID]
	facts.InsuranceValid = true
	f.facts[bookingID] = facts
	return nil
}

var (
	testNow     = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	driver      = domain.Actor{ID: "drv-1", Type: domain.ActorDriver}
	partner     = domain.Actor{ID: "ptn-1", Type: domain.ActorPartner}
	operator    = domain.Actor{ID: "ops-1", Type: domain.ActorOperator}
	stranger    = domain.Actor{ID: "drv-9", Type: domain.ActorDriver}
	readyFacts  = models.ActivationFacts{InsuranceRequired: true, InsuranceValid: true, DocumentsRequired: true, DocumentsAllApproved: true}
	noInsurance = models.ActivationFacts{InsuranceRequired: true, DocumentsRequired: true, DocumentsAllApproved: true}
)

type harness struct {
	bookings     *memBookings
	vehicles     *memVehicles
	instructions *memInstructions
	transactions *memTransactions
	issues       *memIssues
	outbox       *memOutbox
	verification *fakeVerification

	vehicleSvc VehicleService
	ledger     LedgerService
	bookingSvc BookingService
	issueSvc   IssueService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	utils.SetLogger(zap.NewNop())

	h := &harness{
		bookings:     &memBookings{rows: map[string]models.Booking{}},
		vehicles:     &memVehicles{rows: map[string]models.Vehicle{}},
		instructions: &memInstructions{rows: map[string]models.PaymentInstruction{}},
		transactions: &memTransactions{},
		issues:       &memIssues{},
		outbox:       &memOutbox{},
		verification: &fakeVerification{facts: map[string]models.ActivationFacts{}},
	}
	now := func() time.Time { return testNow }
	dir := fakeDirectory{
		bank: models.BankDetails{AccountName: "Fleet Co", SortCode: "12-34-56", AccountNumber: "12345678"},
		staff: []models.StaffMember{
			{ID: "stf-fin", PartnerID: "ptn-1", Name: "Finance", FinancialVisibility: true},
			{ID: "stf-ops", PartnerID: "ptn-1", Name: "Workshop", FinancialVisibility: false},
		},
	}
	rec := Recorder{Outbox: h.outbox, Now: now}
	fan := Fanout{Recorder: rec, Directory: dir, OperatorChannel: "platform_operators"}

	h.vehicleSvc = VehicleService{Bookings: h.bookings, Vehicles: h.vehicles, Recorder: rec, Fanout: fan, Now: now}
	h.ledger = LedgerService{
		Bookings: h.bookings, Instructions: h.instructions, Transactions: h.transactions,
		Vehicles: h.vehicles, Rates: DefaultRateProvider{}, Directory: dir,
		Recorder: rec, Fanout: fan, Now: now,
	}
	h.bookingSvc = BookingService{
		Bookings: h.bookings, Issues: h.issues, Verification: h.verification, Insurance: h.verification,
		Vehicles: h.vehicleSvc, Recorder: rec, Fanout: fan, Now: now,
	}
	h.issueSvc = IssueService{Bookings: h.bookings, Issues: h.issues, Vehicles: h.vehicleSvc, Recorder: rec, Fanout: fan, Now: now}
	return h
}

func (h *harness) addBooking(id string, status models.BookingStatus, vehicleID string) models.Booking {
	b := models.Booking{
		ID: id, DriverID: driver.ID, PartnerID: partner.ID, VehicleID: vehicleID,
		StartDate: testNow.Add(24 * time.Hour), EndDate: testNow.Add(29 * 24 * time.Hour),
		Status: status, TotalAmount: 1200, WeeklyRate: 300,
		CreatedAt: testNow.Add(-time.Hour), UpdatedAt: testNow.Add(-time.Hour),
	}
	h.bookings.rows[id] = b
	return b
}

func (h *harness) addVehicle(id, boundTo string) models.Vehicle {
	status := models.VehicleAvailable
	if boundTo != "" {
		status = models.VehicleBooked
	}
	v := models.Vehicle{ID: id, PartnerID: partner.ID, Status: status, CurrentBookingID: boundTo, PlateNumber: "ab12 cde", WeeklyRate: 280}
	h.vehicles.rows[id] = v
	return v
}

func (h *harness) addInstruction(in models.PaymentInstruction) models.PaymentInstruction {
	if in.DriverID == "" {
		in.DriverID = driver.ID
	}
	if in.PartnerID == "" {
		in.PartnerID = partner.ID
	}
	if in.Method == "" {
		in.Method = models.MethodBankTransfer
	}
	in.CreatedAt, in.UpdatedAt = testNow, testNow
	h.instructions.rows[in.ID] = in
	return in
}

// assertBijection checks booking.vehicle_id <-> vehicle.current_booking_id for every bound pair.
func (h *harness) assertBijection(t *testing.T) {
	t.Helper()
	for _, v := range h.vehicles.rows {
		if v.CurrentBookingID == "" {
			continue
		}
		b, ok := h.bookings.rows[v.CurrentBookingID]
		if !ok || b.VehicleID != v.ID {
			t.Fatalf("vehicle %s points at booking %s which does not point back", v.ID, v.CurrentBookingID)
		}
	}
	seen := map[string]string{}
	for _, b := range h.bookings.rows {
		if b.VehicleID == "" {
			continue
		}
		if other, dup := seen[b.VehicleID]; dup && h.vehicles.rows[b.VehicleID].CurrentBookingID != "" {
			t.Fatalf("vehicle %s referenced by bookings %s and %s", b.VehicleID, other, b.ID)
		}
		seen[b.VehicleID] = b.ID
	}
}
