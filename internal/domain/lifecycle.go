package domain

import (
	"sort"

	"rentals/internal/domain/models"
)

// Action is a lifecycle verb applied to a booking.
type Action string

const (
	ActionPromoteOnPayment       Action = "promote_on_payment"
	ActionAccept                 Action = "accept"
	ActionAcceptPendingInsurance Action = "accept_pending_insurance"
	ActionInsuranceUploaded      Action = "insurance_uploaded"
	ActionActivate               Action = "activate"
	ActionComplete               Action = "complete"
	ActionCancel                 Action = "cancel"
	ActionReleaseVehicle         Action = "release_vehicle"
	ActionReportIssue            Action = "report_issue"
)

// AllStatuses lists every booking status in lifecycle order.
var AllStatuses = []models.BookingStatus{
	models.BookingPendingPayment,
	models.BookingPendingPartnerApproval,
	models.BookingPartnerAccepted,
	models.BookingPendingInsuranceUpload,
	models.BookingConfirmed,
	models.BookingActive,
	models.BookingInProgress,
	models.BookingCompleted,
	models.BookingCancelled,
}

// transitions maps current status -> action -> resulting status.
// Adding a transition is one edit here.
var transitions = map[models.BookingStatus]map[Action]models.BookingStatus{
	models.BookingPendingPayment: {
		ActionPromoteOnPayment: models.BookingPendingPartnerApproval,
		ActionCancel:           models.BookingCancelled,
	},
	models.BookingPendingPartnerApproval: {
		ActionAccept:                 models.BookingPartnerAccepted,
		ActionAcceptPendingInsurance: models.BookingPendingInsuranceUpload,
		ActionCancel:                 models.BookingCancelled,
	},
	models.BookingPartnerAccepted: {
		ActionActivate:       models.BookingActive,
		ActionReleaseVehicle: models.BookingPartnerAccepted,
		ActionCancel:         models.BookingCancelled,
	},
	models.BookingPendingInsuranceUpload: {
		ActionInsuranceUploaded: models.BookingPartnerAccepted,
		ActionActivate:          models.BookingActive,
		ActionReleaseVehicle:    models.BookingPendingInsuranceUpload,
		ActionCancel:            models.BookingCancelled,
	},
	models.BookingConfirmed: {
		ActionActivate: models.BookingActive,
		ActionCancel:   models.BookingCancelled,
	},
	models.BookingActive: {
		ActionActivate:       models.BookingActive,
		ActionReleaseVehicle: models.BookingActive,
		ActionComplete:       models.BookingCompleted,
		ActionCancel:         models.BookingCancelled,
	},
	models.BookingInProgress: {
		ActionReleaseVehicle: models.BookingInProgress,
		ActionComplete:       models.BookingCompleted,
		ActionCancel:         models.BookingCancelled,
	},
	models.BookingCompleted: {},
	models.BookingCancelled: {},
}

func init() {
	// Issues are not state-gated.
	for _, s := range AllStatuses {
		transitions[s][ActionReportIssue] = s
	}
}

// Next returns the status reached by applying action from the given status.
func Next(from models.BookingStatus, action Action) (models.BookingStatus, error) {
	if to, ok := transitions[from][action]; ok {
		return to, nil
	}
	return "", InvalidStateError{Resource: "booking", Current: string(from), Operation: string(action)}
}

// Allows reports whether action is legal from status.
func Allows(from models.BookingStatus, action Action) bool {
	_, ok := transitions[from][action]
	return ok
}

// StatusesAllowing lists, in lifecycle order, every status from which action is legal.
// Used to build conditional-update guards.
func StatusesAllowing(action Action) []models.BookingStatus {
	out := make([]models.BookingStatus, 0, len(AllStatuses))
	for _, s := range AllStatuses {
		if Allows(s, action) {
			out = append(out, s)
		}
	}
	return out
}

// ActivationEligible lists the pre-active statuses from which activation moves the booking.
func ActivationEligible() []models.BookingStatus {
	out := []models.BookingStatus{}
	for _, s := range StatusesAllowing(ActionActivate) {
		if s != models.BookingActive {
			out = append(out, s)
		}
	}
	return out
}

// Terminal reports whether a booking status has no outgoing lifecycle transitions.
func Terminal(s models.BookingStatus) bool {
	for a := range transitions[s] {
		if a != ActionReportIssue {
			return false
		}
	}
	return true
}

// ActionsFrom lists the legal actions from a status, sorted for stable output.
func ActionsFrom(s models.BookingStatus) []Action {
	out := make([]Action, 0, len(transitions[s]))
	for a := range transitions[s] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
