package services

import (
	"rentals/internal/domain"
	"rentals/internal/domain/models"
)

// participates is true for the booking's driver, its partner and platform operators.
func participates(a domain.Actor, b models.Booking) bool {
	if a.IsOperator() {
		return true
	}
	return a.ID != "" && (a.ID == b.DriverID || a.ID == b.PartnerID)
}

func ownsAsPartner(a domain.Actor, b models.Booking) bool {
	return a.IsOperator() || (a.ID != "" && a.ID == b.PartnerID)
}

func bookingUnauthorized(a domain.Actor, b models.Booking, msg string) error {
	return domain.UnauthorizedError{Resource: "booking " + b.ID, ActorID: a.ID, OwnerID: b.PartnerID, Msg: msg}
}

func containsBookingStatus(list []models.BookingStatus, s models.BookingStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
