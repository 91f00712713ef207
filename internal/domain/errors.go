package domain

import (
	"errors"
	"fmt"
	"strings"
)

// DomainError keeps backward compatibility for generic codes.
type DomainError struct {
	Code string
	Err  error
}

func (e DomainError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	if e.Code == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e DomainError) Unwrap() error {
	return e.Err
}

type NotFoundError struct {
	Resource string
	ID       string
	Err      error
}

func (e NotFoundError) Error() string {
	switch {
	case e.Resource == "":
		return "not found"
	case e.ID != "":
		return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
	default:
		return fmt.Sprintf("%s not found", e.Resource)
	}
}

func (e NotFoundError) Unwrap() error { return e.Err }

type ValidationError struct {
	Field string
	Msg   string
	Err   error
}

func (e ValidationError) Error() string {
	if e.Msg != "" && e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return "validation error"
}

func (e ValidationError) Unwrap() error { return e.Err }

// UnauthorizedError is returned when the caller does not own the resource.
type UnauthorizedError struct {
	Resource string
	ActorID  string
	OwnerID  string
	Msg      string
}

func (e UnauthorizedError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Resource != "" && e.ActorID != "" {
		return fmt.Sprintf("%s is not allowed to act on %s", e.ActorID, e.Resource)
	}
	return "unauthorized"
}

// InvalidStateError reports an operation that is not legal from the current status.
type InvalidStateError struct {
	Resource  string
	Current   string
	Operation string
	Msg       string
}

func (e InvalidStateError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("cannot %s %s in status %q", e.Operation, e.Resource, e.Current)
}

// RequirementsNotMetError blocks activation and lists the unmet requirements in check order.
type RequirementsNotMetError struct {
	BookingID string
	Unmet     []string
}

func (e RequirementsNotMetError) Error() string {
	return fmt.Sprintf("booking %s is not ready for activation: %s", e.BookingID, strings.Join(e.Unmet, ", "))
}

type AlreadyInTerminalStateError struct {
	Resource string
	ID       string
	State    string
}

func (e AlreadyInTerminalStateError) Error() string {
	return fmt.Sprintf("%s %s is already %s", e.Resource, e.ID, e.State)
}

type NoVehicleBoundError struct {
	BookingID string
}

func (e NoVehicleBoundError) Error() string {
	return fmt.Sprintf("booking %s has no vehicle bound", e.BookingID)
}

type ConflictError struct {
	Resource string
	Msg      string
	Err      error
}

func (e ConflictError) Error() string {
	switch {
	case e.Msg != "" && e.Resource != "":
		return fmt.Sprintf("%s conflict: %s", e.Resource, e.Msg)
	case e.Msg != "":
		return e.Msg
	case e.Resource != "":
		return fmt.Sprintf("%s conflict", e.Resource)
	default:
		return "conflict"
	}
}

func (e ConflictError) Unwrap() error { return e.Err }

type InternalError struct {
	Msg string
	Err error
}

func (e InternalError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return "internal error"
}

func (e InternalError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsUnauthorized(err error) bool {
	var target UnauthorizedError
	return errors.As(err, &target)
}

func IsInvalidState(err error) bool {
	var target InvalidStateError
	return errors.As(err, &target)
}

func IsRequirementsNotMet(err error) bool {
	var target RequirementsNotMetError
	return errors.As(err, &target)
}

func IsAlreadyTerminal(err error) bool {
	var target AlreadyInTerminalStateError
	return errors.As(err, &target)
}

func IsNoVehicleBound(err error) bool {
	var target NoVehicleBoundError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target ConflictError
	return errors.As(err, &target)
}

func IsInternal(err error) bool {
	var target InternalError
	return errors.As(err, &target)
}
