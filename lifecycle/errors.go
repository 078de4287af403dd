package lifecycle

import (
	"errors"
	"fmt"

	"github.com/AnTengye/leaseflow/model"
)

var (
	// ErrInvalidTransition means the action is not defined from the current status.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrGuardViolation means the action is defined but a precondition failed.
	ErrGuardViolation = errors.New("guard violation")
	// ErrBusy means another mutation for the same contract is in flight.
	ErrBusy = errors.New("contract busy")
	// ErrPersistenceUnavailable means the persistence service could not be reached.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	// ErrNotFound means the contract does not exist (or is not visible to the caller).
	ErrNotFound = errors.New("contract not found")
	// ErrConfirmationRequired means a confirmation-gated action was committed without an open intent.
	ErrConfirmationRequired = errors.New("confirmation required")
)

// Guard names a precondition of a transition.
type Guard string

const (
	GuardSignaturePresent      Guard = "signature_present"
	GuardConfirmed             Guard = "confirmed"
	GuardMoveInNotConfirmed    Guard = "move_in_not_confirmed"
	GuardInForce               Guard = "in_force"
	GuardNoPendingRequest      Guard = "no_pending_request"
	GuardTerminationPending    Guard = "termination_pending"
	GuardRenewalPending        Guard = "renewal_pending"
	GuardRenewalMonthsPositive Guard = "renewal_months_positive"
	GuardEndDateSet            Guard = "end_date_set"
)

// TransitionError describes a rejected transition. It unwraps to ErrInvalidTransition
// or ErrGuardViolation.
type TransitionError struct {
	Kind   error
	Action Action
	From   model.Status
	Guard  Guard
}

func (e *TransitionError) Error() string {
	if e.Guard != "" {
		return fmt.Sprintf("%s: %s from %s: %s", e.Kind, e.Action, e.From, e.Guard)
	}
	return fmt.Sprintf("%s: %s from %s", e.Kind, e.Action, e.From)
}

func (e *TransitionError) Unwrap() error {
	return e.Kind
}

func invalid(a Action, from model.Status) error {
	return &TransitionError{Kind: ErrInvalidTransition, Action: a, From: from}
}

func violation(a Action, from model.Status, g Guard) error {
	return &TransitionError{Kind: ErrGuardViolation, Action: a, From: from, Guard: g}
}

// FailedGuard extracts the failing guard from err, if any.
func FailedGuard(err error) (Guard, bool) {
	var te *TransitionError
	if errors.As(err, &te) && te.Guard != "" {
		return te.Guard, true
	}
	return "", false
}
