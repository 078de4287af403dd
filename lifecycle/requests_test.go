package lifecycle

import (
	"testing"
	"time"

	"github.com/AnTengye/leaseflow/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminationRequiresInForce(t *testing.T) {
	notMovedIn := contractIn(model.StatusCompleted)

	_, err := Apply(notMovedIn, ActionTerminate, Payload{Reason: "job move"})
	require.ErrorIs(t, err, ErrGuardViolation)
	guard, _ := FailedGuard(err)
	assert.Equal(t, GuardInForce, guard)

	next, err := Apply(inForceContract(), ActionTerminate, Payload{Reason: " job move ", Now: testTime()})
	require.NoError(t, err)
	require.NotNil(t, next.TerminationRequest)
	assert.Equal(t, model.RequestPending, next.TerminationRequest.Status)
	assert.Equal(t, "job move", next.TerminationRequest.Reason)
	assert.True(t, next.TerminationRequest.RequestedAt.Equal(testTime()))
	assert.Equal(t, model.StatusCompleted, next.Status)
}

func TestTerminationApproval(t *testing.T) {
	c := inForceContract()
	c.TerminationRequest = &model.TerminationRequest{Status: model.RequestPending, Reason: "moving"}

	next, err := Apply(c, ActionApproveTermination, Payload{Confirmed: true, Now: testTime()})
	require.NoError(t, err)
	assert.Equal(t, model.StatusTerminated, next.Status)
	assert.Equal(t, model.RequestApproved, next.TerminationRequest.Status)
	require.NotNil(t, next.TerminationRequest.ResolvedAt)
	assert.Equal(t, model.RequestPending, c.TerminationRequest.Status, "input must not be mutated")

	_, err = Apply(next, ActionRejectTermination, Payload{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTerminationApprovalNotInForce(t *testing.T) {
	c := contractIn(model.StatusCompleted)
	c.TerminationRequest = &model.TerminationRequest{Status: model.RequestPending}

	_, err := Apply(c, ActionApproveTermination, Payload{Confirmed: true})
	require.ErrorIs(t, err, ErrGuardViolation)
	guard, _ := FailedGuard(err)
	assert.Equal(t, GuardInForce, guard)
}

func TestTerminationApprovalWithoutPendingRequest(t *testing.T) {
	c := inForceContract()
	_, err := Apply(c, ActionApproveTermination, Payload{Confirmed: true})
	require.ErrorIs(t, err, ErrGuardViolation)
	guard, _ := FailedGuard(err)
	assert.Equal(t, GuardTerminationPending, guard)

	c.TerminationRequest = &model.TerminationRequest{Status: model.RequestRejected}
	_, err = Apply(c, ActionApproveTermination, Payload{Confirmed: true})
	assert.ErrorIs(t, err, ErrGuardViolation)
}

func TestTerminationRejectionKeepsContract(t *testing.T) {
	c := inForceContract()
	c.TerminationRequest = &model.TerminationRequest{Status: model.RequestPending}

	next, err := Apply(c, ActionRejectTermination, Payload{Now: testTime()})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, next.Status)
	assert.True(t, next.IsInForce())
	assert.Equal(t, model.RequestRejected, next.TerminationRequest.Status)

	// a fresh request may be opened after rejection
	again, err := Apply(next, ActionTerminate, Payload{Reason: "second try"})
	require.NoError(t, err)
	assert.Equal(t, model.RequestPending, again.TerminationRequest.Status)
}

func TestRenewalApprovalExtendsEndDate(t *testing.T) {
	c := contractIn(model.StatusCompleted)
	requestedEnd := time.Date(2027, 6, 30, 0, 0, 0, 0, time.UTC)
	c.RenewalRequest = &model.RenewalRequest{Status: model.RequestPending, Months: 6, RequestedEndDate: requestedEnd}

	next, err := Apply(c, ActionApproveRenewal, Payload{Now: testTime()})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, next.Status)
	assert.True(t, next.EndDate.Equal(requestedEnd))
	assert.Equal(t, model.RequestApproved, next.RenewalRequest.Status)
	assert.True(t, c.EndDate.Equal(time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)), "input must not be mutated")
}

func TestRenewalApprovalWithoutRequestedEndDate(t *testing.T) {
	c := contractIn(model.StatusCompleted)
	c.RenewalRequest = &model.RenewalRequest{Status: model.RequestPending, Months: 2}

	next, err := Apply(c, ActionApproveRenewal, Payload{})
	require.NoError(t, err)
	assert.True(t, next.EndDate.Equal(c.EndDate.AddDate(0, 2, 0)))
}

func TestRenewalRequest(t *testing.T) {
	c := contractIn(model.StatusCompleted)

	_, err := Apply(c, ActionRequestRenewal, Payload{Months: 0})
	require.ErrorIs(t, err, ErrGuardViolation)
	guard, _ := FailedGuard(err)
	assert.Equal(t, GuardRenewalMonthsPositive, guard)

	next, err := Apply(c, ActionRequestRenewal, Payload{Months: 6, Now: testTime()})
	require.NoError(t, err)
	require.NotNil(t, next.RenewalRequest)
	assert.Equal(t, model.RequestPending, next.RenewalRequest.Status)
	assert.True(t, next.RenewalRequest.RequestedEndDate.Equal(c.EndDate.AddDate(0, 6, 0)))
	assert.True(t, next.EndDate.Equal(c.EndDate), "request alone must not extend the period")

	_, err = Apply(contractIn(model.StatusSignedByTenant), ActionRequestRenewal, Payload{Months: 6})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRenewalRequestNeedsEndDate(t *testing.T) {
	c := contractIn(model.StatusCompleted)
	c.EndDate = time.Time{}

	_, err := Apply(c, ActionRequestRenewal, Payload{Months: 6, Now: testTime()})
	require.ErrorIs(t, err, ErrGuardViolation)
	guard, _ := FailedGuard(err)
	assert.Equal(t, GuardEndDateSet, guard)
	assert.Nil(t, c.RenewalRequest)
	assert.NotContains(t, EligibleActions(c), ActionRequestRenewal)
}

func TestRenewalRejection(t *testing.T) {
	c := contractIn(model.StatusCompleted)
	c.RenewalRequest = &model.RenewalRequest{Status: model.RequestPending, Months: 6}

	next, err := Apply(c, ActionRejectRenewal, Payload{})
	require.NoError(t, err)
	assert.Equal(t, model.RequestRejected, next.RenewalRequest.Status)
	assert.True(t, next.EndDate.Equal(c.EndDate))

	_, err = Apply(next, ActionApproveRenewal, Payload{})
	require.ErrorIs(t, err, ErrGuardViolation)
	guard, _ := FailedGuard(err)
	assert.Equal(t, GuardRenewalPending, guard)
}

func TestPendingRequestsAreMutuallyExclusive(t *testing.T) {
	renewing := inForceContract()
	renewing.RenewalRequest = &model.RenewalRequest{Status: model.RequestPending, Months: 6}

	_, err := Apply(renewing, ActionTerminate, Payload{})
	require.ErrorIs(t, err, ErrGuardViolation)
	guard, _ := FailedGuard(err)
	assert.Equal(t, GuardNoPendingRequest, guard)

	terminating := inForceContract()
	terminating.TerminationRequest = &model.TerminationRequest{Status: model.RequestPending}

	_, err = Apply(terminating, ActionRequestRenewal, Payload{Months: 6})
	require.ErrorIs(t, err, ErrGuardViolation)
	guard, _ = FailedGuard(err)
	assert.Equal(t, GuardNoPendingRequest, guard)
}

func TestNewRequestReplacesResolvedOne(t *testing.T) {
	c := inForceContract()
	c.TerminationRequest = &model.TerminationRequest{Status: model.RequestRejected, Reason: "noise"}
	c.RenewalRequest = &model.RenewalRequest{Status: model.RequestRejected, Months: 3}

	next, err := Apply(c, ActionTerminate, Payload{Reason: "relocating", Now: testTime()})
	require.NoError(t, err)
	assert.Equal(t, model.RequestPending, next.TerminationRequest.Status)
	assert.Equal(t, "relocating", next.TerminationRequest.Reason)
	assert.Equal(t, model.RequestRejected, c.TerminationRequest.Status, "input must not be modified")

	next, err = Apply(next, ActionRejectTermination, Payload{})
	require.NoError(t, err)

	next, err = Apply(next, ActionRequestRenewal, Payload{Months: 12, Now: testTime()})
	require.NoError(t, err)
	assert.Equal(t, model.RequestPending, next.RenewalRequest.Status)
	assert.Equal(t, 12, next.RenewalRequest.Months)
	assert.True(t, next.RenewalRequest.RequestedEndDate.Equal(c.EndDate.AddDate(0, 12, 0)))
}
