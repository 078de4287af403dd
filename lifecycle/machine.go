package lifecycle

import (
	"strings"
	"time"

	"github.com/AnTengye/leaseflow/model"
	"github.com/google/uuid"
)

// Payload carries the caller input some transitions need.
type Payload struct {
	SignatureURL string
	Reason       string
	Months       int
	Confirmed    bool
	// NewID is the id given to a clone; a random one is used when empty.
	NewID string
	Now   time.Time
}

type guardCheck struct {
	// input guards depend on the payload and are ignored by eligibility.
	input bool
	ok    func(c *model.Contract, p Payload) bool
}

var guardChecks = map[Guard]guardCheck{
	GuardSignaturePresent: {input: true, ok: func(c *model.Contract, p Payload) bool {
		return strings.TrimSpace(p.SignatureURL) != ""
	}},
	GuardConfirmed: {input: true, ok: func(c *model.Contract, p Payload) bool {
		return p.Confirmed
	}},
	GuardRenewalMonthsPositive: {input: true, ok: func(c *model.Contract, p Payload) bool {
		return p.Months > 0
	}},
	GuardMoveInNotConfirmed: {ok: func(c *model.Contract, p Payload) bool {
		return c.MoveInConfirmedAt == nil
	}},
	GuardInForce: {ok: func(c *model.Contract, p Payload) bool {
		return c.IsInForce()
	}},
	GuardNoPendingRequest: {ok: func(c *model.Contract, p Payload) bool {
		return !c.HasPendingRequest()
	}},
	GuardTerminationPending: {ok: func(c *model.Contract, p Payload) bool {
		return c.TerminationPending()
	}},
	GuardRenewalPending: {ok: func(c *model.Contract, p Payload) bool {
		return c.RenewalPending()
	}},
	// renewals extend the current end date
	GuardEndDateSet: {ok: func(c *model.Contract, p Payload) bool {
		return !c.EndDate.IsZero()
	}},
}

// Transition is one allowed edge of the contract lifecycle.
type Transition struct {
	From   model.Status
	Action Action
	To     model.Status
	Guards []Guard

	effect func(c *model.Contract, p Payload)
}

var transitionTable = []Transition{
	// Signing path
	{From: model.StatusDraft, Action: ActionSign, To: model.StatusSignedByLandlord,
		Guards: []Guard{GuardSignaturePresent}, effect: recordSignature},
	{From: model.StatusSignedByLandlord, Action: ActionSendToTenant, To: model.StatusSentToTenant,
		Guards: []Guard{GuardConfirmed}},
	{From: model.StatusSentToTenant, Action: ActionTenantSign, To: model.StatusSignedByTenant},
	{From: model.StatusSignedByTenant, Action: ActionFinalize, To: model.StatusCompleted},

	// Voiding before the tenant signs
	{From: model.StatusDraft, Action: ActionDisable, To: model.StatusVoided},
	{From: model.StatusSignedByLandlord, Action: ActionDisable, To: model.StatusVoided},
	{From: model.StatusSentToTenant, Action: ActionDisable, To: model.StatusVoided},

	// Occupancy
	{From: model.StatusCompleted, Action: ActionConfirmMoveIn, To: model.StatusCompleted,
		Guards: []Guard{GuardMoveInNotConfirmed}, effect: confirmMoveIn},

	// Termination sub-workflow
	{From: model.StatusCompleted, Action: ActionTerminate, To: model.StatusCompleted,
		Guards: []Guard{GuardInForce, GuardNoPendingRequest}, effect: openTermination},
	{From: model.StatusCompleted, Action: ActionApproveTermination, To: model.StatusTerminated,
		Guards: []Guard{GuardInForce, GuardTerminationPending, GuardConfirmed}, effect: approveTermination},
	{From: model.StatusCompleted, Action: ActionRejectTermination, To: model.StatusCompleted,
		Guards: []Guard{GuardTerminationPending}, effect: rejectTermination},

	// Renewal sub-workflow
	{From: model.StatusCompleted, Action: ActionRequestRenewal, To: model.StatusCompleted,
		Guards: []Guard{GuardNoPendingRequest, GuardEndDateSet, GuardRenewalMonthsPositive}, effect: openRenewal},
	{From: model.StatusCompleted, Action: ActionApproveRenewal, To: model.StatusCompleted,
		Guards: []Guard{GuardRenewalPending}, effect: approveRenewal},
	{From: model.StatusCompleted, Action: ActionRejectRenewal, To: model.StatusCompleted,
		Guards: []Guard{GuardRenewalPending}, effect: rejectRenewal},

	// Clone produces a new draft; the source is left as it is.
	{From: model.StatusCompleted, Action: ActionClone, To: model.StatusDraft},
	{From: model.StatusVoided, Action: ActionClone, To: model.StatusDraft},
}

// TransitionFor returns the table row for a status and action.
func TransitionFor(from model.Status, a Action) (Transition, bool) {
	for _, tr := range transitionTable {
		if tr.From == from && tr.Action == a {
			return tr, true
		}
	}
	return Transition{}, false
}

// Transitions returns a copy of the lifecycle table.
func Transitions() []Transition {
	out := make([]Transition, len(transitionTable))
	copy(out, transitionTable)
	return out
}

// Check validates action against the contract's current status and guards.
func Check(c *model.Contract, a Action, p Payload) (Transition, error) {
	tr, ok := TransitionFor(c.Status, a)
	if !ok {
		return Transition{}, invalid(a, c.Status)
	}
	for _, g := range tr.Guards {
		if !guardChecks[g].ok(c, p) {
			return Transition{}, violation(a, c.Status, g)
		}
	}
	return tr, nil
}

// Apply computes the contract that results from performing action on c.
// c is never modified. For ActionClone the result is the new draft contract.
func Apply(c *model.Contract, a Action, p Payload) (*model.Contract, error) {
	tr, err := Check(c, a, p)
	if err != nil {
		return nil, err
	}
	if p.Now.IsZero() {
		p.Now = time.Now()
	}

	if a == ActionClone {
		return cloneOf(c, p), nil
	}

	next := c.Copy()
	next.Status = tr.To
	if tr.effect != nil {
		tr.effect(next, p)
	}
	return next, nil
}

func recordSignature(c *model.Contract, p Payload) {
	c.SignatureURL = strings.TrimSpace(p.SignatureURL)
}

func confirmMoveIn(c *model.Contract, p Payload) {
	at := p.Now
	c.MoveInConfirmedAt = &at
}

func cloneOf(src *model.Contract, p Payload) *model.Contract {
	id := p.NewID
	if id == "" {
		id = uuid.NewString()
	}
	return &model.Contract{
		ID:           id,
		Account:      src.Account,
		BuildingID:   src.BuildingID,
		RoomID:       src.RoomID,
		TenantName:   src.TenantName,
		TenantEmail:  src.TenantEmail,
		LandlordName: src.LandlordName,
		MonthlyRent:  src.MonthlyRent,
		Deposit:      src.Deposit,
		Terms:        src.Terms,
		Status:       model.StatusDraft,
		StartDate:    src.StartDate,
		EndDate:      src.EndDate,
		ClonedFrom:   src.ID,
		CreatedAt:    p.Now,
		UpdatedAt:    p.Now,
	}
}
