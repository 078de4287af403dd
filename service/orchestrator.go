package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AnTengye/leaseflow/lifecycle"
	"github.com/AnTengye/leaseflow/model"
	"github.com/AnTengye/leaseflow/pkg/logger"
)

// Orchestrator runs contract actions against the repository. It validates
// every action on freshly loaded state, admits at most one mutation per
// contract at a time and only ever returns what the repository stored.
type Orchestrator struct {
	repo       ContractRepository
	guard      InflightGuard
	notifier   Notifier
	signatures SignatureStore
	now        func() time.Time
}

func NewOrchestrator(repo ContractRepository, guard InflightGuard, notifier Notifier, signatures SignatureStore) *Orchestrator {
	if guard == nil {
		guard = NewLocalGuard()
	}
	if notifier == nil {
		notifier = Notifiers{}
	}
	return &Orchestrator{
		repo:       repo,
		guard:      guard,
		notifier:   notifier,
		signatures: signatures,
		now:        time.Now,
	}
}

// Get loads a contract. A non-empty account must own it; contracts of other
// accounts are reported as not found.
func (o *Orchestrator) Get(ctx context.Context, account, id string) (*model.Contract, error) {
	c, err := o.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if account != "" && c.Account != account {
		return nil, lifecycle.ErrNotFound
	}
	return c, nil
}

func (o *Orchestrator) List(ctx context.Context, filter ListFilter, page Page) ([]*model.Contract, int, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}
	return o.repo.List(ctx, filter, page.Normalize())
}

// EligibleActions returns the contract together with the actions a caller may
// invoke on it.
func (o *Orchestrator) EligibleActions(ctx context.Context, account, id string) (*model.Contract, []lifecycle.Action, error) {
	c, err := o.Get(ctx, account, id)
	if err != nil {
		return nil, nil, err
	}
	return c, lifecycle.EligibleActions(c), nil
}

// ErrInvalidDraft is returned when a new draft is missing required terms.
var ErrInvalidDraft = errors.New("invalid contract draft")

// CreateDraft stores a new contract in draft for account.
func (o *Orchestrator) CreateDraft(ctx context.Context, account string, draft *model.Contract) (*model.Contract, error) {
	if strings.TrimSpace(draft.TenantName) == "" {
		return nil, fmt.Errorf("%w: tenant name is required", ErrInvalidDraft)
	}
	if draft.MonthlyRent < 0 || draft.Deposit < 0 {
		return nil, fmt.Errorf("%w: amounts must not be negative", ErrInvalidDraft)
	}
	if !draft.StartDate.IsZero() && !draft.EndDate.IsZero() && !draft.EndDate.After(draft.StartDate) {
		return nil, fmt.Errorf("%w: end date must be after start date", ErrInvalidDraft)
	}

	now := o.now()
	c := &model.Contract{
		ID:           draft.ID,
		Account:      account,
		BuildingID:   draft.BuildingID,
		RoomID:       draft.RoomID,
		TenantName:   draft.TenantName,
		TenantEmail:  draft.TenantEmail,
		LandlordName: draft.LandlordName,
		MonthlyRent:  draft.MonthlyRent,
		Deposit:      draft.Deposit,
		Terms:        draft.Terms,
		Status:       model.StatusDraft,
		StartDate:    draft.StartDate,
		EndDate:      draft.EndDate,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}

	created, err := o.repo.Create(ctx, c)
	if err != nil {
		return nil, err
	}
	logger.Info(logger.WithContractID(ctx, created.ID), "contract draft created")
	return created, nil
}

// CaptureSignature uploads a landlord signature image and returns its
// reference. It never changes the contract; the reference is committed later
// with the sign action. Capture is refused unless sign is currently eligible.
func (o *Orchestrator) CaptureSignature(ctx context.Context, account, id string, image []byte) (string, error) {
	if o.signatures == nil {
		return "", fmt.Errorf("%w: no signature store configured", ErrSignatureUnavailable)
	}
	c, err := o.Get(ctx, account, id)
	if err != nil {
		return "", err
	}
	if err := lifecycle.CheckEligible(c, lifecycle.ActionSign); err != nil {
		return "", err
	}

	url, err := o.signatures.UploadSignature(ctx, c.Account, c.ID, image)
	if err != nil {
		logger.Warn(logger.WithContractID(ctx, id), "signature capture failed", "error", err)
		return "", err
	}
	logger.Info(logger.WithContractID(ctx, id), "signature captured")
	return url, nil
}

// Perform runs a caller action on a contract and returns the stored result.
// Clone is delegated to Clone; other non-mutating actions and inbound events
// are rejected.
func (o *Orchestrator) Perform(ctx context.Context, account, id string, action lifecycle.Action, p lifecycle.Payload) (*model.Contract, error) {
	if action == lifecycle.ActionClone {
		return o.Clone(ctx, account, id)
	}
	if !action.Mutating() || action.Inbound() {
		return nil, fmt.Errorf("%w: %s cannot be performed by a caller", lifecycle.ErrInvalidTransition, action)
	}
	return o.mutate(ctx, account, id, action, p)
}

// Receive applies an inbound counterpart event (tenant-sign, finalize).
func (o *Orchestrator) Receive(ctx context.Context, id string, action lifecycle.Action) (*model.Contract, error) {
	if !action.Inbound() {
		return nil, fmt.Errorf("%w: %s is not an inbound event", lifecycle.ErrInvalidTransition, action)
	}
	return o.mutate(ctx, "", id, action, lifecycle.Payload{})
}

func (o *Orchestrator) mutate(ctx context.Context, account, id string, action lifecycle.Action, p lifecycle.Payload) (*model.Contract, error) {
	ctx = logger.WithContractID(ctx, id)

	// status is unknown until the contract is loaded
	unloaded := &model.Contract{ID: id, Account: account}

	release, err := o.guard.Acquire(ctx, id)
	if err != nil {
		logger.Debug(ctx, "contract mutation refused", "action", action, "error", err)
		o.failed(ctx, unloaded, action, err)
		return nil, err
	}
	defer release()

	current, err := o.Get(ctx, account, id)
	if err != nil {
		o.failed(ctx, unloaded, action, err)
		return nil, err
	}

	if p.Now.IsZero() {
		p.Now = o.now()
	}
	next, err := lifecycle.Apply(current, action, p)
	if err != nil {
		o.failed(ctx, current, action, err)
		return nil, err
	}

	// once sent, the write is not abandoned because the caller went away
	stored, err := o.repo.Update(context.WithoutCancel(ctx), next, action)
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			err = fmt.Errorf("%w: contract changed during %s", lifecycle.ErrBusy, action)
		}
		o.failed(ctx, current, action, err)
		return nil, err
	}

	o.notifier.Notify(ctx, Event{
		Type:       EventTransitionSucceeded,
		ContractID: stored.ID,
		Account:    stored.Account,
		Action:     action,
		From:       current.Status,
		To:         stored.Status,
		At:         p.Now,
	})
	return stored, nil
}

func (o *Orchestrator) failed(ctx context.Context, c *model.Contract, action lifecycle.Action, err error) {
	o.notifier.Notify(ctx, Event{
		Type:       EventTransitionFailed,
		ContractID: c.ID,
		Account:    c.Account,
		Action:     action,
		From:       c.Status,
		Reason:     err.Error(),
		At:         o.now(),
	})
}

// Clone creates a new draft seeded from a completed or voided contract. The
// source is not modified, so no in-flight slot is taken.
func (o *Orchestrator) Clone(ctx context.Context, account, id string) (*model.Contract, error) {
	ctx = logger.WithContractID(ctx, id)

	source, err := o.Get(ctx, account, id)
	if err != nil {
		return nil, err
	}
	draft, err := lifecycle.Apply(source, lifecycle.ActionClone, lifecycle.Payload{Now: o.now()})
	if err != nil {
		o.failed(ctx, source, lifecycle.ActionClone, err)
		return nil, err
	}

	created, err := o.repo.Create(ctx, draft)
	if err != nil {
		o.failed(ctx, source, lifecycle.ActionClone, err)
		return nil, err
	}

	o.notifier.Notify(ctx, Event{
		Type:       EventTransitionSucceeded,
		ContractID: source.ID,
		Account:    source.Account,
		Action:     lifecycle.ActionClone,
		From:       source.Status,
		To:         created.Status,
		At:         created.CreatedAt,
	})
	return created, nil
}

// Sign commits a previously captured signature reference.
func (o *Orchestrator) Sign(ctx context.Context, account, id, signatureURL string) (*model.Contract, error) {
	return o.Perform(ctx, account, id, lifecycle.ActionSign, lifecycle.Payload{SignatureURL: signatureURL})
}

// ConfirmMoveIn records the tenant's move-in on a completed contract.
func (o *Orchestrator) ConfirmMoveIn(ctx context.Context, account, id string) (*model.Contract, error) {
	return o.Perform(ctx, account, id, lifecycle.ActionConfirmMoveIn, lifecycle.Payload{})
}

// RequestTermination opens a termination request on an in-force contract.
func (o *Orchestrator) RequestTermination(ctx context.Context, account, id, reason string) (*model.Contract, error) {
	return o.Perform(ctx, account, id, lifecycle.ActionTerminate, lifecycle.Payload{Reason: reason})
}

// RequestRenewal opens a renewal request for the given number of months.
func (o *Orchestrator) RequestRenewal(ctx context.Context, account, id string, months int) (*model.Contract, error) {
	return o.Perform(ctx, account, id, lifecycle.ActionRequestRenewal, lifecycle.Payload{Months: months})
}
