package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/AnTengye/leaseflow/lifecycle"
	"github.com/AnTengye/leaseflow/model"
)

var (
	// ErrVersionConflict means the contract changed since it was read.
	ErrVersionConflict = errors.New("contract version conflict")
	// ErrAlreadyExists means a contract with the same id is already stored.
	ErrAlreadyExists = errors.New("contract already exists")
)

// ContractRepository is the contract persistence service.
//
// Update stores c only if the stored version still equals c.Version and returns
// the stored record with the version bumped. The action that produced c is
// passed along for auditing.
type ContractRepository interface {
	Get(ctx context.Context, id string) (*model.Contract, error)
	List(ctx context.Context, filter ListFilter, page Page) ([]*model.Contract, int, error)
	Create(ctx context.Context, c *model.Contract) (*model.Contract, error)
	Update(ctx context.Context, c *model.Contract, action lifecycle.Action) (*model.Contract, error)
}

const (
	WorkflowTermination = "termination"
	WorkflowRenewal     = "renewal"

	RequestStatusAll       = "all"
	RequestStatusCancelled = "cancelled"
)

// ListFilter narrows a contract listing. Empty fields do not filter.
type ListFilter struct {
	Account    string
	BuildingID string
	Status     model.Status
	// RequestStatus is one of pending, approved, rejected, cancelled or all.
	RequestStatus string
	// Workflow limits RequestStatus to termination or renewal requests.
	Workflow string
}

func (f ListFilter) Validate() error {
	switch f.RequestStatus {
	case "", RequestStatusAll, RequestStatusCancelled,
		string(model.RequestPending), string(model.RequestApproved), string(model.RequestRejected):
	default:
		return fmt.Errorf("invalid request status %q", f.RequestStatus)
	}
	switch f.Workflow {
	case "", WorkflowTermination, WorkflowRenewal:
	default:
		return fmt.Errorf("invalid workflow %q", f.Workflow)
	}
	if f.Status != "" && !f.Status.Valid() {
		return fmt.Errorf("invalid status %q", f.Status)
	}
	return nil
}

// Matches reports whether c passes the filter.
func (f ListFilter) Matches(c *model.Contract) bool {
	if f.Account != "" && c.Account != f.Account {
		return false
	}
	if f.BuildingID != "" && c.BuildingID != f.BuildingID {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	return f.matchesRequest(c)
}

func (f ListFilter) requestFiltered() bool {
	return f.Workflow != "" || (f.RequestStatus != "" && f.RequestStatus != RequestStatusAll)
}

func (f ListFilter) matchesRequest(c *model.Contract) bool {
	if !f.requestFiltered() {
		return true
	}
	var statuses []model.RequestStatus
	if f.Workflow != WorkflowRenewal && c.TerminationRequest != nil {
		statuses = append(statuses, c.TerminationRequest.Status)
	}
	if f.Workflow != WorkflowTermination && c.RenewalRequest != nil {
		statuses = append(statuses, c.RenewalRequest.Status)
	}
	for _, s := range statuses {
		if f.RequestStatus == "" || f.RequestStatus == RequestStatusAll || string(s) == f.RequestStatus {
			return true
		}
	}
	return false
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Page is a 1-based page request.
type Page struct {
	Page  int
	Limit int
}

func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.Limit
}
