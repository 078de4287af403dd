package model

import (
	"time"
)

// Status is the top-level lifecycle state of a rental contract.
type Status string

const (
	StatusDraft            Status = "draft"
	StatusSignedByLandlord Status = "signed_by_landlord"
	StatusSentToTenant     Status = "sent_to_tenant"
	StatusSignedByTenant   Status = "signed_by_tenant"
	StatusCompleted        Status = "completed"
	StatusVoided           Status = "voided"
	StatusTerminated       Status = "terminated"
)

// Statuses lists every contract status in lifecycle order.
var Statuses = []Status{
	StatusDraft,
	StatusSignedByLandlord,
	StatusSentToTenant,
	StatusSignedByTenant,
	StatusCompleted,
	StatusVoided,
	StatusTerminated,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is defined from s.
func (s Status) IsTerminal() bool {
	return s == StatusVoided || s == StatusTerminated
}

// RequestStatus is the state of a termination or renewal request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// TerminationRequest is a tenant or landlord ask to end an in-force contract early.
type TerminationRequest struct {
	Status      RequestStatus `json:"status"`
	Reason      string        `json:"reason,omitempty"`
	RequestedAt time.Time     `json:"requested_at"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
}

// RenewalRequest asks to extend a completed contract by Months.
type RenewalRequest struct {
	Status           RequestStatus `json:"status"`
	Months           int           `json:"months"`
	RequestedEndDate time.Time     `json:"requested_end_date"`
	RequestedAt      time.Time     `json:"requested_at"`
	ResolvedAt       *time.Time    `json:"resolved_at,omitempty"`
}

// Contract represents a rental contract between a landlord account and a tenant
type Contract struct {
	ID           string `json:"id"`
	Account      string `json:"account"`
	BuildingID   string `json:"building_id,omitempty"`
	RoomID       string `json:"room_id,omitempty"`
	TenantName   string `json:"tenant_name,omitempty"`
	TenantEmail  string `json:"tenant_email,omitempty"`
	LandlordName string `json:"landlord_name,omitempty"`
	MonthlyRent  int64  `json:"monthly_rent"` // minor currency units
	Deposit      int64  `json:"deposit"`
	Terms        string `json:"terms,omitempty"`

	Status    Status    `json:"status"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`

	SignatureURL       string              `json:"signature_url,omitempty"`
	MoveInConfirmedAt  *time.Time          `json:"move_in_confirmed_at,omitempty"`
	TerminationRequest *TerminationRequest `json:"termination_request,omitempty"`
	RenewalRequest     *RenewalRequest     `json:"renewal_request,omitempty"`

	ClonedFrom string    `json:"cloned_from,omitempty"`
	Version    int64     `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsInForce reports whether the tenant has been confirmed as moved in.
func (c *Contract) IsInForce() bool {
	return c.Status == StatusCompleted && c.MoveInConfirmedAt != nil
}

// IsEditable reports whether the contract terms may still be edited.
func (c *Contract) IsEditable() bool {
	return c.Status != StatusSentToTenant && c.Status != StatusCompleted
}

// CanDisable reports whether the contract may still be voided.
func (c *Contract) CanDisable() bool {
	switch c.Status {
	case StatusDraft, StatusSignedByLandlord, StatusSentToTenant:
		return true
	}
	return false
}

// TerminationPending reports whether a termination request awaits a decision.
func (c *Contract) TerminationPending() bool {
	return c.TerminationRequest != nil && c.TerminationRequest.Status == RequestPending
}

// RenewalPending reports whether a renewal request awaits a decision.
func (c *Contract) RenewalPending() bool {
	return c.RenewalRequest != nil && c.RenewalRequest.Status == RequestPending
}

// HasPendingRequest reports whether either sub-workflow is being negotiated.
func (c *Contract) HasPendingRequest() bool {
	return c.TerminationPending() || c.RenewalPending()
}

// Copy returns a deep copy of the contract.
func (c *Contract) Copy() *Contract {
	if c == nil {
		return nil
	}
	out := *c
	if c.MoveInConfirmedAt != nil {
		t := *c.MoveInConfirmedAt
		out.MoveInConfirmedAt = &t
	}
	if c.TerminationRequest != nil {
		tr := *c.TerminationRequest
		if tr.ResolvedAt != nil {
			t := *tr.ResolvedAt
			tr.ResolvedAt = &t
		}
		out.TerminationRequest = &tr
	}
	if c.RenewalRequest != nil {
		rr := *c.RenewalRequest
		if rr.ResolvedAt != nil {
			t := *rr.ResolvedAt
			rr.ResolvedAt = &t
		}
		out.RenewalRequest = &rr
	}
	return &out
}
