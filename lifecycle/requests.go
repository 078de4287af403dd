package lifecycle

import (
	"strings"

	"github.com/AnTengye/leaseflow/model"
)

// Effects of the termination and renewal sub-workflows. Each runs on a copy
// after its guards have passed. A contract holds only the latest request of
// each workflow: opening one replaces a resolved predecessor.

func openTermination(c *model.Contract, p Payload) {
	c.TerminationRequest = &model.TerminationRequest{
		Status:      model.RequestPending,
		Reason:      strings.TrimSpace(p.Reason),
		RequestedAt: p.Now,
	}
}

func approveTermination(c *model.Contract, p Payload) {
	at := p.Now
	c.TerminationRequest.Status = model.RequestApproved
	c.TerminationRequest.ResolvedAt = &at
}

func rejectTermination(c *model.Contract, p Payload) {
	at := p.Now
	c.TerminationRequest.Status = model.RequestRejected
	c.TerminationRequest.ResolvedAt = &at
}

func openRenewal(c *model.Contract, p Payload) {
	c.RenewalRequest = &model.RenewalRequest{
		Status:           model.RequestPending,
		Months:           p.Months,
		RequestedEndDate: c.EndDate.AddDate(0, p.Months, 0),
		RequestedAt:      p.Now,
	}
}

// approveRenewal extends the rental period; the top-level status is untouched.
func approveRenewal(c *model.Contract, p Payload) {
	at := p.Now
	rr := c.RenewalRequest
	rr.Status = model.RequestApproved
	rr.ResolvedAt = &at
	if rr.RequestedEndDate.IsZero() {
		c.EndDate = c.EndDate.AddDate(0, rr.Months, 0)
		return
	}
	c.EndDate = rr.RequestedEndDate
}

func rejectRenewal(c *model.Contract, p Payload) {
	at := p.Now
	c.RenewalRequest.Status = model.RequestRejected
	c.RenewalRequest.ResolvedAt = &at
}
