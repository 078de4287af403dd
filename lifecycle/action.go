// Package lifecycle holds the rental contract state machine: the transition table,
// its guards, the sub-workflow effects and the action eligibility resolver.
// Everything here is pure; persistence and concurrency live in the service package.
package lifecycle

import "fmt"

// Action is something a caller or a counterpart can do to a contract.
type Action string

const (
	ActionView     Action = "view"
	ActionEdit     Action = "edit"
	ActionDownload Action = "download"

	ActionSign          Action = "sign"
	ActionSendToTenant  Action = "send-to-tenant"
	ActionDisable       Action = "disable"
	ActionConfirmMoveIn Action = "confirm-move-in"
	ActionClone         Action = "clone"

	// Inbound events raised by the counterpart or the signing provider.
	ActionTenantSign Action = "tenant-sign"
	ActionFinalize   Action = "finalize"

	ActionTerminate          Action = "terminate"
	ActionApproveTermination Action = "approve-termination"
	ActionRejectTermination  Action = "reject-termination"

	ActionRequestRenewal Action = "request-renewal"
	ActionApproveRenewal Action = "approve-renewal"
	ActionRejectRenewal  Action = "reject-renewal"
)

// callerActions is the order in which eligible actions are reported.
var callerActions = []Action{
	ActionView,
	ActionEdit,
	ActionSign,
	ActionSendToTenant,
	ActionConfirmMoveIn,
	ActionTerminate,
	ActionApproveTermination,
	ActionRejectTermination,
	ActionRequestRenewal,
	ActionApproveRenewal,
	ActionRejectRenewal,
	ActionDisable,
	ActionDownload,
	ActionClone,
}

// ParseAction converts a wire name into an Action.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if a.Inbound() {
		return a, nil
	}
	for _, known := range callerActions {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Inbound reports whether the action is raised by a counterpart rather than a caller.
func (a Action) Inbound() bool {
	return a == ActionTenantSign || a == ActionFinalize
}

// Mutating reports whether the action changes persisted state.
func (a Action) Mutating() bool {
	switch a {
	case ActionView, ActionEdit, ActionDownload, ActionClone:
		return false
	}
	return true
}

// RequiresConfirmation reports whether the action goes through an open/commit step.
func (a Action) RequiresConfirmation() bool {
	return a == ActionSendToTenant || a == ActionApproveTermination
}
