package lifecycle

import "github.com/AnTengye/leaseflow/model"

// Eligible reports whether a caller may invoke a on c right now.
// Transition actions are eligible when their table row exists and every
// state guard passes; input guards are checked at commit time.
func Eligible(c *model.Contract, a Action) bool {
	return CheckEligible(c, a) == nil
}

// CheckEligible returns nil when a is eligible on c, otherwise the
// InvalidTransition or GuardViolation that explains why not.
func CheckEligible(c *model.Contract, a Action) error {
	switch a {
	case ActionView:
		return nil
	case ActionEdit:
		if !c.IsEditable() {
			return invalid(a, c.Status)
		}
		return nil
	case ActionDownload:
		if c.Status != model.StatusCompleted {
			return invalid(a, c.Status)
		}
		return nil
	}
	if a.Inbound() {
		return invalid(a, c.Status)
	}

	tr, ok := TransitionFor(c.Status, a)
	if !ok {
		return invalid(a, c.Status)
	}
	for _, g := range tr.Guards {
		check := guardChecks[g]
		if check.input {
			continue
		}
		if !check.ok(c, Payload{}) {
			return violation(a, c.Status, g)
		}
	}
	return nil
}

// EligibleActions lists every action a caller may invoke on c.
func EligibleActions(c *model.Contract) []Action {
	out := make([]Action, 0, len(callerActions))
	for _, a := range callerActions {
		if Eligible(c, a) {
			out = append(out, a)
		}
	}
	return out
}
