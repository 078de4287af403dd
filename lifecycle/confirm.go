package lifecycle

import (
	"fmt"
	"sync"
)

// Phase is the local state of a confirmation-gated action.
type Phase string

const (
	PhaseClosed     Phase = "closed"
	PhaseConfirming Phase = "confirming"
)

// Confirmations tracks open intents per contract for one caller. Nothing in it
// is persisted and it has no side effects until Commit.
type Confirmations struct {
	mu   sync.Mutex
	open map[string]Action
}

func NewConfirmations() *Confirmations {
	return &Confirmations{open: make(map[string]Action)}
}

// Open starts confirming a for the contract, replacing any earlier intent.
func (c *Confirmations) Open(contractID string, a Action) error {
	if !a.RequiresConfirmation() {
		return fmt.Errorf("action %s does not need confirmation", a)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open[contractID] = a
	return nil
}

// Phase returns the current phase and, while confirming, the pending action.
func (c *Confirmations) Phase(contractID string) (Phase, Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.open[contractID]; ok {
		return PhaseConfirming, a
	}
	return PhaseClosed, ""
}

// Cancel discards the intent, if any.
func (c *Confirmations) Cancel(contractID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.open, contractID)
}

// Commit closes the intent and returns the action to perform with Confirmed set.
func (c *Confirmations) Commit(contractID string) (Action, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.open[contractID]
	if !ok {
		return "", ErrConfirmationRequired
	}
	delete(c.open, contractID)
	return a, nil
}
