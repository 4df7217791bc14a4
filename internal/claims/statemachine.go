// internal/claims/statemachine.go
package claims

import (
	"slices"
	"strings"

	"lostfound/internal/apperr"
)

// Status is the lifecycle state of a Claim.
type Status string

const (
	Pending    Status = "pending"
	Approved   Status = "approved"
	Rejected   Status = "rejected"
	Conflicted Status = "conflicted"
	Returned   Status = "returned"
)

// transitions is the only place claim moves are defined. Every mutation
// goes through (*Claim).transition.
var transitions = map[Status][]Status{
	Pending:    {Conflicted, Approved, Rejected},
	Conflicted: {Approved, Rejected},
	Approved:   {Returned},
}

func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case Pending, Approved, Rejected, Conflicted, Returned:
		return s, true
	}
	return "", false
}

func (s Status) CanTransition(to Status) bool {
	return slices.Contains(transitions[s], to)
}

// Live claims still compete for the item.
func (s Status) Live() bool {
	return s == Pending || s == Conflicted
}

// Winning claims hold the item; at most one per found item.
func (s Status) Winning() bool {
	return s == Approved || s == Returned
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) Priority() Priority {
	if s == Conflicted {
		return PriorityHigh
	}
	return PriorityNormal
}

func (c *Claim) transition(to Status, reason string) error {
	if !c.Status.CanTransition(to) {
		return apperr.InvalidState("claims.transition", "claim %s cannot move from %s to %s", c.ID, c.Status, to)
	}
	c.Status = to
	c.Priority = to.Priority()
	if reason != "" {
		c.Reason = reason
	}
	return nil
}
