// internal/claims/domain.go
package claims

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"lostfound/internal/actionlog"
	"lostfound/internal/evidence"
)

// Priority is derived from the claim status; conflicted claims need staff
// attention first.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Claim is a student's assertion that a found item belongs to them.
type Claim struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	FoundItemID uuid.UUID  `db:"found_item_id" json:"foundItemId"`
	LostItemID  *uuid.UUID `db:"lost_item_id" json:"lostItemId,omitempty"`
	Claimant    string     `db:"claimant" json:"claimant"`
	Campus      int        `db:"campus" json:"campus"`
	Status      Status     `db:"status" json:"status"`
	Priority    Priority   `db:"-" json:"priority"`
	Reason      string     `db:"reason" json:"reason,omitempty"`
	SubmittedAt time.Time  `db:"submitted_at" json:"submittedAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}

// ClaimDetail is a claim with its evidence and history.
type ClaimDetail struct {
	Claim     Claim               `json:"claim"`
	Evidence  []evidence.Evidence `json:"evidence"`
	ActionLog []actionlog.Entry   `json:"actionLog"`
}

// SubmitClaimRequest is the input to SubmitClaim.
type SubmitClaimRequest struct {
	FoundItemID uuid.UUID
	LostItemID  *uuid.UUID
	Claimant    string
	Evidence    []evidence.Submission
}

// Decision is a staff verdict on a claim.
type Decision string

const (
	Approve Decision = "approve"
	Reject  Decision = "reject"
)

// ParseDecision accepts the verb or the resulting status, in any case.
func ParseDecision(raw string) (Decision, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approve", "approved":
		return Approve, true
	case "reject", "rejected":
		return Reject, true
	}
	return "", false
}

// Filter narrows claim listings; zero values match everything.
type Filter struct {
	Status      Status
	Campus      int
	FoundItemID uuid.UUID
	Claimant    string
}

// ConflictGroup is the set of conflicted claims on one found item.
type ConflictGroup struct {
	FoundItemID uuid.UUID `json:"foundItemId"`
	Campus      int       `json:"campus"`
	Claims      []Claim   `json:"claims"`
}

const supersededReason = "superseded by approved claim"
