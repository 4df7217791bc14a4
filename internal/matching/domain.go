// internal/matching/domain.go
package matching

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"lostfound/internal/items"
)

// Status is the lifecycle state of a Match.
type Status string

const (
	Proposed  Status = "proposed"
	Confirmed Status = "confirmed"
	Dismissed Status = "dismissed"
)

func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case Proposed, Confirmed, Dismissed:
		return s, true
	}
	return "", false
}

// Match pairs a lost report with a found item the engine thinks is the
// same object. There is at most one Match per pair.
type Match struct {
	ID          uuid.UUID `db:"id" json:"id"`
	LostItemID  uuid.UUID `db:"lost_item_id" json:"lostItemId"`
	FoundItemID uuid.UUID `db:"found_item_id" json:"foundItemId"`
	Score       float64   `db:"score" json:"score"`
	Status      Status    `db:"status" json:"status"`
	DecidedBy   string    `db:"decided_by" json:"decidedBy,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// MatchDetail embeds snapshots of both items.
type MatchDetail struct {
	Match
	LostItem  *items.LostItem  `json:"lostItem"`
	FoundItem *items.FoundItem `json:"foundItem"`
	Stale     bool             `json:"stale"`
}

// stale reports whether either side has moved on since the proposal.
func stale(lost *items.LostItem, found *items.FoundItem) bool {
	return lost.Status != items.LostOpen || found.Status != items.FoundStored
}

// Filter narrows match listings. Proposed listings never include stale pairs.
type Filter struct {
	Status      Status
	Campus      int
	LostItemID  uuid.UUID
	FoundItemID uuid.UUID
}

// Config holds the engine tunables.
type Config struct {
	WindowBefore time.Duration
	WindowAfter  time.Duration
	Threshold    float64
	TextWeight   float64
	TimeWeight   float64
	DecayDays    float64
	Workers      int
}

func DefaultConfig() Config {
	return Config{
		WindowBefore: 48 * time.Hour,
		WindowAfter:  30 * 24 * time.Hour,
		Threshold:    0.5,
		TextWeight:   0.6,
		TimeWeight:   0.4,
		DecayDays:    7,
		Workers:      4,
	}
}
