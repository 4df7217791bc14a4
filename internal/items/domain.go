// internal/items/domain.go
package items

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"lostfound/internal/apperr"
	"lostfound/internal/platform/db"
)

// LostStatus is the lifecycle state of a LostItem.
type LostStatus string

const (
	LostOpen     LostStatus = "open"
	LostResolved LostStatus = "resolved"
	LostClosed   LostStatus = "closed"
)

// FoundStatus is the lifecycle state of a FoundItem.
type FoundStatus string

const (
	FoundOpen     FoundStatus = "open"
	FoundStored   FoundStatus = "stored"
	FoundClaimed  FoundStatus = "claimed"
	FoundReturned FoundStatus = "returned"
	FoundClosed   FoundStatus = "closed"
)

var lostTransitions = map[LostStatus][]LostStatus{
	LostOpen: {LostResolved, LostClosed},
}

// Found items only move forward, except claimed->stored when the last live
// claim is rejected and the administrative closed->stored reopen.
var foundTransitions = map[FoundStatus][]FoundStatus{
	FoundOpen:    {FoundStored, FoundClosed},
	FoundStored:  {FoundClaimed, FoundClosed},
	FoundClaimed: {FoundStored, FoundReturned},
	FoundClosed:  {FoundStored},
}

func (s LostStatus) CanTransition(to LostStatus) bool {
	return slices.Contains(lostTransitions[s], to)
}

func (s FoundStatus) CanTransition(to FoundStatus) bool {
	return slices.Contains(foundTransitions[s], to)
}

func ParseFoundStatus(raw string) (FoundStatus, bool) {
	s := FoundStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case FoundOpen, FoundStored, FoundClaimed, FoundReturned, FoundClosed:
		return s, true
	}
	return "", false
}

func ParseLostStatus(raw string) (LostStatus, bool) {
	s := LostStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case LostOpen, LostResolved, LostClosed:
		return s, true
	}
	return "", false
}

// LostItem is a student's report of something they lost.
type LostItem struct {
	ID           uuid.UUID     `db:"id" json:"id"`
	Owner        string        `db:"owner" json:"owner"`
	Category     string        `db:"category" json:"category"`
	Campus       int           `db:"campus" json:"campus"`
	Title        string        `db:"title" json:"title"`
	Description  string        `db:"description" json:"description"`
	LostLocation string        `db:"lost_location" json:"lostLocation"`
	LostDate     time.Time     `db:"lost_date" json:"lostDate"`
	ImageRefs    db.StringList `db:"image_refs" json:"imageRefs"`
	Status       LostStatus    `db:"status" json:"status"`
	Version      int           `db:"version" json:"version"`
	CreatedAt    time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updatedAt"`
}

// Advance moves the item to status to, validating the transition table.
func (l *LostItem) Advance(to LostStatus) error {
	if !l.Status.CanTransition(to) {
		return apperr.InvalidState("lost_item", "cannot move lost item %s from %s to %s", l.ID, l.Status, to)
	}
	l.Status = to
	return nil
}

// FoundItem is an object handed in to lost-and-found staff.
type FoundItem struct {
	ID              uuid.UUID     `db:"id" json:"id"`
	Reporter        string        `db:"reporter" json:"reporter"`
	Category        string        `db:"category" json:"category"`
	Campus          int           `db:"campus" json:"campus"`
	Title           string        `db:"title" json:"title"`
	Description     string        `db:"description" json:"description"`
	FoundLocation   string        `db:"found_location" json:"foundLocation"`
	FoundDate       time.Time     `db:"found_date" json:"foundDate"`
	StorageLocation string        `db:"storage_location" json:"storageLocation"`
	ImageRefs       db.StringList `db:"image_refs" json:"imageRefs"`
	Status          FoundStatus   `db:"status" json:"status"`
	Version         int           `db:"version" json:"version"`
	CreatedAt       time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updatedAt"`
}

// Advance moves the item to status to. Moving to the current status is a
// no-op so callers can still bump the version under the item lock.
func (f *FoundItem) Advance(to FoundStatus) error {
	if f.Status == to {
		return nil
	}
	if !f.Status.CanTransition(to) {
		return apperr.InvalidState("found_item", "cannot move found item %s from %s to %s", f.ID, f.Status, to)
	}
	f.Status = to
	return nil
}

// Claimable reports whether new claims may be filed against the item.
func (f *FoundItem) Claimable() bool {
	return f.Status == FoundStored || f.Status == FoundClaimed
}

// NewLostItem is the input for reporting a lost item.
type NewLostItem struct {
	Category     string    `json:"category"`
	Campus       int       `json:"campus"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	LostLocation string    `json:"lostLocation"`
	LostDate     time.Time `json:"lostDate"`
	ImageRefs    []string  `json:"imageRefs"`
}

func (n NewLostItem) validate() error {
	if strings.TrimSpace(n.Category) == "" {
		return apperr.InvalidArgument("lost_item", "category is required")
	}
	if n.Campus <= 0 {
		return apperr.InvalidArgument("lost_item", "campus is required")
	}
	if strings.TrimSpace(n.Title) == "" {
		return apperr.InvalidArgument("lost_item", "title is required")
	}
	if n.LostDate.IsZero() {
		return apperr.InvalidArgument("lost_item", "lost date is required")
	}
	return nil
}

// LostItemPatch carries the editable fields of an open lost item.
type LostItemPatch struct {
	Title        *string    `json:"title,omitempty"`
	Description  *string    `json:"description,omitempty"`
	LostLocation *string    `json:"lostLocation,omitempty"`
	LostDate     *time.Time `json:"lostDate,omitempty"`
	ImageRefs    []string   `json:"imageRefs,omitempty"`
}

// NewFoundItem is the input for reporting a found item.
type NewFoundItem struct {
	Category        string    `json:"category"`
	Campus          int       `json:"campus"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	FoundLocation   string    `json:"foundLocation"`
	FoundDate       time.Time `json:"foundDate"`
	StorageLocation string    `json:"storageLocation"`
	ImageRefs       []string  `json:"imageRefs"`
}

func (n NewFoundItem) validate() error {
	if strings.TrimSpace(n.Category) == "" {
		return apperr.InvalidArgument("found_item", "category is required")
	}
	if n.Campus <= 0 {
		return apperr.InvalidArgument("found_item", "campus is required")
	}
	if strings.TrimSpace(n.Title) == "" {
		return apperr.InvalidArgument("found_item", "title is required")
	}
	if n.FoundDate.IsZero() {
		return apperr.InvalidArgument("found_item", "found date is required")
	}
	return nil
}

// LostFilter narrows lost item listings; zero values match everything.
type LostFilter struct {
	Status   LostStatus
	Campus   int
	Category string
	Owner    string
}

// FoundFilter narrows found item listings; zero values match everything.
type FoundFilter struct {
	Status   FoundStatus
	Campus   int
	Category string
}

// Window selects items of one category and campus dated within [From, To].
type Window struct {
	Category string
	Campus   int
	From     time.Time
	To       time.Time
}

// Day truncates t to midnight UTC; report dates carry no time of day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
