// Package evidence stores the proof claimants attach to their claims.
// Evidence is immutable: later submissions are appended, never edited.
package evidence

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/blake2b"

	"lostfound/internal/apperr"
	"lostfound/internal/platform/db"
)

// Evidence is one stored piece of proof.
type Evidence struct {
	ID          uuid.UUID     `db:"id" json:"id"`
	ClaimID     uuid.UUID     `db:"claim_id" json:"claimId"`
	Title       string        `db:"title" json:"title"`
	Description string        `db:"description" json:"description"`
	ImageRefs   db.StringList `db:"image_refs" json:"images"`
	Digest      string        `db:"digest" json:"digest"`
	CreatedAt   time.Time     `db:"created_at" json:"createdAt"`
}

// Submission is evidence as received from a claimant.
type Submission struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	ImageRefs   []string `json:"images"`
}

// Validate requires a title or a description.
func (s Submission) Validate() error {
	if strings.TrimSpace(s.Title) == "" && strings.TrimSpace(s.Description) == "" {
		return apperr.InvalidArgument("evidence", "evidence needs a title or a description")
	}
	return nil
}

// ValidateAll checks every submission, reporting the first bad index.
func ValidateAll(subs []Submission) error {
	for i, s := range subs {
		if err := s.Validate(); err != nil {
			return apperr.InvalidArgument("evidence", "evidence entry %d needs a title or a description", i)
		}
	}
	return nil
}

// Digest fingerprints the submitted content with BLAKE2b-256. Fields are
// separated by NUL so that moving text between fields changes the digest.
func Digest(title, description string, imageRefs []string) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(description))
	for _, ref := range imageRefs {
		h.Write([]byte{0})
		h.Write([]byte(ref))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether e still matches its recorded digest.
func (e Evidence) Verify() bool {
	return Digest(e.Title, e.Description, e.ImageRefs) == e.Digest
}

// Store persists evidence through q, either the database handle or an open
// transaction.
type Store struct {
	q sqlx.ExtContext
}

func NewStore(q sqlx.ExtContext) *Store {
	return &Store{q: q}
}

// Append stores subs against claimID in order.
func (s *Store) Append(ctx context.Context, claimID uuid.UUID, subs []Submission, now time.Time) ([]Evidence, error) {
	if err := ValidateAll(subs); err != nil {
		return nil, err
	}

	query := s.q.Rebind(`
		INSERT INTO evidence (id, claim_id, title, description, image_refs, digest, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)

	out := make([]Evidence, 0, len(subs))
	for i, sub := range subs {
		e := Evidence{
			ID:          uuid.New(),
			ClaimID:     claimID,
			Title:       strings.TrimSpace(sub.Title),
			Description: strings.TrimSpace(sub.Description),
			ImageRefs:   sub.ImageRefs,
			CreatedAt:   now,
		}
		if e.ImageRefs == nil {
			e.ImageRefs = db.StringList{}
		}
		e.Digest = Digest(e.Title, e.Description, e.ImageRefs)

		if _, err := s.q.ExecContext(ctx, query, e.ID, e.ClaimID, e.Title, e.Description, e.ImageRefs, e.Digest, e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to insert evidence %d: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// ListByClaim returns the claim's evidence, oldest first.
func (s *Store) ListByClaim(ctx context.Context, claimID uuid.UUID) ([]Evidence, error) {
	out := []Evidence{}
	err := sqlx.SelectContext(ctx, s.q, &out, s.q.Rebind(`
		SELECT id, claim_id, title, description, image_refs, digest, created_at
		FROM evidence
		WHERE claim_id = ?
		ORDER BY created_at, id`), claimID)
	if err != nil {
		return nil, fmt.Errorf("failed to list evidence: %w", err)
	}
	return out, nil
}
