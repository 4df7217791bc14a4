// internal/claims/repository.go
package claims

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"lostfound/internal/apperr"
	"lostfound/internal/platform/pagination"
)

const claimColumns = `id, found_item_id, lost_item_id, claimant, campus, status, reason, submitted_at, updated_at`

// Repository reads and writes claims through q, either the database handle
// or an open transaction.
type Repository struct {
	q sqlx.ExtContext
}

func NewRepository(q sqlx.ExtContext) *Repository {
	return &Repository{q: q}
}

func (r *Repository) Insert(ctx context.Context, c *Claim) error {
	_, err := r.q.ExecContext(ctx, r.q.Rebind(`
		INSERT INTO claims (`+claimColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		c.ID, c.FoundItemID, c.LostItemID, c.Claimant, c.Campus, c.Status, c.Reason, c.SubmittedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert claim: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Claim, error) {
	c := &Claim{}
	err := sqlx.GetContext(ctx, r.q, c, r.q.Rebind(`SELECT `+claimColumns+` FROM claims WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("claims.get", "claim %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}
	c.Priority = c.Status.Priority()
	return c, nil
}

// ListByItem returns every claim on a found item, oldest first.
func (r *Repository) ListByItem(ctx context.Context, foundItemID uuid.UUID) ([]Claim, error) {
	var out []Claim
	err := sqlx.SelectContext(ctx, r.q, &out, r.q.Rebind(`
		SELECT `+claimColumns+` FROM claims
		WHERE found_item_id = ?
		ORDER BY submitted_at, id`), foundItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims for item: %w", err)
	}
	return withPriority(out), nil
}

// Save persists a status change made by (*Claim).transition. from is the
// status the change was decided against; if the row moved on, the write
// fails with Conflict.
func (r *Repository) Save(ctx context.Context, c *Claim, from Status, now time.Time) error {
	res, err := r.q.ExecContext(ctx, r.q.Rebind(`
		UPDATE claims SET status = ?, reason = ?, updated_at = ?
		WHERE id = ? AND status = ?`),
		c.Status, c.Reason, now, c.ID, from,
	)
	if err != nil {
		return fmt.Errorf("failed to update claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update claim: %w", err)
	}
	if n == 0 {
		return apperr.Conflict("claims.save", "claim %s was modified concurrently", c.ID)
	}
	c.UpdatedAt = now
	return nil
}

func (r *Repository) List(ctx context.Context, f Filter, page pagination.Request) (pagination.Page[Claim], error) {
	var where []string
	var args []any
	if f.Status != "" {
		where, args = append(where, "status = ?"), append(args, f.Status)
	}
	if f.Campus > 0 {
		where, args = append(where, "campus = ?"), append(args, f.Campus)
	}
	if f.FoundItemID != uuid.Nil {
		where, args = append(where, "found_item_id = ?"), append(args, f.FoundItemID)
	}
	if f.Claimant != "" {
		where, args = append(where, "claimant = ?"), append(args, f.Claimant)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, r.q.Rebind(`SELECT COUNT(*) FROM claims`+clause), args...); err != nil {
		return pagination.Page[Claim]{}, fmt.Errorf("failed to count claims: %w", err)
	}
	var rows []Claim
	query := `SELECT ` + claimColumns + ` FROM claims` + clause + ` ORDER BY submitted_at DESC, id LIMIT ? OFFSET ?`
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(query), append(args, page.Limit(), page.Offset())...); err != nil {
		return pagination.Page[Claim]{}, fmt.Errorf("failed to list claims: %w", err)
	}
	return pagination.New(withPriority(rows), total, page), nil
}

// ListConflicts pages through found items that have conflicted claims,
// oldest dispute first, and loads each group's conflicted claims.
func (r *Repository) ListConflicts(ctx context.Context, campus int, page pagination.Request) (pagination.Page[ConflictGroup], error) {
	where := "status = 'conflicted'"
	var args []any
	if campus > 0 {
		where += " AND campus = ?"
		args = append(args, campus)
	}

	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, r.q.Rebind(`SELECT COUNT(DISTINCT found_item_id) FROM claims WHERE `+where), args...); err != nil {
		return pagination.Page[ConflictGroup]{}, fmt.Errorf("failed to count conflicts: %w", err)
	}

	var keys []struct {
		FoundItemID uuid.UUID `db:"found_item_id"`
		Campus      int       `db:"campus"`
	}
	query := `SELECT found_item_id, MIN(campus) AS campus FROM claims WHERE ` + where + `
		GROUP BY found_item_id
		ORDER BY MIN(submitted_at), found_item_id
		LIMIT ? OFFSET ?`
	if err := sqlx.SelectContext(ctx, r.q, &keys, r.q.Rebind(query), append(args, page.Limit(), page.Offset())...); err != nil {
		return pagination.Page[ConflictGroup]{}, fmt.Errorf("failed to list conflicts: %w", err)
	}

	groups := make([]ConflictGroup, 0, len(keys))
	for _, k := range keys {
		var claims []Claim
		err := sqlx.SelectContext(ctx, r.q, &claims, r.q.Rebind(`
			SELECT `+claimColumns+` FROM claims
			WHERE found_item_id = ? AND status = 'conflicted'
			ORDER BY submitted_at, id`), k.FoundItemID)
		if err != nil {
			return pagination.Page[ConflictGroup]{}, fmt.Errorf("failed to load conflict group: %w", err)
		}
		groups = append(groups, ConflictGroup{FoundItemID: k.FoundItemID, Campus: k.Campus, Claims: withPriority(claims)})
	}
	return pagination.New(groups, total, page), nil
}

func withPriority(claims []Claim) []Claim {
	for i := range claims {
		claims[i].Priority = claims[i].Status.Priority()
	}
	return claims
}
