// internal/matching/repository.go
package matching

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

const matchColumns = `m.id, m.lost_item_id, m.found_item_id, m.score, m.status, m.decided_by, m.created_at, m.updated_at`

type Repository struct {
	q sqlx.ExtContext
}

func NewRepository(q sqlx.ExtContext) *Repository {
	return &Repository{q: q}
}

// Upsert records a proposal for the pair. An existing proposed row gets
// the new score; confirmed and dismissed rows are left alone.
func (r *Repository) Upsert(ctx context.Context, m Match) error {
	_, err := r.q.ExecContext(ctx, r.q.Rebind(`
		INSERT INTO matches (id, lost_item_id, found_item_id, score, status, decided_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'proposed', '', ?, ?)
		ON CONFLICT (lost_item_id, found_item_id) DO UPDATE
		SET score = excluded.score,
		    updated_at = excluded.updated_at
		WHERE matches.status = 'proposed'`),
		m.ID, m.LostItemID, m.FoundItemID, m.Score, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert match: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Match, error) {
	m := &Match{}
	err := sqlx.GetContext(ctx, r.q, m, r.q.Rebind(`SELECT `+matchColumns+` FROM matches m WHERE m.id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("matching.get", "match %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	return m, nil
}

// GetPair returns the match for a lost/found pair, if any.
func (r *Repository) GetPair(ctx context.Context, lostID, foundID uuid.UUID) (*Match, error) {
	m := &Match{}
	err := sqlx.GetContext(ctx, r.q, m, r.q.Rebind(`SELECT `+matchColumns+` FROM matches m
		WHERE m.lost_item_id = ? AND m.found_item_id = ?`), lostID, foundID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("matching.get_pair", "no match for lost item %s and found item %s", lostID, foundID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	return m, nil
}

// Decide moves a proposed match to status. Zero rows means someone else
// decided first.
func (r *Repository) Decide(ctx context.Context, id uuid.UUID, status Status, actor string, now time.Time) error {
	res, err := r.q.ExecContext(ctx, r.q.Rebind(`
		UPDATE matches SET status = ?, decided_by = ?, updated_at = ?
		WHERE id = ? AND status = 'proposed'`), status, actor, now, id)
	if err != nil {
		return fmt.Errorf("failed to update match: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update match: %w", err)
	}
	if n == 0 {
		return apperr.Conflict("matching.decide", "match %s was decided concurrently", id)
	}
	return nil
}

// List pages through matches, best score first. Proposed matches whose lost
// item is no longer open or whose found item is no longer stored are skipped.
func (r *Repository) List(ctx context.Context, f Filter, page pagination.Request) (pagination.Page[Match], error) {
	where := []string{"(m.status <> 'proposed' OR (l.status = 'open' AND f.status = 'stored'))"}
	var args []any
	if f.Status != "" {
		where, args = append(where, "m.status = ?"), append(args, f.Status)
	}
	if f.Campus > 0 {
		where, args = append(where, "f.campus = ?"), append(args, f.Campus)
	}
	if f.LostItemID != uuid.Nil {
		where, args = append(where, "m.lost_item_id = ?"), append(args, f.LostItemID)
	}
	if f.FoundItemID != uuid.Nil {
		where, args = append(where, "m.found_item_id = ?"), append(args, f.FoundItemID)
	}
	from := ` FROM matches m
		JOIN lost_items l ON l.id = m.lost_item_id
		JOIN found_items f ON f.id = m.found_item_id
		WHERE ` + strings.Join(where, " AND ")

	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, r.q.Rebind(`SELECT COUNT(*)`+from), args...); err != nil {
		return pagination.Page[Match]{}, fmt.Errorf("failed to count matches: %w", err)
	}

	var rows []Match
	query := `SELECT ` + matchColumns + from + ` ORDER BY m.score DESC, m.id LIMIT ? OFFSET ?`
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(query), append(args, page.Limit(), page.Offset())...); err != nil {
		return pagination.Page[Match]{}, fmt.Errorf("failed to list matches: %w", err)
	}
	return pagination.New(rows, total, page), nil
}
