// internal/items/repository.go
package items

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"lostfound/internal/apperr"
	"lostfound/internal/platform/pagination"
)

const (
	lostColumns = `id, owner, category, campus, title, description, lost_location, lost_date,
		image_refs, status, version, created_at, updated_at`
	foundColumns = `id, reporter, category, campus, title, description, found_location, found_date,
		storage_location, image_refs, status, version, created_at, updated_at`
)

// Repository reads and writes items through q, which is either the
// database handle or an open transaction.
type Repository struct {
	q      sqlx.ExtContext
	tracer trace.Tracer
}

func NewRepository(q sqlx.ExtContext) *Repository {
	return &Repository{q: q, tracer: otel.Tracer("lostfound/items")}
}

func (r *Repository) InsertLost(ctx context.Context, item *LostItem) error {
	_, err := r.q.ExecContext(ctx, r.q.Rebind(`
		INSERT INTO lost_items (`+lostColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		item.ID, item.Owner, item.Category, item.Campus, item.Title, item.Description,
		item.LostLocation, item.LostDate, item.ImageRefs, item.Status, item.Version,
		item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert lost item: %w", err)
	}
	return nil
}

func (r *Repository) InsertFound(ctx context.Context, item *FoundItem) error {
	_, err := r.q.ExecContext(ctx, r.q.Rebind(`
		INSERT INTO found_items (`+foundColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		item.ID, item.Reporter, item.Category, item.Campus, item.Title, item.Description,
		item.FoundLocation, item.FoundDate, item.StorageLocation, item.ImageRefs, item.Status,
		item.Version, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert found item: %w", err)
	}
	return nil
}

func (r *Repository) GetLost(ctx context.Context, id uuid.UUID) (*LostItem, error) {
	item := &LostItem{}
	err := sqlx.GetContext(ctx, r.q, item, r.q.Rebind(`SELECT `+lostColumns+` FROM lost_items WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("items.get_lost", "lost item %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lost item: %w", err)
	}
	return item, nil
}

func (r *Repository) GetFound(ctx context.Context, id uuid.UUID) (*FoundItem, error) {
	item := &FoundItem{}
	err := sqlx.GetContext(ctx, r.q, item, r.q.Rebind(`SELECT `+foundColumns+` FROM found_items WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("items.get_found", "found item %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get found item: %w", err)
	}
	return item, nil
}

// SaveLost writes the mutable fields of item if nobody else changed it since
// it was read. On success item.Version is advanced.
func (r *Repository) SaveLost(ctx context.Context, item *LostItem, now time.Time) error {
	res, err := r.q.ExecContext(ctx, r.q.Rebind(`
		UPDATE lost_items
		SET title = ?, description = ?, lost_location = ?, lost_date = ?, image_refs = ?,
		    status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`),
		item.Title, item.Description, item.LostLocation, item.LostDate, item.ImageRefs,
		item.Status, now, item.ID, item.Version,
	)
	if err := checkVersioned(res, err, "lost item", item.ID); err != nil {
		return err
	}
	item.Version++
	item.UpdatedAt = now
	return nil
}

// SaveFound is the optimistic-concurrency write for found items. Every claim
// decision passes through here, so two decisions on one item cannot both
// commit against the same version.
func (r *Repository) SaveFound(ctx context.Context, item *FoundItem, now time.Time) error {
	ctx, span := r.tracer.Start(ctx, "items.save_found",
		trace.WithAttributes(
			attribute.String("found_item.id", item.ID.String()),
			attribute.Int("expected.version", item.Version),
			attribute.String("status", string(item.Status)),
		),
	)
	defer span.End()

	res, err := r.q.ExecContext(ctx, r.q.Rebind(`
		UPDATE found_items
		SET storage_location = ?, status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`),
		item.StorageLocation, item.Status, now, item.ID, item.Version,
	)
	if err := checkVersioned(res, err, "found item", item.ID); err != nil {
		span.SetAttributes(attribute.Bool("conflict.detected", apperr.KindOf(err) == apperr.KindConflict))
		return err
	}
	item.Version++
	item.UpdatedAt = now
	return nil
}

func checkVersioned(res sql.Result, err error, what string, id uuid.UUID) error {
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", what, err)
	}
	if n == 0 {
		return apperr.Conflict("items.save", "%s %s was modified concurrently", what, id)
	}
	return nil
}

func (r *Repository) ListLost(ctx context.Context, f LostFilter, page pagination.Request) (pagination.Page[LostItem], error) {
	var where []string
	var args []any
	if f.Status != "" {
		where, args = append(where, "status = ?"), append(args, f.Status)
	}
	if f.Campus > 0 {
		where, args = append(where, "campus = ?"), append(args, f.Campus)
	}
	if f.Category != "" {
		where, args = append(where, "category = ?"), append(args, f.Category)
	}
	if f.Owner != "" {
		where, args = append(where, "owner = ?"), append(args, f.Owner)
	}
	return listPage[LostItem](ctx, r.q, "lost_items", lostColumns, where, args, "created_at DESC, id", page)
}

func (r *Repository) ListFound(ctx context.Context, f FoundFilter, page pagination.Request) (pagination.Page[FoundItem], error) {
	var where []string
	var args []any
	if f.Status != "" {
		where, args = append(where, "status = ?"), append(args, f.Status)
	}
	if f.Campus > 0 {
		where, args = append(where, "campus = ?"), append(args, f.Campus)
	}
	if f.Category != "" {
		where, args = append(where, "category = ?"), append(args, f.Category)
	}
	return listPage[FoundItem](ctx, r.q, "found_items", foundColumns, where, args, "created_at DESC, id", page)
}

func listPage[T any](ctx context.Context, q sqlx.ExtContext, table, columns string, where []string, args []any, order string, page pagination.Request) (pagination.Page[T], error) {
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := sqlx.GetContext(ctx, q, &total, q.Rebind(`SELECT COUNT(*) FROM `+table+clause), args...); err != nil {
		return pagination.Page[T]{}, fmt.Errorf("failed to count %s: %w", table, err)
	}

	var rows []T
	query := `SELECT ` + columns + ` FROM ` + table + clause + ` ORDER BY ` + order + ` LIMIT ? OFFSET ?`
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), append(args, page.Limit(), page.Offset())...); err != nil {
		return pagination.Page[T]{}, fmt.Errorf("failed to list %s: %w", table, err)
	}
	return pagination.New(rows, total, page), nil
}

// StoredFoundItems lazily yields found items in status stored inside w.
// The query runs when iteration starts, so each range is a fresh scan.
// The consumer must not issue other queries on the same handle while
// ranging: on SQLite the cursor holds the only connection.
func (r *Repository) StoredFoundItems(ctx context.Context, w Window) iter.Seq2[*FoundItem, error] {
	return scanWindow[FoundItem](ctx, r.q, `SELECT `+foundColumns+` FROM found_items
		WHERE status = 'stored' AND category = ? AND campus = ? AND found_date BETWEEN ? AND ?
		ORDER BY found_date, id`, w)
}

// OpenLostItems lazily yields open lost items inside w. A zero Window
// matches every open lost item.
func (r *Repository) OpenLostItems(ctx context.Context, w Window) iter.Seq2[*LostItem, error] {
	if w.Category == "" {
		return scanRows[LostItem](ctx, r.q, `SELECT `+lostColumns+` FROM lost_items
			WHERE status = 'open' ORDER BY created_at, id`)
	}
	return scanWindow[LostItem](ctx, r.q, `SELECT `+lostColumns+` FROM lost_items
		WHERE status = 'open' AND category = ? AND campus = ? AND lost_date BETWEEN ? AND ?
		ORDER BY lost_date, id`, w)
}

func scanWindow[T any](ctx context.Context, q sqlx.ExtContext, query string, w Window) iter.Seq2[*T, error] {
	return scanRows[T](ctx, q, query, w.Category, w.Campus, Day(w.From), Day(w.To))
}

func scanRows[T any](ctx context.Context, q sqlx.ExtContext, query string, args ...any) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		rows, err := q.QueryxContext(ctx, q.Rebind(query), args...)
		if err != nil {
			yield(nil, fmt.Errorf("failed to scan items: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			v := new(T)
			if err := rows.StructScan(v); err != nil {
				yield(nil, fmt.Errorf("failed to scan item: %w", err))
				return
			}
			if !yield(v, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("failed to iterate items: %w", err))
		}
	}
}
