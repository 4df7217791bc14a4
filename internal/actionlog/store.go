// Package actionlog is the append-only audit trail of claim decisions.
//
// Entries are written inside the transaction that changes the claim, so a
// status change and its log entry commit or roll back together. The table
// rejects UPDATE and DELETE at the database level.
package actionlog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"lostfound/internal/apperr"
)

// ActionType names what happened to a claim.
type ActionType string

const (
	Submitted       ActionType = "submitted"
	InfoRequested   ActionType = "info_requested"
	Approved        ActionType = "approved"
	Rejected        ActionType = "rejected"
	ConflictFound   ActionType = "conflict_detected"
	DisputeResolved ActionType = "dispute_resolved"
	Returned        ActionType = "returned"
)

// Entry is one audit record.
type Entry struct {
	ID         int64      `json:"id" db:"id"`
	ClaimID    uuid.UUID  `json:"claimId" db:"claim_id"`
	ActionType ActionType `json:"actionType" db:"action_type"`
	Actor      string     `json:"actor" db:"actor"`
	Details    string     `json:"details" db:"details"`
	Campus     int        `json:"campus" db:"campus"`
	CreatedAt  time.Time  `json:"timestamp" db:"created_at"`
}

const MaxStreamBatch = 500

// Store reads and appends entries through q, either the database handle or
// an open transaction.
type Store struct {
	q      sqlx.ExtContext
	tracer trace.Tracer
}

func NewStore(q sqlx.ExtContext) *Store {
	return &Store{
		q:      q,
		tracer: otel.Tracer("lostfound/actionlog"),
	}
}

// Append writes entries in order. Entries without a timestamp get now.
func (s *Store) Append(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	ctx, span := s.tracer.Start(ctx, "actionlog.append",
		trace.WithAttributes(
			attribute.String("claim.id", entries[0].ClaimID.String()),
			attribute.Int("entry.count", len(entries)),
		),
	)
	defer span.End()

	query := s.q.Rebind(`
		INSERT INTO action_log (claim_id, action_type, actor, details, campus, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)

	now := time.Now().UTC()
	for i, e := range entries {
		if e.ClaimID == uuid.Nil || strings.TrimSpace(e.Actor) == "" {
			return apperr.InvalidArgument("actionlog.append", "entry %d needs a claim and an actor", i)
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		if _, err := s.q.ExecContext(ctx, query, e.ClaimID, e.ActionType, e.Actor, e.Details, e.Campus, e.CreatedAt); err != nil {
			return fmt.Errorf("insert action log entry %d: %w", i, err)
		}
		span.AddEvent("entry.appended", trace.WithAttributes(
			attribute.String("action.type", string(e.ActionType)),
			attribute.String("claim.id", e.ClaimID.String()),
		))
	}

	span.SetAttributes(attribute.Bool("append.success", true))
	return nil
}

// ListByClaim returns the claim's history, oldest first.
func (s *Store) ListByClaim(ctx context.Context, claimID uuid.UUID) ([]Entry, error) {
	ctx, span := s.tracer.Start(ctx, "actionlog.list_by_claim",
		trace.WithAttributes(attribute.String("claim.id", claimID.String())),
	)
	defer span.End()

	entries := []Entry{}
	err := sqlx.SelectContext(ctx, s.q, &entries, s.q.Rebind(`
		SELECT id, claim_id, action_type, actor, details, campus, created_at
		FROM action_log
		WHERE claim_id = ?
		ORDER BY id ASC`), claimID)
	if err != nil {
		return nil, fmt.Errorf("query action log: %w", err)
	}

	span.SetAttributes(attribute.Int("entries.loaded", len(entries)))
	return entries, nil
}

// Stream provides a cursor-based feed for reporting: entries with id
// greater than afterID, oldest first. campus 0 streams every campus.
func (s *Store) Stream(ctx context.Context, afterID int64, limit, campus int) ([]Entry, error) {
	if limit <= 0 || limit > MaxStreamBatch {
		limit = MaxStreamBatch
	}
	ctx, span := s.tracer.Start(ctx, "actionlog.stream",
		trace.WithAttributes(
			attribute.Int64("from.id", afterID),
			attribute.Int("batch.size", limit),
		),
	)
	defer span.End()

	query := `SELECT id, claim_id, action_type, actor, details, campus, created_at
		FROM action_log WHERE id > ?`
	args := []any{afterID}
	if campus > 0 {
		query += ` AND campus = ?`
		args = append(args, campus)
	}
	query += ` ORDER BY id ASC LIMIT ?`
	args = append(args, limit)

	entries := []Entry{}
	if err := sqlx.SelectContext(ctx, s.q, &entries, s.q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query action log stream: %w", err)
	}

	span.SetAttributes(attribute.Int("entries.streamed", len(entries)))
	return entries, nil
}
