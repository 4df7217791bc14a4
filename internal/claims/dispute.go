// internal/claims/dispute.go
package claims

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"lostfound/internal/items"
	"lostfound/internal/notify"
	"lostfound/internal/platform/db"
	"lostfound/internal/platform/lock"
	"lostfound/internal/platform/pagination"
)

// resolver implements the Resolver interface.
type resolver struct {
	*core
}

// NewResolver creates the dispute resolver. It must share locks with the
// claim processor so both serialize on the same found items.
func NewResolver(database *db.DB, locks *lock.Keyed, notifier notify.Notifier, observer items.Observer, logger zerolog.Logger) Resolver {
	return &resolver{core: newCore(database, locks, notifier, observer, logger)}
}

// MarkConflicted flags every pending claim on the item. Calling it again,
// or on an item without live claims, changes nothing.
func (r *resolver) MarkConflicted(ctx context.Context, foundItemID uuid.UUID, actor string) error {
	if err := requireActor("claims.mark_conflicted", actor); err != nil {
		return err
	}

	changed := 0
	err := r.withItem(ctx, foundItemID, func(tx *sqlx.Tx) error {
		itemRepo := items.NewRepository(tx)
		found, err := itemRepo.GetFound(ctx, foundItemID)
		if err != nil {
			return err
		}
		all, err := NewRepository(tx).ListByItem(ctx, foundItemID)
		if err != nil {
			return err
		}
		var live []*Claim
		for i := range all {
			if all[i].Status.Live() {
				live = append(live, &all[i])
			}
		}
		if len(live) == 0 {
			return nil
		}

		now := r.now()
		if changed, err = r.markConflicted(ctx, tx, live, actor, now); err != nil {
			return err
		}
		if changed == 0 && found.Status == items.FoundClaimed {
			return nil
		}
		if err := found.Advance(items.FoundClaimed); err != nil {
			return err
		}
		return itemRepo.SaveFound(ctx, found, now)
	})
	if err != nil {
		return err
	}

	if changed > 0 {
		r.logger.Info().Str("found_item_id", foundItemID.String()).Str("actor", actor).Int("claims", changed).Msg("claims marked conflicted")
	}
	return nil
}

// Resolve approves the staff-selected winner among the item's conflicted
// claims and rejects the rest.
func (r *resolver) Resolve(ctx context.Context, foundItemID, winnerClaimID uuid.UUID, actor, reason string) (*Claim, error) {
	ctx, span := r.tracer.Start(ctx, "claims.resolve",
		trace.WithAttributes(
			attribute.String("found_item.id", foundItemID.String()),
			attribute.String("winner.id", winnerClaimID.String()),
		))
	defer span.End()

	if err := requireActor("claims.resolve", actor); err != nil {
		return nil, err
	}

	var winner *Claim
	var out outcome
	err := r.withItem(ctx, foundItemID, func(tx *sqlx.Tx) error {
		var err error
		winner, out, err = r.resolveTx(ctx, tx, foundItemID, winnerClaimID, actor, reason)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info().Str("found_item_id", foundItemID.String()).Str("winner_claim_id", winnerClaimID.String()).
		Str("actor", actor).Int("rejected", len(out.notices)-1).Msg("dispute resolved")
	r.finish(ctx, out)
	return winner, nil
}

func (r *resolver) ListConflicts(ctx context.Context, campus int, page pagination.Request) (pagination.Page[ConflictGroup], error) {
	return NewRepository(r.db).ListConflicts(ctx, campus, page)
}
