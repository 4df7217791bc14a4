// internal/claims/implementation.go
package claims

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"lostfound/internal/actionlog"
	"lostfound/internal/apperr"
	"lostfound/internal/evidence"
	"lostfound/internal/items"
	"lostfound/internal/notify"
	"lostfound/internal/platform/db"
	"lostfound/internal/platform/lock"
	"lostfound/internal/platform/pagination"
)

// SystemActor is recorded for transitions the service makes on its own,
// such as conflict detection during submission.
const SystemActor = "system"

// core holds what the claim processor and the dispute resolver share.
type core struct {
	db       *db.DB
	locks    *lock.Keyed
	notifier notify.Notifier
	observer items.Observer
	logger   zerolog.Logger
	tracer   trace.Tracer

	submitted metric.Int64Counter
	conflicts metric.Int64Counter
	decisions metric.Int64Counter

	now func() time.Time
}

func newCore(database *db.DB, locks *lock.Keyed, notifier notify.Notifier, observer items.Observer, logger zerolog.Logger) *core {
	logger = logger.With().Str("component", "claims").Logger()
	meter := otel.Meter("lostfound/claims")
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Warn().Err(err).Str("instrument", name).Msg("failed to create counter")
			return noop.Int64Counter{}
		}
		return c
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}

	return &core{
		db:        database,
		locks:     locks,
		notifier:  notifier,
		observer:  observer,
		logger:    logger,
		tracer:    otel.Tracer("lostfound/claims"),
		submitted: counter("lostfound.claims.submitted", "Claims submitted"),
		conflicts: counter("lostfound.claims.conflicted", "Claims moved to conflicted"),
		decisions: counter("lostfound.claims.decisions", "Claim decisions by outcome"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// outcome carries side effects that run after commit.
type outcome struct {
	notices   []notify.Notification
	restocked *items.FoundItem
}

// withItem serializes fn against every other mutation of the found item:
// first the in-process lock, then one database transaction.
func (c *core) withItem(ctx context.Context, foundItemID uuid.UUID, fn func(tx *sqlx.Tx) error) error {
	release, err := c.locks.Acquire(ctx, foundItemID)
	if err != nil {
		return err
	}
	defer release()
	return c.db.WithTx(ctx, fn)
}

func (c *core) finish(ctx context.Context, out outcome) {
	for _, n := range out.notices {
		if err := c.notifier.Notify(ctx, n); err != nil {
			c.logger.Error().Err(err).Str("claim_id", n.ClaimID.String()).Str("kind", string(n.Kind)).Msg("failed to notify claimant")
		}
	}
	if out.restocked != nil && c.observer != nil {
		if err := c.observer.FoundItemStored(ctx, out.restocked); err != nil {
			c.logger.Error().Err(err).Str("found_item_id", out.restocked.ID.String()).Msg("failed to recompute matches for found item")
		}
	}
}

func requireActor(op, actor string) error {
	if strings.TrimSpace(actor) == "" {
		return apperr.InvalidArgument(op, "actor is required")
	}
	return nil
}

// markConflicted moves every pending claim in live to conflicted and logs
// each move. It returns how many claims changed.
func (c *core) markConflicted(ctx context.Context, tx *sqlx.Tx, live []*Claim, actor string, now time.Time) (int, error) {
	repo := NewRepository(tx)
	var entries []actionlog.Entry
	for _, cl := range live {
		if cl.Status != Pending {
			continue
		}
		from := cl.Status
		if err := cl.transition(Conflicted, ""); err != nil {
			return 0, err
		}
		if err := repo.Save(ctx, cl, from, now); err != nil {
			return 0, err
		}
		entries = append(entries, actionlog.Entry{
			ClaimID:    cl.ID,
			ActionType: actionlog.ConflictFound,
			Actor:      actor,
			Details:    fmt.Sprintf("%d live claims on found item %s", len(live), cl.FoundItemID),
			Campus:     cl.Campus,
			CreatedAt:  now,
		})
	}
	if err := actionlog.NewStore(tx).Append(ctx, entries...); err != nil {
		return 0, err
	}
	if len(entries) > 0 {
		c.conflicts.Add(ctx, int64(len(entries)))
	}
	return len(entries), nil
}

// approveTx makes winnerID the item's winning claim. Every other live claim
// is rejected as superseded, the found item stays claimed and a linked lost
// item is resolved. The winner's log entry uses action.
func (c *core) approveTx(ctx context.Context, tx *sqlx.Tx, foundItemID, winnerID uuid.UUID, actor, reason string, action actionlog.ActionType) (*Claim, outcome, error) {
	var out outcome
	itemRepo := items.NewRepository(tx)
	repo := NewRepository(tx)

	found, err := itemRepo.GetFound(ctx, foundItemID)
	if err != nil {
		return nil, out, err
	}
	all, err := repo.ListByItem(ctx, foundItemID)
	if err != nil {
		return nil, out, err
	}

	var winner *Claim
	for i := range all {
		cl := &all[i]
		if cl.ID == winnerID {
			winner = cl
			continue
		}
		if cl.Status.Winning() {
			return nil, out, apperr.Conflict("claims.approve", "found item %s already has winning claim %s", foundItemID, cl.ID)
		}
	}
	if winner == nil {
		return nil, out, apperr.NotFound("claims.approve", "claim %s not found on found item %s", winnerID, foundItemID)
	}

	now := c.now()
	from := winner.Status
	if err := winner.transition(Approved, reason); err != nil {
		return nil, out, err
	}
	if err := repo.Save(ctx, winner, from, now); err != nil {
		return nil, out, err
	}
	entries := []actionlog.Entry{{
		ClaimID: winner.ID, ActionType: action, Actor: actor, Details: reason, Campus: winner.Campus, CreatedAt: now,
	}}
	out.notices = append(out.notices, notify.Notification{
		Recipient: winner.Claimant, ClaimID: winner.ID, Kind: notify.ClaimApproved, Message: reason,
	})

	for i := range all {
		cl := &all[i]
		if cl.ID == winnerID || !cl.Status.Live() {
			continue
		}
		from := cl.Status
		if err := cl.transition(Rejected, supersededReason); err != nil {
			return nil, out, err
		}
		if err := repo.Save(ctx, cl, from, now); err != nil {
			return nil, out, err
		}
		entries = append(entries, actionlog.Entry{
			ClaimID: cl.ID, ActionType: actionlog.Rejected, Actor: actor, Details: supersededReason, Campus: cl.Campus, CreatedAt: now,
		})
		out.notices = append(out.notices, notify.Notification{
			Recipient: cl.Claimant, ClaimID: cl.ID, Kind: notify.ClaimRejected, Message: supersededReason,
		})
	}
	if err := actionlog.NewStore(tx).Append(ctx, entries...); err != nil {
		return nil, out, err
	}

	if err := found.Advance(items.FoundClaimed); err != nil {
		return nil, out, err
	}
	if err := itemRepo.SaveFound(ctx, found, now); err != nil {
		return nil, out, err
	}

	if winner.LostItemID != nil {
		lost, err := itemRepo.GetLost(ctx, *winner.LostItemID)
		if err != nil {
			return nil, out, err
		}
		if lost.Status == items.LostOpen {
			if err := lost.Advance(items.LostResolved); err != nil {
				return nil, out, err
			}
			if err := itemRepo.SaveLost(ctx, lost, now); err != nil {
				return nil, out, err
			}
		}
	}

	c.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", string(action))))
	return winner, out, nil
}

// resolveTx approves winnerID only if it is one of the item's conflicted
// claims.
func (c *core) resolveTx(ctx context.Context, tx *sqlx.Tx, foundItemID, winnerID uuid.UUID, actor, reason string) (*Claim, outcome, error) {
	if _, err := items.NewRepository(tx).GetFound(ctx, foundItemID); err != nil {
		return nil, outcome{}, err
	}
	winner, err := NewRepository(tx).Get(ctx, winnerID)
	if err != nil && apperr.KindOf(err) != apperr.KindNotFound {
		return nil, outcome{}, err
	}
	if winner == nil || winner.FoundItemID != foundItemID || winner.Status != Conflicted {
		return nil, outcome{}, apperr.InvalidArgument("claims.resolve", "claim %s is not a conflicted claim on found item %s", winnerID, foundItemID)
	}
	return c.approveTx(ctx, tx, foundItemID, winnerID, actor, reason, actionlog.DisputeResolved)
}

// service implements the Service interface.
type service struct {
	*core
}

// NewService creates the claim processor. notifier defaults to logging;
// observer, usually the matching engine, may be nil.
func NewService(database *db.DB, locks *lock.Keyed, notifier notify.Notifier, observer items.Observer, logger zerolog.Logger) Service {
	return &service{core: newCore(database, locks, notifier, observer, logger)}
}

func (s *service) SubmitClaim(ctx context.Context, req SubmitClaimRequest) (*Claim, error) {
	ctx, span := s.tracer.Start(ctx, "claims.submit",
		trace.WithAttributes(attribute.String("found_item.id", req.FoundItemID.String())))
	defer span.End()

	claimant := strings.TrimSpace(req.Claimant)
	if claimant == "" {
		return nil, apperr.InvalidArgument("claims.submit", "claimant is required")
	}
	if err := evidence.ValidateAll(req.Evidence); err != nil {
		return nil, err
	}

	var claim *Claim
	conflicted := 0
	err := s.withItem(ctx, req.FoundItemID, func(tx *sqlx.Tx) error {
		itemRepo := items.NewRepository(tx)
		repo := NewRepository(tx)

		found, err := itemRepo.GetFound(ctx, req.FoundItemID)
		if err != nil {
			return err
		}
		if !found.Claimable() {
			return apperr.InvalidState("claims.submit", "found item %s is %s and cannot be claimed", found.ID, found.Status)
		}
		if req.LostItemID != nil {
			lost, err := itemRepo.GetLost(ctx, *req.LostItemID)
			if err != nil {
				return err
			}
			if lost.Status != items.LostOpen {
				return apperr.InvalidState("claims.submit", "lost item %s is %s", lost.ID, lost.Status)
			}
		}

		existing, err := repo.ListByItem(ctx, found.ID)
		if err != nil {
			return err
		}
		var live []*Claim
		for i := range existing {
			cl := &existing[i]
			switch {
			case cl.Status.Winning():
				return apperr.InvalidState("claims.submit", "found item %s already has an approved claim", found.ID)
			case cl.Status.Live() && cl.Claimant == claimant:
				return apperr.InvalidState("claims.submit", "%s already has live claim %s on found item %s", claimant, cl.ID, found.ID)
			case cl.Status.Live():
				live = append(live, cl)
			}
		}

		now := s.now()
		claim = &Claim{
			ID:          uuid.New(),
			FoundItemID: found.ID,
			LostItemID:  req.LostItemID,
			Claimant:    claimant,
			Campus:      found.Campus,
			Status:      Pending,
			Priority:    PriorityNormal,
			SubmittedAt: now,
			UpdatedAt:   now,
		}
		if err := repo.Insert(ctx, claim); err != nil {
			return err
		}
		if _, err := evidence.NewStore(tx).Append(ctx, claim.ID, req.Evidence, now); err != nil {
			return err
		}
		if err := actionlog.NewStore(tx).Append(ctx, actionlog.Entry{
			ClaimID: claim.ID, ActionType: actionlog.Submitted, Actor: claimant, Campus: claim.Campus, CreatedAt: now,
		}); err != nil {
			return err
		}

		if len(live) > 0 {
			if conflicted, err = s.markConflicted(ctx, tx, append(live, claim), SystemActor, now); err != nil {
				return err
			}
		}

		if err := found.Advance(items.FoundClaimed); err != nil {
			return err
		}
		return itemRepo.SaveFound(ctx, found, now)
	})
	if err != nil {
		return nil, err
	}

	s.submitted.Add(ctx, 1)
	span.SetAttributes(attribute.String("claim.id", claim.ID.String()), attribute.Int("conflicted", conflicted))
	event := s.logger.Info().Str("claim_id", claim.ID.String()).Str("found_item_id", claim.FoundItemID.String()).Str("claimant", claimant)
	if conflicted > 0 {
		event = event.Int("conflicted", conflicted)
	}
	event.Msg("claim submitted")
	return claim, nil
}

func (s *service) RequestMoreInfo(ctx context.Context, claimID uuid.UUID, actor, message string) error {
	if err := requireActor("claims.request_info", actor); err != nil {
		return err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return apperr.InvalidArgument("claims.request_info", "message is required")
	}
	claim, err := NewRepository(s.db).Get(ctx, claimID)
	if err != nil {
		return err
	}

	err = s.withItem(ctx, claim.FoundItemID, func(tx *sqlx.Tx) error {
		if claim, err = NewRepository(tx).Get(ctx, claimID); err != nil {
			return err
		}
		if !claim.Status.Live() {
			return apperr.InvalidState("claims.request_info", "claim %s is %s", claimID, claim.Status)
		}
		return actionlog.NewStore(tx).Append(ctx, actionlog.Entry{
			ClaimID: claimID, ActionType: actionlog.InfoRequested, Actor: actor, Details: message, Campus: claim.Campus,
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("claim_id", claimID.String()).Str("actor", actor).Msg("more information requested")
	s.finish(ctx, outcome{notices: []notify.Notification{{
		Recipient: claim.Claimant, ClaimID: claimID, Kind: notify.InfoRequested, Message: message,
	}}})
	return nil
}

func (s *service) AddEvidence(ctx context.Context, claimID uuid.UUID, actor string, subs []evidence.Submission) ([]evidence.Evidence, error) {
	if err := requireActor("claims.add_evidence", actor); err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, apperr.InvalidArgument("claims.add_evidence", "at least one evidence entry is required")
	}
	if err := evidence.ValidateAll(subs); err != nil {
		return nil, err
	}
	claim, err := NewRepository(s.db).Get(ctx, claimID)
	if err != nil {
		return nil, err
	}

	var added []evidence.Evidence
	err = s.withItem(ctx, claim.FoundItemID, func(tx *sqlx.Tx) error {
		if claim, err = NewRepository(tx).Get(ctx, claimID); err != nil {
			return err
		}
		if claim.Claimant != actor {
			return apperr.InvalidArgument("claims.add_evidence", "only the claimant can add evidence to claim %s", claimID)
		}
		if !claim.Status.Live() {
			return apperr.InvalidState("claims.add_evidence", "claim %s is %s", claimID, claim.Status)
		}
		added, err = evidence.NewStore(tx).Append(ctx, claimID, subs, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("claim_id", claimID.String()).Int("entries", len(added)).Msg("evidence added")
	return added, nil
}

func (s *service) Decide(ctx context.Context, claimID uuid.UUID, actor string, decision Decision, reason string) (*Claim, error) {
	ctx, span := s.tracer.Start(ctx, "claims.decide",
		trace.WithAttributes(
			attribute.String("claim.id", claimID.String()),
			attribute.String("decision", string(decision)),
		))
	defer span.End()

	if err := requireActor("claims.decide", actor); err != nil {
		return nil, err
	}
	if decision != Approve && decision != Reject {
		return nil, apperr.InvalidArgument("claims.decide", "unknown decision %q", decision)
	}
	claim, err := NewRepository(s.db).Get(ctx, claimID)
	if err != nil {
		return nil, err
	}
	foundItemID := claim.FoundItemID
	reason = strings.TrimSpace(reason)

	var out outcome
	err = s.withItem(ctx, foundItemID, func(tx *sqlx.Tx) error {
		if claim, err = NewRepository(tx).Get(ctx, claimID); err != nil {
			return err
		}
		if !claim.Status.Live() {
			return apperr.InvalidState("claims.decide", "claim %s is %s; only pending or conflicted claims can be decided", claimID, claim.Status)
		}
		switch {
		case decision == Approve && claim.Status == Conflicted:
			claim, out, err = s.resolveTx(ctx, tx, foundItemID, claimID, actor, reason)
		case decision == Approve:
			claim, out, err = s.approveTx(ctx, tx, foundItemID, claimID, actor, reason, actionlog.Approved)
		default:
			claim, out, err = s.rejectTx(ctx, tx, claim, actor, reason)
		}
		return err
	})
	if err != nil {
		span.SetAttributes(attribute.String("error.kind", string(apperr.KindOf(err))))
		return nil, err
	}

	s.logger.Info().Str("claim_id", claimID.String()).Str("actor", actor).Str("decision", string(decision)).
		Str("status", string(claim.Status)).Msg("claim decided")
	s.finish(ctx, out)
	return claim, nil
}

// rejectTx rejects one claim. When no live or winning claim remains the
// found item goes back on the shelf.
func (s *service) rejectTx(ctx context.Context, tx *sqlx.Tx, claim *Claim, actor, reason string) (*Claim, outcome, error) {
	var out outcome
	itemRepo := items.NewRepository(tx)
	repo := NewRepository(tx)
	now := s.now()

	from := claim.Status
	if err := claim.transition(Rejected, reason); err != nil {
		return nil, out, err
	}
	if err := repo.Save(ctx, claim, from, now); err != nil {
		return nil, out, err
	}
	if err := actionlog.NewStore(tx).Append(ctx, actionlog.Entry{
		ClaimID: claim.ID, ActionType: actionlog.Rejected, Actor: actor, Details: reason, Campus: claim.Campus, CreatedAt: now,
	}); err != nil {
		return nil, out, err
	}

	all, err := repo.ListByItem(ctx, claim.FoundItemID)
	if err != nil {
		return nil, out, err
	}
	open := false
	for _, cl := range all {
		if cl.Status.Live() || cl.Status.Winning() {
			open = true
			break
		}
	}

	found, err := itemRepo.GetFound(ctx, claim.FoundItemID)
	if err != nil {
		return nil, out, err
	}
	if !open && found.Status == items.FoundClaimed {
		if err := found.Advance(items.FoundStored); err != nil {
			return nil, out, err
		}
		out.restocked = found
	}
	if err := itemRepo.SaveFound(ctx, found, now); err != nil {
		return nil, out, err
	}

	out.notices = append(out.notices, notify.Notification{
		Recipient: claim.Claimant, ClaimID: claim.ID, Kind: notify.ClaimRejected, Message: reason,
	})
	s.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", string(actionlog.Rejected))))
	return claim, out, nil
}

func (s *service) MarkReturned(ctx context.Context, claimID uuid.UUID, actor string) (*Claim, error) {
	if err := requireActor("claims.return", actor); err != nil {
		return nil, err
	}
	claim, err := NewRepository(s.db).Get(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if claim.Status == Returned {
		return claim, nil
	}

	changed := false
	err = s.withItem(ctx, claim.FoundItemID, func(tx *sqlx.Tx) error {
		itemRepo := items.NewRepository(tx)
		repo := NewRepository(tx)
		if claim, err = repo.Get(ctx, claimID); err != nil {
			return err
		}
		if claim.Status == Returned {
			return nil
		}
		if claim.Status != Approved {
			return apperr.InvalidState("claims.return", "claim %s is %s; only approved claims can be returned", claimID, claim.Status)
		}

		now := s.now()
		if err := claim.transition(Returned, ""); err != nil {
			return err
		}
		if err := repo.Save(ctx, claim, Approved, now); err != nil {
			return err
		}
		if err := actionlog.NewStore(tx).Append(ctx, actionlog.Entry{
			ClaimID: claimID, ActionType: actionlog.Returned, Actor: actor, Campus: claim.Campus, CreatedAt: now,
		}); err != nil {
			return err
		}

		found, err := itemRepo.GetFound(ctx, claim.FoundItemID)
		if err != nil {
			return err
		}
		if err := found.Advance(items.FoundReturned); err != nil {
			return err
		}
		changed = true
		return itemRepo.SaveFound(ctx, found, now)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.logger.Info().Str("claim_id", claimID.String()).Str("actor", actor).Msg("item returned to claimant")
		s.finish(ctx, outcome{notices: []notify.Notification{{
			Recipient: claim.Claimant, ClaimID: claimID, Kind: notify.ClaimReturned,
		}}})
	}
	return claim, nil
}

func (s *service) GetClaim(ctx context.Context, id uuid.UUID) (*ClaimDetail, error) {
	claim, err := NewRepository(s.db).Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ev, err := evidence.NewStore(s.db).ListByClaim(ctx, id)
	if err != nil {
		return nil, err
	}
	history, err := actionlog.NewStore(s.db).ListByClaim(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ClaimDetail{Claim: *claim, Evidence: ev, ActionLog: history}, nil
}

func (s *service) ListClaims(ctx context.Context, f Filter, page pagination.Request) (pagination.Page[Claim], error) {
	return NewRepository(s.db).List(ctx, f, page)
}
