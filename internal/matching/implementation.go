// internal/matching/implementation.go
package matching

import (
	"context"
	"fmt"
	"iter"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"lostfound/internal/apperr"
	"lostfound/internal/items"
	"lostfound/internal/platform/db"
	"lostfound/internal/platform/pagination"
)

// service implements the Service interface.
type service struct {
	db        *db.DB
	cfg       Config
	scorer    *Scorer
	logger    zerolog.Logger
	tracer    trace.Tracer
	proposals metric.Int64Counter
	now       func() time.Time
}

// NewService creates the matching engine.
func NewService(database *db.DB, cfg Config, logger zerolog.Logger) Service {
	logger = logger.With().Str("component", "matching").Logger()

	proposals, err := otel.Meter("lostfound/matching").Int64Counter("lostfound.matching.proposals",
		metric.WithDescription("Match proposals written by recompute passes"))
	if err != nil {
		logger.Warn().Err(err).Msg("failed to create proposals counter")
		proposals = noop.Int64Counter{}
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	return &service{
		db:        database,
		cfg:       cfg,
		scorer:    NewScorer(cfg),
		logger:    logger,
		tracer:    otel.Tracer("lostfound/matching"),
		proposals: proposals,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ComputeCandidates scores every stored found item in the lost item's
// window. Nothing is cached: each range runs a fresh scan.
func (s *service) ComputeCandidates(ctx context.Context, lost *items.LostItem) iter.Seq2[Match, error] {
	w := items.Window{
		Category: lost.Category,
		Campus:   lost.Campus,
		From:     lost.LostDate.Add(-s.cfg.WindowBefore),
		To:       lost.LostDate.Add(s.cfg.WindowAfter),
	}
	return func(yield func(Match, error) bool) {
		for found, err := range items.NewRepository(s.db).StoredFoundItems(ctx, w) {
			if err != nil {
				yield(Match{}, err)
				return
			}
			score := s.scorer.Score(lost, found)
			if !s.scorer.Accepts(score) {
				continue
			}
			if !yield(s.proposal(lost.ID, found.ID, score), nil) {
				return
			}
		}
	}
}

func (s *service) proposal(lostID, foundID uuid.UUID, score float64) Match {
	now := s.now()
	return Match{
		ID:          uuid.New(),
		LostItemID:  lostID,
		FoundItemID: foundID,
		Score:       score,
		Status:      Proposed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (s *service) RecomputeForLost(ctx context.Context, lostID uuid.UUID) (int, error) {
	ctx, span := s.tracer.Start(ctx, "matching.recompute_lost",
		trace.WithAttributes(attribute.String("lost_item.id", lostID.String())))
	defer span.End()

	lost, err := items.NewRepository(s.db).GetLost(ctx, lostID)
	if err != nil {
		return 0, err
	}
	if lost.Status != items.LostOpen {
		return 0, nil
	}

	// Collect before writing: the scan holds a connection until it ends.
	var found []Match
	for m, err := range s.ComputeCandidates(ctx, lost) {
		if err != nil {
			return 0, err
		}
		found = append(found, m)
	}

	n, err := s.upsert(ctx, found)
	span.SetAttributes(attribute.Int("proposals", n))
	return n, err
}

func (s *service) RecomputeForFound(ctx context.Context, foundID uuid.UUID) (int, error) {
	ctx, span := s.tracer.Start(ctx, "matching.recompute_found",
		trace.WithAttributes(attribute.String("found_item.id", foundID.String())))
	defer span.End()

	repo := items.NewRepository(s.db)
	found, err := repo.GetFound(ctx, foundID)
	if err != nil {
		return 0, err
	}
	if found.Status != items.FoundStored {
		return 0, nil
	}

	// A lost date L puts this item in range when
	// L-WindowBefore <= found <= L+WindowAfter.
	w := items.Window{
		Category: found.Category,
		Campus:   found.Campus,
		From:     found.FoundDate.Add(-s.cfg.WindowAfter),
		To:       found.FoundDate.Add(s.cfg.WindowBefore),
	}
	var proposals []Match
	for lost, err := range repo.OpenLostItems(ctx, w) {
		if err != nil {
			return 0, err
		}
		if score := s.scorer.Score(lost, found); s.scorer.Accepts(score) {
			proposals = append(proposals, s.proposal(lost.ID, found.ID, score))
		}
	}

	n, err := s.upsert(ctx, proposals)
	span.SetAttributes(attribute.Int("proposals", n))
	return n, err
}

// RecomputeAll rescans every open lost item with a bounded worker pool.
func (s *service) RecomputeAll(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "matching.recompute_all")
	defer span.End()

	var ids []uuid.UUID
	for lost, err := range items.NewRepository(s.db).OpenLostItems(ctx, items.Window{}) {
		if err != nil {
			return 0, err
		}
		ids = append(ids, lost.ID)
	}

	var total atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, id := range ids {
		g.Go(func() error {
			n, err := s.RecomputeForLost(gctx, id)
			if err != nil {
				return fmt.Errorf("recompute lost item %s: %w", id, err)
			}
			total.Add(int64(n))
			return nil
		})
	}
	err := g.Wait()

	span.SetAttributes(
		attribute.Int("lost_items", len(ids)),
		attribute.Int64("proposals", total.Load()),
	)
	s.logger.Info().Int("lost_items", len(ids)).Int64("proposals", total.Load()).Msg("recompute pass finished")
	return int(total.Load()), err
}

func (s *service) upsert(ctx context.Context, proposals []Match) (int, error) {
	if len(proposals) == 0 {
		return 0, nil
	}
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		repo := NewRepository(tx)
		for _, m := range proposals {
			if err := repo.Upsert(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.proposals.Add(ctx, int64(len(proposals)))
	return len(proposals), nil
}

func (s *service) Confirm(ctx context.Context, id uuid.UUID, actor string) error {
	return s.decide(ctx, id, actor, Confirmed)
}

func (s *service) Dismiss(ctx context.Context, id uuid.UUID, actor string) error {
	return s.decide(ctx, id, actor, Dismissed)
}

// decide ends a proposal. Confirming records staff agreement only; claims
// are always filed separately.
func (s *service) decide(ctx context.Context, id uuid.UUID, actor string, to Status) error {
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		repo := NewRepository(tx)
		m, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if m.Status != Proposed {
			return apperr.InvalidState("matching.decide", "match %s is already %s", id, m.Status)
		}

		itemRepo := items.NewRepository(tx)
		lost, err := itemRepo.GetLost(ctx, m.LostItemID)
		if err != nil {
			return err
		}
		found, err := itemRepo.GetFound(ctx, m.FoundItemID)
		if err != nil {
			return err
		}
		if stale(lost, found) {
			return apperr.InvalidState("matching.decide", "match %s is stale: lost item is %s, found item is %s", id, lost.Status, found.Status)
		}
		return repo.Decide(ctx, id, to, actor, s.now())
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("match_id", id.String()).Str("actor", actor).Str("status", string(to)).Msg("match decided")
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*MatchDetail, error) {
	m, err := NewRepository(s.db).Get(ctx, id)
	if err != nil {
		return nil, err
	}
	itemRepo := items.NewRepository(s.db)
	lost, err := itemRepo.GetLost(ctx, m.LostItemID)
	if err != nil {
		return nil, err
	}
	found, err := itemRepo.GetFound(ctx, m.FoundItemID)
	if err != nil {
		return nil, err
	}
	return &MatchDetail{
		Match:     *m,
		LostItem:  lost,
		FoundItem: found,
		Stale:     m.Status == Proposed && stale(lost, found),
	}, nil
}

func (s *service) List(ctx context.Context, f Filter, page pagination.Request) (pagination.Page[Match], error) {
	return NewRepository(s.db).List(ctx, f, page)
}

func (s *service) LostItemOpened(ctx context.Context, item *items.LostItem) error {
	_, err := s.RecomputeForLost(ctx, item.ID)
	return err
}

func (s *service) FoundItemStored(ctx context.Context, item *items.FoundItem) error {
	_, err := s.RecomputeForFound(ctx, item.ID)
	return err
}
