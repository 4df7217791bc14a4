// internal/items/implementation.go
package items

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"lostfound/internal/apperr"
	"lostfound/internal/platform/db"
	"lostfound/internal/platform/lock"
	"lostfound/internal/platform/pagination"
)

// service implements the Service interface.
type service struct {
	db       *db.DB
	locks    *lock.Keyed
	observer Observer
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates a new item service. observer may be nil.
func NewService(database *db.DB, locks *lock.Keyed, observer Observer, logger zerolog.Logger) Service {
	return &service{
		db:       database,
		locks:    locks,
		observer: observer,
		logger:   logger.With().Str("component", "items").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) CreateLostItem(ctx context.Context, owner string, in NewLostItem) (*LostItem, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, apperr.InvalidArgument("items.create_lost", "owner is required")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	item := &LostItem{
		ID:           uuid.New(),
		Owner:        owner,
		Category:     strings.ToLower(strings.TrimSpace(in.Category)),
		Campus:       in.Campus,
		Title:        strings.TrimSpace(in.Title),
		Description:  strings.TrimSpace(in.Description),
		LostLocation: in.LostLocation,
		LostDate:     Day(in.LostDate),
		ImageRefs:    in.ImageRefs,
		Status:       LostOpen,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := NewRepository(s.db).InsertLost(ctx, item); err != nil {
		return nil, db.Classify("create lost item", err)
	}

	s.logger.Info().Str("lost_item_id", item.ID.String()).Str("owner", owner).Msg("lost item reported")
	s.lostOpened(ctx, item)
	return item, nil
}

func (s *service) UpdateLostItem(ctx context.Context, id uuid.UUID, actor string, patch LostItemPatch) (*LostItem, error) {
	var item *LostItem
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		repo := NewRepository(tx)
		var err error
		if item, err = repo.GetLost(ctx, id); err != nil {
			return err
		}
		if item.Status != LostOpen {
			return apperr.InvalidState("items.update_lost", "lost item %s is %s and can no longer be edited", id, item.Status)
		}
		if patch.Title != nil {
			if strings.TrimSpace(*patch.Title) == "" {
				return apperr.InvalidArgument("items.update_lost", "title cannot be empty")
			}
			item.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Description != nil {
			item.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.LostLocation != nil {
			item.LostLocation = *patch.LostLocation
		}
		if patch.LostDate != nil {
			item.LostDate = Day(*patch.LostDate)
		}
		if patch.ImageRefs != nil {
			item.ImageRefs = patch.ImageRefs
		}
		return repo.SaveLost(ctx, item, s.now())
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("lost_item_id", id.String()).Str("actor", actor).Msg("lost item updated")
	s.lostOpened(ctx, item)
	return item, nil
}

func (s *service) CloseLostItem(ctx context.Context, id uuid.UUID, actor string) (*LostItem, error) {
	var item *LostItem
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		repo := NewRepository(tx)
		var err error
		if item, err = repo.GetLost(ctx, id); err != nil {
			return err
		}
		if err := item.Advance(LostClosed); err != nil {
			return err
		}
		return repo.SaveLost(ctx, item, s.now())
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("lost_item_id", id.String()).Str("actor", actor).Msg("lost item closed")
	return item, nil
}

func (s *service) GetLostItem(ctx context.Context, id uuid.UUID) (*LostItem, error) {
	return NewRepository(s.db).GetLost(ctx, id)
}

func (s *service) ListLostItems(ctx context.Context, f LostFilter, page pagination.Request) (pagination.Page[LostItem], error) {
	return NewRepository(s.db).ListLost(ctx, f, page)
}

func (s *service) CreateFoundItem(ctx context.Context, reporter string, in NewFoundItem) (*FoundItem, error) {
	if strings.TrimSpace(reporter) == "" {
		return nil, apperr.InvalidArgument("items.create_found", "reporter is required")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	item := &FoundItem{
		ID:              uuid.New(),
		Reporter:        reporter,
		Category:        strings.ToLower(strings.TrimSpace(in.Category)),
		Campus:          in.Campus,
		Title:           strings.TrimSpace(in.Title),
		Description:     strings.TrimSpace(in.Description),
		FoundLocation:   in.FoundLocation,
		FoundDate:       Day(in.FoundDate),
		StorageLocation: in.StorageLocation,
		ImageRefs:       in.ImageRefs,
		Status:          FoundOpen,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := NewRepository(s.db).InsertFound(ctx, item); err != nil {
		return nil, db.Classify("create found item", err)
	}

	s.logger.Info().Str("found_item_id", item.ID.String()).Str("reporter", reporter).Msg("found item reported")
	return item, nil
}

func (s *service) StoreFoundItem(ctx context.Context, id uuid.UUID, actor, storageLocation string) (*FoundItem, error) {
	if strings.TrimSpace(storageLocation) == "" {
		return nil, apperr.InvalidArgument("items.store_found", "storage location is required")
	}
	item, err := s.moveFound(ctx, id, FoundOpen, FoundStored, storageLocation)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("found_item_id", id.String()).Str("actor", actor).Str("storage", storageLocation).Msg("found item stored")
	s.foundStored(ctx, item)
	return item, nil
}

func (s *service) CloseFoundItem(ctx context.Context, id uuid.UUID, actor string) (*FoundItem, error) {
	item, err := s.moveFound(ctx, id, "", FoundClosed, "")
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("found_item_id", id.String()).Str("actor", actor).Msg("found item closed")
	return item, nil
}

func (s *service) ReopenFoundItem(ctx context.Context, id uuid.UUID, actor, storageLocation string) (*FoundItem, error) {
	item, err := s.moveFound(ctx, id, FoundClosed, FoundStored, storageLocation)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("found_item_id", id.String()).Str("actor", actor).Msg("found item reopened")
	s.foundStored(ctx, item)
	return item, nil
}

// moveFound applies one administrative transition under the item lock.
// from, when set, narrows the transition table further.
func (s *service) moveFound(ctx context.Context, id uuid.UUID, from, to FoundStatus, storageLocation string) (*FoundItem, error) {
	release, err := s.locks.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	var item *FoundItem
	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		repo := NewRepository(tx)
		var err error
		if item, err = repo.GetFound(ctx, id); err != nil {
			return err
		}
		if (from != "" && item.Status != from) || item.Status == to {
			return apperr.InvalidState("items.move_found", "cannot move found item %s from %s to %s", id, item.Status, to)
		}
		if err := item.Advance(to); err != nil {
			return err
		}
		if storageLocation != "" {
			item.StorageLocation = storageLocation
		}
		return repo.SaveFound(ctx, item, s.now())
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *service) GetFoundItem(ctx context.Context, id uuid.UUID) (*FoundItem, error) {
	return NewRepository(s.db).GetFound(ctx, id)
}

func (s *service) ListFoundItems(ctx context.Context, f FoundFilter, page pagination.Request) (pagination.Page[FoundItem], error) {
	return NewRepository(s.db).ListFound(ctx, f, page)
}

func (s *service) lostOpened(ctx context.Context, item *LostItem) {
	if s.observer == nil {
		return
	}
	if err := s.observer.LostItemOpened(ctx, item); err != nil {
		s.logger.Error().Err(err).Str("lost_item_id", item.ID.String()).Msg("failed to recompute matches for lost item")
	}
}

func (s *service) foundStored(ctx context.Context, item *FoundItem) {
	if s.observer == nil {
		return
	}
	if err := s.observer.FoundItemStored(ctx, item); err != nil {
		s.logger.Error().Err(err).Str("found_item_id", item.ID.String()).Msg("failed to recompute matches for found item")
	}
}
