// internal/matching/service.go
package matching

import (
	"context"
	"iter"

	"github.com/google/uuid"

	"lostfound/internal/items"
	"lostfound/internal/platform/pagination"
)

// Service defines the interface for the matching engine. It also observes
// item changes so that proposals follow new and edited reports.
type Service interface {
	items.Observer

	ComputeCandidates(ctx context.Context, lost *items.LostItem) iter.Seq2[Match, error]
	RecomputeForLost(ctx context.Context, lostID uuid.UUID) (int, error)
	RecomputeForFound(ctx context.Context, foundID uuid.UUID) (int, error)
	RecomputeAll(ctx context.Context) (int, error)

	Confirm(ctx context.Context, id uuid.UUID, actor string) error
	Dismiss(ctx context.Context, id uuid.UUID, actor string) error

	Get(ctx context.Context, id uuid.UUID) (*MatchDetail, error)
	List(ctx context.Context, f Filter, page pagination.Request) (pagination.Page[Match], error)
}
