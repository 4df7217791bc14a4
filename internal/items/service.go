// internal/items/service.go
package items

import (
	"context"

	"github.com/google/uuid"

	"lostfound/internal/platform/pagination"
)

// Service defines the interface for the item store.
type Service interface {
	CreateLostItem(ctx context.Context, owner string, in NewLostItem) (*LostItem, error)
	UpdateLostItem(ctx context.Context, id uuid.UUID, actor string, patch LostItemPatch) (*LostItem, error)
	CloseLostItem(ctx context.Context, id uuid.UUID, actor string) (*LostItem, error)
	GetLostItem(ctx context.Context, id uuid.UUID) (*LostItem, error)
	ListLostItems(ctx context.Context, f LostFilter, page pagination.Request) (pagination.Page[LostItem], error)

	CreateFoundItem(ctx context.Context, reporter string, in NewFoundItem) (*FoundItem, error)
	StoreFoundItem(ctx context.Context, id uuid.UUID, actor, storageLocation string) (*FoundItem, error)
	CloseFoundItem(ctx context.Context, id uuid.UUID, actor string) (*FoundItem, error)
	ReopenFoundItem(ctx context.Context, id uuid.UUID, actor, storageLocation string) (*FoundItem, error)
	GetFoundItem(ctx context.Context, id uuid.UUID) (*FoundItem, error)
	ListFoundItems(ctx context.Context, f FoundFilter, page pagination.Request) (pagination.Page[FoundItem], error)
}

// Observer is told about item changes that can produce new matches. It is
// called after the change commits; its errors are logged, never returned.
type Observer interface {
	LostItemOpened(ctx context.Context, item *LostItem) error
	FoundItemStored(ctx context.Context, item *FoundItem) error
}
