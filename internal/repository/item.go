package repository

import (
	"context"

	"vouch/internal/domain"
)

// ItemRepository defines persistence operations for LinkedItem entities.
// Upsert is keyed by the provider-side item id: it inserts when absent and
// rotates only the sealed credential when present. The unique-key constraint
// is what resolves races between duplicate webhook deliveries.
type ItemRepository interface {
	Init(ctx context.Context) error
	Upsert(ctx context.Context, item *domain.LinkedItem) (created bool, err error)
	GetByID(ctx context.Context, id string) (*domain.LinkedItem, error)
	GetByItemID(ctx context.Context, itemID string) (*domain.LinkedItem, error)
	ListByUser(ctx context.Context, userID string) ([]domain.LinkedItem, error)
}

// AccountRepository defines persistence operations for Account entities.
// InsertIgnore set-inserts by provider-side account id; existing rows are
// left untouched, never overwritten.
type AccountRepository interface {
	Init(ctx context.Context) error
	InsertIgnore(ctx context.Context, account *domain.Account) (inserted bool, err error)
	ListByItem(ctx context.Context, itemRef string) ([]domain.Account, error)
}
