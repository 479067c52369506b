package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vouch/internal/domain"
	"vouch/internal/repository"
)

const createItemsTable = `
CREATE TABLE IF NOT EXISTS items (
	id TEXT PRIMARY KEY,
	item_id TEXT NOT NULL UNIQUE,
	sealed_credential TEXT NOT NULL,
	user_id TEXT NOT NULL REFERENCES users(id),
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

type ItemRepository struct {
	db *sql.DB
}

func NewItemRepository(db *sql.DB) repository.ItemRepository {
	return &ItemRepository{db: db}
}

func (r *ItemRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createItemsTable); err != nil {
		return fmt.Errorf("create items table: %w", err)
	}
	return nil
}

// Upsert inserts a row keyed by the provider item id, or rotates the sealed
// credential when the row already exists. A racing duplicate insert loses the
// unique-constraint race and falls through to the update, so N deliveries of
// the same event converge on exactly one row.
func (r *ItemRepository) Upsert(ctx context.Context, item *domain.LinkedItem) (bool, error) {
	now := time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
INSERT INTO items (id, item_id, sealed_credential, user_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(item_id) DO NOTHING`,
		item.ID,
		item.ItemID,
		item.SealedCredential,
		item.UserID,
		now,
		now,
	)
	if err != nil {
		return false, fmt.Errorf("insert item: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 1 {
		item.CreatedAt = now
		item.UpdatedAt = now
		return true, nil
	}

	if _, err := r.db.ExecContext(ctx, `
UPDATE items SET sealed_credential = ?, updated_at = ? WHERE item_id = ?`,
		item.SealedCredential,
		now,
		item.ItemID,
	); err != nil {
		return false, fmt.Errorf("update item credential: %w", err)
	}

	existing, err := r.GetByItemID(ctx, item.ItemID)
	if err != nil {
		return false, err
	}
	*item = *existing
	return false, nil
}

func (r *ItemRepository) GetByID(ctx context.Context, id string) (*domain.LinkedItem, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, item_id, sealed_credential, user_id, created_at, updated_at
FROM items
WHERE id = ?`,
		id,
	)
	return scanItem(row)
}

func (r *ItemRepository) GetByItemID(ctx context.Context, itemID string) (*domain.LinkedItem, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, item_id, sealed_credential, user_id, created_at, updated_at
FROM items
WHERE item_id = ?`,
		itemID,
	)
	return scanItem(row)
}

func (r *ItemRepository) ListByUser(ctx context.Context, userID string) ([]domain.LinkedItem, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, item_id, sealed_credential, user_id, created_at, updated_at
FROM items
WHERE user_id = ?
ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []domain.LinkedItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func scanItem(row interface {
	Scan(dest ...any) error
}) (*domain.LinkedItem, error) {
	var item domain.LinkedItem
	if err := row.Scan(
		&item.ID,
		&item.ItemID,
		&item.SealedCredential,
		&item.UserID,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("item: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("scan item: %w", err)
	}
	return &item, nil
}
