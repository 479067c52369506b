package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"vouch/internal/domain"
	"vouch/internal/repository"
)

const createAccountsTable = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL UNIQUE,
	item_ref TEXT NOT NULL REFERENCES items(id),
	name TEXT NOT NULL DEFAULT '',
	mask TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL DEFAULT '',
	subtype TEXT NOT NULL DEFAULT '',
	currency TEXT NOT NULL DEFAULT '',
	institution_name TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);
`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) repository.AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createAccountsTable); err != nil {
		return fmt.Errorf("create accounts table: %w", err)
	}
	return nil
}

// InsertIgnore set-inserts by provider account id. An existing row is left
// untouched regardless of how the new snapshot differs.
func (r *AccountRepository) InsertIgnore(ctx context.Context, account *domain.Account) (bool, error) {
	now := time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
INSERT INTO accounts (id, account_id, item_ref, name, mask, type, subtype, currency, institution_name, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(account_id) DO NOTHING`,
		account.ID,
		account.AccountID,
		account.ItemRef,
		account.Name,
		account.Mask,
		account.Type,
		account.Subtype,
		account.Currency,
		account.InstitutionName,
		now,
	)
	if err != nil {
		return false, fmt.Errorf("insert account: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("account rows affected: %w", err)
	}
	if n == 1 {
		account.CreatedAt = now
	}
	return n == 1, nil
}

func (r *AccountRepository) ListByItem(ctx context.Context, itemRef string) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, account_id, item_ref, name, mask, type, subtype, currency, institution_name, created_at
FROM accounts
WHERE item_ref = ?
ORDER BY created_at`,
		itemRef,
	)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var acc domain.Account
		if err := rows.Scan(
			&acc.ID,
			&acc.AccountID,
			&acc.ItemRef,
			&acc.Name,
			&acc.Mask,
			&acc.Type,
			&acc.Subtype,
			&acc.Currency,
			&acc.InstitutionName,
			&acc.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}
