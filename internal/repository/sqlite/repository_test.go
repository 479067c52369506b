package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vouch/internal/domain"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "vouch-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, NewUserRepository(db).Init(ctx))
	require.NoError(t, NewItemRepository(db).Init(ctx))
	require.NoError(t, NewAccountRepository(db).Init(ctx))
	require.NoError(t, NewReportRepository(db).Init(ctx))
	return db
}

func seedUser(t *testing.T, db *sql.DB, roles ...string) *domain.User {
	t.Helper()
	if len(roles) == 0 {
		roles = []string{domain.RoleUser}
	}
	user := &domain.User{
		ID:    uuid.NewString(),
		Email: uuid.NewString() + "@example.com",
		Name:  "Test User",
		Roles: roles,
	}
	require.NoError(t, NewUserRepository(db).Create(context.Background(), user))
	return user
}

func seedItem(t *testing.T, db *sql.DB, userID string) *domain.LinkedItem {
	t.Helper()
	item := &domain.LinkedItem{
		ID:               uuid.NewString(),
		ItemID:           "item-" + uuid.NewString(),
		SealedCredential: "aa:bb:cc",
		UserID:           userID,
	}
	created, err := NewItemRepository(db).Upsert(context.Background(), item)
	require.NoError(t, err)
	require.True(t, created)
	return item
}

func TestUserRepository(t *testing.T) {
	db := openTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        "jane@example.com",
		Name:         "Jane Doe",
		PasswordHash: "$2a$10$hash",
		Roles:        []string{domain.RoleUser, domain.RoleAdmin},
	}
	require.NoError(t, repo.Create(ctx, user))

	dup := &domain.User{ID: uuid.NewString(), Email: "jane@example.com"}
	assert.ErrorIs(t, repo.Create(ctx, dup), domain.ErrConflict, "duplicate email must be rejected")

	got, err := repo.GetByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, []string{domain.RoleUser, domain.RoleAdmin}, got.Roles)
	assert.True(t, got.IsAdmin())

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestItemUpsertConverges(t *testing.T) {
	db := openTestDB(t)
	repo := NewItemRepository(db)
	ctx := context.Background()
	user := seedUser(t, db)

	first := &domain.LinkedItem{
		ID:               uuid.NewString(),
		ItemID:           "item-abc",
		SealedCredential: "11:22:33",
		UserID:           user.ID,
	}
	created, err := repo.Upsert(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)

	// Duplicate delivery with a rotated credential updates in place.
	second := &domain.LinkedItem{
		ID:               uuid.NewString(),
		ItemID:           "item-abc",
		SealedCredential: "44:55:66",
		UserID:           user.ID,
	}
	created, err = repo.Upsert(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID, "upsert must keep the original row id")

	items, err := repo.ListByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, items, 1, "duplicate deliveries must converge on one row")
	assert.Equal(t, "44:55:66", items[0].SealedCredential)
	assert.Equal(t, user.ID, items[0].UserID)
}

func TestItemLookups(t *testing.T) {
	db := openTestDB(t)
	repo := NewItemRepository(db)
	ctx := context.Background()
	user := seedUser(t, db)
	item := seedItem(t, db, user.ID)

	byID, err := repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ItemID, byID.ItemID)

	byItemID, err := repo.GetByItemID(ctx, item.ItemID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, byItemID.ID)

	_, err = repo.GetByItemID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAccountInsertIgnore(t *testing.T) {
	db := openTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()
	user := seedUser(t, db)
	item := seedItem(t, db, user.ID)

	account := &domain.Account{
		ID:              uuid.NewString(),
		AccountID:       "acc-1",
		ItemRef:         item.ID,
		Name:            "Checking",
		Mask:            "0000",
		Type:            "depository",
		Subtype:         "checking",
		Currency:        "USD",
		InstitutionName: "First Bank",
	}
	inserted, err := repo.InsertIgnore(ctx, account)
	require.NoError(t, err)
	assert.True(t, inserted)

	// Re-delivery with a different snapshot never overwrites.
	replay := &domain.Account{
		ID:        uuid.NewString(),
		AccountID: "acc-1",
		ItemRef:   item.ID,
		Name:      "Renamed",
	}
	inserted, err = repo.InsertIgnore(ctx, replay)
	require.NoError(t, err)
	assert.False(t, inserted)

	accounts, err := repo.ListByItem(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "Checking", accounts[0].Name)
}

func TestReportCreateAndGet(t *testing.T) {
	db := openTestDB(t)
	repo := NewReportRepository(db)
	ctx := context.Background()
	user := seedUser(t, db)
	item := seedItem(t, db, user.ID)

	report := &domain.Report{
		ID:              uuid.NewString(),
		UserID:          user.ID,
		RequestedAmount: decimal.RequireFromString("500.00"),
		Sufficient:      true,
		RequestIDs:      []string{"req-1", "req-2"},
		BankNames:       []string{"First Bank"},
		ItemRef:         item.ID,
		RequesterName:   "Jane Doe",
		AccountLabel:    "Checking",
		Purpose:         "visa application",
	}
	require.NoError(t, repo.Create(ctx, report))

	got, err := repo.GetByID(ctx, report.ID)
	require.NoError(t, err)
	assert.True(t, got.RequestedAmount.Equal(decimal.RequireFromString("500.00")))
	assert.True(t, got.Sufficient)
	assert.Equal(t, []string{"req-1", "req-2"}, got.RequestIDs)
	assert.Equal(t, []string{"First Bank"}, got.BankNames)
	assert.Equal(t, "visa application", got.Purpose)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReportPagination(t *testing.T) {
	db := openTestDB(t)
	repo := NewReportRepository(db)
	ctx := context.Background()

	owner := seedUser(t, db)
	other := seedUser(t, db)
	ownerItem := seedItem(t, db, owner.ID)
	otherItem := seedItem(t, db, other.ID)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &domain.Report{
			ID:              uuid.NewString(),
			UserID:          owner.ID,
			RequestedAmount: decimal.NewFromInt(100),
			ItemRef:         ownerItem.ID,
		}))
	}
	require.NoError(t, repo.Create(ctx, &domain.Report{
		ID:              uuid.NewString(),
		UserID:          other.ID,
		RequestedAmount: decimal.NewFromInt(100),
		ItemRef:         otherItem.ID,
	}))

	all, total, err := repo.List(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, all, 4)

	page, total, err := repo.List(ctx, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, page, 1)

	own, total, err := repo.ListByUser(ctx, owner.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, own, 3)
}
