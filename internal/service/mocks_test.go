package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"vouch/internal/bank"
	"vouch/internal/domain"
)

// In-memory fakes for the repository and provider interfaces.

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newFakeUserRepo(users ...*domain.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[string]*domain.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) Init(ctx context.Context) error { return nil }

func (r *fakeUserRepo) Create(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return fmt.Errorf("user %s: %w", user.Email, domain.ErrConflict)
		}
	}
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

type fakeItemRepo struct {
	mu    sync.Mutex
	items map[string]*domain.LinkedItem // keyed by external item id
}

func newFakeItemRepo(items ...*domain.LinkedItem) *fakeItemRepo {
	r := &fakeItemRepo{items: make(map[string]*domain.LinkedItem)}
	for _, it := range items {
		r.items[it.ItemID] = it
	}
	return r
}

func (r *fakeItemRepo) Init(ctx context.Context) error { return nil }

func (r *fakeItemRepo) Upsert(ctx context.Context, item *domain.LinkedItem) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.items[item.ItemID]; ok {
		existing.SealedCredential = item.SealedCredential
		existing.UpdatedAt = time.Now()
		*item = *existing
		return false, nil
	}
	item.CreatedAt = time.Now()
	item.UpdatedAt = item.CreatedAt
	clone := *item
	r.items[item.ItemID] = &clone
	return true, nil
}

func (r *fakeItemRepo) GetByID(ctx context.Context, id string) (*domain.LinkedItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items {
		if it.ID == id {
			return it, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeItemRepo) GetByItemID(ctx context.Context, itemID string) (*domain.LinkedItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if it, ok := r.items[itemID]; ok {
		return it, nil
	}
	return nil, domain.ErrNotFound
}

func (r *fakeItemRepo) ListByUser(ctx context.Context, userID string) ([]domain.LinkedItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.LinkedItem
	for _, it := range r.items {
		if it.UserID == userID {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account // keyed by external account id
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[string]*domain.Account)}
}

func (r *fakeAccountRepo) Init(ctx context.Context) error { return nil }

func (r *fakeAccountRepo) InsertIgnore(ctx context.Context, account *domain.Account) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[account.AccountID]; ok {
		return false, nil
	}
	clone := *account
	r.accounts[account.AccountID] = &clone
	return true, nil
}

func (r *fakeAccountRepo) ListByItem(ctx context.Context, itemRef string) ([]domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Account
	for _, acc := range r.accounts {
		if acc.ItemRef == itemRef {
			out = append(out, *acc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

type fakeReportRepo struct {
	mu      sync.Mutex
	reports []domain.Report
}

func (r *fakeReportRepo) Init(ctx context.Context) error { return nil }

func (r *fakeReportRepo) Create(ctx context.Context, report *domain.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	report.CreatedAt = time.Now()
	r.reports = append(r.reports, *report)
	return nil
}

func (r *fakeReportRepo) GetByID(ctx context.Context, id string) (*domain.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.reports {
		if r.reports[i].ID == id {
			return &r.reports[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeReportRepo) List(ctx context.Context, page, pageSize int) ([]domain.Report, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return paginate(r.reports, page, pageSize), len(r.reports), nil
}

func (r *fakeReportRepo) ListByUser(ctx context.Context, userID string, page, pageSize int) ([]domain.Report, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var own []domain.Report
	for _, rep := range r.reports {
		if rep.UserID == userID {
			own = append(own, rep)
		}
	}
	return paginate(own, page, pageSize), len(own), nil
}

func paginate(reports []domain.Report, page, pageSize int) []domain.Report {
	start := (page - 1) * pageSize
	if start >= len(reports) {
		return nil
	}
	end := start + pageSize
	if end > len(reports) {
		end = len(reports)
	}
	return reports[start:end]
}

// fakeBank scripts provider responses per access token.
type fakeBank struct {
	mu sync.Mutex

	exchangeResults map[string]*bank.ExchangeResult // by public token
	exchangeErr     error
	accountsResults map[string]*bank.AccountsResult // by access token
	accountsErr     map[string]error                // by access token
	institutions    map[string]*bank.Institution
	institutionErr  error

	assetToken     string
	assetBody      []byte
	notReadyPolls  int // polls returning PRODUCT_NOT_READY before success
	assetCreateErr error

	exchangeCalls int
	accountCalls  int
	assetPolls    int
}

func newFakeBank() *fakeBank {
	return &fakeBank{
		exchangeResults: make(map[string]*bank.ExchangeResult),
		accountsResults: make(map[string]*bank.AccountsResult),
		accountsErr:     make(map[string]error),
		institutions:    make(map[string]*bank.Institution),
	}
}

func (b *fakeBank) ExchangePublicToken(ctx context.Context, publicToken string) (*bank.ExchangeResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exchangeCalls++
	if b.exchangeErr != nil {
		return nil, b.exchangeErr
	}
	if res, ok := b.exchangeResults[publicToken]; ok {
		return res, nil
	}
	return nil, &bank.Error{Code: bank.CodeInvalidPublicToken, Message: "unknown public token"}
}

func (b *fakeBank) GetAccounts(ctx context.Context, accessToken string) (*bank.AccountsResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accountCalls++
	if err, ok := b.accountsErr[accessToken]; ok && err != nil {
		return nil, err
	}
	if res, ok := b.accountsResults[accessToken]; ok {
		return res, nil
	}
	return nil, &bank.Error{Code: bank.CodeItemLoginRequired, Message: "unknown access token"}
}

func (b *fakeBank) GetInstitution(ctx context.Context, institutionID string) (*bank.Institution, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.institutionErr != nil {
		return nil, b.institutionErr
	}
	if inst, ok := b.institutions[institutionID]; ok {
		return inst, nil
	}
	return nil, &bank.Error{Code: bank.CodeInstitutionNotFound, Message: "unknown institution"}
}

func (b *fakeBank) CreateLinkToken(ctx context.Context, userID, webhookURL string) (*bank.LinkTokenResult, error) {
	return &bank.LinkTokenResult{LinkToken: "link-" + userID, RequestID: "req-link"}, nil
}

func (b *fakeBank) CreateAssetReport(ctx context.Context, accessToken string, daysRequested int) (*bank.AssetReportResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.assetCreateErr != nil {
		return nil, b.assetCreateErr
	}
	return &bank.AssetReportResult{AssetReportToken: b.assetToken, RequestID: "req-asset"}, nil
}

func (b *fakeBank) GetAssetReport(ctx context.Context, assetReportToken string) (*bank.AssetReportArtifact, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.assetPolls++
	if b.assetPolls <= b.notReadyPolls {
		return nil, &bank.Error{Code: bank.CodeProductNotReady, Message: "not ready"}
	}
	return &bank.AssetReportArtifact{Body: b.assetBody, RequestID: "req-pdf"}, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (n *fakeNotifier) ItemAdded(ctx context.Context, userID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, userID)
	return n.err
}

type fakeArtifactStore struct {
	mu       sync.Mutex
	uploaded map[string][]byte
	err      error
}

func newFakeArtifactStore() *fakeArtifactStore {
	return &fakeArtifactStore{uploaded: make(map[string][]byte)}
}

func (s *fakeArtifactStore) UploadArtifact(ctx context.Context, key string, body []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.uploaded[key] = body
	return "s3://test-bucket/" + key, nil
}

func (s *fakeArtifactStore) GetObjectURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	return "https://example.com/" + key, nil
}
