package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"vouch/internal/bank"
	"vouch/internal/domain"
	"vouch/internal/repository"
	"vouch/internal/vault"
)

// unknownBankName substitutes for an institution we could not resolve.
const unknownBankName = "Unknown Bank"

// defaultCurrency used when the provider reports none.
const defaultCurrency = "USD"

// AccountDetail is a live snapshot of one provider account.
type AccountDetail struct {
	AccountID string
	Name      string
	Mask      string
	Type      string
	Subtype   string
	BankName  string
	Available decimal.Decimal
}

// Aggregate is the result of summing available balances over a scope.
type Aggregate struct {
	TotalAvailable decimal.Decimal
	Currency       string
	RequestIDs     []string
	BankNames      []string
	Accounts       []AccountDetail
}

// BalanceService fetches and sums balances across linked items.
type BalanceService interface {
	// AggregateUser sums depository-class available balances across all of
	// the user's items. A failure on one item is contained: it contributes
	// zero and the rest still produce a usable aggregate.
	AggregateUser(ctx context.Context, userID string) (*Aggregate, error)
	// AggregateItem covers a single item, optionally narrowed to one
	// account. Provider failure here aborts, surfaced as an upstream error.
	AggregateItem(ctx context.Context, item *domain.LinkedItem, accountID string) (*Aggregate, error)
}

type balanceService struct {
	items    repository.ItemRepository
	vault    *vault.Vault
	provider bank.Client
	logger   *logrus.Logger
}

func NewBalanceService(
	items repository.ItemRepository,
	v *vault.Vault,
	provider bank.Client,
	logger *logrus.Logger,
) BalanceService {
	return &balanceService{
		items:    items,
		vault:    v,
		provider: provider,
		logger:   logger,
	}
}

func (s *balanceService) AggregateUser(ctx context.Context, userID string) (*Aggregate, error) {
	items, err := s.items.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	agg := newAggregate()
	// One provider call per item, sequential: per-request outbound
	// concurrency stays bounded, latency scales with item count.
	for i := range items {
		if err := s.addItem(ctx, agg, &items[i], "", true); err != nil {
			s.logger.Warnf("aggregate item %s: %v", items[i].ItemID, err)
			continue
		}
	}
	return agg, nil
}

func (s *balanceService) AggregateItem(ctx context.Context, item *domain.LinkedItem, accountID string) (*Aggregate, error) {
	agg := newAggregate()
	if err := s.addItem(ctx, agg, item, accountID, true); err != nil {
		return nil, err
	}
	return agg, nil
}

// addItem opens the item's credential, pulls its accounts and folds them into
// agg. depositoryOnly restricts the sum to depository-class accounts (the
// whole-user rule); with an accountID only that account counts.
func (s *balanceService) addItem(ctx context.Context, agg *Aggregate, item *domain.LinkedItem, accountID string, depositoryOnly bool) error {
	accessToken, err := s.vault.Open(item.SealedCredential)
	if err != nil {
		return err
	}

	result, err := s.provider.GetAccounts(ctx, accessToken)
	if err != nil {
		return fmt.Errorf("fetch accounts: %w", err)
	}
	agg.RequestIDs = append(agg.RequestIDs, result.RequestID)

	bankName := s.resolveBankName(ctx, result.InstitutionID)
	agg.addBankName(bankName)

	matched := false
	for _, acc := range result.Accounts {
		detail := AccountDetail{
			AccountID: acc.AccountID,
			Name:      acc.Name,
			Mask:      acc.Mask,
			Type:      acc.Type,
			Subtype:   acc.Subtype,
			BankName:  bankName,
			Available: acc.AvailableBalance,
		}
		agg.Accounts = append(agg.Accounts, detail)
		if agg.Currency == "" && acc.Currency != "" {
			agg.Currency = acc.Currency
		}

		switch {
		case accountID != "":
			if acc.AccountID == accountID {
				agg.TotalAvailable = agg.TotalAvailable.Add(acc.AvailableBalance)
				matched = true
			}
		case !depositoryOnly || acc.Type == bank.AccountTypeDepository:
			agg.TotalAvailable = agg.TotalAvailable.Add(acc.AvailableBalance)
		}
	}

	if accountID != "" && !matched {
		return fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
	}
	return nil
}

func (s *balanceService) resolveBankName(ctx context.Context, institutionID string) string {
	if institutionID == "" {
		return unknownBankName
	}
	institution, err := s.provider.GetInstitution(ctx, institutionID)
	if err != nil {
		s.logger.Warnf("resolve institution %s: %v", institutionID, err)
		return unknownBankName
	}
	return institution.Name
}

func newAggregate() *Aggregate {
	return &Aggregate{TotalAvailable: decimal.Zero}
}

func (a *Aggregate) addBankName(name string) {
	for _, existing := range a.BankNames {
		if existing == name {
			return
		}
	}
	a.BankNames = append(a.BankNames, name)
}

// CurrencyOrDefault returns the aggregate's currency, falling back to USD.
func (a *Aggregate) CurrencyOrDefault() string {
	if a.Currency == "" {
		return defaultCurrency
	}
	return a.Currency
}
