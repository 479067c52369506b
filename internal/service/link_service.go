package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"vouch/internal/bank"
	"vouch/internal/domain"
	"vouch/internal/repository"
	"vouch/internal/vault"
)

// Webhook event discriminators recognized from the provider. Everything else
// is acknowledged and ignored.
const (
	WebhookTypeLink         = "LINK"
	WebhookTypeTransactions = "TRANSACTIONS"

	WebhookCodeItemAddResult    = "ITEM_ADD_RESULT"
	WebhookCodeSessionFinished  = "SESSION_FINISHED"
	WebhookCodeInitialUpdate    = "INITIAL_UPDATE"
	WebhookCodeHistoricalUpdate = "HISTORICAL_UPDATE"

	webhookStatusSuccess = "success"
)

// WebhookEvent is the provider's webhook body, discriminated by type+code.
type WebhookEvent struct {
	Type         string   `json:"webhook_type"`
	Code         string   `json:"webhook_code"`
	Status       string   `json:"status"`
	ItemID       string   `json:"item_id"`
	PublicToken  string   `json:"public_token"`
	PublicTokens []string `json:"public_tokens"`
}

// Notifier pushes best-effort live events to a user's channel.
type Notifier interface {
	ItemAdded(ctx context.Context, userID string) error
}

// ItemSummary is a linked item plus its resolved institution and the
// accounts discovered so far, for listing.
type ItemSummary struct {
	ItemID          string
	InstitutionName string
	LinkedAt        time.Time
	Accounts        []domain.Account
}

// LinkService is the webhook-driven reconciler converting asynchronous
// provider events into durable linked-item and account state.
type LinkService interface {
	HandleWebhook(ctx context.Context, userID string, event WebhookEvent)
	SyncAccounts(ctx context.Context, itemID string) error
	CreateLinkToken(ctx context.Context, userID string) (*bank.LinkTokenResult, error)
	ListItems(ctx context.Context, userID string) ([]ItemSummary, error)
}

type linkService struct {
	items      repository.ItemRepository
	accounts   repository.AccountRepository
	vault      *vault.Vault
	provider   bank.Client
	notifier   Notifier
	webhookURL string
	logger     *logrus.Logger
}

func NewLinkService(
	items repository.ItemRepository,
	accounts repository.AccountRepository,
	v *vault.Vault,
	provider bank.Client,
	notifier Notifier,
	webhookURL string,
	logger *logrus.Logger,
) LinkService {
	return &linkService{
		items:      items,
		accounts:   accounts,
		vault:      v,
		provider:   provider,
		notifier:   notifier,
		webhookURL: webhookURL,
		logger:     logger,
	}
}

// HandleWebhook consumes one at-least-once delivery. Failures are logged and
// the event dropped; the caller always acknowledges regardless, so the
// provider never retry-storms us.
func (s *linkService) HandleWebhook(ctx context.Context, userID string, event WebhookEvent) {
	switch {
	case event.Type == WebhookTypeLink && event.Code == WebhookCodeItemAddResult:
		s.linkItem(ctx, userID, event.PublicToken)
	case event.Type == WebhookTypeLink && event.Code == WebhookCodeSessionFinished:
		if strings.EqualFold(event.Status, webhookStatusSuccess) && len(event.PublicTokens) > 0 {
			s.linkItem(ctx, userID, event.PublicTokens[0])
		}
	case event.Type == WebhookTypeTransactions &&
		(event.Code == WebhookCodeInitialUpdate || event.Code == WebhookCodeHistoricalUpdate):
		if err := s.SyncAccounts(ctx, event.ItemID); err != nil {
			s.logger.Warnf("sync accounts for item %s: %v", event.ItemID, err)
		}
	default:
		s.logger.Debugf("ignoring webhook %s/%s", event.Type, event.Code)
	}
}

func (s *linkService) linkItem(ctx context.Context, userID, publicToken string) {
	if publicToken == "" {
		s.logger.Warn("link webhook without a public token, dropping")
		return
	}

	exchange, err := s.provider.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		// No retry queue is modeled; a failed exchange drops the event.
		s.logger.Errorf("exchange public token: %v", err)
		return
	}

	sealed, err := s.vault.Seal(exchange.AccessToken)
	if err != nil {
		s.logger.Errorf("seal credential for item %s: %v", exchange.ItemID, err)
		return
	}

	item := &domain.LinkedItem{
		ID:               uuid.NewString(),
		ItemID:           exchange.ItemID,
		SealedCredential: sealed,
		UserID:           userID,
	}
	created, err := s.items.Upsert(ctx, item)
	if err != nil {
		// Credential fetched but not stored; acknowledged gap, the user
		// relinks to recover.
		s.logger.Errorf("persist item %s: %v", exchange.ItemID, err)
		return
	}

	if created {
		s.logger.Infof("linked new item %s for user %s", exchange.ItemID, userID)
		if err := s.notifier.ItemAdded(ctx, userID); err != nil {
			s.logger.Warnf("notify user %s: %v", userID, err)
		}
	} else {
		s.logger.Infof("rotated credential for item %s", exchange.ItemID)
	}
}

// SyncAccounts fetches the provider's account list for a known item and
// set-inserts rows keyed by the provider account id. Existing rows are never
// overwritten.
func (s *linkService) SyncAccounts(ctx context.Context, itemID string) error {
	item, err := s.items.GetByItemID(ctx, itemID)
	if err != nil {
		return err
	}

	accessToken, err := s.vault.Open(item.SealedCredential)
	if err != nil {
		return err
	}

	result, err := s.provider.GetAccounts(ctx, accessToken)
	if err != nil {
		return err
	}

	institution := s.resolveInstitution(ctx, result.InstitutionID)

	for _, acc := range result.Accounts {
		inserted, err := s.accounts.InsertIgnore(ctx, &domain.Account{
			ID:              uuid.NewString(),
			AccountID:       acc.AccountID,
			ItemRef:         item.ID,
			Name:            acc.Name,
			Mask:            acc.Mask,
			Type:            acc.Type,
			Subtype:         acc.Subtype,
			Currency:        acc.Currency,
			InstitutionName: institution,
		})
		if err != nil {
			return err
		}
		if inserted {
			s.logger.Infof("discovered account %s under item %s", acc.AccountID, itemID)
		}
	}
	return nil
}

func (s *linkService) CreateLinkToken(ctx context.Context, userID string) (*bank.LinkTokenResult, error) {
	return s.provider.CreateLinkToken(ctx, userID, s.webhookURL)
}

// ListItems returns each linked item with its resolved institution name.
// Per-item provider failures degrade to a placeholder instead of failing
// the listing.
func (s *linkService) ListItems(ctx context.Context, userID string) ([]ItemSummary, error) {
	items, err := s.items.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]ItemSummary, 0, len(items))
	for _, item := range items {
		summary := ItemSummary{
			ItemID:          item.ItemID,
			InstitutionName: unknownBankName,
			LinkedAt:        item.CreatedAt,
		}

		if accessToken, err := s.vault.Open(item.SealedCredential); err != nil {
			s.logger.Warnf("open credential for item %s: %v", item.ItemID, err)
		} else if result, err := s.provider.GetAccounts(ctx, accessToken); err != nil {
			s.logger.Warnf("fetch accounts for item %s: %v", item.ItemID, err)
		} else {
			summary.InstitutionName = s.resolveInstitution(ctx, result.InstitutionID)
		}

		if accounts, err := s.accounts.ListByItem(ctx, item.ID); err != nil {
			s.logger.Warnf("list accounts for item %s: %v", item.ItemID, err)
		} else {
			summary.Accounts = accounts
		}

		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *linkService) resolveInstitution(ctx context.Context, institutionID string) string {
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
