package bank

import (
	"context"

	"github.com/shopspring/decimal"
)

// AccountTypeDepository is the account class whose available balances count
// toward whole-user aggregation.
const AccountTypeDepository = "depository"

// Account is one bank account as reported by the data provider.
type Account struct {
	AccountID        string
	Name             string
	Mask             string
	Type             string
	Subtype          string
	Currency         string
	AvailableBalance decimal.Decimal
}

// ExchangeResult is the outcome of trading a one-time public token for a
// long-lived access credential.
type ExchangeResult struct {
	AccessToken string
	ItemID      string
	RequestID   string
}

// AccountsResult carries the account list for one linked item.
type AccountsResult struct {
	Accounts      []Account
	InstitutionID string
	RequestID     string
}

// Institution describes a financial institution.
type Institution struct {
	ID   string
	Name string
}

// LinkTokenResult carries a short-lived token used to start a link session.
type LinkTokenResult struct {
	LinkToken string
	RequestID string
}

// AssetReportResult identifies an asynchronous long-form report job.
type AssetReportResult struct {
	AssetReportToken string
	RequestID        string
}

// AssetReportArtifact is the finished long-form report document.
type AssetReportArtifact struct {
	Body      []byte
	RequestID string
}

// Client is the contract with the external financial-data provider. The
// provider itself is a black box; implementations only honor this surface.
type Client interface {
	ExchangePublicToken(ctx context.Context, publicToken string) (*ExchangeResult, error)
	GetAccounts(ctx context.Context, accessToken string) (*AccountsResult, error)
	GetInstitution(ctx context.Context, institutionID string) (*Institution, error)
	CreateLinkToken(ctx context.Context, userID, webhookURL string) (*LinkTokenResult, error)
	CreateAssetReport(ctx context.Context, accessToken string, daysRequested int) (*AssetReportResult, error)
	GetAssetReport(ctx context.Context, assetReportToken string) (*AssetReportArtifact, error)
}
