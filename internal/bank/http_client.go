package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/shopspring/decimal"
)

// HTTPClient talks to the provider's JSON API. Credentials travel in the
// request body, per the provider contract.
type HTTPClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

func NewHTTPClient(baseURL, clientID, clientSecret string) *HTTPClient {
	return &HTTPClient{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   http.DefaultClient,
	}
}

type apiError struct {
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	RequestID    string `json:"request_id"`
}

type apiAccount struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	Mask      string `json:"mask"`
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	Balances  struct {
		Available       *float64 `json:"available"`
		IsoCurrencyCode string   `json:"iso_currency_code"`
	} `json:"balances"`
}

func (c *HTTPClient) ExchangePublicToken(ctx context.Context, publicToken string) (*ExchangeResult, error) {
	var out struct {
		AccessToken string `json:"access_token"`
		ItemID      string `json:"item_id"`
		RequestID   string `json:"request_id"`
	}
	err := c.post(ctx, "/item/public_token/exchange", map[string]any{
		"public_token": publicToken,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &ExchangeResult{
		AccessToken: out.AccessToken,
		ItemID:      out.ItemID,
		RequestID:   out.RequestID,
	}, nil
}

func (c *HTTPClient) GetAccounts(ctx context.Context, accessToken string) (*AccountsResult, error) {
	var out struct {
		Accounts []apiAccount `json:"accounts"`
		Item     struct {
			InstitutionID string `json:"institution_id"`
		} `json:"item"`
		RequestID string `json:"request_id"`
	}
	err := c.post(ctx, "/accounts/get", map[string]any{
		"access_token": accessToken,
	}, &out)
	if err != nil {
		return nil, err
	}

	result := &AccountsResult{
		InstitutionID: out.Item.InstitutionID,
		RequestID:     out.RequestID,
	}
	for _, acc := range out.Accounts {
		available := decimal.Zero
		if acc.Balances.Available != nil {
			available = decimal.NewFromFloat(*acc.Balances.Available)
		}
		result.Accounts = append(result.Accounts, Account{
			AccountID:        acc.AccountID,
			Name:             acc.Name,
			Mask:             acc.Mask,
			Type:             acc.Type,
			Subtype:          acc.Subtype,
			Currency:         acc.Balances.IsoCurrencyCode,
			AvailableBalance: available,
		})
	}
	return result, nil
}

func (c *HTTPClient) GetInstitution(ctx context.Context, institutionID string) (*Institution, error) {
	var out struct {
		Institution struct {
			InstitutionID string `json:"institution_id"`
			Name          string `json:"name"`
		} `json:"institution"`
	}
	err := c.post(ctx, "/institutions/get_by_id", map[string]any{
		"institution_id": institutionID,
		"country_codes":  []string{"US"},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &Institution{ID: out.Institution.InstitutionID, Name: out.Institution.Name}, nil
}

func (c *HTTPClient) CreateLinkToken(ctx context.Context, userID, webhookURL string) (*LinkTokenResult, error) {
	var out struct {
		LinkToken string `json:"link_token"`
		RequestID string `json:"request_id"`
	}
	err := c.post(ctx, "/link/token/create", map[string]any{
		"user":          map[string]string{"client_user_id": userID},
		"client_name":   "Vouch",
		"products":      []string{"assets"},
		"country_codes": []string{"US"},
		"language":      "en",
		"webhook":       webhookURL,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &LinkTokenResult{LinkToken: out.LinkToken, RequestID: out.RequestID}, nil
}

func (c *HTTPClient) CreateAssetReport(ctx context.Context, accessToken string, daysRequested int) (*AssetReportResult, error) {
	var out struct {
		AssetReportToken string `json:"asset_report_token"`
		RequestID        string `json:"request_id"`
	}
	err := c.post(ctx, "/asset_report/create", map[string]any{
		"access_tokens":  []string{accessToken},
		"days_requested": daysRequested,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &AssetReportResult{AssetReportToken: out.AssetReportToken, RequestID: out.RequestID}, nil
}

func (c *HTTPClient) GetAssetReport(ctx context.Context, assetReportToken string) (*AssetReportArtifact, error) {
	body, err := json.Marshal(map[string]any{
		"client_id":          c.clientID,
		"secret":             c.clientSecret,
		"asset_report_token": assetReportToken,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/asset_report/pdf/get", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call provider: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(raw, resp.StatusCode)
	}

	return &AssetReportArtifact{
		Body:      raw,
		RequestID: resp.Header.Get("Plaid-Request-Id"),
	}, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload map[string]any, out any) error {
	payload["client_id"] = c.clientID
	payload["secret"] = c.clientSecret

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call provider: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return decodeError(raw, resp.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(raw []byte, status int) error {
	var apiErr apiError
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.ErrorCode != "" {
		return &Error{
			Code:      apiErr.ErrorCode,
			Message:   apiErr.ErrorMessage,
			RequestID: apiErr.RequestID,
		}
	}
	return &Error{
		Code:    CodeInternalServerError,
		Message: fmt.Sprintf("unexpected status %d", status),
	}
}
