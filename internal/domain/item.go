package domain

import "time"

// LinkedItem is one authorized connection to a financial institution.
// The credential authorizing queries against the provider is stored only
// in sealed form and is never exposed through any API response.
type LinkedItem struct {
	ID               string
	ItemID           string // provider-side item id, globally unique
	SealedCredential string
	UserID           string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Account is one bank account discovered under a LinkedItem. Rows are
// inserted once by the linking reconciler and never overwritten.
type Account struct {
	ID              string
	AccountID       string // provider-side account id, globally unique
	ItemRef         string // LinkedItem.ID
	Name            string
	Mask            string
	Type            string
	Subtype         string
	Currency        string
	InstitutionName string
	CreatedAt       time.Time
}
