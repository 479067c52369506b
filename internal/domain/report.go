package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Report is an immutable point-in-time sufficiency determination. There is
// no update or delete path anywhere in the system.
type Report struct {
	ID               string
	UserID           string // requesting user, owns the report
	RequestedAmount  decimal.Decimal
	Sufficient       bool
	RequestIDs       []string
	BankNames        []string
	ItemRef          string // LinkedItem.ID when item-targeted, empty for whole-user scope
	AccountID        string // optional provider-side account id when account-targeted
	RequesterName    string
	AccountLabel     string
	Purpose          string
	ArtifactLocation string // optional object-storage URL of the long-form artifact
	CreatedAt        time.Time
}
