package bank

import (
	"errors"
	"fmt"
)

// Provider error codes we react to. Anything else maps to a generic message.
const (
	CodeItemLoginRequired    = "ITEM_LOGIN_REQUIRED"
	CodeProductsNotSupported = "PRODUCTS_NOT_SUPPORTED"
	CodeAssetsNotEnabled     = "ASSETS_PRODUCT_NOT_ENABLED"
	CodeProductNotReady      = "PRODUCT_NOT_READY"
	CodeInvalidPublicToken   = "INVALID_PUBLIC_TOKEN"
	CodeInstitutionNotFound  = "INSTITUTION_NOT_FOUND"
	CodeInternalServerError  = "INTERNAL_SERVER_ERROR"
	genericDisplayMessage    = "The bank data provider returned an error. Please try again later."
)

var displayMessages = map[string]string{
	CodeItemLoginRequired:    "Your bank connection has expired. Please re-link your account.",
	CodeProductsNotSupported: "This feature is not enabled for your bank connection.",
	CodeAssetsNotEnabled:     "This feature is not enabled for your bank connection.",
	CodeProductNotReady:      "Your report is not ready yet. Please try again in a moment.",
	CodeInvalidPublicToken:   "The link session is no longer valid. Please link your account again.",
	CodeInstitutionNotFound:  "We could not identify your bank. Please try again later.",
}

// Error is a typed provider failure.
type Error struct {
	Code      string
	Message   string
	RequestID string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
}

// IsCode reports whether err is a provider error with the given code.
func IsCode(err error, code string) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Code == code
}

// DisplayMessage maps a provider error to a stable user-facing message.
// Unrecognized codes, and errors that are not provider errors at all, map
// to a generic message.
func DisplayMessage(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		if msg, ok := displayMessages[pe.Code]; ok {
			return msg
		}
	}
	return genericDisplayMessage
}
