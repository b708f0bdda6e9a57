package models

import (
	"github.com/awa/go-iap/appstore"
)

// VerifyReceiptRequest is the client payload for receipt verification.
type VerifyReceiptRequest struct {
	ReceiptData string `json:"receipt_data"`
	ProductID   string `json:"product_id,omitempty"`

	// Sandbox points the first verification attempt at the sandbox endpoint.
	// When omitted the configured default environment applies.
	Sandbox *bool `json:"sandbox,omitempty"`
}

// SubscriptionStatus is the entitlement derived from a receipt's transaction
// history. It is recomputed on every request and never stored.
type SubscriptionStatus struct {
	IsPremium         bool            `json:"is_premium"`
	LatestTransaction *appstore.InApp `json:"latest_transaction,omitempty"`
}

// VerifyReceiptResponse is returned by the verify operation. Status and
// Message are set when the App Store rejected the receipt; Error is set on
// transport or internal failures.
type VerifyReceiptResponse struct {
	Valid       bool   `json:"valid"`
	IsPremium   bool   `json:"is_premium"`
	Environment string `json:"environment,omitempty"`
	ProductID   string `json:"product_id,omitempty"`

	Status  int    `json:"status,omitempty"`
	Message string `json:"message,omitempty"`

	Error string `json:"error,omitempty"`

	LatestReceipt      string                        `json:"latest_receipt,omitempty"`
	LatestTransaction  *appstore.InApp               `json:"latest_transaction,omitempty"`
	PendingRenewalInfo []appstore.PendingRenewalInfo `json:"pending_renewal_info,omitempty"`
}
