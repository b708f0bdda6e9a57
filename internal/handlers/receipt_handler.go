package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"receiptgate/internal/models"
	"receiptgate/internal/services"
)

// ReceiptHandler serves receipt verification and subscription status requests.
type ReceiptHandler struct {
	Service *services.AppStoreService

	// DefaultSandbox points verification at the sandbox endpoint for requests
	// that carry no environment hint of their own.
	DefaultSandbox bool
}

// VerifyReceipt validates a StoreKit receipt against the App Store and
// returns the verification verdict together with the derived subscription
// status.
func (h *ReceiptHandler) VerifyReceipt(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		http.Error(w, "receipt verification is not configured", http.StatusNotImplemented)
		return
	}

	var req models.VerifyReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.VerifyReceiptResponse{Error: "invalid body: " + err.Error()})
		return
	}
	req.ReceiptData = strings.TrimSpace(req.ReceiptData)
	if req.ReceiptData == "" {
		writeJSON(w, http.StatusBadRequest, models.VerifyReceiptResponse{Error: "receipt_data is required"})
		return
	}

	preferSandbox := h.DefaultSandbox
	if req.Sandbox != nil {
		preferSandbox = *req.Sandbox
	}

	// Deliberately not r.Context(): a dropped client connection must not
	// cancel a verification already in flight.
	result, err := h.Service.VerifyReceipt(context.Background(), req.ReceiptData, preferSandbox)

	var vErr *services.ValidationError
	switch {
	case err == nil:
		status := services.ResolveSubscriptionStatus(result.LatestReceiptInfo)
		writeJSON(w, http.StatusOK, models.VerifyReceiptResponse{
			Valid:              true,
			IsPremium:          status.IsPremium,
			Environment:        string(result.Environment),
			ProductID:          req.ProductID,
			LatestReceipt:      result.LatestReceipt,
			LatestTransaction:  status.LatestTransaction,
			PendingRenewalInfo: result.PendingRenewalInfo,
		})
	case errors.As(err, &vErr):
		// The App Store gave a verdict. Surface it, and still derive the
		// entitlement from whatever transactions accompanied the rejection.
		status := services.ResolveSubscriptionStatus(result.LatestReceiptInfo)
		writeJSON(w, http.StatusOK, models.VerifyReceiptResponse{
			IsPremium:         status.IsPremium,
			Environment:       string(result.Environment),
			ProductID:         req.ProductID,
			Status:            vErr.Status,
			Message:           vErr.Message,
			LatestTransaction: status.LatestTransaction,
		})
	default:
		writeJSON(w, http.StatusBadGateway, models.VerifyReceiptResponse{Error: err.Error()})
	}
}

// SubscriptionStatus reports the server-held subscription state. The relay
// stores nothing, so this is always the inactive default.
func (h *ReceiptHandler) SubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"is_premium": false,
		"message":    "subscription state is not stored server-side; verify a receipt to derive entitlement",
	})
}

// Health confirms the process is up.
func (h *ReceiptHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
