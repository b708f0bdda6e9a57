package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"receiptgate/internal/models"
	"receiptgate/internal/services"
)

func newTestHandler(t *testing.T, productionURL, sandboxURL string) *ReceiptHandler {
	t.Helper()
	svc, err := services.NewAppStoreService(services.AppStoreConfig{
		SharedSecret:  "top-secret",
		ProductionURL: productionURL,
		SandboxURL:    sandboxURL,
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return &ReceiptHandler{Service: svc}
}

func postVerify(t *testing.T, h *ReceiptHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/iap/verify", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.VerifyReceipt(rr, req)
	return rr
}

func TestVerifyReceipt_MissingReceiptData(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer ts.Close()

	h := newTestHandler(t, ts.URL, ts.URL)

	rr := postVerify(t, h, `{"product_id": "premium.monthly"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected %d, got %d", http.StatusBadRequest, rr.Code)
	}

	var resp models.VerifyReceiptResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != "receipt_data is required" {
		t.Errorf("error mismatch: %q", resp.Error)
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("expected no upstream calls, got %d", n)
	}
}

func TestVerifyReceipt_InvalidBody(t *testing.T) {
	h := newTestHandler(t, "http://127.0.0.1:1", "http://127.0.0.1:1")

	rr := postVerify(t, h, `{"receipt_data": `)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected %d, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestVerifyReceipt_Valid(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"status": 0,
			"environment": "Production",
			"latest_receipt": "b64-latest",
			"latest_receipt_info": [
				{"product_id": "premium.monthly", "transaction_id": "t1", "expires_date_ms": "32503680000000"}
			]
		}`))
	}))
	defer ts.Close()

	h := newTestHandler(t, ts.URL, ts.URL)

	rr := postVerify(t, h, `{"receipt_data": "receipt-blob", "product_id": "premium.monthly"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}

	var resp models.VerifyReceiptResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Valid {
		t.Errorf("expected valid receipt")
	}
	if !resp.IsPremium {
		t.Errorf("expected active entitlement")
	}
	if resp.Environment != "Production" {
		t.Errorf("environment mismatch: %q", resp.Environment)
	}
	if resp.ProductID != "premium.monthly" {
		t.Errorf("product echo mismatch: %q", resp.ProductID)
	}
	if resp.LatestReceipt != "b64-latest" {
		t.Errorf("latest receipt mismatch: %q", resp.LatestReceipt)
	}
	if resp.LatestTransaction == nil || resp.LatestTransaction.ProductID != "premium.monthly" {
		t.Errorf("latest transaction mismatch: %+v", resp.LatestTransaction)
	}
}

func TestVerifyReceipt_Rejection(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": 21004, "environment": "Production"}`))
	}))
	defer ts.Close()

	h := newTestHandler(t, ts.URL, ts.URL)

	rr := postVerify(t, h, `{"receipt_data": "receipt-blob"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rr.Code)
	}

	var resp models.VerifyReceiptResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Valid {
		t.Errorf("expected rejected receipt")
	}
	if resp.IsPremium {
		t.Errorf("rejected receipt must not grant entitlement")
	}
	if resp.Status != 21004 {
		t.Errorf("status mismatch: %d", resp.Status)
	}
	if resp.Message != "The shared secret you provided does not match the one on file." {
		t.Errorf("message mismatch: %q", resp.Message)
	}
}

func TestVerifyReceipt_UpstreamFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer ts.Close()

	svc, err := services.NewAppStoreService(services.AppStoreConfig{
		SharedSecret:  "top-secret",
		ProductionURL: ts.URL,
		SandboxURL:    ts.URL,
		Client:        &http.Client{Timeout: 50 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	h := &ReceiptHandler{Service: svc}

	rr := postVerify(t, h, `{"receipt_data": "receipt-blob"}`)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected %d, got %d", http.StatusBadGateway, rr.Code)
	}

	var resp models.VerifyReceiptResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error == "" {
		t.Errorf("expected error detail in response")
	}
}

func TestVerifyReceipt_SandboxHint(t *testing.T) {
	var productionCalls, sandboxCalls int32

	production := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&productionCalls, 1)
		_, _ = w.Write([]byte(`{"status": 0, "environment": "Production"}`))
	}))
	defer production.Close()

	sandbox := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&sandboxCalls, 1)
		_, _ = w.Write([]byte(`{"status": 0, "environment": "Sandbox"}`))
	}))
	defer sandbox.Close()

	h := newTestHandler(t, production.URL, sandbox.URL)

	rr := postVerify(t, h, `{"receipt_data": "receipt-blob", "sandbox": true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rr.Code)
	}
	if n := atomic.LoadInt32(&sandboxCalls); n != 1 {
		t.Errorf("expected 1 sandbox call, got %d", n)
	}
	if n := atomic.LoadInt32(&productionCalls); n != 0 {
		t.Errorf("expected no production calls, got %d", n)
	}
}

func TestVerifyReceipt_NotConfigured(t *testing.T) {
	h := &ReceiptHandler{}

	rr := postVerify(t, h, `{"receipt_data": "receipt-blob"}`)
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("expected %d, got %d", http.StatusNotImplemented, rr.Code)
	}
}

func TestSubscriptionStatus(t *testing.T) {
	h := newTestHandler(t, "http://127.0.0.1:1", "http://127.0.0.1:1")

	req := httptest.NewRequest(http.MethodGet, "/iap/subscription", nil)
	rr := httptest.NewRecorder()
	h.SubscriptionStatus(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if premium, ok := resp["is_premium"].(bool); !ok || premium {
		t.Errorf("expected is_premium false, got %v", resp["is_premium"])
	}
	if msg, ok := resp["message"].(string); !ok || msg == "" {
		t.Errorf("expected explanatory message, got %v", resp["message"])
	}
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t, "http://127.0.0.1:1", "http://127.0.0.1:1")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	h.Health(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status mismatch: %q", resp["status"])
	}
}
