package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/awa/go-iap/appstore"

	"receiptgate/internal/models"
)

// Status codes returned by verifyReceipt that drive environment routing.
const (
	statusSandboxReceipt    = 21007
	statusProductionReceipt = 21008
)

// statusMessages maps the documented verifyReceipt rejection codes to the
// messages surfaced to clients.
var statusMessages = map[int]string{
	21000: "The App Store could not read the JSON object you provided.",
	21002: "The data in the receipt-data property was malformed or missing.",
	21003: "The receipt could not be authenticated.",
	21004: "The shared secret you provided does not match the one on file.",
	21005: "The receipt server is not currently available.",
	21006: "This receipt is valid but the subscription has expired.",
	statusSandboxReceipt:    "This receipt is from the test environment, but it was sent to the production environment for verification.",
	statusProductionReceipt: "This receipt is from the production environment, but it was sent to the test environment for verification.",
}

// StatusMessage returns the client-facing message for a verifyReceipt status
// code. Codes outside the documented table get a generic message.
func StatusMessage(status int) string {
	if msg, ok := statusMessages[status]; ok {
		return msg
	}
	return "An unknown error occurred."
}

type AppStoreConfig struct {
	// SharedSecret is the app-specific shared secret sent as the password
	// field of every verification request. Required.
	SharedSecret string

	// Endpoint overrides; empty values fall back to the App Store URLs.
	ProductionURL string
	SandboxURL    string

	// Timeout bounds each verification call when Client is nil.
	Timeout time.Duration

	Client *http.Client
	Logger *slog.Logger
}

type AppStoreService struct {
	sharedSecret  string
	productionURL string
	sandboxURL    string

	httpClient *http.Client
	logger     *slog.Logger
}

func NewAppStoreService(cfg AppStoreConfig) (*AppStoreService, error) {
	if strings.TrimSpace(cfg.SharedSecret) == "" {
		return nil, fmt.Errorf("appstore: shared_secret is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	productionURL := cfg.ProductionURL
	if productionURL == "" {
		productionURL = appstore.ProductionURL
	}
	sandboxURL := cfg.SandboxURL
	if sandboxURL == "" {
		sandboxURL = appstore.SandboxURL
	}

	s := &AppStoreService{
		sharedSecret:  cfg.SharedSecret,
		productionURL: productionURL,
		sandboxURL:    sandboxURL,
		httpClient:    client,
		logger:        logger,
	}
	logger.Info("App Store verifier initialized",
		"productionURL", s.productionURL,
		"sandboxURL", s.sandboxURL,
	)
	return s, nil
}

// VerifyReceipt posts the receipt to the verifyReceipt endpoint and returns
// the decoded response. The first attempt targets production unless
// preferSandbox is set. A 21007 status on a non-sandbox attempt triggers a
// single resend of the identical request against the sandbox endpoint; that
// second response is final, whatever its status. No other code is retried.
//
// A non-zero status comes back as the response paired with a *ValidationError
// so callers can still read the transaction data that accompanied the
// rejection. Transport failures come back as a *UpstreamError.
func (s *AppStoreService) VerifyReceipt(ctx context.Context, receiptData string, preferSandbox bool) (*appstore.IAPResponse, error) {
	if strings.TrimSpace(receiptData) == "" {
		return nil, models.ErrEmptyReceipt
	}

	reqBody := appstore.IAPRequest{
		ReceiptData:            receiptData,
		Password:               s.sharedSecret,
		ExcludeOldTransactions: true,
	}

	endpoint := s.productionURL
	if preferSandbox {
		endpoint = s.sandboxURL
	}

	logger := s.logger.With("op", "VerifyReceipt", "receipt_len", len(receiptData))

	resp, err := s.post(ctx, endpoint, reqBody)
	if err != nil {
		return nil, err
	}

	if resp.Status == statusSandboxReceipt && !preferSandbox {
		logger.Info("receipt was issued in the test environment, retrying against sandbox")
		resp, err = s.post(ctx, s.sandboxURL, reqBody)
		if err != nil {
			return nil, err
		}
	}

	if resp.Status != 0 {
		logger.Info("receipt rejected",
			"status", resp.Status,
			"environment", string(resp.Environment),
		)
		return resp, &ValidationError{Status: resp.Status, Message: StatusMessage(resp.Status)}
	}

	logger.Info("receipt verified",
		"environment", string(resp.Environment),
		"transactions", len(resp.LatestReceiptInfo),
	)
	return resp, nil
}

func (s *AppStoreService) post(ctx context.Context, endpoint string, reqBody appstore.IAPRequest) (*appstore.IAPResponse, error) {
	body, _ := json.Marshal(reqBody)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &UpstreamError{URL: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, &UpstreamError{URL: endpoint, Err: fmt.Errorf("verifyReceipt: %s: %s", resp.Status, truncate(string(b), 500))}
	}

	var out appstore.IAPResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &UpstreamError{URL: endpoint, Err: fmt.Errorf("decode verifyReceipt response: %w", err)}
	}
	return &out, nil
}

// ---------- helpers ----------

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// ValidationError is a definitive upstream rejection: the App Store answered
// with a non-zero status code.
type ValidationError struct {
	Status  int
	Message string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("appstore: status %d: %s", e.Status, e.Message)
}

// UpstreamError is a transport-level failure talking to the App Store:
// network error, timeout, non-200 response or an unparseable body.
type UpstreamError struct {
	URL string
	Err error
}

func (e *UpstreamError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("appstore: %s: %v", e.URL, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
