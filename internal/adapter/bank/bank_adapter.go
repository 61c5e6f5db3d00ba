package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/yourorg/payment-gateway/internal/adapter"
)

const (
	defaultBankURL = "http://localhost:8080/payments"
	defaultTimeout = 5 * time.Second
	maxBodyBytes   = 1 << 20
)

// BankAdapter implements the Authorizer interface against the acquiring bank's
// JSON API. It never retries: one Authorize is one downstream call.
type BankAdapter struct {
	httpClient *http.Client
	url        string
}

// NewBankAdapter creates a new BankAdapter. An empty url falls back to the
// local simulator address and a nil client to one with a 5s timeout.
func NewBankAdapter(url string, client *http.Client) *BankAdapter {
	if url == "" {
		url = defaultBankURL
	}
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &BankAdapter{
		httpClient: client,
		url:        url,
	}
}

// GetName returns the name of the provider.
func (b *BankAdapter) GetName() string {
	return "bank"
}

// bankRequest is the wire format the acquiring bank accepts.
type bankRequest struct {
	CardNumber string `json:"card_number"`
	ExpiryDate string `json:"expiry_date"`
	Currency   string `json:"currency"`
	Amount     int64  `json:"amount"`
	CVV        string `json:"cvv"`
}

// bankResponse is the wire format of a bank verdict.
type bankResponse struct {
	Authorized        bool   `json:"authorized"`
	AuthorizationCode string `json:"authorization_code"`
}

// Authorize posts the request to the bank and maps the answer to a Verdict.
func (b *BankAdapter) Authorize(ctx context.Context, req adapter.AuthorizationRequest) (*adapter.Verdict, error) {
	body, err := json.Marshal(bankRequest{
		CardNumber: req.CardNumber,
		ExpiryDate: req.ExpiryDate,
		Currency:   req.Currency,
		Amount:     req.Amount,
		CVV:        req.CVV,
	})
	if err != nil {
		return nil, fmt.Errorf("bank: failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("bank: failed to create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, fmt.Errorf("%w: %v", adapter.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", adapter.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", adapter.ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: bank responded with HTTP %d: %s", adapter.ErrUnavailable, resp.StatusCode, string(respBody))
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil, nil
	}

	var decoded bankResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("%w: undecodable bank response: %v", adapter.ErrUnavailable, err)
	}
	return &adapter.Verdict{
		Authorized:        decoded.Authorized,
		AuthorizationCode: decoded.AuthorizationCode,
	}, nil
}
