package disbursement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hrpay/backend/internal/domain/payroll"
	"github.com/hrpay/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

const transfersPath = "/v1/transfers"

// Transfer statuses returned by the gateway
const (
	statusAccepted = "ACCEPTED"
	statusDeclined = "DECLINED"
)

// Client posts transfers to the disbursement gateway. Each Transfer is a
// single request; a failure is reported to the caller and never resent here.
// The record reference travels as the Idempotency-Key.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option customizes the client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a gateway client. BaseURL is required.
func NewClient(cfg config.DisbursementConfig, logger *zap.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("disbursement: base url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("disbursement"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type transferBody struct {
	Reference   string      `json:"reference"`
	EmployeeID  string      `json:"employee_id"`
	Amount      string      `json:"amount"`
	Currency    string      `json:"currency"`
	Narration   string      `json:"narration"`
	Destination destination `json:"destination"`
}

type destination struct {
	Type          string `json:"type"`
	BankName      string `json:"bank_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	AccountType   string `json:"account_type,omitempty"`
	WalletID      string `json:"wallet_id,omitempty"`
	PhoneNumber   string `json:"phone_number,omitempty"`
}

type transferResponse struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	Reason        string `json:"reason"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Transfer implements payroll.PaymentGateway
func (c *Client) Transfer(ctx context.Context, req payroll.TransferRequest) (*payroll.TransferResult, error) {
	body, err := json.Marshal(transferBody{
		Reference:   req.Reference,
		EmployeeID:  req.EmployeeID.String(),
		Amount:      req.Amount.StringFixed(2),
		Currency:    req.Currency,
		Narration:   req.Narration,
		Destination: toDestination(req.Destination),
	})
	if err != nil {
		return nil, fmt.Errorf("disbursement: failed to marshal request: %w", err)
	}

	result, err := c.post(ctx, req.Reference, body)
	if err != nil {
		c.logger.Warn("transfer failed",
			zap.String("reference", req.Reference),
			zap.String("employee_id", req.EmployeeID.String()),
			zap.Error(err),
		)
		return nil, err
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, reference string, body []byte) (*payroll.TransferResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+transfersPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("disbursement: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Idempotency-Key", reference)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", payroll.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", payroll.ErrGatewayUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		var errResp errorResponse
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Code != "" {
			msg = errResp.Code + " - " + errResp.Message
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %s", payroll.ErrGatewayUnavailable, msg)
		}
		return nil, fmt.Errorf("%w: %s", payroll.ErrGatewayRequestFailed, msg)
	}

	var data transferResponse
	if err := json.Unmarshal(respBody, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", payroll.ErrGatewayBadResponse, err)
	}
	switch strings.ToUpper(data.Status) {
	case statusAccepted:
		return &payroll.TransferResult{Accepted: true, ExternalID: data.TransactionID}, nil
	case statusDeclined:
		return &payroll.TransferResult{Accepted: false, ExternalID: data.TransactionID, Reason: data.Reason}, nil
	default:
		return nil, fmt.Errorf("%w: unknown status %q", payroll.ErrGatewayBadResponse, data.Status)
	}
}

func toDestination(d payroll.PaymentDestination) destination {
	out := destination{Type: strings.ToLower(string(d.Kind))}
	switch d.Kind {
	case payroll.ChannelKindBank:
		out.BankName = d.BankName
		out.AccountNumber = d.AccountNumber
		out.AccountType = string(d.AccountType)
	case payroll.ChannelKindWallet:
		out.WalletID = d.WalletID
		out.PhoneNumber = d.PhoneNumber
	}
	return out
}

var _ payroll.PaymentGateway = (*Client)(nil)
