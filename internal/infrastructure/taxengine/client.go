package taxengine

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
	"github.com/shopspring/decimal"
)

const calculatePath = "/v1/statutory/calculate"

// Client calls the remote statutory deduction engine over HTTP
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a tax engine client. BaseURL is required.
func NewClient(cfg config.TaxEngineConfig) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("taxengine: base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type calculateRequest struct {
	BusinessID     string   `json:"business_id"`
	EmployeeID     string   `json:"employee_id"`
	Month          int      `json:"month"`
	Year           int      `json:"year"`
	BasicSalary    string   `json:"basic_salary"`
	GrossSalary    string   `json:"gross_salary"`
	TaxableIncome  string   `json:"taxable_income"`
	Kinds          []string `json:"kinds"`
	PersonalRelief bool     `json:"personal_relief"`
}

type calculateResponse struct {
	TaxableIncome decimal.Decimal `json:"taxable_income"`
	Deductions    []struct {
		Kind   string          `json:"kind"`
		Amount decimal.Decimal `json:"amount"`
	} `json:"deductions"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Calculate implements payroll.TaxCalculator
func (c *Client) Calculate(ctx context.Context, req payroll.TaxRequest) (*payroll.TaxResult, error) {
	kinds := make([]string, len(req.Kinds))
	for i, k := range req.Kinds {
		kinds[i] = string(k)
	}
	body, err := json.Marshal(calculateRequest{
		BusinessID:     req.BusinessID.String(),
		EmployeeID:     req.EmployeeID.String(),
		Month:          req.Month,
		Year:           req.Year,
		BasicSalary:    req.BasicSalary.String(),
		GrossSalary:    req.GrossSalary.String(),
		TaxableIncome:  req.TaxableIncome.String(),
		Kinds:          kinds,
		PersonalRelief: req.PersonalRelief,
	})
	if err != nil {
		return nil, fmt.Errorf("taxengine: failed to marshal request: %w", err)
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, calculatePath, body)
	if err != nil {
		return nil, err
	}

	var resp calculateResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("taxengine: failed to parse response: %w", err)
	}

	result := &payroll.TaxResult{
		TaxableIncome: resp.TaxableIncome,
		Amounts:       make(map[payroll.StatutoryKind]decimal.Decimal, len(resp.Deductions)),
	}
	for _, d := range resp.Deductions {
		kind := payroll.StatutoryKind(strings.ToUpper(d.Kind))
		if !kind.IsValid() {
			return nil, fmt.Errorf("taxengine: unknown statutory kind %q", d.Kind)
		}
		if d.Amount.IsNegative() {
			return nil, fmt.Errorf("taxengine: negative %s amount %s", kind, d.Amount)
		}
		result.Amounts[kind] = result.Amounts[kind].Add(d.Amount)
	}
	return result, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("taxengine: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", payroll.ErrTaxEngineUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("taxengine: failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp errorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Message != "" {
			return nil, fmt.Errorf("taxengine: %s - %s", errResp.Code, errResp.Message)
		}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: HTTP %d", payroll.ErrTaxEngineUnavailable, resp.StatusCode)
		}
		return nil, fmt.Errorf("taxengine: HTTP %d", resp.StatusCode)
	}
	return respBody, nil
}

var _ payroll.TaxCalculator = (*Client)(nil)
