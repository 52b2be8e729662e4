// Package payment wraps the YooKassa API for consultation payments.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// DefaultBaseURL is the production YooKassa API endpoint.
const DefaultBaseURL = "https://api.yookassa.ru/v3"

// DefaultTimeout bounds a single API call.
const DefaultTimeout = 15 * time.Second

// Provider creates payments and reports their status.
type Provider interface {
	CreatePayment(ctx context.Context, req CreateRequest) (*Payment, error)
	GetPayment(ctx context.Context, id string) (*Payment, error)
}

// CreateRequest describes a payment to create.
type CreateRequest struct {
	Amount      float64
	Currency    string
	Description string
	ReturnURL   string
}

// Payment is the subset of the YooKassa payment object the bot needs.
type Payment struct {
	ID              string
	Status          string
	Paid            bool
	ConfirmationURL string
}

// Payment statuses reported by YooKassa.
const (
	StatusPending           = "pending"
	StatusWaitingForCapture = "waiting_for_capture"
	StatusSucceeded         = "succeeded"
	StatusCanceled          = "canceled"
)

// Opts holds configuration options for the YooKassa client.
type Opts struct {
	ShopID    string
	SecretKey string
	BaseURL   string
	ReturnURL string
}

// Option defines a configuration option for the YooKassa client.
type Option func(*Opts)

// WithShopID sets the YooKassa shop identifier.
func WithShopID(id string) Option {
	return func(o *Opts) { o.ShopID = id }
}

// WithSecretKey sets the YooKassa API secret key.
func WithSecretKey(key string) Option {
	return func(o *Opts) { o.SecretKey = key }
}

// WithBaseURL overrides the API endpoint, mainly for tests.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithReturnURL sets the default redirect target after checkout.
func WithReturnURL(u string) Option {
	return func(o *Opts) { o.ReturnURL = u }
}

// Client talks to the YooKassa REST API using shop-id basic auth.
type Client struct {
	shopID    string
	secretKey string
	baseURL   string
	returnURL string
	http      *http.Client
}

// NewClient creates a YooKassa client based on provided options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	// Fallback to environment variables if not provided via options
	if cfg.ShopID == "" {
		cfg.ShopID = os.Getenv("YOOKASSA_SHOP_ID")
	}
	if cfg.SecretKey == "" {
		cfg.SecretKey = os.Getenv("YOOKASSA_SECRET_KEY")
	}
	if cfg.ReturnURL == "" {
		cfg.ReturnURL = os.Getenv("YOOKASSA_RETURN_URL")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	slog.Debug("YooKassa client config loaded",
		"ShopID_set", cfg.ShopID != "",
		"SecretKey_set", cfg.SecretKey != "",
		"ReturnURL_set", cfg.ReturnURL != "")

	if cfg.ShopID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("shop id and secret key must be provided")
	}

	return &Client{
		shopID:    cfg.ShopID,
		secretKey: cfg.SecretKey,
		baseURL:   cfg.BaseURL,
		returnURL: cfg.ReturnURL,
		http:      &http.Client{Timeout: DefaultTimeout},
	}, nil
}

type apiAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type apiConfirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type apiPayment struct {
	ID           string           `json:"id"`
	Status       string           `json:"status"`
	Paid         bool             `json:"paid"`
	Confirmation *apiConfirmation `json:"confirmation,omitempty"`
}

type createPaymentBody struct {
	Amount       apiAmount       `json:"amount"`
	Capture      bool            `json:"capture"`
	Confirmation apiConfirmation `json:"confirmation"`
	Description  string          `json:"description,omitempty"`
}

// CreatePayment creates a redirect-confirmation payment and returns the
// checkout URL the user should be sent to. Currency defaults to RUB.
func (c *Client) CreatePayment(ctx context.Context, req CreateRequest) (*Payment, error) {
	currency := req.Currency
	if currency == "" {
		currency = "RUB"
	}
	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = c.returnURL
	}
	body := createPaymentBody{
		Amount:       apiAmount{Value: formatAmount(req.Amount), Currency: currency},
		Capture:      true,
		Confirmation: apiConfirmation{Type: "redirect", ReturnURL: returnURL},
		Description:  req.Description,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal payment request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build payment request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// YooKassa deduplicates retries of the same logical payment by this key.
	httpReq.Header.Set("Idempotence-Key", uuid.NewString())

	p, err := c.do(httpReq)
	if err != nil {
		slog.Error("YooKassa CreatePayment failed", "error", err)
		return nil, err
	}
	slog.Info("YooKassa payment created", "paymentID", p.ID, "status", p.Status)
	return p, nil
}

// GetPayment fetches the current state of a payment by id.
func (c *Client) GetPayment(ctx context.Context, id string) (*Payment, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/payments/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("build payment request: %w", err)
	}
	p, err := c.do(httpReq)
	if err != nil {
		slog.Error("YooKassa GetPayment failed", "paymentID", id, "error", err)
		return nil, err
	}
	slog.Debug("YooKassa payment fetched", "paymentID", p.ID, "status", p.Status)
	return p, nil
}

func (c *Client) do(req *http.Request) (*Payment, error) {
	req.SetBasicAuth(c.shopID, c.secretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call YooKassa API: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read YooKassa response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("YooKassa API returned %d: %s", resp.StatusCode, raw)
	}

	var ap apiPayment
	if err := json.Unmarshal(raw, &ap); err != nil {
		return nil, fmt.Errorf("decode YooKassa response: %w", err)
	}
	p := &Payment{ID: ap.ID, Status: ap.Status, Paid: ap.Paid}
	if ap.Confirmation != nil {
		p.ConfirmationURL = ap.Confirmation.ConfirmationURL
	}
	return p, nil
}

// formatAmount renders a price the way the API expects, e.g. "2900.00".
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// MockProvider records created payments and reports a configurable status.
type MockProvider struct {
	Created       []CreateRequest
	NextStatus    string
	NextPaid      bool
	paymentsByID  map[string]*Payment
	nextPaymentID int
}

// NewMockProvider creates a mock provider that reports succeeded payments.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		NextStatus:   StatusSucceeded,
		NextPaid:     true,
		paymentsByID: make(map[string]*Payment),
	}
}

func (m *MockProvider) CreatePayment(_ context.Context, req CreateRequest) (*Payment, error) {
	m.Created = append(m.Created, req)
	m.nextPaymentID++
	p := &Payment{
		ID:              fmt.Sprintf("mock-%d", m.nextPaymentID),
		Status:          StatusPending,
		ConfirmationURL: "https://example.test/checkout",
	}
	m.paymentsByID[p.ID] = p
	return p, nil
}

func (m *MockProvider) GetPayment(_ context.Context, id string) (*Payment, error) {
	p, ok := m.paymentsByID[id]
	if !ok {
		return nil, fmt.Errorf("payment %s not found", id)
	}
	p.Status = m.NextStatus
	p.Paid = m.NextPaid
	return p, nil
}
