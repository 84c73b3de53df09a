// Package azampay talks to the AzamPay mobile-money checkout API.
package azampay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
	"github.com/josh-kwaku/boma-settlement/internal/gateway"
	"github.com/josh-kwaku/boma-settlement/internal/logging"
)

const Name = "azampay"

// tokenTTL is kept under the provider's one hour expiry.
const tokenTTL = 55 * time.Minute

var providers = map[string]string{
	"mpesa":    "Mpesa",
	"airtel":   "Airtel",
	"tigo":     "Tigo",
	"halopesa": "Halopesa",
	"azampesa": "Azampesa",
}

type Config struct {
	AuthURL         string
	APIURL          string
	AppName         string
	ClientID        string
	ClientSecret    string
	WebhookSecret   string
	DefaultProvider string
	Currency        domain.Currency
	Timeout         time.Duration
	MaxRetries      uint64
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time

	mu           sync.Mutex
	token        string
	tokenExpires time.Time
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = "Tigo"
	}
	if cfg.Currency == "" {
		cfg.Currency = domain.CurrencyTZS
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}
}

func (c *Client) Name() string { return Name }

type tokenRequest struct {
	AppName      string `json:"appName"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

type tokenResponse struct {
	Data struct {
		AccessToken string `json:"accessToken"`
	} `json:"data"`
	Message string `json:"message"`
}

type checkoutRequest struct {
	AccountNumber string `json:"accountNumber"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	ExternalID    string `json:"externalId"`
	Provider      string `json:"provider"`
}

type checkoutResponse struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId"`
	Message       string `json:"message"`
}

type transactionPayload struct {
	TransactionID string          `json:"transactionId"`
	ExternalID    string          `json:"externalId"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	Message       string          `json:"message"`
}

// Initiate pushes a USSD checkout to the payer's phone. payerReference is an
// MSISDN, optionally prefixed with the mobile network as "Mpesa:0712345678".
// The checkout itself is not retried since the provider may have accepted it.
func (c *Client) Initiate(ctx context.Context, amount domain.Money, payerReference, idempotencyKey string) (string, error) {
	log := logging.FromContext(ctx)

	provider, msisdn, err := c.parsePayer(payerReference)
	if err != nil {
		return "", fmt.Errorf("azampay.Initiate: %w", err)
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return "", fmt.Errorf("azampay.Initiate: %w", err)
	}

	req := checkoutRequest{
		AccountNumber: msisdn,
		Amount:        amount.Major().StringFixed(amount.Currency.Exponent()),
		Currency:      string(amount.Currency),
		ExternalID:    idempotencyKey,
		Provider:      provider,
	}

	start := time.Now()
	log.Info("gateway request sent", "gateway", Name, "external_id", idempotencyKey, "provider", provider)

	var resp checkoutResponse
	status, err := c.doJSON(ctx, http.MethodPost, c.cfg.APIURL+"/azampay/mno/checkout", token, req, &resp)
	if err != nil {
		return "", fmt.Errorf("azampay.Initiate: %w", err)
	}

	log.Info("gateway response received",
		"gateway", Name,
		"status", status,
		"success", resp.Success,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if status != http.StatusOK || !resp.Success || resp.TransactionID == "" {
		return "", fmt.Errorf("azampay.Initiate: status %d: %s: %w", status, resp.Message, domain.ErrPaymentGateway)
	}
	return resp.TransactionID, nil
}

func (c *Client) ParseWebhook(rawBody []byte, signature string) (*gateway.Notification, error) {
	if !gateway.VerifySignature(rawBody, signature, c.cfg.WebhookSecret) {
		return nil, fmt.Errorf("azampay.ParseWebhook: %w", domain.ErrInvalidSignature)
	}

	var p transactionPayload
	if err := json.Unmarshal(rawBody, &p); err != nil {
		return nil, fmt.Errorf("azampay.ParseWebhook: decode: %v: %w", err, domain.ErrInvalidRequest)
	}
	if p.TransactionID == "" {
		return nil, fmt.Errorf("azampay.ParseWebhook: missing transactionId: %w", domain.ErrInvalidRequest)
	}

	status, err := mapStatus(p.Status)
	if err != nil {
		return nil, fmt.Errorf("azampay.ParseWebhook: %w", err)
	}

	n := &gateway.Notification{
		ExternalRef: p.TransactionID,
		Status:      status,
		Message:     p.Message,
		Raw:         json.RawMessage(rawBody),
	}
	if !p.Amount.IsZero() {
		amt, err := domain.MoneyFromMajor(p.Amount, c.cfg.Currency)
		if err != nil {
			return nil, fmt.Errorf("azampay.ParseWebhook: %w", err)
		}
		n.Amount = amt
	}
	return n, nil
}

// QueryStatus reads the transaction back from the provider. Transport errors
// and 5xx responses are retried with exponential backoff.
func (c *Client) QueryStatus(ctx context.Context, externalRef string) (*gateway.StatusReport, error) {
	var (
		p   transactionPayload
		raw []byte
	)

	op := func() error {
		token, err := c.accessToken(ctx)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIURL+"/azampay/transactions/"+externalRef, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}
		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("status %d", resp.StatusCode)
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(domain.ErrNotFound)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("status %d: %w", resp.StatusCode, domain.ErrPaymentGateway))
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return backoff.Permanent(fmt.Errorf("decode: %v: %w", err, domain.ErrPaymentGateway))
		}
		return nil
	}

	if err := backoff.Retry(op, c.backoff(ctx)); err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrPaymentGateway) {
			return nil, fmt.Errorf("azampay.QueryStatus: %w", err)
		}
		return nil, fmt.Errorf("azampay.QueryStatus: %v: %w", err, domain.ErrPaymentGateway)
	}

	status, err := mapStatus(p.Status)
	if err != nil {
		return nil, fmt.Errorf("azampay.QueryStatus: %w", err)
	}
	rep := &gateway.StatusReport{ExternalRef: externalRef, Status: status, Raw: raw}
	if !p.Amount.IsZero() {
		amt, err := domain.MoneyFromMajor(p.Amount, c.cfg.Currency)
		if err != nil {
			return nil, fmt.Errorf("azampay.QueryStatus: %w", err)
		}
		rep.Amount = amt
	}
	return rep, nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpires) {
		return c.token, nil
	}

	body := tokenRequest{AppName: c.cfg.AppName, ClientID: c.cfg.ClientID, ClientSecret: c.cfg.ClientSecret}
	var resp tokenResponse

	op := func() error {
		status, err := c.doJSON(ctx, http.MethodPost, c.cfg.AuthURL+"/AppRegistration/GenerateToken", "", body, &resp)
		if err != nil {
			return err
		}
		if status >= 500 {
			return fmt.Errorf("token status %d", status)
		}
		if status != http.StatusOK || resp.Data.AccessToken == "" {
			return backoff.Permanent(fmt.Errorf("token status %d: %s", status, resp.Message))
		}
		return nil
	}
	if err := backoff.Retry(op, c.backoff(ctx)); err != nil {
		return "", fmt.Errorf("accessToken: %v: %w", err, domain.ErrPaymentGateway)
	}

	c.token = resp.Data.AccessToken
	c.tokenExpires = c.now().Add(tokenTTL)
	logging.FromContext(ctx).Info("gateway token refreshed", "gateway", Name)
	return c.token, nil
}

func (c *Client) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(b, c.cfg.MaxRetries), ctx)
}

func (c *Client) doJSON(ctx context.Context, method, url, token string, in, out any) (int, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return 0, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send: %v: %w", err, domain.ErrPaymentGateway)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read: %v: %w", err, domain.ErrPaymentGateway)
	}
	if len(respBody) > 0 {
		// Error bodies are not always JSON; the status code carries the outcome.
		_ = json.Unmarshal(respBody, out)
	}
	return resp.StatusCode, nil
}

func (c *Client) parsePayer(ref string) (provider, msisdn string, err error) {
	provider = c.cfg.DefaultProvider
	number := ref
	if name, rest, ok := strings.Cut(ref, ":"); ok {
		canonical, known := providers[strings.ToLower(strings.TrimSpace(name))]
		if !known {
			return "", "", fmt.Errorf("parsePayer: provider %q: %w", name, domain.ErrValidation)
		}
		provider, number = canonical, rest
	}

	msisdn = NormalizeMSISDN(number)
	if len(msisdn) < 12 {
		return "", "", fmt.Errorf("parsePayer: msisdn %q: %w", number, domain.ErrValidation)
	}
	return provider, msisdn, nil
}

// NormalizeMSISDN strips formatting and forces the Tanzanian 255 prefix.
func NormalizeMSISDN(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if strings.HasPrefix(digits, "0") {
		digits = "255" + digits[1:]
	}
	if !strings.HasPrefix(digits, "255") {
		digits = "255" + digits
	}
	return digits
}

func mapStatus(s string) (domain.PaymentStatus, error) {
	switch strings.ToLower(s) {
	case "success", "successful", "completed":
		return domain.PaymentStatusSuccess, nil
	case "failed", "failure", "rejected":
		return domain.PaymentStatusFailed, nil
	case "cancelled", "canceled":
		return domain.PaymentStatusCancelled, nil
	case "pending", "processing", "initiated":
		return domain.PaymentStatusPending, nil
	}
	return "", fmt.Errorf("mapStatus: %q: %w", s, domain.ErrInvalidRequest)
}
