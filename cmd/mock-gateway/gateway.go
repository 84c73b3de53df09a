package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/josh-kwaku/boma-settlement/internal/gateway"
)

// Payers whose number ends in one of these digits get the matching outcome.
var outcomeBySuffix = map[byte]string{
	'1': "failed",
	'2': "cancelled",
	'3': "pending",
}

type transaction struct {
	TransactionID string `json:"transactionId"`
	ExternalID    string `json:"externalId"`
	Amount        string `json:"amount"`
	Currency      string `json:"-"`
	AccountNumber string `json:"-"`
	Provider      string `json:"-"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

type mockGateway struct {
	cfg    config
	logger *slog.Logger
	client *http.Client

	mu    sync.Mutex
	txs   map[string]*transaction
	byExt map[string]string

	callbacks sync.WaitGroup
	after     func(d time.Duration, f func())
}

func newGateway(cfg config, logger *slog.Logger) *mockGateway {
	return &mockGateway{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{Timeout: 10 * time.Second},
		txs:    make(map[string]*transaction),
		byExt:  make(map[string]string),
		after: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

func (g *mockGateway) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /AppRegistration/GenerateToken", g.token)
	mux.HandleFunc("POST /azampay/mno/checkout", g.checkout)
	mux.HandleFunc("GET /azampay/transactions/{id}", g.transaction)
	return mux
}

func (g *mockGateway) token(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID     string `json:"clientId"`
		ClientSecret string `json:"clientSecret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ClientID == "" || req.ClientSecret == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid client credentials"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":    map[string]string{"accessToken": "mock-" + uuid.NewString(), "expire": "3600"},
		"message": "Token generated successfully",
	})
}

func (g *mockGateway) checkout(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "missing bearer token"})
		return
	}

	var req struct {
		AccountNumber string `json:"accountNumber"`
		Amount        string `json:"amount"`
		Currency      string `json:"currency"`
		ExternalID    string `json:"externalId"`
		Provider      string `json:"provider"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ExternalID == "" || req.AccountNumber == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid checkout request"})
		return
	}

	g.mu.Lock()
	if id, ok := g.byExt[req.ExternalID]; ok {
		g.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "transactionId": id, "message": "duplicate externalId"})
		return
	}
	tx := &transaction{
		TransactionID: uuid.NewString(),
		ExternalID:    req.ExternalID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		AccountNumber: req.AccountNumber,
		Provider:      req.Provider,
		Status:        "pending",
		Message:       "Awaiting payer confirmation",
	}
	g.txs[tx.TransactionID] = tx
	g.byExt[tx.ExternalID] = tx.TransactionID
	g.mu.Unlock()

	g.logger.Info("checkout accepted",
		"transaction_id", tx.TransactionID,
		"external_id", tx.ExternalID,
		"provider", tx.Provider,
		"amount", tx.Amount,
	)

	g.callbacks.Add(1)
	g.after(g.cfg.CallbackDelay, func() {
		defer g.callbacks.Done()
		g.settle(tx.TransactionID)
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"transactionId": tx.TransactionID,
		"message":       "Checkout initiated",
	})
}

func (g *mockGateway) transaction(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	tx, ok := g.txs[r.PathValue("id")]
	var snapshot transaction
	if ok {
		snapshot = *tx
	}
	g.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "transaction not found"})
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// settle decides the outcome from the payer number and posts the callback.
// A pending outcome leaves the transaction for reconciliation to time out.
func (g *mockGateway) settle(id string) {
	g.mu.Lock()
	tx := g.txs[id]
	status := "success"
	if n := len(tx.AccountNumber); n > 0 {
		if s, ok := outcomeBySuffix[tx.AccountNumber[n-1]]; ok {
			status = s
		}
	}
	tx.Status = status
	tx.Message = "Mock " + status
	snapshot := *tx
	g.mu.Unlock()

	if status == "pending" {
		return
	}
	if g.cfg.DropRate > 0 && rand.Float64() < g.cfg.DropRate {
		g.logger.Info("callback dropped", "transaction_id", id, "status", status)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := g.sendCallback(ctx, snapshot); err != nil {
		g.logger.Error("callback failed", "transaction_id", id, "error", err)
	}
}

func (g *mockGateway) sendCallback(ctx context.Context, tx transaction) error {
	body, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("sendCallback: %w", err)
	}
	sig := gateway.Sign(body, g.cfg.WebhookSecret)

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.CallbackURL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(gateway.SignatureHeader, sig)

		resp, err := g.client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("callback status %d", resp.StatusCode)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, 5), ctx)); err != nil {
		return fmt.Errorf("sendCallback: %w", err)
	}
	g.logger.Info("callback delivered", "transaction_id", tx.TransactionID, "status", tx.Status)
	return nil
}

func (g *mockGateway) wait() {
	g.callbacks.Wait()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
