// Package gateway is the boundary to external payment providers. Adapters
// translate provider protocols into payment statuses and never touch storage.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
)

// SignatureHeader carries the webhook HMAC unless the adapter names its own.
const SignatureHeader = "X-Webhook-Signature"

type headerNamer interface {
	SignatureHeader() string
}

// Notification is a verified webhook reduced to what the orchestrator needs.
// Amount is zero when the provider does not report one.
type Notification struct {
	ExternalRef string
	Status      domain.PaymentStatus
	Amount      domain.Money
	Message     string
	Raw         json.RawMessage
}

// StatusReport is the provider's current view of a payment. Amount is what
// the provider collected and is zero when it does not say.
type StatusReport struct {
	ExternalRef string
	Status      domain.PaymentStatus
	Amount      domain.Money
	Raw         json.RawMessage
}

type Adapter interface {
	Name() string
	Initiate(ctx context.Context, amount domain.Money, payerReference, idempotencyKey string) (string, error)
	ParseWebhook(rawBody []byte, signature string) (*Notification, error)
	QueryStatus(ctx context.Context, externalRef string) (*StatusReport, error)
}

type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("Registry.Get: %q: %w", name, domain.ErrUnknownGateway)
	}
	return a, nil
}

// SignatureHeader is the request header holding the named gateway's webhook signature.
func (r *Registry) SignatureHeader(name string) string {
	if h, ok := r.adapters[name].(headerNamer); ok {
		return h.SignatureHeader()
	}
	return SignatureHeader
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func VerifySignature(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(body, secret)), []byte(signature))
}
