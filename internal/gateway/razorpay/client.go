// Package razorpay adapts Razorpay orders for card and UPI checkouts.
package razorpay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	rzp "github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
	"github.com/josh-kwaku/boma-settlement/internal/gateway"
	"github.com/josh-kwaku/boma-settlement/internal/logging"
)

const Name = "razorpay"

// orderAPI is the subset of the SDK order resource in use.
type orderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Fetch(orderID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type Client struct {
	orders        orderAPI
	webhookSecret string
}

func NewClient(keyID, keySecret, webhookSecret string) *Client {
	return &Client{
		orders:        rzp.NewClient(keyID, keySecret).Order,
		webhookSecret: webhookSecret,
	}
}

func (c *Client) Name() string { return Name }

func (c *Client) SignatureHeader() string { return "X-Razorpay-Signature" }

// Initiate creates an order the guest completes in Razorpay Checkout. The
// idempotency key becomes the order receipt; payerReference is not needed.
func (c *Client) Initiate(ctx context.Context, amount domain.Money, _ string, idempotencyKey string) (string, error) {
	log := logging.FromContext(ctx)

	order, err := c.orders.Create(map[string]interface{}{
		"amount":   amount.Amount,
		"currency": string(amount.Currency),
		"receipt":  idempotencyKey,
		"notes":    map[string]interface{}{"payment_id": idempotencyKey},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("razorpay.Initiate: %v: %w", err, domain.ErrPaymentGateway)
	}

	id, _ := order["id"].(string)
	if id == "" {
		return "", fmt.Errorf("razorpay.Initiate: order without id: %w", domain.ErrPaymentGateway)
	}
	log.Info("gateway order created", "gateway", Name, "order_id", id, "receipt", idempotencyKey)
	return id, nil
}

type webhookEntity struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Error    string `json:"error_description"`
}

type webhookBody struct {
	Event   string `json:"event"`
	Payload struct {
		Order struct {
			Entity *webhookEntity `json:"entity"`
		} `json:"order"`
		Payment struct {
			Entity *webhookEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

func (c *Client) ParseWebhook(rawBody []byte, signature string) (*gateway.Notification, error) {
	if signature == "" || c.webhookSecret == "" || !utils.VerifyWebhookSignature(string(rawBody), signature, c.webhookSecret) {
		return nil, fmt.Errorf("razorpay.ParseWebhook: %w", domain.ErrInvalidSignature)
	}

	var body webhookBody
	if err := json.Unmarshal(rawBody, &body); err != nil {
		return nil, fmt.Errorf("razorpay.ParseWebhook: decode: %v: %w", err, domain.ErrInvalidRequest)
	}

	// An order stays open after a failed attempt and the guest may retry in
	// Checkout, so only a capture is terminal here.
	var status domain.PaymentStatus
	switch body.Event {
	case "order.paid", "payment.captured":
		status = domain.PaymentStatusSuccess
	case "payment.failed", "payment.authorized":
		status = domain.PaymentStatusPending
	default:
		return nil, fmt.Errorf("razorpay.ParseWebhook: event %q: %w", body.Event, domain.ErrInvalidRequest)
	}

	n := &gateway.Notification{Status: status, Raw: json.RawMessage(rawBody)}
	if o := body.Payload.Order.Entity; o != nil {
		n.ExternalRef = o.ID
		n.Amount = domain.NewMoney(o.Amount, domain.Currency(strings.ToUpper(o.Currency)))
	}
	if p := body.Payload.Payment.Entity; p != nil {
		if n.ExternalRef == "" {
			n.ExternalRef = p.OrderID
			n.Amount = domain.NewMoney(p.Amount, domain.Currency(strings.ToUpper(p.Currency)))
		}
		n.Message = p.Error
	}
	if n.ExternalRef == "" {
		return nil, fmt.Errorf("razorpay.ParseWebhook: no order id: %w", domain.ErrInvalidRequest)
	}
	return n, nil
}

// QueryStatus maps the order state. An order only reports paid once a payment
// is captured, so failed attempts stay pending until the payment times out.
func (c *Client) QueryStatus(ctx context.Context, externalRef string) (*gateway.StatusReport, error) {
	order, err := c.orders.Fetch(externalRef, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay.QueryStatus: %v: %w", err, domain.ErrPaymentGateway)
	}

	raw, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("razorpay.QueryStatus: %w", err)
	}

	status := domain.PaymentStatusPending
	if s, _ := order["status"].(string); s == "paid" {
		status = domain.PaymentStatusSuccess
	}

	rep := &gateway.StatusReport{ExternalRef: externalRef, Status: status, Raw: raw}
	if cur, _ := order["currency"].(string); cur != "" {
		paid, ok := minorUnits(order["amount_paid"])
		if !ok {
			return nil, fmt.Errorf("razorpay.QueryStatus: amount_paid %v: %w", order["amount_paid"], domain.ErrPaymentGateway)
		}
		rep.Amount = domain.NewMoney(paid, domain.Currency(strings.ToUpper(cur)))
	}

	logging.FromContext(ctx).Debug("gateway order fetched", "gateway", Name, "order_id", externalRef, "status", status, "amount_paid", rep.Amount.Amount)
	return rep, nil
}

// minorUnits reads an SDK amount, which arrives as a JSON number.
func minorUnits(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), n == float64(int64(n))
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case nil:
		return 0, true
	}
	return 0, false
}
