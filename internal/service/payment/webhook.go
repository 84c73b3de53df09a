package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
	"github.com/josh-kwaku/boma-settlement/internal/gateway"
	"github.com/josh-kwaku/boma-settlement/internal/logging"
)

// SignatureHeader names the request header carrying the gateway's signature.
func (o *Orchestrator) SignatureHeader(gatewayName string) string {
	return o.gateways.SignatureHeader(gatewayName)
}

// HandleWebhook ingests a gateway callback. It never fails: the gateway is
// always acknowledged and anything that could not be applied now is picked
// up by reconciliation, which asks the gateway directly.
func (o *Orchestrator) HandleWebhook(ctx context.Context, gatewayName string, body []byte, signature string) Outcome {
	log := logging.FromContext(ctx).With("gateway", gatewayName)
	ctx = logging.WithLogger(ctx, log)

	adapter, err := o.gateways.Get(gatewayName)
	if err != nil {
		log.Warn("webhook for unknown gateway", "error", err)
		return OutcomeRejected
	}

	n, err := adapter.ParseWebhook(body, signature)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSignature) {
			log.Warn("webhook signature rejected")
		} else {
			log.Warn("webhook payload rejected", "error", err)
		}
		return OutcomeRejected
	}
	log = log.With("external_ref", n.ExternalRef, "reported_status", n.Status)
	ctx = logging.WithLogger(ctx, log)

	outcome := o.applyNotification(ctx, adapter.Name(), n)
	o.audit(ctx, adapter.Name(), n, outcome)

	log.Info("webhook processed", "outcome", outcome)
	return outcome
}

func (o *Orchestrator) applyNotification(ctx context.Context, gatewayName string, n *gateway.Notification) Outcome {
	log := logging.FromContext(ctx)

	lookupCtx, cancel := context.WithTimeout(ctx, o.settings.StoreTimeout)
	p, err := o.payments.GetByExternalRef(lookupCtx, gatewayName, n.ExternalRef)
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn("webhook for unknown payment")
			return OutcomeUnmatched
		}
		log.Error("webhook payment lookup failed", "error", err)
		return OutcomeFailed
	}

	if n.Status == domain.PaymentStatusSuccess && n.Amount.Currency != "" && !n.Amount.Equal(p.Amount) {
		o.recordAnomaly(ctx, p, domain.AnomalyAmountMismatch, n.Status,
			fmt.Sprintf("gateway reported %s, payment is %s", n.Amount, p.Amount))
		return OutcomeAnomaly
	}

	outcome, err := o.applyStatus(ctx, p.ID, statusReport{
		Status:  n.Status,
		Message: n.Message,
		Raw:     n.Raw,
		Source:  domain.PaymentEventSourceWebhook,
	})
	if err != nil {
		log.Error("webhook could not be applied, left for reconciliation", "payment_id", p.ID, "error", err)
		return OutcomeFailed
	}
	return outcome
}

func (o *Orchestrator) audit(ctx context.Context, gatewayName string, n *gateway.Notification, outcome Outcome) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.settings.StoreTimeout)
	defer cancel()

	raw := n.Raw
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	err := o.gatewayEvents.Create(ctx, &domain.GatewayEvent{
		ID:          uuid.New(),
		Gateway:     gatewayName,
		ExternalRef: n.ExternalRef,
		Status:      n.Status,
		Payload:     raw,
		Outcome:     string(outcome),
		ReceivedAt:  o.now().UTC(),
	})
	if err != nil {
		logging.FromContext(ctx).Error("failed to record gateway event", "error", err)
	}
}
