package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/josh-kwaku/boma-settlement/internal/logging"
	"github.com/josh-kwaku/boma-settlement/internal/service/payment"
)

const maxWebhookBody = 1 << 20

type webhookService interface {
	SignatureHeader(gatewayName string) string
	HandleWebhook(ctx context.Context, gatewayName string, body []byte, signature string) payment.Outcome
}

type WebhookHandler struct {
	payments webhookService
}

func NewWebhookHandler(payments webhookService) *WebhookHandler {
	return &WebhookHandler{payments: payments}
}

// Receive acknowledges every delivery with 200. Gateways retry anything else,
// and a rejected or unmatched notification will not get better on retry.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	gatewayName := r.PathValue("gateway")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		log.Warn("failed to read webhook body", "gateway", gatewayName, "error", err)
		RespondSuccess(w, http.StatusOK, map[string]string{"status": string(payment.OutcomeRejected)})
		return
	}

	var signature string
	if header := h.payments.SignatureHeader(gatewayName); header != "" {
		signature = r.Header.Get(header)
	}

	outcome := h.payments.HandleWebhook(r.Context(), gatewayName, body, signature)
	log.Info("webhook acknowledged", "gateway", gatewayName, "outcome", outcome)

	RespondSuccess(w, http.StatusOK, map[string]string{"status": string(outcome)})
}
