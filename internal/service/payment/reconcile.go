package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
	"github.com/josh-kwaku/boma-settlement/internal/logging"
)

// Reconcile asks the gateway for the status of a payment and applies it
// through the same path as a webhook. A payment the gateway still reports as
// non-terminal after PaymentTimeout is failed with reason timeout and its
// booking cancelled. When the gateway cannot be asked the payment is left
// for the next sweep.
func (o *Orchestrator) Reconcile(ctx context.Context, p *domain.Payment) (Outcome, error) {
	log := logging.FromContext(ctx).With("payment_id", p.ID, "gateway", p.Gateway)
	ctx = logging.WithLogger(ctx, log)

	adapter, err := o.gateways.Get(p.Gateway)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("Reconcile: %w", err)
	}

	report, err := adapter.QueryStatus(ctx, p.ExternalRef)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Warn("gateway status query failed, payment left for next sweep", "error", err)
		return OutcomeFailed, fmt.Errorf("Reconcile: %w", err)
	}

	var reported domain.PaymentStatus
	if report != nil {
		reported = report.Status
	}

	if p.Status.IsTerminal() {
		if reported != "" && reported.IsTerminal() && reported != p.Status {
			o.recordAnomaly(ctx, p, domain.AnomalyReconciliationMismatch, reported,
				fmt.Sprintf("gateway reports %s, ledger recorded %s", reported, p.Status))
			return OutcomeAnomaly, fmt.Errorf("Reconcile: %w", domain.ErrReconciliationMismatch)
		}
		return OutcomeDuplicate, nil
	}

	if reported == domain.PaymentStatusSuccess && !report.Amount.IsZero() && !report.Amount.Equal(p.Amount) {
		o.recordAnomaly(ctx, p, domain.AnomalyAmountMismatch, reported,
			fmt.Sprintf("gateway collected %s, payment is %s", report.Amount, p.Amount))
		return OutcomeAnomaly, fmt.Errorf("Reconcile: %w", domain.ErrAmountMismatch)
	}

	if reported.IsTerminal() {
		outcome, err := o.applyStatus(ctx, p.ID, statusReport{
			Status: reported,
			Raw:    report.Raw,
			Source: domain.PaymentEventSourceReconcile,
		})
		if err != nil {
			return outcome, fmt.Errorf("Reconcile: %w", err)
		}
		log.Info("payment reconciled", "status", reported, "outcome", outcome)
		return outcome, nil
	}

	if reported == domain.PaymentStatusPending && p.Status == domain.PaymentStatusInitiated {
		if _, err := o.applyStatus(ctx, p.ID, statusReport{
			Status: reported,
			Raw:    report.Raw,
			Source: domain.PaymentEventSourceReconcile,
		}); err != nil {
			return OutcomeFailed, fmt.Errorf("Reconcile: %w", err)
		}
	}
	return o.timeoutIfDue(ctx, p)
}

func (o *Orchestrator) timeoutIfDue(ctx context.Context, p *domain.Payment) (Outcome, error) {
	if o.settings.PaymentTimeout <= 0 || o.now().Sub(p.CreatedAt) < o.settings.PaymentTimeout {
		return OutcomeIgnored, nil
	}

	outcome, err := o.applyStatus(ctx, p.ID, statusReport{
		Status:      domain.PaymentStatusFailed,
		Message:     domain.FailureReasonTimeout,
		Source:      domain.PaymentEventSourceReconcile,
		ForceCancel: true,
	})
	if err != nil {
		return outcome, fmt.Errorf("timeoutIfDue: %w", err)
	}
	logging.FromContext(ctx).Warn("payment timed out", "outcome", outcome)
	return outcome, nil
}
