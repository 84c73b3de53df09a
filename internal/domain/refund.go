package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RefundReason string

const (
	RefundReasonCancellation   RefundReason = "cancellation"
	RefundReasonDispute        RefundReason = "dispute"
	RefundReasonDepositRelease RefundReason = "deposit_release"
	RefundReasonLatePayment    RefundReason = "late_payment"
	RefundReasonSystemError    RefundReason = "system_error"
)

type RefundStatus string

const (
	RefundStatusPending RefundStatus = "pending"
	RefundStatusSuccess RefundStatus = "success"
	RefundStatusFailed  RefundStatus = "failed"
)

type Refund struct {
	ID         uuid.UUID
	PaymentID  uuid.UUID
	BookingID  uuid.UUID
	Amount     Money
	Reason     RefundReason
	Status     RefundStatus
	GatewayRef *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RefundQuote is what a cancellation returns to the caller.
type RefundQuote struct {
	BookingID      uuid.UUID          `json:"booking_id"`
	Policy         CancellationPolicy `json:"policy"`
	Fraction       decimal.Decimal    `json:"fraction"`
	RefundableBase Money              `json:"refundable_base"`
	Refund         Money              `json:"refund"`
	DepositRefund  Money              `json:"deposit_refund"`
	NonRefundable  Money              `json:"non_refundable"`
	Paid           bool               `json:"paid"`
}

// TotalRefund is the sum of the policy refund and the deposit.
func (q RefundQuote) TotalRefund() Money {
	return Money{Amount: q.Refund.Amount + q.DepositRefund.Amount, Currency: q.Refund.Currency}
}
