package domain

import (
	"time"

	"github.com/google/uuid"
)

type LedgerAccount string

const (
	AccountGuestWallet       LedgerAccount = "guest_wallet"
	AccountHostWallet        LedgerAccount = "host_wallet"
	AccountPlatformRevenue   LedgerAccount = "platform_revenue"
	AccountGatewayReceivable LedgerAccount = "gateway_receivable"
	AccountGatewayFees       LedgerAccount = "gateway_fees"
)

func (a LedgerAccount) IsValid() bool {
	switch a {
	case AccountGuestWallet, AccountHostWallet, AccountPlatformRevenue, AccountGatewayReceivable, AccountGatewayFees:
		return true
	}
	return false
}

// PerEntity reports whether balances on this account are kept per guest or host.
func (a LedgerAccount) PerEntity() bool {
	return a == AccountGuestWallet || a == AccountHostWallet
}

type ReferenceType string

const (
	ReferencePayment ReferenceType = "payment"
	ReferenceRefund  ReferenceType = "refund"
	ReferenceDispute ReferenceType = "dispute"
)

func (r ReferenceType) IsValid() bool {
	return r == ReferencePayment || r == ReferenceRefund || r == ReferenceDispute
}

type LedgerEntry struct {
	ID            uuid.UUID
	GroupID       uuid.UUID
	Account       LedgerAccount
	EntityID      *uuid.UUID
	Debit         int64
	Credit        int64
	Currency      Currency
	ReferenceType ReferenceType
	ReferenceID   uuid.UUID
	CreatedAt     time.Time
}

// LedgerGroup is one money movement. Its ID doubles as the idempotency key.
type LedgerGroup struct {
	ID            uuid.UUID
	ReferenceType ReferenceType
	ReferenceID   uuid.UUID
	Description   string
	Entries       []LedgerEntry
}
