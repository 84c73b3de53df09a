package ledger

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
)

// builder accumulates lines and drops zero amounts so callers can pass optional fees.
type builder struct {
	g domain.LedgerGroup
}

func newBuilder(id uuid.UUID, refType domain.ReferenceType, refID uuid.UUID, desc string) *builder {
	return &builder{g: domain.LedgerGroup{ID: id, ReferenceType: refType, ReferenceID: refID, Description: desc}}
}

func (b *builder) debit(account domain.LedgerAccount, entity *uuid.UUID, m domain.Money) *builder {
	if m.Amount > 0 {
		b.g.Entries = append(b.g.Entries, domain.LedgerEntry{Account: account, EntityID: entity, Debit: m.Amount, Currency: m.Currency})
	}
	return b
}

func (b *builder) credit(account domain.LedgerAccount, entity *uuid.UUID, m domain.Money) *builder {
	if m.Amount > 0 {
		b.g.Entries = append(b.g.Entries, domain.LedgerEntry{Account: account, EntityID: entity, Credit: m.Amount, Currency: m.Currency})
	}
	return b
}

func (b *builder) build() *domain.LedgerGroup {
	g := b.g
	return &g
}

func ptr(id uuid.UUID) *uuid.UUID { return &id }

// Settlement records a successful payment for a live booking, keyed by the payment id.
// The deposit stays on the guest wallet until released or awarded.
func Settlement(p *domain.Payment, b *domain.Booking, gatewayFee domain.Money) (*domain.LedgerGroup, error) {
	if !p.Amount.Equal(b.Price.AmountDue()) {
		return nil, fmt.Errorf("Settlement: paid %s, due %s: %w", p.Amount, b.Price.AmountDue(), domain.ErrAmountMismatch)
	}
	if gatewayFee.Currency != "" && gatewayFee.Currency != p.Amount.Currency {
		return nil, fmt.Errorf("Settlement: gateway fee: %w", domain.ErrCurrencyMismatch)
	}

	hostShare, err := b.Price.Total.Sub(b.Price.PlatformFee)
	if err != nil {
		return nil, fmt.Errorf("Settlement: %w", err)
	}
	guest, host := ptr(b.GuestID), ptr(b.HostID)

	return newBuilder(p.ID, domain.ReferencePayment, p.ID, "booking settlement").
		debit(domain.AccountGatewayReceivable, nil, p.Amount).
		credit(domain.AccountGuestWallet, guest, p.Amount).
		debit(domain.AccountGuestWallet, guest, b.Price.Total).
		credit(domain.AccountHostWallet, host, hostShare).
		credit(domain.AccountPlatformRevenue, nil, b.Price.PlatformFee).
		debit(domain.AccountPlatformRevenue, nil, gatewayFee).
		credit(domain.AccountGatewayFees, nil, gatewayFee).
		build(), nil
}

// Capture records money that arrived for a booking that can no longer be
// honoured. It all stays owed to the guest.
func Capture(p *domain.Payment, guestID uuid.UUID) *domain.LedgerGroup {
	guest := ptr(guestID)
	return newBuilder(p.ID, domain.ReferencePayment, p.ID, "late payment capture").
		debit(domain.AccountGatewayReceivable, nil, p.Amount).
		credit(domain.AccountGuestWallet, guest, p.Amount).
		build()
}

// CancellationRefund moves the policy refund from the host back to the guest.
func CancellationRefund(refundID uuid.UUID, b *domain.Booking, amount domain.Money) *domain.LedgerGroup {
	return newBuilder(refundID, domain.ReferenceRefund, refundID, "cancellation refund").
		debit(domain.AccountHostWallet, ptr(b.HostID), amount).
		credit(domain.AccountGuestWallet, ptr(b.GuestID), amount).
		build()
}

// DisputeAward pays a host claim out of the held deposit.
func DisputeAward(awardID uuid.UUID, b *domain.Booking, amount domain.Money) *domain.LedgerGroup {
	return newBuilder(awardID, domain.ReferenceDispute, b.ID, "dispute award").
		debit(domain.AccountGuestWallet, ptr(b.GuestID), amount).
		credit(domain.AccountHostWallet, ptr(b.HostID), amount).
		build()
}
