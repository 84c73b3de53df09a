// Package ledger is the append-only double-entry journal. Every money movement
// is one group whose debits equal its credits per currency.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
	"github.com/josh-kwaku/boma-settlement/internal/logging"
)

type store interface {
	CreateGroup(ctx context.Context, tx *sql.Tx, g *domain.LedgerGroup) error
	CreateEntry(ctx context.Context, tx *sql.Tx, e *domain.LedgerEntry) error
	Balance(ctx context.Context, account domain.LedgerAccount, entityID *uuid.UUID, currency domain.Currency) (int64, error)
	GetByGroupID(ctx context.Context, groupID uuid.UUID) ([]domain.LedgerEntry, error)
	GetByReference(ctx context.Context, refType domain.ReferenceType, refID uuid.UUID) ([]domain.LedgerEntry, error)
}

type Ledger struct {
	store store
}

func New(s store) *Ledger {
	return &Ledger{store: s}
}

// Post validates g and writes it inside tx. Nothing is written when validation
// fails. A group id that was already posted returns ErrLedgerGroupExists and
// the caller must roll tx back.
func (l *Ledger) Post(ctx context.Context, tx *sql.Tx, g *domain.LedgerGroup) error {
	if err := Validate(g); err != nil {
		logging.FromContext(ctx).Error("ledger group rejected",
			"group_id", g.ID,
			"reference_type", g.ReferenceType,
			"reference_id", g.ReferenceID,
			"error", err,
		)
		return fmt.Errorf("Post: %w", err)
	}

	if err := l.store.CreateGroup(ctx, tx, g); err != nil {
		return fmt.Errorf("Post: %w", err)
	}

	now := time.Now().UTC()
	for i := range g.Entries {
		e := &g.Entries[i]
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		e.GroupID = g.ID
		e.ReferenceType = g.ReferenceType
		e.ReferenceID = g.ReferenceID
		e.CreatedAt = now
		if err := l.store.CreateEntry(ctx, tx, e); err != nil {
			return fmt.Errorf("Post: entry %d: %w", i, err)
		}
	}
	return nil
}

// Balance is credits minus debits for the account, derived from history every time.
func (l *Ledger) Balance(ctx context.Context, account domain.LedgerAccount, entityID *uuid.UUID, currency domain.Currency) (domain.Money, error) {
	if !account.IsValid() {
		return domain.Money{}, fmt.Errorf("Balance: account %q: %w", account, domain.ErrInvalidRequest)
	}
	if account.PerEntity() && entityID == nil {
		return domain.Money{}, fmt.Errorf("Balance: %s needs an entity id: %w", account, domain.ErrInvalidRequest)
	}
	if !account.PerEntity() {
		entityID = nil
	}
	v, err := l.store.Balance(ctx, account, entityID, currency)
	if err != nil {
		return domain.Money{}, fmt.Errorf("Balance: %w", err)
	}
	return domain.NewMoney(v, currency), nil
}

// Group returns the lines of one posted movement.
func (l *Ledger) Group(ctx context.Context, groupID uuid.UUID) ([]domain.LedgerEntry, error) {
	entries, err := l.store.GetByGroupID(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("Group: %w", err)
	}
	return entries, nil
}

// Entries returns every line posted against a payment, refund or dispute.
func (l *Ledger) Entries(ctx context.Context, refType domain.ReferenceType, refID uuid.UUID) ([]domain.LedgerEntry, error) {
	if !refType.IsValid() {
		return nil, fmt.Errorf("Entries: reference type %q: %w", refType, domain.ErrInvalidRequest)
	}
	entries, err := l.store.GetByReference(ctx, refType, refID)
	if err != nil {
		return nil, fmt.Errorf("Entries: %w", err)
	}
	return entries, nil
}

// Validate checks shape and per-currency balance without touching storage.
func Validate(g *domain.LedgerGroup) error {
	if g.ID == uuid.Nil {
		return fmt.Errorf("Validate: missing group id: %w", domain.ErrInvalidRequest)
	}
	if len(g.Entries) < 2 {
		return fmt.Errorf("Validate: group %s has %d entries: %w", g.ID, len(g.Entries), domain.ErrLedgerImbalance)
	}

	sums := make(map[domain.Currency][2]int64)
	for i, e := range g.Entries {
		if !e.Account.IsValid() {
			return fmt.Errorf("Validate: entry %d account %q: %w", i, e.Account, domain.ErrInvalidRequest)
		}
		if !e.Currency.IsValid() {
			return fmt.Errorf("Validate: entry %d: %w", i, domain.ErrInvalidCurrency)
		}
		if e.Debit < 0 || e.Credit < 0 || (e.Debit > 0) == (e.Credit > 0) {
			return fmt.Errorf("Validate: entry %d needs exactly one positive side: %w", i, domain.ErrInvalidAmount)
		}
		if e.Account.PerEntity() != (e.EntityID != nil) {
			return fmt.Errorf("Validate: entry %d entity scope for %s: %w", i, e.Account, domain.ErrInvalidRequest)
		}
		s := sums[e.Currency]
		s[0] += e.Debit
		s[1] += e.Credit
		sums[e.Currency] = s
	}

	for c, s := range sums {
		if s[0] != s[1] {
			return fmt.Errorf("Validate: %s debits %d credits %d: %w", c, s[0], s[1], domain.ErrLedgerImbalance)
		}
	}
	return nil
}
