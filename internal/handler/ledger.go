package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/boma-settlement/internal/auth"
	"github.com/josh-kwaku/boma-settlement/internal/domain"
	"github.com/josh-kwaku/boma-settlement/internal/logging"
)

type ledgerReader interface {
	Balance(ctx context.Context, account domain.LedgerAccount, entityID *uuid.UUID, currency domain.Currency) (domain.Money, error)
	Entries(ctx context.Context, refType domain.ReferenceType, refID uuid.UUID) ([]domain.LedgerEntry, error)
}

type LedgerHandler struct {
	ledger ledgerReader
}

func NewLedgerHandler(ledger ledgerReader) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

type balanceDTO struct {
	Account  string     `json:"account"`
	EntityID *uuid.UUID `json:"entity_id,omitempty"`
	Amount   int64      `json:"amount"`
	Currency string     `json:"currency"`
}

// Balance serves GET /api/v1/ledger/balance?account=&currency=&entity_id=.
// Guests and hosts may read only their own wallet; admins read any account.
func (h *LedgerHandler) Balance(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	q := r.URL.Query()
	account := domain.LedgerAccount(q.Get("account"))
	currency := domain.Currency(q.Get("currency"))

	var fields []FieldError
	if !account.IsValid() {
		fields = append(fields, FieldError{Field: "account", Message: "unknown ledger account"})
	}
	if !currency.IsValid() {
		fields = append(fields, FieldError{Field: "currency", Message: "unsupported currency"})
	}

	var entityID *uuid.UUID
	if raw := q.Get("entity_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			fields = append(fields, FieldError{Field: "entity_id", Message: "must be a valid UUID"})
		} else {
			entityID = &id
		}
	} else if account.PerEntity() && !actor.IsPrivileged() {
		entityID = &actor.UserID
	}
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	if !canReadBalance(actor, account, entityID) {
		RespondAppError(w, ErrForbidden, nil)
		return
	}

	bal, err := h.ledger.Balance(r.Context(), account, entityID, currency)
	if err != nil {
		logging.FromContext(r.Context()).Warn("balance lookup failed", "account", account, "error", err)
		RespondDomainError(w, err)
		return
	}

	if !account.PerEntity() {
		entityID = nil
	}
	RespondSuccess(w, http.StatusOK, balanceDTO{
		Account:  string(account),
		EntityID: entityID,
		Amount:   bal.Amount,
		Currency: string(bal.Currency),
	})
}

type ledgerEntryDTO struct {
	ID        uuid.UUID  `json:"id"`
	GroupID   uuid.UUID  `json:"group_id"`
	Account   string     `json:"account"`
	EntityID  *uuid.UUID `json:"entity_id,omitempty"`
	Debit     int64      `json:"debit"`
	Credit    int64      `json:"credit"`
	Currency  string     `json:"currency"`
	CreatedAt time.Time  `json:"created_at"`
}

// Entries serves GET /api/v1/ledger/entries?reference_type=&reference_id=, the
// audit trail of one payment, refund or dispute. Admin only.
func (h *LedgerHandler) Entries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	refType := domain.ReferenceType(q.Get("reference_type"))

	var fields []FieldError
	if !refType.IsValid() {
		fields = append(fields, FieldError{Field: "reference_type", Message: "must be payment, refund or dispute"})
	}
	refID, err := uuid.Parse(q.Get("reference_id"))
	if err != nil {
		fields = append(fields, FieldError{Field: "reference_id", Message: "must be a valid UUID"})
	}
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	entries, err := h.ledger.Entries(r.Context(), refType, refID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("ledger entries lookup failed", "reference_id", refID, "error", err)
		RespondDomainError(w, err)
		return
	}

	out := make([]ledgerEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, ledgerEntryDTO{
			ID:        e.ID,
			GroupID:   e.GroupID,
			Account:   string(e.Account),
			EntityID:  e.EntityID,
			Debit:     e.Debit,
			Credit:    e.Credit,
			Currency:  string(e.Currency),
			CreatedAt: e.CreatedAt,
		})
	}
	RespondSuccess(w, http.StatusOK, out)
}

func canReadBalance(actor domain.Actor, account domain.LedgerAccount, entityID *uuid.UUID) bool {
	if actor.IsPrivileged() {
		return true
	}
	if entityID == nil || *entityID != actor.UserID {
		return false
	}
	switch actor.Role {
	case domain.RoleGuest:
		return account == domain.AccountGuestWallet
	case domain.RoleHost:
		return account == domain.AccountHostWallet
	}
	return false
}
