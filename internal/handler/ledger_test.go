package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/boma-settlement/internal/auth"
	"github.com/josh-kwaku/boma-settlement/internal/domain"
)

type mockBalanceReader struct {
	amount  int64
	called  bool
	entries []domain.LedgerEntry
}

func (m *mockBalanceReader) Entries(_ context.Context, _ domain.ReferenceType, refID uuid.UUID) ([]domain.LedgerEntry, error) {
	m.called = true
	var out []domain.LedgerEntry
	for _, e := range m.entries {
		if e.ReferenceID == refID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockBalanceReader) Balance(_ context.Context, _ domain.LedgerAccount, _ *uuid.UUID, currency domain.Currency) (domain.Money, error) {
	m.called = true
	return domain.NewMoney(m.amount, currency), nil
}

func TestLedgerBalance(t *testing.T) {
	guest := domain.Actor{UserID: uuid.New(), Role: domain.RoleGuest}
	host := domain.Actor{UserID: uuid.New(), Role: domain.RoleHost}
	admin := domain.Actor{UserID: uuid.New(), Role: domain.RoleAdmin}

	tests := []struct {
		name       string
		actor      domain.Actor
		query      string
		wantStatus int
	}{
		{
			name:       "guest reads own wallet",
			actor:      guest,
			query:      "account=guest_wallet&currency=TZS",
			wantStatus: http.StatusOK,
		},
		{
			name:       "host reads own wallet",
			actor:      host,
			query:      "account=host_wallet&currency=TZS&entity_id=" + host.UserID.String(),
			wantStatus: http.StatusOK,
		},
		{
			name:       "guest cannot read someone else",
			actor:      guest,
			query:      "account=guest_wallet&currency=TZS&entity_id=" + uuid.NewString(),
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "host cannot read platform revenue",
			actor:      host,
			query:      "account=platform_revenue&currency=TZS",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "admin reads platform revenue",
			actor:      admin,
			query:      "account=platform_revenue&currency=TZS",
			wantStatus: http.StatusOK,
		},
		{
			name:       "unknown account",
			actor:      admin,
			query:      "account=suspense&currency=TZS",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad entity id",
			actor:      admin,
			query:      "account=host_wallet&currency=TZS&entity_id=nope",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reader := &mockBalanceReader{amount: 110000}
			h := NewLedgerHandler(reader)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger/balance?"+tc.query, nil)
			req = req.WithContext(auth.ContextWithActor(req.Context(), tc.actor))
			rec := httptest.NewRecorder()

			h.Balance(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantStatus == http.StatusOK, reader.called)
		})
	}
}

func TestLedgerEntries(t *testing.T) {
	paymentID := uuid.New()
	reader := &mockBalanceReader{entries: []domain.LedgerEntry{
		{ID: uuid.New(), GroupID: paymentID, Account: domain.AccountGatewayReceivable, Debit: 126500, Currency: domain.CurrencyTZS, ReferenceType: domain.ReferencePayment, ReferenceID: paymentID},
		{ID: uuid.New(), GroupID: paymentID, Account: domain.AccountPlatformRevenue, Credit: 126500, Currency: domain.CurrencyTZS, ReferenceType: domain.ReferencePayment, ReferenceID: paymentID},
	}}
	h := NewLedgerHandler(reader)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantLines  int
	}{
		{"payment trail", "reference_type=payment&reference_id=" + paymentID.String(), http.StatusOK, 2},
		{"nothing posted", "reference_type=refund&reference_id=" + uuid.NewString(), http.StatusOK, 0},
		{"unknown type", "reference_type=transfer&reference_id=" + paymentID.String(), http.StatusBadRequest, 0},
		{"bad id", "reference_type=payment&reference_id=nope", http.StatusBadRequest, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger/entries?"+tc.query, nil)
			rec := httptest.NewRecorder()

			h.Entries(rec, req)

			require.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantStatus != http.StatusOK {
				return
			}
			var resp struct {
				Data []ledgerEntryDTO `json:"data"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Len(t, resp.Data, tc.wantLines)
		})
	}
}
