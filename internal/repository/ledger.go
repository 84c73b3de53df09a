package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
)

const ledgerColumns = `id, group_id, account, entity_id, debit, credit, currency,
	reference_type, reference_id, created_at`

// LedgerRepository only appends. There is deliberately no update or delete.
type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// CreateGroup writes the group header. The primary key on the group id turns a
// second post of the same movement into ErrLedgerGroupExists.
func (r *LedgerRepository) CreateGroup(ctx context.Context, tx *sql.Tx, g *domain.LedgerGroup) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_groups (id, reference_type, reference_id, description)
		VALUES ($1, $2, $3, $4)`,
		g.ID, g.ReferenceType, g.ReferenceID, g.Description,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("CreateGroup: %w", domain.ErrLedgerGroupExists)
		}
		return fmt.Errorf("CreateGroup: %w", err)
	}
	return nil
}

func (r *LedgerRepository) CreateEntry(ctx context.Context, tx *sql.Tx, e *domain.LedgerEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (
			id, group_id, account, entity_id, debit, credit, currency,
			reference_type, reference_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.GroupID, e.Account, e.EntityID, e.Debit, e.Credit, e.Currency,
		e.ReferenceType, e.ReferenceID, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("CreateEntry: %w", err)
	}
	return nil
}

// Balance sums credit minus debit. A nil entityID selects the platform-wide row set.
func (r *LedgerRepository) Balance(ctx context.Context, account domain.LedgerAccount, entityID *uuid.UUID, currency domain.Currency) (int64, error) {
	var balance int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(credit) - SUM(debit), 0) FROM ledger_entries
		WHERE account = $1 AND entity_id IS NOT DISTINCT FROM $2 AND currency = $3`,
		account, entityID, currency,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("Balance: %w", err)
	}
	return balance, nil
}

func (r *LedgerRepository) GetByGroupID(ctx context.Context, groupID uuid.UUID) ([]domain.LedgerEntry, error) {
	return r.list(ctx, "GetByGroupID",
		`SELECT `+ledgerColumns+` FROM ledger_entries WHERE group_id = $1 ORDER BY created_at, id`, groupID)
}

func (r *LedgerRepository) GetByReference(ctx context.Context, refType domain.ReferenceType, refID uuid.UUID) ([]domain.LedgerEntry, error) {
	return r.list(ctx, "GetByReference",
		`SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE reference_type = $1 AND reference_id = $2 ORDER BY created_at, id`, refType, refID)
}

func (r *LedgerRepository) list(ctx context.Context, op, query string, args ...any) ([]domain.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return entries, nil
}

func scanLedgerEntry(s scanner) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var entityID uuid.NullUUID
	var currency string

	err := s.Scan(
		&e.ID, &e.GroupID, &e.Account, &entityID, &e.Debit, &e.Credit, &currency,
		&e.ReferenceType, &e.ReferenceID, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Currency = domain.Currency(currency)
	if entityID.Valid {
		e.EntityID = &entityID.UUID
	}
	return &e, nil
}
