package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
)

const propertyColumns = `id, host_id, title, status, currency, nightly_price, cleaning_fee,
	deposit_amount, max_guests, min_nights, cancellation_policy`

// PropertyRepository is a read-only view over the catalog's listings.
type PropertyRepository struct {
	db *sql.DB
}

func NewPropertyRepository(db *sql.DB) *PropertyRepository {
	return &PropertyRepository{db: db}
}

func (r *PropertyRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Property, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE id = $1`, id,
	)
	p, err := scanProperty(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return p, nil
}

func scanProperty(s scanner) (*domain.Property, error) {
	var p domain.Property
	var currency string
	var nightly, cleaning, deposit int64

	err := s.Scan(
		&p.ID, &p.HostID, &p.Title, &p.Status, &currency, &nightly, &cleaning,
		&deposit, &p.MaxGuests, &p.MinNights, &p.CancellationPolicy,
	)
	if err != nil {
		return nil, err
	}

	c := domain.Currency(currency)
	p.NightlyPrice = domain.NewMoney(nightly, c)
	p.CleaningFee = domain.NewMoney(cleaning, c)
	p.DepositAmount = domain.NewMoney(deposit, c)
	return &p, nil
}
