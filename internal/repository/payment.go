package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/zoosats/devicetimer/internal/model"
)

type PaymentRepository interface {
	FindByID(ctx context.Context, id string) (*model.Payment, error)
	FindByPayHash(ctx context.Context, payhash string) (*model.Payment, error)
	Create(ctx context.Context, params model.CreatePaymentParams) (*model.Payment, error)
	MarkIssued(ctx context.Context, id string, payhash string) (*model.Payment, error)
	MarkUsed(ctx context.Context, id string) (*model.Payment, error)
	LastSettled(ctx context.Context, deviceID, switchID string) (*model.Payment, error)
	CountSettledSince(ctx context.Context, deviceID, switchID string, since time.Time) (int, error)
}

type paymentRepo struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) PaymentRepository {
	return &paymentRepo{db: db}
}

func (r *paymentRepo) FindByID(ctx context.Context, id string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.GetContext(ctx, &payment, `
		SELECT * FROM payments WHERE id = $1
	`, id)
	return HandleNotFound(&payment, err)
}

func (r *paymentRepo) FindByPayHash(ctx context.Context, payhash string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.GetContext(ctx, &payment, `
		SELECT * FROM payments WHERE payhash = $1
	`, payhash)
	return HandleNotFound(&payment, err)
}

func (r *paymentRepo) Create(ctx context.Context, params model.CreatePaymentParams) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.GetContext(ctx, &payment, `
		INSERT INTO payments (id, device_id, switch_id, payload, state, msat)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *
	`, uuid.NewString(), params.DeviceID, params.SwitchID, params.Payload,
		model.PaymentStatePending, params.Msat)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// MarkIssued attaches the invoice hash to a pending record. The state guard
// in the WHERE clause keeps the pending -> issued transition one-way.
func (r *paymentRepo) MarkIssued(ctx context.Context, id string, payhash string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.GetContext(ctx, &payment, `
		UPDATE payments SET state = $2, payhash = $3
		WHERE id = $1 AND state = $4
		RETURNING *
	`, id, model.PaymentStateIssued, payhash, model.PaymentStatePending)
	issued, err := HandleNotFound(&payment, err)
	if err != nil {
		return nil, err
	}
	if issued == nil {
		return nil, fmt.Errorf("payment %s is not pending", id)
	}
	return issued, nil
}

// MarkUsed consumes a settled record. Safe to call on an already-used record;
// the caller checks the returned state for the at-most-once guarantee.
func (r *paymentRepo) MarkUsed(ctx context.Context, id string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.GetContext(ctx, &payment, `
		UPDATE payments SET state = $2
		WHERE id = $1
		RETURNING *
	`, id, model.PaymentStateUsed)
	return HandleNotFound(&payment, err)
}

func (r *paymentRepo) LastSettled(ctx context.Context, deviceID, switchID string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.GetContext(ctx, &payment, `
		SELECT * FROM payments
		WHERE state = $1 AND device_id = $2 AND switch_id = $3
		ORDER BY created_at DESC
		LIMIT 1
	`, model.PaymentStateUsed, deviceID, switchID)
	return HandleNotFound(&payment, err)
}

func (r *paymentRepo) CountSettledSince(ctx context.Context, deviceID, switchID string, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM payments
		WHERE state = $1 AND device_id = $2 AND switch_id = $3 AND created_at > $4
	`, model.PaymentStateUsed, deviceID, switchID, since)
	return count, err
}
