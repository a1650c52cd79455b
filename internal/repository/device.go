package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/zoosats/devicetimer/internal/model"
)

type DeviceRepository interface {
	FindByID(ctx context.Context, id string) (*model.Device, error)
	FindAll(ctx context.Context) ([]model.Device, error)
	FindByWallets(ctx context.Context, wallets []string) ([]model.Device, error)
	Create(ctx context.Context, device *model.Device) (*model.Device, error)
	Update(ctx context.Context, device *model.Device) (*model.Device, error)
	Delete(ctx context.Context, id string) error
}

type deviceRepo struct {
	db *sqlx.DB
}

func NewDeviceRepository(db *sqlx.DB) DeviceRepository {
	return &deviceRepo{db: db}
}

func (r *deviceRepo) FindByID(ctx context.Context, id string) (*model.Device, error) {
	var device model.Device
	err := r.db.GetContext(ctx, &device, `
		SELECT * FROM devices WHERE id = $1
	`, id)
	return HandleNotFound(&device, err)
}

func (r *deviceRepo) FindAll(ctx context.Context) ([]model.Device, error) {
	var devices []model.Device
	err := r.db.SelectContext(ctx, &devices, `
		SELECT * FROM devices ORDER BY id
	`)
	return devices, err
}

func (r *deviceRepo) FindByWallets(ctx context.Context, wallets []string) ([]model.Device, error) {
	if len(wallets) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM devices WHERE wallet IN (?) ORDER BY id`, wallets)
	if err != nil {
		return nil, err
	}

	var devices []model.Device
	err = r.db.SelectContext(ctx, &devices, r.db.Rebind(query), args...)
	return devices, err
}

func (r *deviceRepo) Create(ctx context.Context, device *model.Device) (*model.Device, error) {
	var created model.Device
	err := r.db.GetContext(ctx, &created, `
		INSERT INTO devices
			(id, key, title, wallet, currency, available_start, available_stop,
			 timeout, timezone, maxperday, closed_url, wait_url, switches)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING *
	`, device.ID, device.Key, device.Title, device.Wallet, device.Currency,
		device.AvailableStart, device.AvailableStop, device.Timeout, device.Timezone,
		device.MaxPerDay, device.ClosedURL, device.WaitURL, device.Switches)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *deviceRepo) Update(ctx context.Context, device *model.Device) (*model.Device, error) {
	var updated model.Device
	err := r.db.GetContext(ctx, &updated, `
		UPDATE devices SET
			title = $2,
			wallet = $3,
			currency = $4,
			available_start = $5,
			available_stop = $6,
			timeout = $7,
			timezone = $8,
			maxperday = $9,
			closed_url = $10,
			wait_url = $11,
			switches = $12
		WHERE id = $1
		RETURNING *
	`, device.ID, device.Title, device.Wallet, device.Currency,
		device.AvailableStart, device.AvailableStop, device.Timeout, device.Timezone,
		device.MaxPerDay, device.ClosedURL, device.WaitURL, device.Switches)
	return HandleNotFound(&updated, err)
}

// Delete removes a device; its payments go with it via ON DELETE CASCADE.
func (r *deviceRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = $1`, id)
	return err
}
