package model

import "time"

// PaymentState tracks the three-phase payment lifecycle. A record moves
// pending -> issued -> used exactly once in that order and is never re-armed.
type PaymentState string

const (
	PaymentStatePending PaymentState = "pending"
	PaymentStateIssued  PaymentState = "issued"
	PaymentStateUsed    PaymentState = "used"
)

type Payment struct {
	ID       string       `db:"id" json:"id"`
	DeviceID string       `db:"device_id" json:"device_id"`
	SwitchID string       `db:"switch_id" json:"switch_id"`
	Payload  string       `db:"payload" json:"payload"`
	State    PaymentState `db:"state" json:"state"`
	// PayHash is empty while pending and holds the invoice hash once issued.
	PayHash   string    `db:"payhash" json:"payhash"`
	Msat      int64     `db:"msat" json:"msat"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type CreatePaymentParams struct {
	DeviceID string
	SwitchID string
	Payload  string
	Msat     int64
}
