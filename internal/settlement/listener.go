// Package settlement consumes confirmed-payment events from the wallet core
// and triggers device actuation.
package settlement

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/zoosats/devicetimer/internal/model"
	"github.com/zoosats/devicetimer/internal/repository"
	"github.com/zoosats/devicetimer/internal/service"
)

// Extra is the correlation metadata attached to the invoice at creation.
type Extra struct {
	Tag string `json:"tag"`
	ID  string `json:"id"`
}

// Event is one confirmed payment from the wallet core.
type Event struct {
	PaymentHash string `json:"payment_hash"`
	AmountMsat  int64  `json:"amount"`
	Extra       Extra  `json:"extra"`
}

// Dispatcher pushes one actuation message to a device's live connections.
type Dispatcher interface {
	Dispatch(deviceID string, message string) bool
}

// Listener drains a settlement feed strictly in arrival order. One listener
// runs per process.
type Listener struct {
	payments   repository.PaymentRepository
	devices    repository.DeviceRepository
	dispatcher Dispatcher
}

func NewListener(
	payments repository.PaymentRepository,
	devices repository.DeviceRepository,
	dispatcher Dispatcher,
) *Listener {
	return &Listener{
		payments:   payments,
		devices:    devices,
		dispatcher: dispatcher,
	}
}

// Run blocks on the event stream until ctx is cancelled or the stream
// closes. Every event is fully handled before the next one is read.
func (l *Listener) Run(ctx context.Context, events <-chan Event) {
	log.Info().Msg("settlement listener started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("settlement listener stopped")
			return
		case event, ok := <-events:
			if !ok {
				log.Info().Msg("settlement feed closed")
				return
			}
			l.handle(ctx, event)
		}
	}
}

// lookup correlates an event to a local record, by the id we stamped into
// the invoice extra when present, by payment hash otherwise. Wallet cores
// that strip unknown extra fields still carry the hash.
func (l *Listener) lookup(ctx context.Context, event Event) (*model.Payment, error) {
	if event.Extra.ID != "" {
		return l.payments.FindByID(ctx, event.Extra.ID)
	}
	if event.PaymentHash != "" {
		return l.payments.FindByPayHash(ctx, event.PaymentHash)
	}
	return nil, nil
}

// handle marks the payment used and pushes the actuation payload. Delivery
// is best-effort: the record stays used no matter what happens on the wire.
func (l *Listener) handle(ctx context.Context, event Event) {
	if event.Extra.Tag != service.InvoiceTag {
		return
	}

	payment, err := l.lookup(ctx, event)
	if err != nil {
		log.Error().Err(err).
			Str("paymentId", event.Extra.ID).
			Str("paymentHash", event.PaymentHash).
			Msg("settlement lookup failed")
		return
	}
	if payment == nil {
		log.Warn().
			Str("paymentId", event.Extra.ID).
			Str("paymentHash", event.PaymentHash).
			Msg("settled payment unknown, ignoring")
		return
	}
	if payment.State == model.PaymentStateUsed {
		// Replayed settlement event; the actuation already happened.
		return
	}

	if _, err := l.payments.MarkUsed(ctx, payment.ID); err != nil {
		log.Error().Err(err).Str("paymentId", payment.ID).Msg("failed to mark payment used")
		return
	}

	device, err := l.devices.FindByID(ctx, payment.DeviceID)
	if err != nil {
		log.Error().Err(err).Str("deviceId", payment.DeviceID).Msg("settlement device lookup failed")
		return
	}
	if device == nil {
		log.Warn().Str("deviceId", payment.DeviceID).Msg("settled payment for unknown device")
		return
	}
	if device.FindSwitch(payment.SwitchID) == nil {
		// Device was edited since the payment was created; drop silently.
		log.Warn().
			Str("deviceId", device.ID).
			Str("switchId", payment.SwitchID).
			Msg("settled payment for vanished switch")
		return
	}

	if !l.dispatcher.Dispatch(payment.DeviceID, payment.Payload) {
		// Logged only: the payment is durably settled either way, and the
		// payer sees the outcome through the browser-role connection.
		log.Warn().
			Str("deviceId", payment.DeviceID).
			Str("paymentId", payment.ID).
			Msg("actuation not delivered")
		return
	}

	log.Info().
		Str("deviceId", payment.DeviceID).
		Str("paymentId", payment.ID).
		Str("payload", payment.Payload).
		Msg("actuation dispatched")
}
