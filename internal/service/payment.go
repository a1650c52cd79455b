package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zoosats/devicetimer/internal/admission"
	apperrors "github.com/zoosats/devicetimer/internal/errors"
	"github.com/zoosats/devicetimer/internal/model"
	"github.com/zoosats/devicetimer/internal/repository"
	"github.com/zoosats/devicetimer/internal/wallet"
)

// InvoiceTag marks invoices issued by this server; the settlement listener
// ignores everything else.
const InvoiceTag = "DeviceTimer"

// InvoiceCreator is the payment-creation boundary to the external wallet.
type InvoiceCreator interface {
	CreateInvoice(ctx context.Context, invoiceKey string, amountSat int64, memo string, description string, extra wallet.InvoiceExtra) (hash string, paymentRequest string, err error)
}

// RateConverter turns fiat switch prices into millisatoshis.
type RateConverter interface {
	FiatToMsat(ctx context.Context, amount float64, currency string) (int64, error)
}

// PayRequest is the LNURL-pay descriptor handed to the payer's wallet.
// Min and max sendable are equal: prices are fixed at request time.
type PayRequest struct {
	Tag         string `json:"tag"`
	Callback    string `json:"callback"`
	MinSendable int64  `json:"minSendable"`
	MaxSendable int64  `json:"maxSendable"`
	Metadata    string `json:"metadata"`
}

// InvoiceTerms is the payable result of a successful callback.
type InvoiceTerms struct {
	PR     string `json:"pr"`
	Routes []any  `json:"routes"`
}

type PaymentService struct {
	devices   repository.DeviceRepository
	payments  repository.PaymentRepository
	evaluator *admission.Evaluator
	invoices  InvoiceCreator
	rates     RateConverter
	publicURL string
	// now is sampled exactly once per admission decision.
	now func() time.Time
}

func NewPaymentService(
	devices repository.DeviceRepository,
	payments repository.PaymentRepository,
	evaluator *admission.Evaluator,
	invoices InvoiceCreator,
	rates RateConverter,
	publicURL string,
) *PaymentService {
	return &PaymentService{
		devices:   devices,
		payments:  payments,
		evaluator: evaluator,
		invoices:  invoices,
		rates:     rates,
		publicURL: publicURL,
		now:       time.Now,
	}
}

// SetNow overrides the admission clock. Tests only.
func (s *PaymentService) SetNow(now func() time.Time) {
	s.now = now
}

// Evaluate runs the admission check for (device, switch) without creating
// anything. Used by the QR landing page to pick the right content.
func (s *PaymentService) Evaluate(ctx context.Context, deviceID, switchID string) (admission.Verdict, error) {
	device, sw, err := s.resolve(ctx, deviceID, switchID)
	if err != nil {
		return 0, err
	}
	return s.evaluator.Evaluate(ctx, device, sw, s.now())
}

// RequestPayment is the first LNURL-pay leg: admission check, price fix,
// pending record, payRequest descriptor. No invoice exists yet.
func (s *PaymentService) RequestPayment(ctx context.Context, deviceID, switchID string) (*PayRequest, error) {
	device, sw, err := s.resolve(ctx, deviceID, switchID)
	if err != nil {
		return nil, err
	}

	verdict, err := s.evaluator.Evaluate(ctx, device, sw, s.now())
	if err != nil {
		return nil, err
	}
	switch verdict {
	case admission.Closed:
		return nil, apperrors.AdmissionClosed()
	case admission.Wait:
		return nil, apperrors.AdmissionWait()
	}

	msat, err := s.rates.FiatToMsat(ctx, sw.Amount, device.Currency)
	if err != nil {
		return nil, fmt.Errorf("convert price: %w", err)
	}

	payment, err := s.payments.Create(ctx, model.CreatePaymentParams{
		DeviceID: device.ID,
		SwitchID: sw.ID,
		Payload:  sw.Payload(),
		Msat:     msat,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("paymentId", payment.ID).
		Str("deviceId", device.ID).
		Str("switchId", sw.ID).
		Int64("msat", msat).
		Msg("payment requested")

	return &PayRequest{
		Tag:         "payRequest",
		Callback:    fmt.Sprintf("%s/api/v1/lnurl/cb/%s", s.publicURL, payment.ID),
		MinSendable: msat,
		MaxSendable: msat,
		Metadata:    payMetadata(device, sw),
	}, nil
}

// ConfirmCallback is the second LNURL-pay leg: the wallet echoes the amount
// and receives a bolt11 invoice. Only a pending record yields an invoice;
// replaying the callback once one has been issued returns AlreadyUsed. A
// wallet failure leaves the record pending so the same callback may be
// retried.
func (s *PaymentService) ConfirmCallback(ctx context.Context, paymentID string, amountMsat int64) (*InvoiceTerms, error) {
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, apperrors.NotFound("payment")
	}
	if payment.State != model.PaymentStatePending {
		// Issued or used: an invoice already exists for this record, a
		// second one must never be created.
		return nil, apperrors.AlreadyUsed()
	}

	device, err := s.devices.FindByID(ctx, payment.DeviceID)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, apperrors.NotFound("device")
	}
	sw := device.FindSwitch(payment.SwitchID)
	if sw == nil {
		return nil, apperrors.NotFound("switch")
	}

	if amountMsat != payment.Msat {
		return nil, apperrors.AmountMismatch(payment.Msat)
	}

	memo := paymentMemo(device, sw)
	hash, paymentRequest, err := s.invoices.CreateInvoice(
		ctx,
		device.Wallet,
		int64(math.Floor(float64(amountMsat)/1000)),
		memo,
		payMetadata(device, sw),
		wallet.InvoiceExtra{
			Tag:      InvoiceTag,
			ID:       payment.ID,
			Device:   device.ID,
			Switch:   sw.ID,
			Amount:   sw.Amount,
			Currency: device.Currency,
		},
	)
	if err != nil {
		// Record stays pending so the wallet may retry the same callback.
		return nil, apperrors.UpstreamInvoice(err)
	}

	if _, err := s.payments.MarkIssued(ctx, payment.ID, hash); err != nil {
		return nil, err
	}

	log.Info().
		Str("paymentId", payment.ID).
		Str("paymentHash", hash).
		Msg("invoice issued")

	return &InvoiceTerms{PR: paymentRequest, Routes: []any{}}, nil
}

func (s *PaymentService) resolve(ctx context.Context, deviceID, switchID string) (*model.Device, *model.Switch, error) {
	device, err := s.devices.FindByID(ctx, deviceID)
	if err != nil {
		return nil, nil, err
	}
	if device == nil {
		return nil, nil, apperrors.NotFound("device")
	}
	sw := device.FindSwitch(switchID)
	if sw == nil {
		return nil, nil, apperrors.NotFound("switch")
	}
	return device, sw, nil
}

// paymentMemo is "<device title> <switch label>", trimmed.
func paymentMemo(device *model.Device, sw *model.Switch) string {
	return strings.TrimSpace(device.Title + " " + sw.Label)
}

// payMetadata is the LNURL metadata array the wallet shows the payer.
func payMetadata(device *model.Device, sw *model.Switch) string {
	data, _ := json.Marshal([][]string{{"text/plain", paymentMemo(device, sw)}})
	return string(data)
}
