package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/zoosats/devicetimer/internal/errors"
	"github.com/zoosats/devicetimer/internal/service"
)

// LnurlHandler serves the wallet-facing LNURL-pay endpoints. Error bodies
// follow the LNURL convention of {"status":"ERROR","reason":...} instead of
// the API error envelope, since wallets only understand that shape.
type LnurlHandler struct {
	payments *service.PaymentService
}

func NewLnurlHandler(payments *service.PaymentService) *LnurlHandler {
	return &LnurlHandler{payments: payments}
}

func (h *LnurlHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/v1/lnurl/{deviceID}", h.PayRequest)
	r.Get("/v2/lnurl/{deviceID}", h.PayRequest)
	r.Get("/v1/lnurl/cb/{paymentID}", h.Callback)

	return r
}

// GET /api/v{1,2}/lnurl/{deviceID}?switch_id=
//
// The v1 route predates multi-switch devices and may omit switch_id, in
// which case the device's first switch is used.
func (h *LnurlHandler) PayRequest(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	switchID := r.URL.Query().Get("switch_id")

	descriptor, err := h.payments.RequestPayment(r.Context(), deviceID, switchID)
	if err != nil {
		writeLnurlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, descriptor)
}

// GET /api/v1/lnurl/cb/{paymentID}?amount=<msat>
func (h *LnurlHandler) Callback(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")

	amountMsat, err := strconv.ParseInt(r.URL.Query().Get("amount"), 10, 64)
	if err != nil || amountMsat <= 0 {
		writeLnurlError(w, apperrors.InvalidInput("amount", "must be a positive integer in millisatoshis"))
		return
	}

	terms, err := h.payments.ConfirmCallback(r.Context(), paymentID, amountMsat)
	if err != nil {
		writeLnurlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, terms)
}

type lnurlErrorBody struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// writeLnurlError always answers HTTP 200: wallets treat non-2xx as a
// transport failure and drop the reason instead of showing it.
func writeLnurlError(w http.ResponseWriter, err error) {
	reason := "Internal server error"
	if appErr, ok := apperrors.AsAppError(err); ok {
		reason = appErr.Message
	}
	writeJSON(w, http.StatusOK, lnurlErrorBody{Status: "ERROR", Reason: reason})
}
