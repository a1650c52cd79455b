package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/zoosats/devicetimer/internal/admission"
	apperrors "github.com/zoosats/devicetimer/internal/errors"
	"github.com/zoosats/devicetimer/internal/service"
)

// QRCodeHandler serves the landing image a device owner prints or displays
// next to the hardware. While the switch is payable it renders the LNURL as
// a PNG; outside the opening window or during cooldown it forwards the
// visitor to the device's configured info page instead.
type QRCodeHandler struct {
	devices  *service.DeviceService
	payments *service.PaymentService
}

func NewQRCodeHandler(devices *service.DeviceService, payments *service.PaymentService) *QRCodeHandler {
	return &QRCodeHandler{devices: devices, payments: payments}
}

func (h *QRCodeHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{deviceID}/{switchID}/qrcode", h.Serve)
	return r
}

// GET /device/{deviceID}/{switchID}/qrcode
func (h *QRCodeHandler) Serve(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	switchID := chi.URLParam(r, "switchID")

	device, err := h.devices.Get(r.Context(), deviceID)
	if err != nil {
		writeError(w, err)
		return
	}
	sw := device.FindSwitch(switchID)
	if sw == nil {
		writeError(w, apperrors.NotFound("switch"))
		return
	}

	verdict, err := h.payments.Evaluate(r.Context(), deviceID, sw.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	switch verdict {
	case admission.Closed:
		h.unavailable(w, r, deref(device.ClosedURL), "Device is closed")
	case admission.Wait:
		h.unavailable(w, r, deref(device.WaitURL), "Device was used recently, try again later")
	default:
		h.renderQR(w, sw.Lnurl)
	}
}

func (h *QRCodeHandler) renderQR(w http.ResponseWriter, lnurl string) {
	png, err := qrcode.Encode(strings.ToUpper(lnurl), qrcode.Medium, 256)
	if err != nil {
		log.Error().Err(err).Msg("failed to render QR code")
		writeError(w, apperrors.Internal("Failed to render QR code"))
		return
	}
	noCache(w)
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (h *QRCodeHandler) unavailable(w http.ResponseWriter, r *http.Request, target, message string) {
	if redirectAllowed(target) {
		noCache(w)
		http.Redirect(w, r, target, http.StatusTemporaryRedirect)
		return
	}
	noCache(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "UNAVAILABLE", "message": message})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// redirectAllowed rejects targets that could bounce a visitor somewhere
// unexpected: only absolute https URLs to a public host qualify.
func redirectAllowed(target string) bool {
	if target == "" {
		return false
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return false
	}
	host := u.Hostname()
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return false
	}
	return true
}
