package handler

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/zoosats/devicetimer/internal/errors"
	"github.com/zoosats/devicetimer/internal/fx"
	"github.com/zoosats/devicetimer/internal/model"
	"github.com/zoosats/devicetimer/internal/service"
	"github.com/zoosats/devicetimer/internal/util"
)

type DeviceHandler struct {
	devices *service.DeviceService
}

func NewDeviceHandler(devices *service.DeviceService) *DeviceHandler {
	return &DeviceHandler{devices: devices}
}

func (h *DeviceHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/device", h.Create)
	r.Get("/device", h.List)
	r.Get("/device/{deviceID}", h.Get)
	r.Put("/device/{deviceID}", h.Update)
	r.Delete("/device/{deviceID}", h.Delete)

	r.Get("/currencies", h.Currencies)
	r.Get("/timezones", h.Timezones)

	return r
}

// POST /api/v1/device
func (h *DeviceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var params model.CreateDeviceParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, apperrors.ValidationError("Invalid JSON body"))
		return
	}

	device, err := h.devices.Create(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, device)
}

// PUT /api/v1/device/{deviceID}
func (h *DeviceHandler) Update(w http.ResponseWriter, r *http.Request) {
	var params model.CreateDeviceParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, apperrors.ValidationError("Invalid JSON body"))
		return
	}

	device, err := h.devices.Update(r.Context(), chi.URLParam(r, "deviceID"), params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

// GET /api/v1/device?wallet=<id>[,<id>...]
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	devices, err := h.devices.List(r.Context(), walletFilter(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if devices == nil {
		devices = []model.Device{}
	}
	writeJSON(w, http.StatusOK, devices)
}

// GET /api/v1/device/{deviceID}
func (h *DeviceHandler) Get(w http.ResponseWriter, r *http.Request) {
	device, err := h.devices.Get(r.Context(), chi.URLParam(r, "deviceID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

// DELETE /api/v1/device/{deviceID}
func (h *DeviceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.devices.Delete(r.Context(), chi.URLParam(r, "deviceID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// walletFilter reads the optional comma-separated wallet filter. Repeated
// wallet parameters are accepted too.
func walletFilter(r *http.Request) []string {
	var wallets []string
	for _, raw := range r.URL.Query()["wallet"] {
		for _, w := range strings.Split(raw, ",") {
			if w = strings.TrimSpace(w); w != "" {
				wallets = append(wallets, w)
			}
		}
	}
	return wallets
}

// GET /api/v1/currencies
func (h *DeviceHandler) Currencies(w http.ResponseWriter, r *http.Request) {
	currencies := append([]string{fx.BaseCurrency}, fx.SupportedCurrencies...)
	writeJSON(w, http.StatusOK, currencies)
}

// GET /api/v1/timezones
func (h *DeviceHandler) Timezones(w http.ResponseWriter, r *http.Request) {
	zones := util.AvailableTimezones()
	sort.Slice(zones, func(i, j int) bool {
		return strings.ToLower(zones[i]) < strings.ToLower(zones[j])
	})
	writeJSON(w, http.StatusOK, zones)
}
