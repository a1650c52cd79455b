package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zoosats/devicetimer/internal/ws"
)

type WSHandler struct {
	registry *ws.Registry
}

func NewWSHandler(registry *ws.Registry) *WSHandler {
	return &WSHandler{registry: registry}
}

func (h *WSHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/ws/status", h.Status)
	r.Get("/ws/{deviceID}", h.Connect)
	return r
}

// GET /api/v1/ws/{deviceID}?role=hardware|browser
func (h *WSHandler) Connect(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	role := ws.ParseRole(r.URL.Query().Get("role"))
	ws.Serve(h.registry, w, r, deviceID, role)
}

// GET /api/v1/ws/status
func (h *WSHandler) Status(w http.ResponseWriter, r *http.Request) {
	ids := h.registry.ConnectedDeviceIDs()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"connected": ids})
}
