package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/zoosats/devicetimer/internal/errors"
	"github.com/zoosats/devicetimer/internal/httputil"
	"github.com/zoosats/devicetimer/internal/util"
)

const apiKeyHeader = "X-Api-Key"

// AdminKeyMiddleware guards the device management API with a shared admin
// key. Wallet-facing LNURL endpoints stay unauthenticated; knowing a
// device/switch id is the capability there.
type AdminKeyMiddleware struct {
	adminKey string
}

func NewAdminKeyMiddleware(adminKey string) *AdminKeyMiddleware {
	return &AdminKeyMiddleware{adminKey: adminKey}
}

func (m *AdminKeyMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(apiKeyHeader)
		if key == "" {
			httputil.WriteError(w, apperrors.Unauthorized("Missing API key"))
			return
		}
		if !util.ConstantTimeEqual(key, m.adminKey) {
			log.Warn().Str("path", r.URL.Path).Msg("rejected request with invalid admin key")
			httputil.WriteError(w, apperrors.Unauthorized("Invalid API key"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
