package server

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/oszuidwest/drowsiguard/internal/types"
)

const (
	apiKeyHeader = "X-API-Key"
	apiKeyQuery  = "key"
)

// APIKeyAuth returns middleware that requires the configured API key. REST
// calls send it in the X-API-Key header; WebSocket upgrades may pass it as
// the key query parameter since browsers cannot set headers on them.
// Requests pass unchecked while no key is configured.
func APIKeyAuth(apiKey func() string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			key := apiKey()
			if key == "" {
				next(w, r)
				return
			}

			provided := r.Header.Get(apiKeyHeader)
			if provided == "" && websocket.IsWebSocketUpgrade(r) {
				provided = r.URL.Query().Get(apiKeyQuery)
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
				slog.Warn("rejected request: invalid API key", "path", r.URL.Path, "remote", r.RemoteAddr)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				if err := json.NewEncoder(w).Encode(types.APIError{Error: "unauthorized"}); err != nil {
					slog.Error("failed to encode error response", "error", err)
				}
				return
			}
			next(w, r)
		}
	}
}
