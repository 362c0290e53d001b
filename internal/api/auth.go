package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"

	"waitlist/internal/config"
)

var (
	errMissingKey       = errors.New("missing api key")
	errInvalidKey       = errors.New("invalid api key")
	errPermissionDenied = errors.New("permission denied")
	errRateLimited      = errors.New("rate limit exceeded")
)

type clientKeyCtx struct{}

// HTTPAuth provides API-key auth and per-key rate limiting for staff endpoints.
type HTTPAuth struct {
	cfg     config.APIConfig
	clients map[string]config.APIClientKey
	limiter *rateLimiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &HTTPAuth{cfg: cfg, clients: m, limiter: newRateLimiter(cfg.RateLimit)}
}

func (a *HTTPAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.Auth.Enabled {
			client, err := a.checkAuth(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			r = r.WithContext(context.WithValue(r.Context(), clientKeyCtx{}, client))
		}

		if !a.limiter.allow(a.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, errRateLimited.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) headerName() string {
	name := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey))
	if name == "" {
		name = "x-api-key"
	}
	return name
}

// apiKey reads the key from the header, or from the api_key query parameter
// for browser websocket clients that cannot set headers.
func (a *HTTPAuth) apiKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(a.headerName())); key != "" {
		return key
	}
	return strings.TrimSpace(r.URL.Query().Get("api_key"))
}

func (a *HTTPAuth) checkAuth(r *http.Request) (config.APIClientKey, error) {
	key := a.apiKey(r)
	if key == "" {
		return config.APIClientKey{}, errMissingKey
	}
	for known, client := range a.clients {
		if subtle.ConstantTimeCompare([]byte(known), []byte(key)) == 1 {
			return client, nil
		}
	}
	return config.APIClientKey{}, errInvalidKey
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if key := a.apiKey(r); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

// authorize checks that the caller's key may act on restaurantID.
func authorize(r *http.Request, restaurantID string) error {
	client, ok := r.Context().Value(clientKeyCtx{}).(config.APIClientKey)
	if !ok || len(client.Restaurants) == 0 {
		return nil
	}
	for _, id := range client.Restaurants {
		if strings.TrimSpace(id) == restaurantID {
			return nil
		}
	}
	return errPermissionDenied
}
