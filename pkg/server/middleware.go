package server

import (
	"context"
	"crypto/subtle"
	"math"
	"net/http"
	"strconv"

	"github.com/silentengine/silentengine/pkg/config"
	"github.com/silentengine/silentengine/pkg/ratelimit"
)

type ctxKey struct{}

// rateLimitKey returns the caller identity chosen by the rate limiter.
func rateLimitKey(ctx context.Context) string {
	if k, ok := ctx.Value(ctxKey{}).(string); ok {
		return k
	}
	return ratelimit.DefaultKey
}

// callerKey picks x-api-key, then x-engine-key, then the default key.
func callerKey(r *http.Request) string {
	if k := r.Header.Get("x-api-key"); k != "" {
		return k
	}
	if k := r.Header.Get("x-engine-key"); k != "" {
		return k
	}
	return ratelimit.DefaultKey
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("x-engine-key")
		if key == "" || s.cfg.EngineKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.EngineKey)) != 1 {
			writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := callerKey(r)
		est := s.cfg.RateLimits
		if !s.limiter.Admit(key, est.EstimatedTokens, est.EstimatedCost) {
			retry := int(math.Ceil(s.limiter.RetryAfter(key).Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":      "Rate limit exceeded",
				"retryAfter": retry,
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, key)))
	})
}

// cors allows every origin outside production, and in production with no
// configured origins. Otherwise requests from unlisted origins get 403.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}
		if s.cfg.Mode == config.ModeProduction && len(s.origins) > 0 && !s.origins[origin] {
			writeJSONError(w, http.StatusForbidden, "CORS policy violation")
			return
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Add("Vary", "Origin")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, x-engine-key, x-api-key")
			h.Set("Access-Control-Max-Age", corsMaxAge)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
