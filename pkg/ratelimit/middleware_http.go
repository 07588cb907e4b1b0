// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratelimit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// KeyFunc extracts the rate limit key from an HTTP request.
type KeyFunc func(r *http.Request) string

// DefaultKeyFunc extracts the key from the request. It prefers the
// authenticated user header, then the API key header, then falls back
// to the remote address.
func DefaultKeyFunc(r *http.Request) string {
	if userID := r.Header.Get("X-User-ID"); userID != "" {
		return userID
	}
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		return apiKey
	}
	return r.RemoteAddr
}

// MiddlewareConfig configures the rate limiting middleware.
type MiddlewareConfig struct {
	// Limiter is the rate limiter to use.
	Limiter Limiter

	// KeyFunc extracts the key from requests.
	// If nil, DefaultKeyFunc is used.
	KeyFunc KeyFunc

	// ExcludedPaths are paths that bypass rate limiting.
	ExcludedPaths []string

	// OnLimited is called when a request is rate limited.
	// If nil, a default JSON error response is sent.
	OnLimited func(w http.ResponseWriter, r *http.Request, result Result)
}

// Middleware creates an HTTP middleware that enforces rate limits.
func Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	if cfg.Limiter == nil {
		// No limiter configured, pass through
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	if cfg.KeyFunc == nil {
		cfg.KeyFunc = DefaultKeyFunc
	}

	if cfg.OnLimited == nil {
		cfg.OnLimited = defaultOnLimited
	}

	// Build excluded paths map for fast lookup
	excludedPaths := make(map[string]bool)
	for _, path := range cfg.ExcludedPaths {
		excludedPaths[path] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if excludedPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			key := cfg.KeyFunc(r)
			if key == "" {
				// No key, pass through
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			result, err := cfg.Limiter.Check(ctx, key)
			if err != nil {
				slog.Error("Rate limit check failed", "error", err, "key", key)
				// On error, allow the request (fail open)
				next.ServeHTTP(w, r)
				return
			}

			// Store the result in context for downstream handlers
			ctx = context.WithValue(ctx, rateLimitResultKey{}, result)
			r = r.WithContext(ctx)

			if !result.Allowed {
				slog.Debug("Request throttled", "key", key, "reset", result.Info.Reset)
				cfg.OnLimited(w, r, result)
				return
			}

			addRateLimitHeaders(w, result.Info)

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitResultKey is the context key for the check result.
type rateLimitResultKey struct{}

// ResultFromContext extracts the rate limit result recorded by
// Middleware from the request context.
func ResultFromContext(ctx context.Context) (Result, bool) {
	result, ok := ctx.Value(rateLimitResultKey{}).(Result)
	return result, ok
}

// defaultOnLimited sends a default 429 response.
func defaultOnLimited(w http.ResponseWriter, r *http.Request, result Result) {
	WriteLimited(w, result)
}

// WriteLimited writes the standard throttle response for result:
// Retry-After plus X-RateLimit-* headers and a 429 JSON body. Handlers
// that field ExceededError outside the middleware use this to keep the
// wire shape uniform.
func WriteLimited(w http.ResponseWriter, result Result) {
	w.Header().Set("Content-Type", "application/json")

	retrySeconds := int64(result.RetryAfter.Seconds())
	if result.RetryAfter > 0 {
		if retrySeconds < 1 {
			retrySeconds = 1
		}
		w.Header().Set("Retry-After", strconv.FormatInt(retrySeconds, 10))
	}

	addRateLimitHeaders(w, result.Info)

	w.WriteHeader(http.StatusTooManyRequests)

	response := map[string]interface{}{
		"error": map[string]interface{}{
			"code":    "rate_limit_exceeded",
			"message": "rate limit exceeded",
		},
		"limit":     result.Info.Limit,
		"remaining": result.Info.Remaining,
		"reset":     result.Info.Reset,
	}
	if result.RetryAfter > 0 {
		response["retry_after_seconds"] = retrySeconds
	}

	_ = json.NewEncoder(w).Encode(response)
}

// addRateLimitHeaders adds standard rate limit headers to the response.
func addRateLimitHeaders(w http.ResponseWriter, info Info) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.Reset, 10))
}

// SimpleMiddleware creates a rate limiting middleware with default key
// extraction. This is a convenience function for common use cases.
func SimpleMiddleware(limiter Limiter, excludedPaths ...string) func(http.Handler) http.Handler {
	return Middleware(MiddlewareConfig{
		Limiter:       limiter,
		ExcludedPaths: excludedPaths,
	})
}
