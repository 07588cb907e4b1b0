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

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/yoshikouki/aias-sub000/pkg/config"
	"github.com/yoshikouki/aias-sub000/pkg/journal"
	"github.com/yoshikouki/aias-sub000/pkg/llm"
	"github.com/yoshikouki/aias-sub000/pkg/observability"
	"github.com/yoshikouki/aias-sub000/pkg/ratelimit"
)

// buildRouter assembles the handler chain for one state. The rate
// limit middleware applies the default policy to the API surface;
// /v1/chat is excluded because the guarded provider enforces the chat
// policy itself.
func (s *Server) buildRouter(st *appState) http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(observability.HTTPMiddleware(s.obs.Tracer(), s.obs.GetMetrics()))

	excluded := []string{"/healthz", "/metrics", "/v1/chat"}
	var apiLimiter ratelimit.Limiter
	if sec := st.cfg.RateLimits[config.DefaultLimiterName]; sec != nil {
		excluded = append(excluded, sec.ExcludedPaths...)
	}
	if lim := st.limiters[config.DefaultLimiterName]; lim != nil {
		apiLimiter = lim
	}
	r.Use(ratelimit.Middleware(ratelimit.MiddlewareConfig{
		Limiter:       apiLimiter,
		ExcludedPaths: excluded,
	}))

	r.Get("/healthz", handleHealth)
	r.Get("/metrics", s.obs.PrometheusHandler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/limits/check", st.handleCheck)
		r.Get("/limits/{key}", st.handlePeek)
		r.Post("/limits/{key}/reset", st.handleReset)
		r.Get("/journal", st.handleJournal)
		r.Post("/chat", st.handleChat)
	})

	return r
}

// requestIDMiddleware tags every request with an id, honoring one the
// caller already set, and exposes it to recorders through the context.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(journal.WithRequestID(r.Context(), id)))
	})
}

// statusRecorder captures the status code and body size for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// loggingMiddleware logs one line per completed request.
func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			logger.Info("Request handled",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"size", rec.size,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", journal.RequestIDFromContext(r.Context()))
		})
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type checkRequest struct {
	Key     string `json:"key"`
	Limiter string `json:"limiter,omitempty"`
}

type checkResponse struct {
	Key          string `json:"key"`
	Allowed      bool   `json:"allowed"`
	Remaining    int    `json:"remaining"`
	Limit        int    `json:"limit"`
	Reset        int64  `json:"reset"`
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"`
}

// handleCheck consumes one slot for the key and reports the decision.
// The decision is data, not transport state, so a throttled key still
// answers 200; callers that want enforcement read the allowed field.
func (st *appState) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "key is required")
		return
	}

	lim, ok := st.limiter(req.Limiter)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_limiter",
			fmt.Sprintf("no limiter named %q", req.Limiter))
		return
	}
	if lim == nil {
		// The section is disabled; everything is admitted.
		writeJSON(w, http.StatusOK, checkResponse{Key: req.Key, Allowed: true})
		return
	}

	result, err := lim.Check(r.Context(), req.Key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	st.record(r.Context(), req.Key, result)

	writeJSON(w, http.StatusOK, checkResponse{
		Key:          req.Key,
		Allowed:      result.Allowed,
		Remaining:    result.Info.Remaining,
		Limit:        result.Info.Limit,
		Reset:        result.Info.Reset,
		RetryAfterMs: result.RetryAfter.Milliseconds(),
	})
}

type peekResponse struct {
	Key       string `json:"key"`
	Remaining int    `json:"remaining"`
	Limit     int    `json:"limit"`
	Reset     int64  `json:"reset"`
}

// handlePeek reports the key's standing without consuming a slot.
func (st *appState) handlePeek(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	lim, ok := st.limiter(r.URL.Query().Get("limiter"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_limiter",
			fmt.Sprintf("no limiter named %q", r.URL.Query().Get("limiter")))
		return
	}
	if lim == nil {
		writeJSON(w, http.StatusOK, peekResponse{Key: key})
		return
	}

	info, err := lim.Peek(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, peekResponse{
		Key:       key,
		Remaining: info.Remaining,
		Limit:     info.Limit,
		Reset:     info.Reset,
	})
}

// handleReset clears the key's request history.
func (st *appState) handleReset(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	lim, ok := st.limiter(r.URL.Query().Get("limiter"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_limiter",
			fmt.Sprintf("no limiter named %q", r.URL.Query().Get("limiter")))
		return
	}
	if lim != nil {
		if err := lim.Reset(r.Context(), key); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
	}

	st.logger.Info("Rate limit history cleared", "key", key)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleJournal lists recent admission decisions, newest first.
func (st *appState) handleJournal(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := st.journal.Recent(r.Context(), r.URL.Query().Get("key"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

type chatRequest struct {
	Key         string        `json:"key,omitempty"`
	Messages    []llm.Message `json:"messages"`
	System      string        `json:"system,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

// handleChat sends the conversation through the guarded provider. The
// key comes from the body when present, then the caller's identity.
func (st *appState) handleChat(w http.ResponseWriter, r *http.Request) {
	if st.provider == nil {
		writeError(w, http.StatusServiceUnavailable, "llm_disabled", "text generation is not configured")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "messages are required")
		return
	}

	key := req.Key
	if key == "" {
		key = ratelimit.DefaultKeyFunc(r)
	}

	resp, err := st.provider.Send(r.Context(), key, llm.Request{
		Messages:    req.Messages,
		System:      req.System,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		var exceeded *ratelimit.ExceededError
		switch {
		case errors.As(err, &exceeded):
			ratelimit.WriteLimited(w, ratelimit.Result{
				Allowed:    false,
				Info:       exceeded.Info,
				RetryAfter: exceeded.RetryAfter,
			})
		case errors.Is(err, llm.ErrInputTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "input_too_large", err.Error())
		default:
			st.logger.Error("Chat completion failed", "key", key, "error", err)
			writeError(w, http.StatusBadGateway, "upstream_error", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// record stores one admission decision in the journal.
func (st *appState) record(ctx context.Context, key string, result ratelimit.Result) {
	decision := journal.DecisionAllowed
	if !result.Allowed {
		decision = journal.DecisionThrottled
	}

	err := st.journal.Record(ctx, journal.Entry{
		Key:       key,
		Decision:  decision,
		Remaining: result.Info.Remaining,
		Reset:     result.Info.Reset,
		RequestID: journal.RequestIDFromContext(ctx),
		At:        st.clk.Now(),
	})
	if err != nil {
		st.logger.Warn("Failed to record admission decision", "key", key, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
