// Package http provides the HTTP transport adapter for the gateway.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/sentinel-project/sentinel/internal/ctxkey"
	"github.com/sentinel-project/sentinel/internal/domain/agent"
	"github.com/sentinel-project/sentinel/internal/domain/ratelimit"
)

// requestIDContextKey is the type for the request ID context key.
type requestIDContextKey struct{}

// RequestIDKey is the context key for the request ID.
var RequestIDKey = requestIDContextKey{}

// LoggerKey is the context key for the enriched logger.
// Uses shared key type from ctxkey package to allow cross-package access without import cycles.
var LoggerKey = ctxkey.LoggerKey{}

// AgentIDKey is the context key for the authenticated agent ID.
var AgentIDKey = ctxkey.AgentIDKey{}

// AgentKey is the context key for the resolved agent record.
var AgentKey = ctxkey.AgentKey{}

// RequestIDMiddleware extracts or generates a request ID and enriches the logger.
// The request ID is stored in context using RequestIDKey.
// An enriched logger with request_id field is stored using LoggerKey.
func RequestIDMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			enrichedLogger := logger.With("request_id", requestID)

			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			ctx = context.WithValue(ctx, LoggerKey, enrichedLogger)

			// Set response header for correlation
			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggerFromContext retrieves the enriched logger from context.
// Returns slog.Default() if no logger is in context.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// RequestIDFromContext retrieves the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// AgentIDFromContext retrieves the authenticated agent ID from context.
func AgentIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(AgentIDKey).(string); ok {
		return id
	}
	return ""
}

// AgentFromContext retrieves the resolved agent record from context.
// Returns nil when no agent is authenticated.
func AgentFromContext(ctx context.Context) *agent.Agent {
	if a, ok := ctx.Value(AgentKey).(*agent.Agent); ok {
		return a
	}
	return nil
}

// AgentAuthMiddleware validates the bearer API key and stores the resolved
// agent in context. Responses never distinguish why a key was rejected.
func AgentAuthMiddleware(keys *agent.KeyService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawKey := bearerToken(r)
			if rawKey == "" {
				writeError(w, http.StatusUnauthorized, "missing api key")
				return
			}

			resolved, err := keys.Validate(r.Context(), rawKey)
			if err != nil {
				LoggerFromContext(r.Context()).Warn("api key rejected")
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			ctx := context.WithValue(r.Context(), AgentIDKey, resolved.ID)
			ctx = context.WithValue(ctx, AgentKey, resolved)
			ctx = context.WithValue(ctx, LoggerKey,
				LoggerFromContext(r.Context()).With("agent_id", resolved.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from the Authorization header.
// An X-API-Key header is accepted as a fallback.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return r.Header.Get("X-API-Key")
}

// RateLimitMiddleware enforces the per-agent request limit. Agents carrying a
// rate limit override are checked against their own limit instead of the
// global one. Every response carries X-RateLimit-Limit and
// X-RateLimit-Remaining; rejections add Retry-After. Must run after
// AgentAuthMiddleware.
func RateLimitMiddleware(limiter *ratelimit.Limiter, onLimited func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			agentID := AgentIDFromContext(r.Context())
			if agentID == "" {
				// Unauthenticated paths are not rate limited per agent.
				next.ServeHTTP(w, r)
				return
			}

			var result ratelimit.Result
			if a := AgentFromContext(r.Context()); a != nil && a.RateLimitOverride != nil {
				result, _ = limiter.AllowLimit(r.Context(), agentID, *a.RateLimitOverride)
			} else {
				result, _ = limiter.Allow(r.Context(), agentID)
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

			if !result.Allowed {
				retryAfter := int(result.RetryAfter.Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				if onLimited != nil {
					onLimited()
				}
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
