package api

import (
	"context"
	"net/http"
	"time"

	"github.com/MuBBaSher-YaSiN/probe-point/internal/logging"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/models"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/storage"
)

type contextKey string

const userIDKey contextKey = "user_id"

// UserIDFromContext returns the authenticated user ID set by the auth
// middleware
func UserIDFromContext(ctx context.Context) string {
	if userID, ok := ctx.Value(userIDKey).(string); ok {
		return userID
	}
	return ""
}

// KeyValidator resolves an API key hash to its key record
type KeyValidator interface {
	LookupByHash(ctx context.Context, keyHash string) (*models.APIKey, error)
	TouchLastUsed(ctx context.Context, keyHash string, usedAt time.Time) error
}

// KeyCache is the short-lived cache in front of key validation
type KeyCache interface {
	GetAPIKeyUser(ctx context.Context, keyHash string) (string, error)
	SetAPIKeyUser(ctx context.Context, keyHash, userID string) error
}

// AuthMiddleware resolves the caller's identity. Two paths are accepted:
// an X-API-Key header validated against the key store, or a trusted
// X-User-ID header set by the external auth layer. Requests with neither
// are rejected.
func AuthMiddleware(keys KeyValidator, cache KeyCache, logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rawKey := r.Header.Get("X-API-Key"); rawKey != "" {
				userID, ok := resolveAPIKey(r.Context(), keys, cache, rawKey, logger)
				if !ok {
					respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid or revoked API key", nil)
					return
				}
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
				return
			}

			if userID := r.Header.Get("X-User-ID"); userID != "" {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
				return
			}

			respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Authentication required", nil)
		})
	}
}

// resolveAPIKey validates a raw key, consulting the cache first. Only the
// SHA-256 hash ever leaves this function.
func resolveAPIKey(ctx context.Context, keys KeyValidator, cache KeyCache, rawKey string, logger *logging.Logger) (string, bool) {
	keyHash := storage.HashKey(rawKey)

	if cache != nil {
		if userID, err := cache.GetAPIKeyUser(ctx, keyHash); err == nil && userID != "" {
			return userID, true
		}
	}

	key, err := keys.LookupByHash(ctx, keyHash)
	if err != nil {
		return "", false
	}

	if cache != nil {
		if err := cache.SetAPIKeyUser(ctx, keyHash, key.UserID); err != nil {
			logger.WithError(err).Debug("Failed to cache api key validation")
		}
	}
	if err := keys.TouchLastUsed(ctx, keyHash, time.Now().UTC()); err != nil {
		logger.WithError(err).Debug("Failed to touch api key last_used_at")
	}

	return key.UserID, true
}
