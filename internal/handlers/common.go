package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// PgQuerier is the subset of the pgx pool the auth middleware needs.
type PgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type contextKey string

const uploaderKey contextKey = "uploader"

// UploaderIdentity is the Discord-bound identity resolved from an API key.
type UploaderIdentity struct {
	DiscordUserID string
	PlayerID      int64
}

// hashToken creates a SHA256 hash of a token for secure storage lookup.
func hashToken(token string) string {
	h := sha256.New()
	h.Write([]byte(token))
	return hex.EncodeToString(h.Sum(nil))
}

// Health check endpoint
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// Ready check endpoint
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	checks := map[string]bool{
		"redis": h.redis.Ping(ctx).Err() == nil,
	}
	if pinger, ok := h.pg.(interface {
		Ping(ctx context.Context) error
	}); ok {
		checks["postgres"] = pinger.Ping(ctx) == nil
	}

	allHealthy := true
	for _, ok := range checks {
		if !ok {
			allHealthy = false
			break
		}
	}

	status := http.StatusOK
	if !allHealthy {
		status = http.StatusServiceUnavailable
	}
	h.jsonResponse(w, status, map[string]any{
		"ready":       allHealthy,
		"checks":      checks,
		"decodeDepth": h.queue.DecodeDepth(ctx),
		"renderDepth": h.queue.RenderDepth(ctx),
	})
}

// APIKeyMiddleware validates upload API keys against the api_keys table and
// attaches the bound Discord identity to the request context.
func (h *Handler) APIKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Api-Key")
		if token == "" {
			token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if token == "" {
			h.errorResponse(w, http.StatusUnauthorized, "Missing API key")
			return
		}

		ctx := r.Context()
		var identity UploaderIdentity
		err := h.pg.QueryRow(ctx,
			"SELECT discord_user_id, player_id FROM api_keys WHERE token_hash = $1 AND is_active = true",
			hashToken(token)).Scan(&identity.DiscordUserID, &identity.PlayerID)
		if err != nil {
			h.errorResponse(w, http.StatusUnauthorized, "Invalid API key")
			return
		}

		ctx = context.WithValue(ctx, uploaderKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// uploaderFromContext returns the identity set by APIKeyMiddleware.
func uploaderFromContext(ctx context.Context) (UploaderIdentity, bool) {
	identity, ok := ctx.Value(uploaderKey).(UploaderIdentity)
	return identity, ok
}

// allowUpload enforces the per-key upload rate limit on a fixed one-minute
// Redis window. Fail-open: a Redis outage must not block uploads.
func (h *Handler) allowUpload(ctx context.Context, discordUserID string) bool {
	if h.ratePerMinute <= 0 || h.redis == nil {
		return true
	}
	key := fmt.Sprintf("ratelimit:upload:%s:%d", discordUserID, time.Now().Unix()/60)
	count, err := h.redis.Incr(ctx, key).Result()
	if err != nil {
		h.logger.Warnw("Rate limit check failed", "error", err)
		return true
	}
	if count == 1 {
		h.redis.Expire(ctx, key, 2*time.Minute)
	}
	return count <= int64(h.ratePerMinute)
}

func (h *Handler) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) errorResponse(w http.ResponseWriter, status int, message string) {
	h.jsonResponse(w, status, map[string]string{"error": message})
}
