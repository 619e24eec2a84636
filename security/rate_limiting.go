package security

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

const (
	SignatureHeader = "X-Signature"
	maxWebhookBody  = 1 << 20
)

// WebhookGuard throttles provider callbacks per client IP and, when a
// secret is configured, checks the HMAC-SHA256 body signature.
type WebhookGuard struct {
	redis    redis.Cmdable
	limit    int64
	window   time.Duration
	secret   []byte
	clientIP func(e *core.RequestEvent) string
}

func NewWebhookGuard(redisClient redis.Cmdable, perMinute int, secret string) *WebhookGuard {
	return &WebhookGuard{
		redis:    redisClient,
		limit:    int64(perMinute),
		window:   time.Minute,
		secret:   []byte(secret),
		clientIP: func(e *core.RequestEvent) string { return e.RealIP() },
	}
}

// Allow counts one request for ip in the current window. Redis failures
// let the request through.
func (g *WebhookGuard) Allow(ctx context.Context, ip string) bool {
	if g.limit <= 0 {
		return true
	}

	key := fmt.Sprintf("ratelimit:webhook:%s", ip)
	count, err := g.redis.Incr(ctx, key).Result()
	if err != nil {
		slog.Warn("webhook rate limit unavailable", "ip", ip, "error", err)
		return true
	}
	if count == 1 {
		if err := g.redis.Expire(ctx, key, g.window).Err(); err != nil {
			slog.Warn("webhook rate limit expiry not set", "key", key, "error", err)
		}
	}
	return count <= g.limit
}

// Sign returns the hex signature a provider sends for body.
func (g *WebhookGuard) Sign(body []byte) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *WebhookGuard) Verify(body []byte, signature string) bool {
	if len(g.secret) == 0 {
		return true
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(g.Sign(body))
	return hmac.Equal(got, want)
}

// Middleware is bound in front of the webhook route.
func (g *WebhookGuard) Middleware(e *core.RequestEvent) error {
	ip := g.clientIP(e)
	if !g.Allow(e.Request.Context(), ip) {
		slog.Warn("webhook throttled", "ip", ip)
		return apis.NewTooManyRequestsError("Too many requests", nil)
	}

	if len(g.secret) > 0 {
		body, err := io.ReadAll(io.LimitReader(e.Request.Body, maxWebhookBody))
		if err != nil {
			return apis.NewBadRequestError("Invalid notification", err)
		}
		if !g.Verify(body, e.Request.Header.Get(SignatureHeader)) {
			slog.Warn("webhook signature rejected", "ip", ip)
			return apis.NewUnauthorizedError("Invalid signature", nil)
		}
		e.Request.Body = io.NopCloser(bytes.NewReader(body))
	}

	return e.Next()
}
