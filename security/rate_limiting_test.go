package security

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/pocketbase/pocketbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGuard(t *testing.T, limit int, secret string) (*WebhookGuard, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	g := NewWebhookGuard(db, limit, secret)
	g.clientIP = func(*core.RequestEvent) string { return "10.0.0.1" }
	return g, mock
}

func webhookEvent(body, signature string) *core.RequestEvent {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(body))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	e := &core.RequestEvent{}
	e.Request = req
	e.Response = httptest.NewRecorder()
	return e
}

func TestAllow_CountsWithinWindow(t *testing.T) {
	g, mock := newTestGuard(t, 2, "")
	key := "ratelimit:webhook:10.0.0.1"

	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectExpire(key, time.Minute).SetVal(true)
	mock.ExpectIncr(key).SetVal(2)
	mock.ExpectIncr(key).SetVal(3)

	ctx := t.Context()
	assert.True(t, g.Allow(ctx, "10.0.0.1"))
	assert.True(t, g.Allow(ctx, "10.0.0.1"))
	assert.False(t, g.Allow(ctx, "10.0.0.1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllow_RedisDownLetsRequestsThrough(t *testing.T) {
	g, mock := newTestGuard(t, 1, "")
	mock.ExpectIncr("ratelimit:webhook:10.0.0.1").SetErr(errors.New("connection refused"))

	assert.True(t, g.Allow(t.Context(), "10.0.0.1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllow_ZeroLimitDisablesThrottle(t *testing.T) {
	g, mock := newTestGuard(t, 0, "")
	assert.True(t, g.Allow(t.Context(), "10.0.0.1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerify(t *testing.T) {
	g, _ := newTestGuard(t, 0, "s3cret")
	body := []byte(`{"reference":"PAY-1","status":"success"}`)

	assert.True(t, g.Verify(body, g.Sign(body)))
	assert.False(t, g.Verify(body, g.Sign([]byte("other"))))
	assert.False(t, g.Verify(body, "not-hex"))
	assert.False(t, g.Verify(body, ""))

	open, _ := newTestGuard(t, 0, "")
	assert.True(t, open.Verify(body, ""))
}

func TestMiddleware(t *testing.T) {
	body := `{"reference":"PAY-1","status":"success"}`

	t.Run("throttled", func(t *testing.T) {
		g, mock := newTestGuard(t, 1, "")
		mock.ExpectIncr("ratelimit:webhook:10.0.0.1").SetVal(2)

		err := g.Middleware(webhookEvent(body, ""))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Too many requests")
	})

	t.Run("bad signature", func(t *testing.T) {
		g, mock := newTestGuard(t, 5, "s3cret")
		mock.ExpectIncr("ratelimit:webhook:10.0.0.1").SetVal(2)

		err := g.Middleware(webhookEvent(body, "deadbeef"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Invalid signature")
	})

	t.Run("signed body is passed on intact", func(t *testing.T) {
		g, mock := newTestGuard(t, 5, "s3cret")
		mock.ExpectIncr("ratelimit:webhook:10.0.0.1").SetVal(2)

		e := webhookEvent(body, g.Sign([]byte(body)))
		require.NoError(t, g.Middleware(e))

		rest, err := io.ReadAll(e.Request.Body)
		require.NoError(t, err)
		assert.Equal(t, body, string(rest))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
