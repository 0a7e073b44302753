package httpmiddleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type errStore struct{}

func (errStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return 0, errors.New("redis down")
}

func TestMiddlewareEnforcesLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	lim := NewRateLimiter(NewMemoryStore(), 2)
	r := gin.New()
	r.Use(lim.GinMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestWindowRollover(t *testing.T) {
	lim := NewRateLimiter(NewMemoryStore(), 1)
	base := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	lim.now = func() time.Time { return base }
	ctx := context.Background()

	assert.True(t, lim.allow(ctx, "10.0.0.1"))
	assert.False(t, lim.allow(ctx, "10.0.0.1"))
	// Another client has its own counter
	assert.True(t, lim.allow(ctx, "10.0.0.2"))

	// Next minute window opens fresh
	lim.now = func() time.Time { return base.Add(time.Minute) }
	assert.True(t, lim.allow(ctx, "10.0.0.1"))
}

func TestStoreErrorFailsOpen(t *testing.T) {
	lim := NewRateLimiter(errStore{}, 1)
	for i := 0; i < 5; i++ {
		assert.True(t, lim.allow(context.Background(), "10.0.0.1"))
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	n, err := s.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, _ = s.Incr(ctx, "k", time.Minute)
	assert.EqualValues(t, 2, n)

	// Force the entry past its window
	s.mu.Lock()
	s.expires["k"] = time.Now().Add(-time.Second)
	s.mu.Unlock()

	n, _ = s.Incr(ctx, "k", time.Minute)
	assert.EqualValues(t, 1, n)
}
