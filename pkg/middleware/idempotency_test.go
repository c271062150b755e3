package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func idempotentEngine(t *testing.T, status int) (*gin.Engine, *atomic.Int32, *mr.Miniredis) {
	t.Helper()
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})

	calls := &atomic.Int32{}
	r := gin.New()
	r.Use(Idempotency(client, IdempotencyConfig{TTL: time.Hour}))
	r.POST("/pay", func(c *gin.Context) {
		n := calls.Add(1)
		c.JSON(status, gin.H{"call": n})
	})
	return r, calls, m
}

func post(r *gin.Engine, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/pay", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotencyReplaysResponse(t *testing.T) {
	r, calls, _ := idempotentEngine(t, http.StatusCreated)

	first := post(r, "k1", `{"amount":100}`)
	require.Equal(t, http.StatusCreated, first.Code)
	second := post(r, "k1", `{"amount":100}`)
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, "true", second.Header().Get(ReplayedHeader))
	require.JSONEq(t, first.Body.String(), second.Body.String())
	require.Equal(t, int32(1), calls.Load())

	// a different body under the same key is a new request
	require.Equal(t, http.StatusCreated, post(r, "k1", `{"amount":200}`).Code)
	require.Equal(t, int32(2), calls.Load())
}

func TestIdempotencyWithoutKeyPassesThrough(t *testing.T) {
	r, calls, _ := idempotentEngine(t, http.StatusCreated)
	post(r, "", `{}`)
	post(r, "", `{}`)
	require.Equal(t, int32(2), calls.Load())
}

func TestIdempotencyInFlightConflict(t *testing.T) {
	r, calls, m := idempotentEngine(t, http.StatusCreated)
	require.NoError(t, m.Set(idempotencyKey("192.0.2.1", "k2", http.MethodPost, "/pay", []byte(`{}`)), inFlightMarker))

	w := post(r, "k2", `{}`)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Zero(t, calls.Load())
}

func TestIdempotencyDoesNotStoreServerErrors(t *testing.T) {
	r, calls, _ := idempotentEngine(t, http.StatusBadGateway)
	post(r, "k3", `{}`)
	post(r, "k3", `{}`)
	require.Equal(t, int32(2), calls.Load())
}

func TestIdempotencyWithoutRedis(t *testing.T) {
	r := gin.New()
	r.Use(Idempotency(nil, IdempotencyConfig{}))
	r.POST("/pay", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	require.Equal(t, http.StatusNoContent, post(r, "k", `{}`).Code)
}
