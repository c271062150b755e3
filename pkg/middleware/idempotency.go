package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/alumni-network/alumni-backend-system/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	ReplayedHeader    = "X-Idempotency-Replayed"

	inFlightMarker = "in-flight"
)

// IdempotencyConfig holds configuration for idempotency middleware
type IdempotencyConfig struct {
	TTL  time.Duration // how long a result is replayed (default 24h)
	Lock time.Duration // how long an unfinished request holds its key (default 1m)
}

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

// idempotencyKey hashes caller, key and request fingerprint together so a
// reused key with a different body is a different request.
func idempotencyKey(caller, key, method, path string, body []byte) string {
	h := sha256.New()
	for _, part := range []string{caller, key, method, path} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	h.Write(body)
	return "idem:" + hex.EncodeToString(h.Sum(nil))
}

// captureWriter tees the response body for caching
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response of a POST/PATCH carrying an
// Idempotency-Key that was already processed. A concurrent duplicate gets 409.
// Server errors are not stored so the client can retry. Without Redis the
// middleware is a pass-through.
func Idempotency(client *redis.Client, cfg IdempotencyConfig) gin.HandlerFunc {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Lock <= 0 {
		cfg.Lock = time.Minute
	}
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		if client == nil || key == "" || (c.Request.Method != http.MethodPost && c.Request.Method != http.MethodPatch) {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable request body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		caller := c.ClientIP()
		if actor, ok := ActorFrom(c); ok {
			caller = actor.ID
		}
		redisKey := idempotencyKey(caller, key, c.Request.Method, c.Request.URL.Path, body)
		ctx := c.Request.Context()

		acquired, err := client.SetNX(ctx, redisKey, inFlightMarker, cfg.Lock).Result()
		if err != nil {
			logger.Warnf("idempotency store unavailable: %v", err)
			c.Next()
			return
		}
		if !acquired {
			replay(c, client, redisKey)
			return
		}

		cw := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = cw
		c.Next()

		status := cw.Status()
		if status >= http.StatusInternalServerError {
			_ = client.Del(ctx, redisKey).Err()
			return
		}
		b, err := json.Marshal(storedResponse{
			Status:      status,
			ContentType: cw.Header().Get("Content-Type"),
			Body:        cw.body.Bytes(),
		})
		if err == nil {
			err = client.Set(ctx, redisKey, b, cfg.TTL).Err()
		}
		if err != nil {
			logger.Warnf("storing idempotent response: %v", err)
		}
	}
}

func replay(c *gin.Context, client *redis.Client, redisKey string) {
	raw, err := client.Get(c.Request.Context(), redisKey).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		// expired between SETNX and GET
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "request with this Idempotency-Key is being retried, try again"})
		return
	case err != nil:
		logger.Warnf("idempotency lookup: %v", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "idempotency store unavailable"})
		return
	case string(raw) == inFlightMarker:
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "request with this Idempotency-Key is still in progress"})
		return
	}
	var sr storedResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		logger.Warnf("corrupt idempotency entry %s: %v", redisKey, err)
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "request with this Idempotency-Key cannot be replayed"})
		return
	}
	c.Header(ReplayedHeader, "true")
	contentType := sr.ContentType
	if contentType == "" {
		contentType = "application/json; charset=utf-8"
	}
	c.Data(sr.Status, contentType, sr.Body)
	c.Abort()
}
