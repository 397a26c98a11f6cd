package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayedHeader       = "Idempotent-Replayed"

	idempotencyLockTTL = 30 * time.Second
	maxIdempotentBody  = 1 << 20
)

// storedResponse is the response remembered for an idempotency key
type storedResponse struct {
	RequestHash string `json:"requestHash"`
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

// Idempotency replays the first response for a repeated Idempotency-Key.
// Runs after authentication, keys are scoped per user.
type Idempotency struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewIdempotency(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Idempotency {
	return &Idempotency{client: client, ttl: ttl, logger: logger}
}

func (m *Idempotency) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" || !mutating(c.Request.Method) {
			c.Next()
			return
		}
		if len(key) > 255 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "idempotency key too long", "code": "VALIDATION"})
			return
		}

		// лишний байт отличает тело ровно на лимите от обрезанного
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIdempotentBody+1))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "cannot read request body", "code": "VALIDATION"})
			return
		}
		if len(body) > maxIdempotentBody {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large", "code": "PAYLOAD_TOO_LARGE"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		actor, _ := ActorFrom(c)
		redisKey := fmt.Sprintf("idempotency:%d:%s", actor.UserID, key)
		hash := requestHash(c.Request.Method, c.Request.URL.Path, body)
		ctx := c.Request.Context()

		data, err := m.client.Get(ctx, redisKey).Bytes()
		switch {
		case err == nil:
			var stored storedResponse
			if err := json.Unmarshal(data, &stored); err == nil {
				if stored.RequestHash != hash {
					c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
						"error": "idempotency key was used with a different request",
						"code":  "IDEMPOTENCY_MISMATCH",
					})
					return
				}
				c.Header(ReplayedHeader, "true")
				c.Data(stored.Status, stored.ContentType, stored.Body)
				c.Abort()
				return
			}
			m.logger.Warn("Corrupted idempotency record", zap.String("key", redisKey))
		case !errors.Is(err, redis.Nil):
			// Redis недоступен: обрабатываем запрос без защиты от повторов
			m.logger.Warn("Idempotency store unavailable", zap.Error(err))
			c.Next()
			return
		}

		lockKey := redisKey + ":lock"
		acquired, err := m.client.SetNX(ctx, lockKey, GetRequestID(c), idempotencyLockTTL).Result()
		if err != nil {
			m.logger.Warn("Idempotency lock unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !acquired {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"error": "a request with this idempotency key is in progress",
				"code":  "IDEMPOTENCY_IN_PROGRESS",
			})
			return
		}
		defer m.client.Del(context.WithoutCancel(ctx), lockKey)

		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		status := w.Status()
		if status >= http.StatusInternalServerError {
			return
		}

		record, err := json.Marshal(storedResponse{
			RequestHash: hash,
			Status:      status,
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.body.Bytes(),
		})
		if err != nil {
			return
		}
		if err := m.client.Set(context.WithoutCancel(ctx), redisKey, record, m.ttl).Err(); err != nil {
			m.logger.Warn("Failed to store idempotent response", zap.String("key", redisKey), zap.Error(err))
		}
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

func requestHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

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
