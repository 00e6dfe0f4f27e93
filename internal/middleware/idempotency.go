package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
	idempotencyTTL    = 24 * time.Hour
)

// IdempotencyStore keeps replayable responses. Get returns (nil, nil) on a miss.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// storedResponse is what a replay sends back.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
}

// bodyRecorder tees the handler's response body.
type bodyRecorder struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// IdempotencyMiddleware replays the stored response of a mutating request
// retried with the same Idempotency-Key. Keys are scoped to the caller and
// route, so it must run after Authenticate. Only 2xx responses are stored,
// so a failed attempt can be retried. A nil store disables it.
func IdempotencyMiddleware(store IdempotencyStore, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(idempotencyHeader))
		if store == nil || key == "" || !mutating(c.Request.Method) {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		storeKey := scopedIdempotencyKey(c, key)

		prior, err := loadResponse(ctx, store, storeKey)
		switch {
		case err != nil:
			logger.Warn("idempotency lookup failed", "key", storeKey, "error", err)
		case prior != nil:
			c.Header(replayedHeader, "true")
			c.Data(prior.Status, prior.ContentType, prior.Body)
			c.Abort()
			return
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		status := rec.Status()
		if status < http.StatusOK || status >= http.StatusMultipleChoices {
			return
		}
		resp := storedResponse{
			Status:      status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.buf.Bytes(),
		}
		if err := saveResponse(ctx, store, storeKey, resp); err != nil {
			logger.Warn("idempotency store failed", "key", storeKey, "error", err)
		}
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

func scopedIdempotencyKey(c *gin.Context, key string) string {
	return strings.Join([]string{"idempotency", UserID(c), c.Request.Method, c.Request.URL.Path, key}, ":")
}

func loadResponse(ctx context.Context, store IdempotencyStore, key string) (*storedResponse, error) {
	raw, err := store.Get(ctx, key)
	if err != nil || raw == nil {
		return nil, err
	}
	var resp storedResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func saveResponse(ctx context.Context, store IdempotencyStore, key string, resp storedResponse) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return store.Set(ctx, key, raw, idempotencyTTL)
}
