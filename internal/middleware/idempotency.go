package middleware

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"time"

	"lounge_backend/internal/cache"
	"lounge_backend/pkg/utils"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/blake2b"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"

	idempotencyLockTTL = 30 * time.Second
)

// IdempotencyStore is the subset of cache.IdempotencyStore the middleware needs.
type IdempotencyStore interface {
	AcquireLock(ctx context.Context, key, fingerprint string, lockTTL time.Duration) (bool, error)
	Get(ctx context.Context, key string) (*cache.IdempotencyRecord, error)
	SaveResult(ctx context.Context, key string, rec cache.IdempotencyRecord) error
	Release(ctx context.Context, key string) error
}

type capturingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *capturingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// fingerprint identifies the request payload so a reused key with a different body is rejected.
func fingerprint(method, path string, body []byte) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(method))
	h.Write([]byte{'\n'})
	h.Write([]byte(path))
	h.Write([]byte{'\n'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Idempotency replays the first successful response for a repeated Idempotency-Key.
// It must run after AuthMiddleware. A nil store disables it.
func Idempotency(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if store == nil || key == "" {
			c.Next()
			return
		}
		actor, ok := ActorFromContext(c)
		if !ok {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			utils.RespondValidationFailed(c, "could not read request body")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		ctx := c.Request.Context()
		storageKey := cache.KeyIdempotency(actor.OperatorID, c.Request.URL.Path, key)
		fp := fingerprint(c.Request.Method, c.Request.URL.Path, body)

		rec, err := store.Get(ctx, storageKey)
		if err != nil {
			// the store is an optimisation; serve the request without it
			utils.LogWarn("Idempotency store unavailable", map[string]interface{}{"error": err.Error()})
			c.Next()
			return
		}
		if rec == nil {
			locked, err := store.AcquireLock(ctx, storageKey, fp, idempotencyLockTTL)
			if err != nil {
				utils.LogWarn("Idempotency store unavailable", map[string]interface{}{"error": err.Error()})
				c.Next()
				return
			}
			if !locked {
				if rec, err = store.Get(ctx, storageKey); err != nil || rec == nil {
					rec = &cache.IdempotencyRecord{Fingerprint: fp, InProgress: true}
				}
			}
		}
		if rec != nil {
			replay(c, key, fp, rec)
			return
		}

		writer := &capturingWriter{ResponseWriter: c.Writer}
		c.Writer = writer
		c.Next()

		status := writer.Status()
		if status >= 200 && status < 300 {
			err = store.SaveResult(ctx, storageKey, cache.IdempotencyRecord{
				Fingerprint: fp,
				StatusCode:  status,
				Body:        writer.body.Bytes(),
			})
			if err != nil {
				utils.LogError(err, "Failed to save idempotent response", map[string]interface{}{"key": key})
			}
			return
		}
		// failed requests may be retried with the same key
		if err := store.Release(ctx, storageKey); err != nil {
			utils.LogError(err, "Failed to release idempotency key", map[string]interface{}{"key": key})
		}
	}
}

func replay(c *gin.Context, key, fp string, rec *cache.IdempotencyRecord) {
	switch {
	case rec.Fingerprint != fp:
		utils.RespondWithError(c, utils.NewAPIError(http.StatusUnprocessableEntity, utils.ErrCodeIdempotencyMismatch,
			"Idempotency key was already used with a different request", key))
	case rec.InProgress:
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeConflict,
			"A request with this idempotency key is still in progress", key))
	default:
		c.Header(HeaderIdempotencyKey, key)
		c.Header(headerReplayed, "true")
		c.Data(rec.StatusCode, "application/json; charset=utf-8", rec.Body)
		c.Abort()
	}
}
