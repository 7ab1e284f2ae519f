package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lounge_backend/internal/cache"
	"lounge_backend/internal/policy"
	"lounge_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func bearer(t *testing.T, operatorID int64, role string) string {
	t.Helper()
	token, err := utils.GenerateAccessToken(operatorID, "op", role, time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return "Bearer " + token
}

func TestAuthMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/me", AuthMiddleware(), func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"operator_id": actor.OperatorID, "role": actor.Role})
	})

	cases := map[string]struct {
		header string
		want   int
	}{
		"missing header": {"", http.StatusUnauthorized},
		"wrong scheme":   {"Basic abc", http.StatusUnauthorized},
		"garbage token":  {"Bearer not-a-token", http.StatusUnauthorized},
		"valid token":    {bearer(t, 7, "Manager"), http.StatusOK},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
			if tc.want != http.StatusOK {
				return
			}
			var body struct {
				OperatorID int64       `json:"operator_id"`
				Role       policy.Role `json:"role"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.OperatorID != 7 || body.Role != policy.RoleManager {
				t.Fatalf("unexpected actor %+v", body)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if id := w.Header().Get(HeaderRequestID); id == "" || id != w.Body.String() {
		t.Fatalf("expected a generated request id, got %q / %q", id, w.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get(HeaderRequestID) != "abc-123" {
		t.Fatalf("expected the caller's request id to be kept")
	}
}

// memoryStore mimics the Redis store semantics in memory.
type memoryStore struct {
	mu      sync.Mutex
	records map[string]cache.IdempotencyRecord
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[string]cache.IdempotencyRecord{}}
}

func (s *memoryStore) AcquireLock(_ context.Context, key, fp string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; ok {
		return false, nil
	}
	s.records[key] = cache.IdempotencyRecord{Fingerprint: fp, InProgress: true}
	return true, nil
}

func (s *memoryStore) Get(_ context.Context, key string) (*cache.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *memoryStore) SaveResult(_ context.Context, key string, rec cache.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = rec
	return nil
}

func (s *memoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

func TestIdempotencyReplaysFirstResponse(t *testing.T) {
	store := newMemoryStore()
	var calls int64
	r := gin.New()
	r.POST("/sales", AuthMiddleware(), Idempotency(store), func(c *gin.Context) {
		n := atomic.AddInt64(&calls, 1)
		c.JSON(http.StatusCreated, gin.H{"id": n})
	})
	auth := bearer(t, 3, "staff")

	send := func(key, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/sales", strings.NewReader(body))
		req.Header.Set("Authorization", auth)
		if key != "" {
			req.Header.Set(HeaderIdempotencyKey, key)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := send("k1", `{"total":10}`)
	second := send("k1", `{"total":10}`)
	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("expected 201 twice, got %d and %d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() || second.Header().Get(headerReplayed) != "true" {
		t.Fatalf("expected a replay, got %s then %s", first.Body.String(), second.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times", calls)
	}

	if w := send("k1", `{"total":11}`); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for a different payload, got %d", w.Code)
	}
	if w := send("", `{"total":10}`); w.Code != http.StatusCreated || calls != 2 {
		t.Fatalf("requests without a key must always run")
	}
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	store := newMemoryStore()
	key := cache.KeyIdempotency(3, "/sales", "k2")
	if _, err := store.AcquireLock(context.Background(), key, fingerprint(http.MethodPost, "/sales", []byte(`{}`)), time.Minute); err != nil {
		t.Fatalf("lock: %v", err)
	}

	r := gin.New()
	r.POST("/sales", AuthMiddleware(), Idempotency(store), func(c *gin.Context) { c.Status(http.StatusCreated) })
	req := httptest.NewRequest(http.MethodPost, "/sales", strings.NewReader(`{}`))
	req.Header.Set("Authorization", bearer(t, 3, "staff"))
	req.Header.Set(HeaderIdempotencyKey, "k2")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 while the first request is in flight, got %d", w.Code)
	}
}

func TestIdempotencyReleasesFailedRequests(t *testing.T) {
	store := newMemoryStore()
	var calls int
	r := gin.New()
	r.POST("/sales", AuthMiddleware(), Idempotency(store), func(c *gin.Context) {
		calls++
		if calls == 1 {
			c.JSON(http.StatusConflict, gin.H{"error": "insufficient stock"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})
	auth := bearer(t, 4, "staff")

	for i, want := range []int{http.StatusConflict, http.StatusCreated, http.StatusCreated} {
		req := httptest.NewRequest(http.MethodPost, "/sales", strings.NewReader(`{}`))
		req.Header.Set("Authorization", auth)
		req.Header.Set(HeaderIdempotencyKey, "k3")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != want {
			t.Fatalf("attempt %d: expected %d, got %d", i+1, want, w.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("expected the handler to run twice, ran %d times", calls)
	}
}
