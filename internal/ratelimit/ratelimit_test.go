package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/realisereallies/anime/internal/auth"
)

func newLimiter(t *testing.T, max int) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, max, time.Minute), mr
}

func TestAllowSlidingWindow(t *testing.T) {
	l, _ := newLimiter(t, 2)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.Now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, "user:a")
		if err != nil || !d.Allowed {
			t.Fatalf("request %d: %+v %v", i, d, err)
		}
	}
	if d, _ := l.Allow(ctx, "user:a"); d.Allowed || d.Remaining != 0 {
		t.Fatalf("third request should be limited: %+v", d)
	}
	if d, _ := l.Allow(ctx, "user:b"); !d.Allowed {
		t.Fatal("other identifiers have their own window")
	}

	now = now.Add(61 * time.Second)
	if d, _ := l.Allow(ctx, "user:a"); !d.Allowed {
		t.Fatalf("window should have slid: %+v", d)
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l, _ := newLimiter(t, 1)

	r := gin.New()
	r.POST("/x", func(c *gin.Context) {
		c.Set(auth.CtxIdentityKey, &auth.Identity{UserID: c.GetHeader("X-User")})
		c.Next()
	}, l.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.Header.Set("X-User", user)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	if w := send("u1"); w.Code != http.StatusOK || w.Header().Get("X-RateLimit-Limit") != "1" {
		t.Fatalf("first: %d %v", w.Code, w.Header())
	}
	w := send("u1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second: expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
	if w := send("u2"); w.Code != http.StatusOK {
		t.Fatalf("other user: %d", w.Code)
	}
}

func TestMiddlewareFailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l, mr := newLimiter(t, 1)
	mr.Close()

	r := gin.New()
	r.POST("/x", l.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected pass-through, got %d", i, w.Code)
		}
	}
}

func TestDisabledLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := New(nil, 1, time.Minute)
	if l.Enabled() {
		t.Fatal("nil client should disable limiting")
	}
	r := gin.New()
	r.POST("/x", l.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: %d", i, w.Code)
		}
	}
}

func TestConnect(t *testing.T) {
	if c, err := Connect(context.Background(), ""); c != nil || err != nil {
		t.Fatalf("empty addr: %v %v", c, err)
	}
	mr := miniredis.RunT(t)
	c, err := Connect(context.Background(), mr.Addr())
	if err != nil || c == nil {
		t.Fatalf("connect: %v", err)
	}
	_ = c.Close()
}
