package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

// TestRateLimit はRateLimitミドルウェアを検証する。
func TestRateLimit(t *testing.T) {
	t.Parallel()

	newRouter := func(cfg RateLimitConfig) *gin.Engine {
		router := gin.New()
		router.Use(RateLimit(cfg))
		router.GET("/test", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
		return router
	}

	t.Run("上限を超えると429とRetry-Afterが返ること", func(t *testing.T) {
		t.Parallel()

		router := newRouter(RateLimitConfig{RequestsPerMinute: 2})

		for i := range 2 {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
			if w.Code != http.StatusOK {
				t.Fatalf("%d回目: ステータスコード = %d, want %d", i+1, w.Code, http.StatusOK)
			}
		}

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		if w.Code != http.StatusTooManyRequests {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusTooManyRequests)
		}
		if got := w.Header().Get("Retry-After"); got != "60" {
			t.Errorf("Retry-After = %q, want %q", got, "60")
		}
		if code := decodeError(t, w); code != "RATE_LIMITED" {
			t.Errorf("error = %q, want %q", code, "RATE_LIMITED")
		}
	})

	t.Run("クライアントごとに独立して制限されること", func(t *testing.T) {
		t.Parallel()

		router := newRouter(RateLimitConfig{
			RequestsPerMinute: 1,
			KeyFunc:           func(c *gin.Context) string { return c.GetHeader("X-Client") },
		})

		for _, client := range []string{"a", "b"} {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set("X-Client", client)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != http.StatusOK {
				t.Errorf("client %s: ステータスコード = %d, want %d", client, w.Code, http.StatusOK)
			}
		}
	})
}

// TestLimiterSetSweep は長時間アクセスの無いクライアントが破棄されることを検証する。
func TestLimiterSetSweep(t *testing.T) {
	t.Parallel()

	s := &limiterSet{limit: 1, burst: 1, limiters: make(map[string]*limiterEntry)}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	s.allow("old", now)
	s.allow("new", now.Add(15*time.Minute))

	if _, ok := s.limiters["old"]; ok {
		t.Error("古いクライアントが破棄されていない")
	}
	if _, ok := s.limiters["new"]; !ok {
		t.Error("新しいクライアントが登録されていない")
	}
}
