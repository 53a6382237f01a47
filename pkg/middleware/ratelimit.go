package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/cloudmart/pkg/apperror"
	"golang.org/x/time/rate"
)

// RateLimitConfig はレート制限の設定。
type RateLimitConfig struct {
	// RequestsPerMinute はクライアントごとの1分あたりの上限。
	RequestsPerMinute int
	// Burst は瞬間的に許可するリクエスト数。0の場合はRequestsPerMinuteと同じ。
	Burst int
	// KeyFunc はクライアントを識別するキーを返す。デフォルトはクライアントIP。
	KeyFunc func(*gin.Context) string
}

// RateLimit はクライアントごとにトークンバケットでレート制限を行うGinミドルウェアを返す。
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 100
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RequestsPerMinute
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *gin.Context) string { return c.ClientIP() }
	}

	limiters := &limiterSet{
		limit:    rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute)),
		burst:    cfg.Burst,
		limiters: make(map[string]*limiterEntry),
	}

	return func(c *gin.Context) {
		if !limiters.allow(cfg.KeyFunc(c), time.Now()) {
			c.Header("Retry-After", "60")
			apperror.Respond(c, apperror.RateLimited())
			return
		}
		c.Next()
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet はキーごとのrate.Limiterを保持する。
type limiterSet struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*limiterEntry
	swept    time.Time
}

func (s *limiterSet) allow(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 10分以上アクセスの無いクライアントを破棄する
	if now.Sub(s.swept) > 10*time.Minute {
		for k, e := range s.limiters {
			if now.Sub(e.lastSeen) > 10*time.Minute {
				delete(s.limiters, k)
			}
		}
		s.swept = now
	}

	e, ok := s.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}
