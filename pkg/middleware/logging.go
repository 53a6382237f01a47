package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// skipLogPaths はアクセスログを出力しないパス。
var skipLogPaths = map[string]struct{}{
	"/health":       {},
	"/health/ready": {},
	"/ready":        {},
	"/metrics":      {},
}

// RequestLogger はリクエストごとの構造化ログを出力するGinミドルウェアを返す。
// リクエストIDを持つロガーをリクエストのcontextに格納し、
// 後続のハンドラは zerolog.Ctx で取得できる。
func RequestLogger(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		l := base.With().Str("request_id", GetRequestID(c)).Logger()
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))

		if _, skip := skipLogPaths[c.Request.URL.Path]; skip {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		status := c.Writer.Status()
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = l.Error()
		case status >= 400:
			event = l.Warn()
		default:
			event = l.Info()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client", c.ClientIP()).
			Int("size", c.Writer.Size())
		if userID := GetUserID(c); userID != "" {
			event.Str("user_id", userID)
		}
		if latency > 500*time.Millisecond {
			event.Bool("slow", true)
		}
		event.Msg("request")
	}
}
