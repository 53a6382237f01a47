package gateway

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/cloudmart/pkg/apperror"
	"github.com/nao1215/cloudmart/pkg/httpclient"
	"github.com/nao1215/cloudmart/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// ServiceName はログとヘルスチェックで使うサービス名。
const ServiceName = "api-gateway"

// MetricsNamespace はPrometheusメトリクス名の接頭辞。
const MetricsNamespace = "api_gateway"

// PublicPaths は認証なしでアクセスできるパス。前方一致で判定する。
var PublicPaths = []string{
	"/health",
	"/ready",
	"/metrics",
	"/api/v1/auth/login",
	"/api/v1/auth/register",
	"/api/v1/auth/refresh",
}

// Config はGatewayサーバーの設定と依存関係。
type Config struct {
	// Verifier はアクセストークンの検証器。
	Verifier middleware.AccessVerifier
	// UserServiceURL はユーザーサービスのベースURL。
	UserServiceURL string
	// ProductServiceURL は商品サービスのベースURL。
	ProductServiceURL string
	// OrderServiceURL は注文サービスのベースURL。
	OrderServiceURL string
	// Timeout は上流サービス呼び出しのタイムアウト。0の場合はデフォルト値。
	Timeout time.Duration
	// RateLimitPerMinute はクライアントIPごとの1分あたりのリクエスト上限。
	RateLimitPerMinute int
	// CORSOrigins は許可するオリジン。
	CORSOrigins []string
	Logger      zerolog.Logger
}

// upstream は外部パスのプレフィックスと転送先の対応。
type upstream struct {
	// prefix はGatewayで受け付けるパスのプレフィックス。
	prefix string
	// target は上流サービスでのパスのプレフィックス。
	target string
	// name はエラーメッセージに使うサービス名。
	name   string
	client *httpclient.Client
}

// match はpathがこのupstreamの対象であれば上流でのパスを返す。
func (u upstream) match(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, u.prefix)
	if !ok || (rest != "" && !strings.HasPrefix(rest, "/")) {
		return "", false
	}
	return u.target + rest, true
}

// Server はAPI GatewayのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// users はユーザーサービスのクライアント。レディネス確認にも使う。
	users *httpclient.Client
	// upstreams は転送ルールの一覧。
	upstreams []upstream

	metrics *middleware.Metrics
	// proxied は上流サービスへ転送したリクエスト数。
	proxied *prometheus.CounterVec
	// failures は上流サービスに到達できなかったリクエスト数。
	failures *prometheus.CounterVec
}

// NewServer は新しいGatewayサーバーを生成する。
func NewServer(cfg Config) *Server {
	users := httpclient.New(cfg.UserServiceURL, cfg.Timeout)
	products := httpclient.New(cfg.ProductServiceURL, cfg.Timeout)
	orders := httpclient.New(cfg.OrderServiceURL, cfg.Timeout)

	metrics := middleware.NewMetrics(MetricsNamespace)
	proxied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "upstream_requests_total",
		Help:      "Total number of requests forwarded to upstream services",
	}, []string{"upstream"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "upstream_failures_total",
		Help:      "Total number of requests that could not reach an upstream service",
	}, []string{"upstream"})
	metrics.MustRegister(proxied, failures)

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(metrics.Middleware())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger(cfg.Logger))
	router.Use(middleware.CORS(cfg.CORSOrigins))
	router.Use(middleware.RateLimit(middleware.RateLimitConfig{RequestsPerMinute: cfg.RateLimitPerMinute}))
	router.Use(middleware.Authenticate(middleware.NewGate(cfg.Verifier, PublicPaths...)))

	s := &Server{
		router: router,
		users:  users,
		upstreams: []upstream{
			{prefix: "/api/v1/auth", target: "/auth", name: "user-service", client: users},
			{prefix: "/api/v1/users", target: "/users", name: "user-service", client: users},
			{prefix: "/api/v1/products", target: "/products", name: "product-service", client: products},
			{prefix: "/api/v1/categories", target: "/categories", name: "product-service", client: products},
			{prefix: "/api/v1/orders", target: "/orders", name: "order-service", client: orders},
		},
		metrics:  metrics,
		proxied:  proxied,
		failures: failures,
	}
	s.setupRoutes()
	return s
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes はAPIルーティングを設定する。
// /api/v1 配下は上流サービスへの転送とし、該当しないパスは404を返す。
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth())
	s.router.GET("/ready", s.handleReady())
	s.router.GET("/metrics", s.metrics.Handler())

	s.router.Any("/api/v1/*path", s.handleProxy())
	s.router.NoRoute(func(c *gin.Context) {
		apperror.Respond(c, apperror.NotFound("エンドポイント"))
	})
}

func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   ServiceName,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// handleReady はユーザーサービスに到達できる場合のみ200を返す。
func (s *Server) handleReady() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := s.users.GetJSON(ctx, "/health", nil); err != nil {
			zerolog.Ctx(c.Request.Context()).Warn().Err(err).Msg("ユーザーサービスに接続できません")
			apperror.Respond(c, apperror.ServiceUnavailable("user-service"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "service": ServiceName})
	}
}

// handleProxy はリクエストを対応する上流サービスに転送するハンドラを返す。
func (s *Server) handleProxy() gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, u := range s.upstreams {
			if path, ok := u.match(c.Request.URL.Path); ok {
				s.forward(c, u, path)
				return
			}
		}
		apperror.Respond(c, apperror.NotFound("エンドポイント"))
	}
}

// forward は上流サービスへリクエストを転送し、レスポンスをそのまま返す。
// 認証済みの場合はクレームから X-User-* ヘッダーを設定する。
func (s *Server) forward(c *gin.Context, u upstream, path string) {
	ctx := c.Request.Context()
	if claims := middleware.GetClaims(c); claims != nil {
		ctx = httpclient.WithIdentity(ctx, httpclient.Identity{
			UserID: claims.UserID,
			Email:  claims.Email,
			Role:   string(claims.Role),
		})
	}

	header := c.Request.Header.Clone()
	header.Set("X-Forwarded-For", c.ClientIP())

	s.proxied.WithLabelValues(u.name).Inc()
	resp, err := u.client.Forward(ctx, c.Request.Method, path, c.Request.URL.RawQuery, header, c.Request.Body)
	if err != nil {
		s.failures.WithLabelValues(u.name).Inc()
		zerolog.Ctx(ctx).Error().Err(err).
			Str("upstream", u.name).
			Str("path", path).
			Msg("上流サービスへの転送に失敗")
		apperror.Respond(c, apperror.ServiceUnavailable(u.name))
		return
	}
	defer resp.Body.Close()

	httpclient.CopyResponseHeader(c.Writer.Header(), resp.Header)
	c.Status(resp.StatusCode)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("upstream", u.name).Msg("レスポンスの転送が中断されました")
	}
}
