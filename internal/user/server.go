package user

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/nao1215/cloudmart/internal/user/account"
	"github.com/nao1215/cloudmart/pkg/apperror"
	"github.com/nao1215/cloudmart/pkg/middleware"
	"github.com/nao1215/cloudmart/pkg/token"
	"github.com/rs/zerolog"
)

// ServiceName はログとヘルスチェックで使うサービス名。
const ServiceName = "user-service"

// MetricsNamespace はPrometheusメトリクス名の接頭辞。
const MetricsNamespace = "user_service"

// Pinger はデータベースの疎通確認を行う。
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config はサーバーの依存関係。
type Config struct {
	Service     *account.Service
	DB          Pinger
	Verifier    middleware.AccessVerifier
	Logger      zerolog.Logger
	CORSOrigins []string
}

// Server はユーザーサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// service はアカウントの認証フロー。
	service *account.Service
	// db は疎通確認の対象。
	db Pinger
	// verifier はアクセストークンの検証器。
	verifier middleware.AccessVerifier
	// validate はリクエストボディのバリデータ。
	validate *validator.Validate
	metrics  *middleware.Metrics
}

// NewServer は新しいユーザーサーバーを生成する。
func NewServer(cfg Config) *Server {
	metrics := middleware.NewMetrics(MetricsNamespace)

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(metrics.Middleware())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger(cfg.Logger))
	router.Use(middleware.CORS(cfg.CORSOrigins))

	s := &Server{
		router:   router,
		service:  cfg.Service,
		db:       cfg.DB,
		verifier: cfg.Verifier,
		validate: newValidator(),
		metrics:  metrics,
	}
	s.setupRoutes()
	return s
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleInfo())
	s.router.GET("/health", s.handleHealth())
	s.router.GET("/health/ready", s.handleReady())
	s.router.GET("/metrics", s.metrics.Handler())

	requireAuth := middleware.JWTAuth(s.verifier)

	auth := s.router.Group("/auth")
	{
		auth.POST("/register", s.handleRegister())
		auth.POST("/login", s.handleLogin())
		auth.POST("/refresh", s.handleRefresh())
		auth.GET("/me", requireAuth, s.handleMe())
	}

	users := s.router.Group("/users")
	users.Use(requireAuth)
	{
		users.PUT("/profile", s.handleUpdateProfile())
		users.PUT("/password", s.handleChangePassword())
		users.DELETE("/account", s.handleDeactivate())
		// 管理者のみ
		admin := middleware.Authorize(token.RoleAdmin)
		users.GET("", admin, s.handleList())
		users.GET("/:id/events", admin, s.handleEvents())
	}
}

func (s *Server) handleInfo() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": ServiceName,
			"status":  "running",
			"endpoints": gin.H{
				"auth":   "/auth",
				"users":  "/users",
				"health": "/health",
			},
		})
	}
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

// handleReady はデータベースに接続できる場合のみ200を返す。
func (s *Server) handleReady() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := s.db.Ping(ctx); err != nil {
			zerolog.Ctx(c.Request.Context()).Warn().Err(err).Msg("データベースに接続できません")
			apperror.Respond(c, apperror.ServiceUnavailable("データベース"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "database": "connected"})
	}
}

// registerRequest はアカウント登録リクエストのJSON構造。
type registerRequest struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"firstName" validate:"max=100"`
	LastName  string `json:"lastName" validate:"max=100"`
	Phone     string `json:"phone" validate:"max=20"`
}

func (r *registerRequest) normalize() {
	r.Email = strings.TrimSpace(r.Email)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Phone = strings.TrimSpace(r.Phone)
}

// loginRequest はログインリクエストのJSON構造。
type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (r *loginRequest) normalize() {
	r.Email = strings.TrimSpace(r.Email)
}

// refreshRequest はトークン更新リクエストのJSON構造。
type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// updateProfileRequest はプロフィール更新リクエストのJSON構造。
// 省略したフィールドは変更しない。
type updateProfileRequest struct {
	FirstName *string `json:"firstName" validate:"omitempty,min=1,max=100"`
	LastName  *string `json:"lastName" validate:"omitempty,min=1,max=100"`
	Phone     *string `json:"phone" validate:"omitempty,min=1,max=20"`
}

func (r *updateProfileRequest) normalize() {
	r.FirstName = trimmed(r.FirstName)
	r.LastName = trimmed(r.LastName)
	r.Phone = trimmed(r.Phone)
}

// changePasswordRequest はパスワード変更リクエストのJSON構造。
type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
}

// authResponse は登録・ログインのJSONレスポンス構造。
type authResponse struct {
	Message      string             `json:"message"`
	User         account.PublicUser `json:"user"`
	AccessToken  string             `json:"accessToken"`
	RefreshToken string             `json:"refreshToken"`
}

func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := s.bind(c, &req); err != nil {
			apperror.Respond(c, err)
			return
		}

		res, err := s.service.Register(c.Request.Context(), account.RegisterInput{
			Email:     req.Email,
			Password:  req.Password,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Phone:     req.Phone,
		})
		if err != nil {
			apperror.Respond(c, err)
			return
		}

		c.JSON(http.StatusCreated, authResponse{
			Message:      "ユーザー登録が完了しました",
			User:         res.User,
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
		})
	}
}

func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := s.bind(c, &req); err != nil {
			apperror.Respond(c, err)
			return
		}

		res, err := s.service.Login(c.Request.Context(), req.Email, req.Password, c.ClientIP())
		if err != nil {
			apperror.Respond(c, err)
			return
		}

		c.JSON(http.StatusOK, authResponse{
			Message:      "ログインしました",
			User:         res.User,
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
		})
	}
}

func (s *Server) handleRefresh() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req refreshRequest
		if err := s.bind(c, &req); err != nil {
			apperror.Respond(c, err)
			return
		}

		access, err := s.service.Refresh(c.Request.Context(), req.RefreshToken)
		if err != nil {
			apperror.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"accessToken": access})
	}
}

func (s *Server) handleMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := s.service.Me(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			apperror.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": u})
	}
}

func (s *Server) handleUpdateProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateProfileRequest
		if err := s.bind(c, &req); err != nil {
			apperror.Respond(c, err)
			return
		}

		u, err := s.service.UpdateProfile(c.Request.Context(), middleware.GetUserID(c), account.ProfileUpdate{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Phone:     req.Phone,
		})
		if err != nil {
			apperror.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "プロフィールを更新しました", "user": u})
	}
}

func (s *Server) handleChangePassword() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req changePasswordRequest
		if err := s.bind(c, &req); err != nil {
			apperror.Respond(c, err)
			return
		}

		if err := s.service.ChangePassword(c.Request.Context(), middleware.GetUserID(c), req.CurrentPassword, req.NewPassword); err != nil {
			apperror.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "パスワードを変更しました"})
	}
}

func (s *Server) handleDeactivate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.service.Deactivate(c.Request.Context(), middleware.GetUserID(c)); err != nil {
			apperror.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "アカウントを無効化しました"})
	}
}

func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.Query("page"))
		limit, _ := strconv.Atoi(c.Query("limit"))

		res, err := s.service.List(c.Request.Context(), page, limit)
		if err != nil {
			apperror.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// handleEvents は指定ユーザーの監査イベントを返す。
func (s *Server) handleEvents() gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := s.service.Events(c.Request.Context(), c.Param("id"))
		if err != nil {
			apperror.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": events})
	}
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}
