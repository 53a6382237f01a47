// API Gatewayサービスのエントリポイント。
// アクセストークンの検証とリクエストルーティングを担当する。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線となる。
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/cloudmart/internal/gateway"
	"github.com/nao1215/cloudmart/pkg/config"
	"github.com/nao1215/cloudmart/pkg/logger"
	"github.com/nao1215/cloudmart/pkg/token"
	"github.com/rs/zerolog"
)

// shutdownTimeout はグレースフルシャットダウンの待機時間。
const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(gateway.ServiceName)
	if err != nil {
		errLog := zerolog.New(os.Stderr)
		errLog.Fatal().Err(err).Msg("設定の読み込みに失敗")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}, gateway.ServiceName)
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Gatewayサービスが異常終了しました")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.UsingDevSecret {
		log.Warn().Msg("JWT_SECRET が未設定のため開発用の署名鍵を使用します")
	}

	verifier, err := token.NewVerifier(token.Config{Secret: []byte(cfg.JWTSecret)})
	if err != nil {
		return err
	}

	server := gateway.NewServer(gateway.Config{
		Verifier:           verifier,
		UserServiceURL:     cfg.UserServiceURL,
		ProductServiceURL:  cfg.ProductServiceURL,
		OrderServiceURL:    cfg.OrderServiceURL,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		CORSOrigins:        cfg.CORSOrigins,
		Logger:             log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", httpServer.Addr).
			Str("user_service", cfg.UserServiceURL).
			Str("product_service", cfg.ProductServiceURL).
			Str("order_service", cfg.OrderServiceURL).
			Msg("Gatewayサービスを起動します")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Gatewayサービスを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
