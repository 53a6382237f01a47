// ユーザーサービスのエントリポイント。
// アカウントの登録・ログイン・プロフィール管理とJWTの発行を担当する。
// JWTの署名鍵を持つ唯一のサービスである。
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
	"github.com/nao1215/cloudmart/internal/user"
	"github.com/nao1215/cloudmart/internal/user/account"
	"github.com/nao1215/cloudmart/internal/user/store"
	"github.com/nao1215/cloudmart/pkg/config"
	"github.com/nao1215/cloudmart/pkg/logger"
	"github.com/nao1215/cloudmart/pkg/password"
	"github.com/nao1215/cloudmart/pkg/token"
	"github.com/rs/zerolog"
)

// shutdownTimeout はグレースフルシャットダウンの待機時間。
const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(user.ServiceName)
	if err != nil {
		errLog := zerolog.New(os.Stderr)
		errLog.Fatal().Err(err).Msg("設定の読み込みに失敗")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}, user.ServiceName)
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("ユーザーサービスが異常終了しました")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.UsingDevSecret {
		log.Warn().Msg("JWT_SECRET が未設定のため開発用の署名鍵を使用します")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.WithContext(ctx)

	st, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()

	hasher, err := password.NewHasher(cfg.BcryptCost)
	if err != nil {
		return err
	}
	issuer, err := token.NewIssuer(token.Config{
		Secret:     []byte(cfg.JWTSecret),
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	})
	if err != nil {
		return err
	}

	server := user.NewServer(user.Config{
		Service:     account.NewService(st, hasher, issuer),
		DB:          st,
		Verifier:    issuer,
		Logger:      log,
		CORSOrigins: cfg.CORSOrigins,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Str("env", cfg.Environment).Msg("ユーザーサービスを起動します")
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

	log.Info().Msg("ユーザーサービスを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
