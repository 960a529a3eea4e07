// Package main はドメインサービスのエントリポイント。
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"xdp-service/config"
	"xdp-service/internal/format"
	"xdp-service/internal/handler"
	"xdp-service/internal/identity"
	"xdp-service/internal/infra"
	"xdp-service/internal/protocol"
	"xdp-service/internal/repository"
	"xdp-service/internal/usecase"
	"xdp-service/internal/worker"
)

const startupCheckTimeout = 15 * time.Second

func main() {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	// 設定読み込み
	cfg := config.Load()

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	// トレース情報付きロガーを設定
	infra.SetupLogger(cfg, infra.ParseLevel(cfg.LogLevel))

	if cfg.DomainName == "" {
		slog.Error("XDP_DOMAIN_NAME is not set")
		os.Exit(1)
	}
	if cfg.AuthSecret == "" {
		slog.Error("XDP_AUTH_SECRET is not set")
		os.Exit(1)
	}

	// DB初期化
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is not set")
		os.Exit(1)
	}
	db, err := infra.NewDB(cfg.DatabaseURL, cfg)
	if err != nil {
		slog.Error("failed to init database", "error", err)
		os.Exit(1)
	}

	// 鍵の保護
	protector, err := infra.NewProtector(ctx, cfg)
	if err != nil {
		slog.Error("failed to init protector", "protector", cfg.Protector, "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := protector.Close(); closeErr != nil {
			slog.Error("failed to close protector", "error", closeErr)
		}
	}()

	pool := worker.NewPool(cfg.ThreadPoolSize)
	defer pool.Stop()
	cache := identity.NewCache(identity.DefaultCacheTTL)
	defer cache.Close()

	// DI
	directory := repository.NewDirectoryRepository(db)
	resolver := identity.NewResolver(cfg.MachineName, cfg.DomainName, directory, cache, pool)
	service := usecase.NewDomainService(
		usecase.DomainConfig{
			Machine:           cfg.MachineName,
			DomainName:        cfg.DomainName,
			DataRecoveryGroup: cfg.DataRecoveryGroup,
			UpdateClient:      cfg.UpdateClientCryptoConfig,
			Settings:          cfg.CryptoSettings(),
		},
		resolver,
		identity.NewAuthorizer(directory, cache),
		protector,
		pool,
		repository.NewAuditRepository(db),
	)

	if err := startupChecks(ctx, cfg, db, protector, resolver); err != nil {
		slog.Error("startup check failed", "error", err)
		os.Exit(1)
	}

	processor := protocol.NewProcessor(service).WithObserver(func(message, result string) {
		infra.DomainRequests.WithLabelValues(message, result).Inc()
	})
	router := handler.NewRouter(handler.NewMessageHandler(processor), handler.RouterConfig{
		Tokens:    protocol.NewTokenSigner([]byte(cfg.AuthSecret), cfg.MachineName),
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
		Health:    pingDB(db),
	})

	// サーバー起動
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting domain service",
		"port", cfg.Port,
		"machine", cfg.MachineName,
		"domain", cfg.DomainName,
		"settings", cfg.CryptoSettings().String(),
	)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func pingDB(db *gorm.DB) handler.HealthChecker {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

// startupChecks はデータベース、鍵の保護、データ回復グループを並行して確認する。
func startupChecks(ctx context.Context, cfg *config.Config, db *gorm.DB, protector infra.Protector, resolver *identity.Resolver) error {
	ctx, cancel := context.WithTimeout(ctx, startupCheckTimeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := pingDB(db)(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		scope := format.DomainScope(cfg.MachineName)
		sample := []byte("xdp-startup-sample")
		wrapped, err := protector.Protect(ctx, sample, scope)
		if err != nil {
			return fmt.Errorf("protector: %w", err)
		}
		got, err := protector.Unprotect(ctx, wrapped, scope)
		if err != nil {
			return fmt.Errorf("protector: %w", err)
		}
		if !bytes.Equal(got, sample) {
			return errors.New("protector: round trip mismatch")
		}
		return nil
	})
	if cfg.DataRecoveryGroup != "" {
		g.Go(func() error {
			p, err := identity.ParseContext(cfg.DataRecoveryGroup, cfg.MachineName)
			if err == nil {
				_, err = resolver.Resolve(ctx, p)
			}
			if err != nil {
				// 回復グループなしでも動作するため警告に留める
				slog.WarnContext(ctx, "data recovery group is not usable",
					"operation", "startup_check",
					"group", cfg.DataRecoveryGroup,
					"error", err,
				)
			}
			return nil
		})
	}
	return g.Wait()
}
