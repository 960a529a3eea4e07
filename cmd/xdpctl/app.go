package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/user"

	"gorm.io/gorm"

	"xdp-service/internal/domain"
	"xdp-service/internal/format"
	v1 "xdp-service/internal/format/v1"
	"xdp-service/internal/identity"
	"xdp-service/internal/infra"
	"xdp-service/internal/protocol"
	"xdp-service/internal/repository"
	"xdp-service/internal/usecase"
	"xdp-service/internal/worker"
)

// app はコマンドが共有する依存関係。
type app struct {
	db        *gorm.DB
	directory *repository.DirectoryRepository
	resolver  *identity.Resolver
	protect   *usecase.ProtectService

	closers []func() error
}

func openDB() (*gorm.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	db, err := infra.NewDB(cfg.DatabaseURL, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newApp はディレクトリ、保護、ドメインクライアントを組み立てる。
func newApp(ctx context.Context) (*app, error) {
	a := &app{}

	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracer: %w", err)
	}
	if tp != nil {
		a.closers = append(a.closers, func() error { return tp.Shutdown(context.Background()) })
	}

	db, err := openDB()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	protector, err := infra.NewProtector(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to init protector: %w", err)
	}
	a.closers = append(a.closers, protector.Close)

	pool := worker.NewPool(cfg.ThreadPoolSize)
	a.closers = append(a.closers, func() error { pool.Stop(); return nil })

	cache := identity.NewCache(identity.DefaultCacheTTL)
	a.closers = append(a.closers, cache.Close)

	a.directory = repository.NewDirectoryRepository(db)
	a.resolver = identity.NewResolver(cfg.MachineName, cfg.DomainName, a.directory, cache, pool)

	env := &v1.Environment{
		Machine:    cfg.MachineName,
		Protector:  protector,
		Authorizer: identity.NewAuthorizer(a.directory, cache),
		Runner:     pool,
	}
	if cfg.DomainName != "" && cfg.DomainURL != "" {
		transport := protocol.NewHTTPTransport(cfg.DomainURL, cfg.NetworkTimeout,
			protocol.NewTokenSigner([]byte(cfg.AuthSecret), cfg.MachineName))
		a.closers = append(a.closers, transport.Close)
		env.Domain = protocol.NewClient(transport)
	}

	registry := format.NewRegistry(v1.Version, map[uint16]format.Factory{v1.Version: v1.NewFactory(env)})
	a.protect = usecase.NewProtectService(registry, a.resolver, pool, cfg.MachineName, cfg.CryptoSettings())
	return a, nil
}

// Close は生成した順と逆に依存関係を解放する。
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Error("failed to release resource", "error", err)
		}
	}
	a.closers = nil
}

// caller は --as または OS のユーザーをディレクトリで解決する。
func (a *app) caller(ctx context.Context) (domain.Principal, error) {
	name := callerAs
	if name == "" {
		u, err := user.Current()
		if err != nil {
			return domain.Principal{}, fmt.Errorf("%w: determining current user: %v", domain.ErrInvalidIdentity, err)
		}
		name = u.Username
	}
	p, err := identity.ParseContext(name, cfg.MachineName)
	if err != nil {
		return domain.Principal{}, err
	}
	info, err := a.resolver.Resolve(ctx, p)
	if err != nil {
		return domain.Principal{}, err
	}
	return domain.Principal{SID: info.SID, Name: info.Name, Context: info.Context}, nil
}
