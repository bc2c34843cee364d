package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/prividentity/cryptonet-go/internal/config"
	"github.com/prividentity/cryptonet-go/internal/logging"
	"github.com/prividentity/cryptonet-go/internal/pool"
	"github.com/prividentity/cryptonet-go/internal/store"
	"github.com/prividentity/cryptonet-go/pkg/cryptonet"
	"github.com/prividentity/cryptonet-go/pkg/cryptonet/shim"
)

// Open builds a Service from configuration: the library with the configured
// driver, a session pool, and the audit log and cache (postgres and redis
// when configured, in memory otherwise). Close releases all of it.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (svc *Service, err error) {
	var closers []func() error
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i]()
			}
		}
	}()

	var drv cryptonet.Driver
	if cfg.Library.Driver == config.DriverShim {
		drv = shim.New()
	}
	lib, err := cryptonet.Open(cryptonet.Config{
		WorkingDir:       cfg.Library.WorkingDir,
		CreateWorkingDir: true,
		Driver:           drv,
		Logger:           logging.ForLibrary(logger),
	})
	if err != nil {
		return nil, err
	}
	closers = append(closers, lib.Close)

	p, err := pool.New(ctx, lib, json.RawMessage(cfg.Library.Settings), cfg.Library.SessionPoolSize)
	if err != nil {
		return nil, err
	}
	closers = append(closers, p.Close)

	var audit store.AuditLog = store.NewMemoryAuditLog()
	if dsn := cfg.Storage.DatabaseDSN; dsn != "" {
		db, err := store.OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		closers = append(closers, sqlDB.Close)
		repo := store.NewGormAuditLog(db)
		if err := repo.AutoMigrate(ctx); err != nil {
			return nil, fmt.Errorf("service: migrate audit log: %w", err)
		}
		audit = repo
	}

	var cache store.Cache = store.NewMemoryCache()
	if addr := cfg.Storage.RedisAddr; addr != "" {
		client, err := store.OpenRedis(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("service: redis: %w", err)
		}
		closers = append(closers, client.Close)
		cache = store.NewRedisCache(client)
	}

	svc = New(lib, p, audit, cache, logger, Options{
		Format:    cryptonet.ImageFormat(cfg.Image.Format),
		MaxDim:    cfg.Image.MaxDim,
		MaxPixels: cfg.Image.MaxPixels,
		ResultTTL: cfg.Storage.ResultTTL,
	})
	svc.closers = closers
	logger.Info("service ready",
		zap.String("driver", cfg.Library.Driver),
		zap.Int("sessions", p.Size()),
		zap.Bool("postgres", cfg.Storage.DatabaseDSN != ""),
		zap.Bool("redis", cfg.Storage.RedisAddr != ""))
	return svc, nil
}
