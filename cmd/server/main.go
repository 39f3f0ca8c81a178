// Command ecoreport-server runs the ecoreport HTTP API and its gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/ecoreport/internal/cache"
	"github.com/and161185/ecoreport/internal/config"
	"github.com/and161185/ecoreport/internal/limiter"
	"github.com/and161185/ecoreport/internal/migrate"
	"github.com/and161185/ecoreport/internal/repository"
	mongorepo "github.com/and161185/ecoreport/internal/repository/mongo"
	"github.com/and161185/ecoreport/internal/repository/postgres"
	grpcserver "github.com/and161185/ecoreport/internal/server/grpc"
	httpserver "github.com/and161185/ecoreport/internal/server/http"
	"github.com/and161185/ecoreport/internal/service"
	"github.com/and161185/ecoreport/internal/session"
	"github.com/and161185/ecoreport/internal/storage"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := newLogger(cfg.Dev)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("http", cfg.HTTPAddr),
		zap.String("grpc", cfg.GRPCAddr),
		zap.String("store", cfg.Store),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func newLogger(dev bool) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if dev {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// stores groups the durable-store dependent components.
type stores struct {
	users   repository.UserRepository
	reports repository.ReportRepository
	lim     limiter.Limiter
	close   func()
}

func openStores(ctx context.Context, cfg *config.Config, rdb redis.UniversalClient, log *zap.Logger) (*stores, error) {
	policy := limiter.Policy{Window: cfg.LimiterWindow, MaxFails: cfg.LimiterMaxFails, BlockFor: cfg.LimiterBlock}

	switch cfg.Store {
	case config.StoreMongo:
		ms, err := mongorepo.Connect(ctx, cfg.MongoURI, cfg.MongoDB, cfg.ConnectTimeout, cfg.OpTimeout)
		if err != nil {
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		if err := ms.EnsureIndexes(ctx); err != nil {
			_ = ms.Close(context.Background())
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		return &stores{
			users:   mongorepo.NewUserRepo(ms),
			reports: mongorepo.NewReportRepo(ms),
			lim:     limiter.NewRedis(rdb, policy),
			close:   func() { _ = ms.Close(context.Background()) },
		}, nil

	default:
		if err := migrate.Up(ctx, cfg.DatabaseDSN, log.Named("migrate")); err != nil {
			return nil, err
		}
		db, pool, err := postgres.New(ctx, cfg.DatabaseDSN, cfg.ConnectTimeout, cfg.OpTimeout)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return &stores{
			users:   postgres.NewUserRepo(db),
			reports: postgres.NewReportRepo(db),
			lim:     limiter.NewPG(pool, policy),
			close:   db.Close,
		}, nil
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	rdb := cache.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.OpTimeout)
	defer func() { _ = rdb.Close() }()

	st, err := openStores(ctx, cfg, rdb, logger)
	if err != nil {
		return err
	}
	defer st.close()

	objects, err := storage.New(ctx, storage.Config{
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		PublicURL: cfg.S3PublicURL,
	})
	if err != nil {
		return err
	}

	sessCache := cache.NewRedis(rdb, cfg.RedisPrefix, cfg.OpTimeout)
	sup := cache.NewSupervisor(sessCache, cache.SupervisorConfig{
		BaseBackoff:   cfg.ReconnectBase,
		MaxBackoff:    cfg.ReconnectMax,
		MaxRetries:    cfg.ReconnectRetries,
		ProbeInterval: cfg.ProbeInterval,
	}, logger.Named("cache"))
	health := grpcserver.NewHealth()
	sup.OnChange(sessCache.Track)
	sup.OnChange(health.SetCacheState)

	sessions := session.NewManager(st.users, sessCache, cfg.SessionTTL, logger.Named("session"))
	authSvc := service.NewAuthService(st.users, sessions, st.lim,
		service.NewLogNotifier(logger.Named("reset")),
		service.ResetConfig{SignKey: []byte(cfg.ResetKey), TTL: cfg.ResetTTL},
		logger.Named("auth"),
	)
	reportSvc := service.NewReportService(st.reports, objects, cfg.MaxImageBytes, logger.Named("reports"))

	httpSrv := httpserver.New(authSvc, sessions, reportSvc, sup, logger.Named("http"))
	grpcSrv := grpcserver.NewServer(logger.Named("grpc"), health, cfg.Dev)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// a cache that cannot be reached is degraded service, not a fatal error
		if err := sup.Run(gctx); err != nil {
			logger.Error("cache supervision stopped", zap.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		return httpSrv.Listen(cfg.HTTPAddr)
	})
	g.Go(func() error {
		logger.Info("grpc listening", zap.String("addr", cfg.GRPCAddr))
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
		health.Shutdown()

		done := make(chan struct{})
		go func() {
			grpcSrv.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
			grpcSrv.Stop()
		}
		return nil
	})

	return g.Wait()
}
