// Package app собирает и запускает сервис клиентов и заказов.
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

const (
	rateLimiterCleanupInterval = time.Minute
	rateLimiterIdleTTL         = 10 * time.Minute
)

// ConfigureLogging задаёт формат и уровень логов процесса.
func ConfigureLogging(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.WithError(err).WithField("level", level).Warn("unknown log level, using info")
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

// Run поднимает HTTP API, ops-сервер, gRPC health и фоновые воркеры.
// Возвращает ctx.Err() после штатной остановки по отмене контекста.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := log.WithField("component", "app")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.WithError(err).Warn("failed to close dependencies")
		}
	}()

	apiSrv, err := listenHTTP("api", cfg.HTTPAddr, deps.API.Handler())
	if err != nil {
		return err
	}
	opsSrv, err := listenHTTP("ops", cfg.MetricsAddr, opsHandler(deps.Registry, deps.Health))
	if err != nil {
		_ = apiSrv.listener.Close()
		return err
	}
	grpcSrv, err := newGRPCServer(cfg.GRPCAddr, deps.Registry)
	if err != nil {
		_ = apiSrv.listener.Close()
		_ = opsSrv.listener.Close()
		return err
	}

	workersCtx, stopWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup
	runWorker := func(fn func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			fn(workersCtx)
		}()
	}
	runWorker(deps.OutboxWorker.Run)
	runWorker(deps.CleanupWorker.Run)
	runWorker(func(ctx context.Context) {
		deps.RateLimiter.RunCleanup(ctx, rateLimiterCleanupInterval, rateLimiterIdleTTL)
	})

	errCh := make(chan error, 3)
	go func() { errCh <- apiSrv.serve(logger) }()
	go func() { errCh <- opsSrv.serve(logger) }()
	go func() {
		logger.WithField("addr", grpcSrv.listener.Addr().String()).Info("grpc health server listening")
		errCh <- grpcSrv.srv.Serve(grpcSrv.listener)
	}()
	grpcSrv.setServing(true)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		runErr = ctx.Err()
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.WithError(err).Error("server failed")
			runErr = err
		}
	}

	grpcSrv.setServing(false)
	apiSrv.shutdown(cfg.ShutdownTimeout, logger)
	stopGRPC(grpcSrv.srv, cfg.ShutdownTimeout, logger)
	opsSrv.shutdown(cfg.ShutdownTimeout, logger)

	stopWorkers()
	workers.Wait()
	logger.Info("all components stopped")

	return runErr
}

// stopGRPC ждёт GracefulStop не дольше timeout, затем останавливает сервер принудительно.
func stopGRPC(srv *grpc.Server, timeout time.Duration, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(timeout):
		logger.Warn("grpc graceful stop timed out, forcing stop")
		srv.Stop()
	}
}
