// Package app собирает сервис: хранилище, аллокаторы, gRPC, admin HTTP и воркеры.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/storefront-ids/internal/config"
	healthcheck "github.com/vladislavdragonenkov/storefront-ids/internal/health"
	"github.com/vladislavdragonenkov/storefront-ids/internal/httpapi"
	grpcsvc "github.com/vladislavdragonenkov/storefront-ids/internal/service/grpc"
	"github.com/vladislavdragonenkov/storefront-ids/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run запускает сервис и блокируется до отмены ctx или ошибки gRPC-сервера.
func Run(ctx context.Context, cfg config.Config) error {
	logger := log.WithField("component", "app")
	registerer := prometheus.DefaultRegisterer

	deps, err := NewDependencies(ctx, cfg, registerer, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	// Ошибка уже залогирована: без Kafka сервис работает, события копятся в outbox.
	producer, _ := connectKafka(cfg.Kafka, logger)
	defer disconnectKafka(producer, logger)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.Store != nil {
		healthHandler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", deps.Store.Ping))
	}
	if producer != nil {
		healthHandler.RegisterChecker("outbox", healthcheck.NewOutboxBacklogChecker(deps.Outbox, cfg.Outbox.MaxPendingAge))
	}

	grpcServer := newGRPCServer(deps, cfg, registerer, logger)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcsvc.ServiceName, healthpb.HealthCheckResponse_SERVING)

	router := httpapi.NewRouter(httpapi.Deps{
		Codes:    deps.Assignor,
		Orders:   deps.OrderSvc,
		Health:   healthHandler,
		Gatherer: prometheus.DefaultGatherer,
		Logger:   logger.WithField("component", "admin-http"),
	})
	httpSrv := startHTTPServer(ctx, cfg.HTTP.Addr, logger, router)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	var workers conc.WaitGroup
	startWorkers(workerCtx, &workers, deps, producer, cfg, registerer, logger)
	defer func() {
		stopWorkers()
		workers.Wait()
	}()

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		shutdownHTTP(httpSrv, logger)
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC сервер слушает %s", lis.Addr())
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем gRPC сервер")
		healthServer.Shutdown()
		stoppedCh := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stoppedCh)
		}()
		select {
		case <-stoppedCh:
		case <-time.After(shutdownTimeout):
			logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
			grpcServer.Stop()
		}
		shutdownHTTP(httpSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(httpSrv, logger)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

func newGRPCServer(deps *Dependencies, cfg config.Config, registerer prometheus.Registerer, logger *log.Entry) *grpc.Server {
	grpcMetrics := promgrpc.NewServerMetrics()
	grpcMetrics.EnableHandlingTimeHistogram()
	if err := registerer.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))

	service := grpcsvc.NewServer(deps.AccountSvc, deps.OrderSvc, deps.Assignor,
		grpcsvc.WithLogger(logger.WithField("layer", "grpc")),
		grpcsvc.WithIdempotency(deps.Idempotency, cfg.Idempotency.TTL),
	)
	grpcsvc.RegisterIdentifierServiceServer(grpcServer, service)
	grpcMetrics.InitializeMetrics(grpcServer)

	// Reflection для grpcurl: список сервисов и health.
	reflection.Register(grpcServer)

	return grpcServer
}

// startHTTPServer запускает admin API, /metrics и health probes.
func startHTTPServer(ctx context.Context, addr string, logger *log.Entry, handler http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Infof("admin API и метрики доступны по адресу %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("admin http server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("admin http shutdown with error")
	}
}
