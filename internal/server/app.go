package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vishesh2305/DAAN/pkg/logger"
)

type Config struct {
	HttpPort string
	GrpcPort string
}

// App runs the HTTP API next to a gRPC health endpoint for orchestrators.
type App struct {
	httpServer   *http.Server
	grpcServer   *grpc.Server
	grpcListener net.Listener
	health       *health.Server
}

func New(cfg Config, httpHandler http.Handler) (*App, error) {
	httpSrv := &http.Server{
		Addr:              ":" + cfg.HttpPort,
		Handler:           httpHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lis, err := net.Listen("tcp", ":"+cfg.GrpcPort)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on grpc port %s: %w", cfg.GrpcPort, err)
	}

	hs := health.NewServer()
	grpcSrv := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, hs)

	return &App{
		httpServer:   httpSrv,
		grpcServer:   grpcSrv,
		grpcListener: lis,
		health:       hs,
	}, nil
}

// GrpcAddr is the bound gRPC address, useful when the port was ":0".
func (a *App) GrpcAddr() string {
	return a.grpcListener.Addr().String()
}

// Run serves until ctx is done, then shuts both servers down gracefully.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	// 1. Start HTTP
	go func() {
		logger.Info("Starting HTTP Server", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// 2. Start gRPC
	go func() {
		logger.Info("Starting gRPC Server", zap.String("addr", a.GrpcAddr()))
		if err := a.grpcServer.Serve(a.grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	a.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// 3. Block
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	logger.Info("Shutting down server...")
	a.health.Shutdown()

	// 4. Graceful Shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP Server forced to shutdown", zap.Error(err))
	}
	a.grpcServer.GracefulStop()
	logger.Info("Server exited properly")
	return runErr
}
