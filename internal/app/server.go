package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/leonardcser/addrkv/internal/logger"
)

// HealthService is the gRPC health service name reported next to "".
const HealthService = "addrkv.v1.Data"

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Server hosts the HTTP routes and, when configured, a gRPC health endpoint.
type Server struct {
	httpListener   net.Listener
	httpServer     *http.Server
	healthListener net.Listener
	grpcServer     *grpc.Server
	health         *health.Server
}

// NewServer listens on httpAddr and, when healthAddr is non-empty, on
// healthAddr for gRPC health checks.
func NewServer(httpAddr, healthAddr string, handler http.Handler) (*Server, error) {
	httpListener, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on http addr %s: %w", httpAddr, err)
	}
	s := &Server{
		httpListener: httpListener,
		httpServer:   &http.Server{Handler: handler, ReadHeaderTimeout: readHeaderTimeout},
	}
	if strings.TrimSpace(healthAddr) == "" {
		return s, nil
	}

	healthListener, err := net.Listen("tcp", healthAddr)
	if err != nil {
		_ = httpListener.Close()
		return nil, fmt.Errorf("listen on health addr %s: %w", healthAddr, err)
	}
	s.healthListener = healthListener
	s.grpcServer = grpc.NewServer()
	s.health = health.NewServer()
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_SERVING)
	return s, nil
}

// Addr returns the HTTP listener address.
func (s *Server) Addr() string {
	return s.httpListener.Addr().String()
}

// HealthAddr returns the gRPC health listener address, or "" when disabled.
func (s *Server) HealthAddr() string {
	if s.healthListener == nil {
		return ""
	}
	return s.healthListener.Addr().String()
}

// Serve blocks until ctx ends or a listener fails, then shuts both servers
// down, letting in-flight requests finish within shutdownTimeout.
func (s *Server) Serve(ctx context.Context) error {
	logger.Infof("HTTP server listening at %v", s.httpListener.Addr())
	httpErr := make(chan error, 1)
	go func() {
		httpErr <- s.httpServer.Serve(s.httpListener)
	}()

	grpcErr := make(chan error, 1)
	if s.grpcServer != nil {
		logger.Infof("gRPC health server listening at %v", s.healthListener.Addr())
		go func() {
			grpcErr <- s.grpcServer.Serve(s.healthListener)
		}()
	}

	shutdownGRPC := func() {
		if s.grpcServer == nil {
			return
		}
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
	}
	shutdownHTTP := func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}

	select {
	case <-ctx.Done():
		logger.Infof("Shutting down servers")
		shutdownGRPC()
		if err := shutdownHTTP(); err != nil {
			return fmt.Errorf("shutdown HTTP: %w", err)
		}
		if err := <-httpErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve HTTP: %w", err)
		}
		return nil
	case err := <-httpErr:
		shutdownGRPC()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	case err := <-grpcErr:
		_ = shutdownHTTP()
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}
}
