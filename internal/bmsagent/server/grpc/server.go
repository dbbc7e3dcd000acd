package grpc

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	mw "github.com/autopeer-io/autopeer-bms/internal/pkg/middleware/grpc"
	"github.com/autopeer-io/autopeer-bms/pkg/log"
	"github.com/autopeer-io/autopeer-bms/pkg/options"
)

// ServiceName is the health service that follows BMS data freshness. The
// empty service name reports process liveness.
const ServiceName = "bms"

const syncInterval = time.Second

type Connectivity interface {
	IsConnected() bool
}

type Server struct {
	server  *grpc.Server
	health  *health.Server
	options *options.GrpcOptions
	bms     Connectivity
}

func NewServer(opts *options.GrpcOptions, bms Connectivity) *Server {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(mw.UnaryServerTimeoutInterceptor(opts.Timeout)))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)

	srv := &Server{
		server:  s,
		health:  hs,
		options: opts,
		bms:     bms,
	}
	srv.Sync()
	return srv
}

// Sync copies BMS connectivity into the health service.
func (s *Server) Sync() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.bms.IsConnected() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}

func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen(s.options.Network, s.options.Addr)
	if err != nil {
		return err
	}
	log.Info("Starting gRPC Server", "addr", s.options.Addr)
	return s.Serve(ctx, lis)
}

// Serve runs on an existing listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-errCh:
			return err
		case <-ticker.C:
			s.Sync()
		case <-ctx.Done():
			s.health.Shutdown()
			s.server.GracefulStop()
			return nil
		}
	}
}
