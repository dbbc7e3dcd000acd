package server

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/server/grpc"
	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/server/http"
	"github.com/autopeer-io/autopeer-bms/pkg/log"
	"github.com/autopeer-io/autopeer-bms/pkg/options"
)

// Server defines the common interface for all sub-servers (grpc, http).
type Server interface {
	Start(ctx context.Context) error
}

// Manager manages the lifecycle of the agent's local servers.
type Manager struct {
	servers []Server
}

// NewManager creates the servers enabled in the options. Either option may be nil.
func NewManager(httpOpts *options.HttpOptions, grpcOpts *options.GrpcOptions, ctrl http.Controller) *Manager {
	var servers []Server

	if httpOpts != nil && httpOpts.Enabled {
		servers = append(servers, http.NewServer(httpOpts, ctrl))
	}
	if grpcOpts != nil && grpcOpts.Enabled {
		servers = append(servers, grpc.NewServer(grpcOpts, ctrl))
	}

	return &Manager{servers: servers}
}

func (m *Manager) Len() int {
	return len(m.servers)
}

// Start launches all servers in parallel and waits for termination.
func (m *Manager) Start(ctx context.Context) error {
	if len(m.servers) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, srv := range m.servers {
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	log.Info("All servers starting...", "count", len(m.servers))
	return g.Wait()
}
