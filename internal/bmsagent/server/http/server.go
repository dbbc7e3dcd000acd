package http

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/arbiter"
	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/core"
	"github.com/autopeer-io/autopeer-bms/internal/pkg/metrics"
	"github.com/autopeer-io/autopeer-bms/pkg/log"
	"github.com/autopeer-io/autopeer-bms/pkg/options"
)

// Controller is the arbiter surface exposed over HTTP.
type Controller interface {
	Data() (core.Snapshot, bool)
	IsConnected() bool
	Active() core.Decoder
	Mode() arbiter.Mode
	AutoDetect() bool
	Protocols() []arbiter.ProtocolInfo
	SetAutoDetect(enabled bool)
	SelectProtocolByName(name string) error
	ResetStats()
}

type Server struct {
	server  *http.Server
	options *options.HttpOptions
	ctrl    Controller
}

func NewServer(opts *options.HttpOptions, ctrl Controller) *Server {
	s := &Server{options: opts, ctrl: ctrl}
	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: opts.Timeout,
		ReadTimeout:       opts.Timeout,
		WriteTimeout:      opts.Timeout,
	}
	return s
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.readyz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/snapshot", s.getSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/protocols", s.getProtocols).Methods(http.MethodGet)
	api.HandleFunc("/protocol", s.putProtocol).Methods(http.MethodPut)
	api.HandleFunc("/autodetect", s.getAutoDetect).Methods(http.MethodGet)
	api.HandleFunc("/autodetect", s.putAutoDetect).Methods(http.MethodPut)
	api.HandleFunc("/stats/reset", s.resetStats).Methods(http.MethodPost)

	return r
}

func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen(s.options.Network, s.options.Addr)
	if err != nil {
		return err
	}

	log.Info("Starting HTTP Server", "addr", s.options.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readyz reports ready once a decoder delivers fresh data.
func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if !s.ctrl.IsConnected() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no fresh BMS data"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type snapshotResponse struct {
	Protocol string `json:"protocol,omitempty"`
	Mode     string `json:"mode"`
	core.Snapshot
}

func (s *Server) getSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap, _ := s.ctrl.Data()
	resp := snapshotResponse{Mode: string(s.ctrl.Mode()), Snapshot: snap}
	if d := s.ctrl.Active(); d != nil {
		resp.Protocol = d.Name()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getProtocols(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Protocols())
}

type protocolRequest struct {
	Vendor string `json:"vendor"`
}

func (s *Server) putProtocol(w http.ResponseWriter, r *http.Request) {
	var req protocolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.ctrl.SelectProtocolByName(req.Vendor); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	log.Info("Protocol pinned over HTTP", "vendor", req.Vendor)
	s.writeMode(w)
}

type autoDetectRequest struct {
	Enabled *bool `json:"enabled"`
}

type modeResponse struct {
	AutoDetect bool   `json:"autoDetect"`
	Mode       string `json:"mode"`
	Protocol   string `json:"protocol,omitempty"`
}

func (s *Server) getAutoDetect(w http.ResponseWriter, _ *http.Request) {
	s.writeMode(w)
}

func (s *Server) putAutoDetect(w http.ResponseWriter, r *http.Request) {
	var req autoDetectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, errors.New(`"enabled" is required`))
		return
	}
	s.ctrl.SetAutoDetect(*req.Enabled)
	s.writeMode(w)
}

func (s *Server) resetStats(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.ResetStats()
	s.writeMode(w)
}

func (s *Server) writeMode(w http.ResponseWriter) {
	resp := modeResponse{AutoDetect: s.ctrl.AutoDetect(), Mode: string(s.ctrl.Mode())}
	if d := s.ctrl.Active(); d != nil {
		resp.Protocol = d.Name()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error(err, "Failed to encode HTTP response")
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
