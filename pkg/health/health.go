// Package health reports whether the service and its dependencies are up,
// over gRPC (grpc.health.v1) for load balancers and over HTTP for humans.
package health

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/akash768145s/Smartshake/pkg/httpx"
)

// Check returns nil when the dependency it probes is reachable.
type Check func(ctx context.Context) error

type Server struct {
	log      *slog.Logger
	service  string
	checks   map[string]Check
	interval time.Duration
	timeout  time.Duration
	hs       *grpchealth.Server
	gs       *grpc.Server

	mu     sync.RWMutex
	failed map[string]string
}

func NewServer(log *slog.Logger, service string, checks map[string]Check) *Server {
	hs := grpchealth.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(service, healthpb.HealthCheckResponse_SERVING)
	return &Server{
		log:      log,
		service:  service,
		checks:   checks,
		interval: 10 * time.Second,
		timeout:  2 * time.Second,
		hs:       hs,
		failed:   map[string]string{},
	}
}

// Serve starts the gRPC health endpoint on addr in the background.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.gs = grpc.NewServer()
	healthpb.RegisterHealthServer(s.gs, s.hs)
	go func() {
		if err := s.gs.Serve(lis); err != nil {
			s.log.Error("grpc health server stopped", "err", err)
		}
	}()
	s.log.Info("grpc health listening", "addr", addr)
	return nil
}

// Watch runs the checks until ctx is done.
func (s *Server) Watch(ctx context.Context) {
	s.Probe(ctx)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Probe(ctx)
		}
	}
}

// Probe runs every check once and updates the serving status.
func (s *Server) Probe(ctx context.Context) {
	failed := map[string]string{}
	for name, check := range s.checks {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		err := check(cctx)
		cancel()
		if err != nil {
			failed[name] = err.Error()
			s.log.Warn("health check failed", "check", name, "err", err)
		}
	}

	status := healthpb.HealthCheckResponse_SERVING
	if len(failed) > 0 {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.hs.SetServingStatus("", status)
	s.hs.SetServingStatus(s.service, status)

	s.mu.Lock()
	s.failed = failed
	s.mu.Unlock()
}

type report struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Failing   []string          `json:"failing,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// ServeHTTP answers GET /health.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	rep := report{Status: "ok", Timestamp: time.Now().UTC()}
	if len(s.failed) > 0 {
		rep.Status = "degraded"
		rep.Errors = make(map[string]string, len(s.failed))
		for name, msg := range s.failed {
			rep.Failing = append(rep.Failing, name)
			rep.Errors[name] = msg
		}
	}
	s.mu.RUnlock()

	if len(rep.Failing) > 0 {
		sort.Strings(rep.Failing)
		httpx.WriteJSON(w, http.StatusServiceUnavailable, rep)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rep)
}

// Stop marks the service as not serving and drains the gRPC server.
func (s *Server) Stop() {
	s.hs.Shutdown()
	if s.gs != nil {
		s.gs.GracefulStop()
	}
}
