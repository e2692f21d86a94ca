// Package web serves the hub's SSE streams and JSON API over HTTP.
// Binds to localhost by default: no network exposure, no auth needed.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/corey/dashhub/internal/hub"
	"github.com/corey/dashhub/internal/ports"
)

// DefaultKeepAlive is the interval between SSE keep-alive comments.
const DefaultKeepAlive = 30 * time.Second

// Config holds the collaborators of a Server.
type Config struct {
	Projects      ports.ProjectStore
	Registry      *hub.Registry
	Notifications *hub.Notifications
	Gatherer      prometheus.Gatherer // nil disables /metrics
	Logger        *zap.Logger

	KeepAlive    time.Duration // default DefaultKeepAlive
	StreamBuffer int           // per-connection frame queue, default hub.DefaultStreamBuffer
	PortFilePath string        // where the bound port is written for discovery; "" disables
}

// Server serves the streaming endpoints and JSON API over HTTP.
type Server struct {
	projects  ports.ProjectStore
	registry  *hub.Registry
	notes     *hub.Notifications
	gatherer  prometheus.Gatherer
	logger    *zap.Logger
	keepAlive time.Duration
	streamBuf int

	listener net.Listener
	httpSrv  *http.Server
	port     int
	started  time.Time
	stopOnce sync.Once

	portFilePath string
}

// NewServer creates an HTTP server for the hub.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	return &Server{
		projects:     cfg.Projects,
		registry:     cfg.Registry,
		notes:        cfg.Notifications,
		gatherer:     cfg.Gatherer,
		logger:       cfg.Logger.Named("web"),
		keepAlive:    cfg.KeepAlive,
		streamBuf:    cfg.StreamBuffer,
		portFilePath: cfg.PortFilePath,
		started:      time.Now(),
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/hub/sessions", s.handleSessions)

	mux.HandleFunc("GET /api/project/{id}/git/watch", s.handleGitWatch)
	mux.HandleFunc("GET /api/notifications/stream", s.handleNotificationStream)

	mux.HandleFunc("GET /api/notifications", s.handleListNotifications)
	mux.HandleFunc("POST /api/notifications", s.handleCreateNotification)
	mux.HandleFunc("GET /api/notifications/unread", s.handleUnread)
	mux.HandleFunc("GET /api/notifications/poll", s.handlePoll)
	mux.HandleFunc("POST /api/notifications/read-all", s.handleReadAll)
	mux.HandleFunc("POST /api/notifications/{id}/read", s.handleMarkRead)
	mux.HandleFunc("POST /api/notifications/{id}/dismiss", s.handleDismiss)

	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start begins listening on addr ("host:port"; port 0 picks a free one).
// Writes the bound port to the port file.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.listener = ln
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.started = time.Now()

	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Write port file for discovery
	if s.portFilePath != "" {
		if err := os.WriteFile(s.portFilePath, []byte(strconv.Itoa(s.port)), 0644); err != nil {
			s.logger.Warn("write port file", zap.String("path", s.portFilePath), zap.Error(err))
		}
	}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", zap.Error(err))
		}
	}()
	s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Stop gracefully shuts down the HTTP server. Idempotent.
// Streams should already be closed (Broadcaster.CloseAll) so their
// handlers return and Shutdown does not wait out the grace period.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		if s.httpSrv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.httpSrv.Shutdown(ctx); err != nil {
				s.logger.Warn("http shutdown", zap.Error(err))
			}
		}
		if s.portFilePath != "" {
			os.Remove(s.portFilePath)
		}
	})
}

// Port returns the bound port number.
func (s *Server) Port() int {
	return s.port
}

// URL returns the base URL.
func (s *Server) URL() string {
	return fmt.Sprintf("http://localhost:%d", s.port)
}

// HealthResult is the body of GET /api/health.
type HealthResult struct {
	Status            string `json:"status"`
	Uptime            string `json:"uptime"`
	WatchSessions     int    `json:"watchSessions"`
	GlobalSubscribers int    `json:"globalSubscribers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResult{
		Status:            "ok",
		Uptime:            time.Since(s.started).Round(time.Second).String(),
		WatchSessions:     len(s.registry.Sessions()),
		GlobalSubscribers: s.notes.Subscribers(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.registry.Sessions()
	respondJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}
