// Package server implements the connection gateway: it authenticates and
// upgrades inbound requests, binds each connection to its room, and runs
// the per-connection read and write loops.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codesync-dev/codesync/pkg/auth"
	"github.com/codesync-dev/codesync/pkg/middleware"
	"github.com/codesync-dev/codesync/pkg/room"
)

// Server is the relay gateway. It owns no room state itself; rooms live
// in the registry passed in at construction, so multiple isolated
// servers can run in one process.
type Server struct {
	config   *Config
	registry *room.Registry
	verifier auth.Verifier
	metrics  *room.Metrics

	upgrader   websocket.Upgrader
	execProxy  http.Handler
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server. registry and verifier are required collaborators;
// metrics and execProxy may be nil.
func New(config *Config, registry *room.Registry, verifier auth.Verifier, metrics *room.Metrics, execProxy http.Handler) *Server {
	if config == nil {
		config = DefaultConfig()
	} else {
		config = config.Clone()
	}
	config.fill()

	logger := slog.Default().With("component", "gateway")
	if !config.StrictAuth {
		logger.Warn("strict authentication disabled, connections without credentials run as the development identity")
	}

	return &Server{
		config:   config,
		registry: registry,
		verifier: verifier,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		execProxy: execProxy,
		logger:    logger,
	}
}

// Handler returns the relay's HTTP surface:
//
//	GET  /healthz       liveness probe
//	GET  /metrics       Prometheus metrics
//	POST /api/execute   remote code execution proxy (if configured)
//	GET  /<roomId>      WebSocket upgrade into the named room
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	r.Use(middleware.Tracing("codesync"))
	r.Use(middleware.Metrics())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	if s.execProxy != nil {
		r.Method(http.MethodPost, "/api/execute", s.execProxy)
	}

	// Everything else is a room id.
	r.HandleFunc("/*", s.HandleUpgrade)

	return r
}

// HandleUpgrade authenticates the request and upgrades it into a room
// membership. The room id is the request path with the leading slash
// stripped. On an authentication failure in strict mode the transport is
// rejected before any room state is created.
func (s *Server) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	roomID := strings.Trim(r.URL.Path, "/")
	if roomID == "" {
		http.NotFound(w, r)
		return
	}

	identity, err := s.authenticate(r)
	if err != nil {
		s.metrics.AuthFailure()
		s.logger.Warn("rejecting upgrade", "room", roomID, "error", err)
		status := http.StatusUnauthorized
		if code, ok := auth.StatusCode(err); ok {
			status = code
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	sock, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the handshake error; nothing room-scoped
		// has been touched.
		s.logger.Error("websocket upgrade failed", "room", roomID, "error", err)
		return
	}

	rm := s.registry.Resolve(roomID)
	conn := newConn(sock, rm, identity, s.config, s.logger, s.metrics)

	step1, snapshot := rm.Join(conn)
	conn.Send(step1)
	if snapshot != nil {
		conn.Send(snapshot)
	}
	conn.start()

	s.logger.Info("connection established", "room", roomID, "conn", conn.Key(), "uid", identity.UID)
}

// authenticate resolves the request credential to an identity, applying
// the development bypass when strict authentication is disabled.
func (s *Server) authenticate(r *http.Request) (auth.Identity, error) {
	token := auth.TokenFromRequest(r)

	identity, err := s.verifier.Verify(r.Context(), token)
	if err == nil {
		return identity, nil
	}

	if !s.config.StrictAuth && (errors.Is(err, auth.ErrUnauthorized) || errors.Is(err, auth.ErrInvalidToken)) {
		s.logger.Warn("credential missing or invalid, using development identity", "error", err)
		return auth.DevIdentity, nil
	}
	return auth.Identity{}, err
}

// ListenAndServe runs the relay until ctx is cancelled, then shuts down
// gracefully within the configured timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.config.Address,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("relay listening", "addr", s.config.Address, "strict_auth", s.config.StrictAuth)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down")
	return s.httpServer.Shutdown(shutdownCtx)
}
