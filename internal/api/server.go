package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	pferrors "github.com/randalmurphal/promptfinder/internal/errors"
	"github.com/randalmurphal/promptfinder/internal/profile"
	"github.com/randalmurphal/promptfinder/internal/store"
	"github.com/randalmurphal/promptfinder/internal/variable"
	"github.com/randalmurphal/promptfinder/internal/workflow"
)

const shutdownTimeout = 5 * time.Second

// Server is the Prompt Finder API server.
type Server struct {
	addr            string
	maxPortAttempts int
	mux             *http.ServeMux
	logger          *slog.Logger

	store   store.Store
	catalog *workflow.Catalog

	location        *time.Location
	now             func() time.Time
	dependencyIndex bool
	allowedOrigins  []string

	live *LiveHandler
}

// Config holds server configuration.
type Config struct {
	Addr string

	// MaxPortAttempts is the number of ports to try if the initial port is
	// busy. If 8080 is busy, tries 8081, 8082, etc.
	MaxPortAttempts int

	// AllowedOrigins lists origins for CORS and websocket upgrades.
	// Empty or "*" allows all.
	AllowedOrigins []string

	Logger  *slog.Logger
	Store   store.Store
	Catalog *workflow.Catalog

	// Location is the timezone system values are generated in.
	Location *time.Location
	Now      func() time.Time

	// DependencyIndex limits live re-renders to templates that reference
	// the changed key.
	DependencyIndex bool
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:            ":8080",
		MaxPortAttempts: 10,
		Logger:          slog.Default(),
		Location:        time.Local,
		Now:             time.Now,
	}
}

// New creates a new API server. A nil Catalog serves only the built-in
// workflows; a nil Store makes store-backed routes fail with
// STORE_UNAVAILABLE.
func New(cfg *Config) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	catalog := cfg.Catalog
	if catalog == nil {
		catalog = workflow.NewCatalog(workflow.WithCatalogLogger(logger))
		if builtin, err := workflow.Builtin(); err != nil {
			logger.Warn("failed to load built-in workflows", "error", err)
		} else {
			for _, wf := range builtin {
				catalog.Add(wf)
			}
		}
	}

	s := &Server{
		addr:            cfg.Addr,
		maxPortAttempts: cfg.MaxPortAttempts,
		mux:             http.NewServeMux(),
		logger:          logger,
		store:           cfg.Store,
		catalog:         catalog,
		location:        cfg.Location,
		now:             cfg.Now,
		dependencyIndex: cfg.DependencyIndex,
		allowedOrigins:  cfg.AllowedOrigins,
	}
	if s.addr == "" {
		s.addr = ":8080"
	}
	if s.location == nil {
		s.location = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.live = NewLiveHandler(s, logger)
	s.registerRoutes()
	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Catalog returns the workflow catalog.
func (s *Server) Catalog() *workflow.Catalog {
	return s.catalog
}

// Start listens on the configured address, trying following ports when it
// is busy, and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Listen binds the first available port starting at the configured one.
func (s *Server) Listen() (net.Listener, error) {
	host, port, err := parseAddr(s.addr)
	if err != nil {
		return nil, err
	}
	ln, bound, err := findAvailablePort(host, port, s.maxPortAttempts)
	if err != nil {
		return nil, err
	}
	if port != 0 && bound != port {
		s.logger.Warn("requested port busy, using next available", "requested", port, "port", bound)
	}
	return ln, nil
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()
	s.logger.Info("API server listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Hijacked websocket connections are not tracked by Shutdown.
		s.live.CloseAll()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown API server: %w", err)
		}
		s.logger.Info("API server stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// parseAddr splits a listen address into host and port.
func parseAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("parse address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("parse port %q: %w", portStr, err)
	}
	return host, port, nil
}

// findAvailablePort tries basePort, basePort+1, ... up to maxAttempts ports
// and returns the first listener that binds.
func findAvailablePort(host string, basePort, maxAttempts int) (net.Listener, int, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for i := range maxAttempts {
		port := basePort + i
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			lastErr = err
			if basePort == 0 {
				break
			}
			continue
		}
		if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
			port = tcp.Port
		}
		return ln, port, nil
	}
	return nil, 0, fmt.Errorf("no available port in range %d-%d: %w", basePort, basePort+maxAttempts-1, lastErr)
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, map[string]any{
		"status":    "ok",
		"workflows": s.catalog.Len(),
		"store":     s.store != nil,
	})
}

// requireStore returns the store or STORE_UNAVAILABLE.
func (s *Server) requireStore() (store.Store, error) {
	if s.store == nil {
		return nil, pferrors.ErrStoreUnavailable(nil)
	}
	return s.store, nil
}

// workflow looks a workflow up in the catalog.
func (s *Server) workflow(id string) (*workflow.Workflow, error) {
	wf, err := s.catalog.Get(id)
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			return nil, pferrors.ErrWorkflowNotFound(id)
		}
		return nil, err
	}
	return wf, nil
}

// profileFor builds the profile layer a viewer gets on wf. Saved profile
// values are loaded only when the viewer is eligible.
func (s *Server) profileFor(ctx context.Context, wf *workflow.Workflow, user string, loggedIn bool) (variable.ProfileVars, bool, error) {
	eligible := profile.Eligible(loggedIn && user != "", wf.UseProfileDefaults)

	var vars map[string]string
	if eligible {
		uid, err := store.ParseUserID(user)
		if err != nil {
			return nil, false, err
		}
		st, err := s.requireStore()
		if err != nil {
			return nil, false, err
		}
		vars, err = st.GetProfileVars(ctx, uid)
		if err != nil {
			return nil, false, err
		}
	}
	return profile.Build(s.now().In(s.location), vars, eligible), eligible, nil
}
