package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/qrdesk/qrdesk/pkg/auth"
	"github.com/qrdesk/qrdesk/pkg/config"
	"github.com/qrdesk/qrdesk/pkg/directory"
	"github.com/qrdesk/qrdesk/pkg/ledger"
	"github.com/qrdesk/qrdesk/pkg/store"
	"github.com/sirupsen/logrus"
)

const (
	shutdownTimeout        = 10 * time.Second
	sessionCleanupInterval = 15 * time.Minute
)

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
	// Handler returns the router, for serving without a listener.
	Handler() http.Handler
}

// Services are the components the API serves.
type Services struct {
	Store     store.Store
	Auth      *auth.Authenticator
	Ledger    *ledger.Ledger
	Directory *directory.Directory
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	cfg        *config.Config
	store      store.Store
	auth       *auth.Authenticator
	ledger     *ledger.Ledger
	directory  *directory.Directory
	trusted    []netip.Prefix
	router     http.Handler
	httpServer *http.Server
	wg         sync.WaitGroup
	done       chan struct{}
	stopOnce   sync.Once
}

// NewServer creates a new API server. The store is owned by the caller and
// must already be started.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.Config,
	svc Services,
) Server {
	s := &server{
		log:       log.WithField("component", "api"),
		cfg:       cfg,
		store:     svc.Store,
		auth:      svc.Auth,
		ledger:    svc.Ledger,
		directory: svc.Directory,
		done:      make(chan struct{}),
	}

	trusted, err := cfg.Server.TrustedProxyPrefixes()
	if err != nil {
		s.log.WithError(err).Warn("Ignoring trusted proxies")
	}

	s.trusted = trusted

	s.router = s.buildRouter()

	return s
}

func (s *server) Handler() http.Handler {
	return s.router
}

// Start runs the background sweepers and starts the HTTP server.
func (s *server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Lockout expiry sweeper.
	sweepCtx, cancel := context.WithCancel(ctx)

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.auth.Policy().Run(sweepCtx, s.cfg.Auth.Lockout.SweepIntervalValue())
	}()

	go func() {
		<-s.done
		cancel()
	}()

	// Expired session cleanup.
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(sessionCleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.store.DeleteExpiredSessions(ctx); err != nil {
					s.log.WithError(err).
						Warn("Failed to clean expired sessions")
				}
			case <-s.done:
				return
			}
		}
	}()

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", s.cfg.Server.Listen).
			Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server and the background workers.
func (s *server) Stop() error {
	s.stopOnce.Do(func() { close(s.done) })

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	s.log.Info("API server stopped")

	return nil
}
