// Package server assembles the coordinator from its configuration and runs
// it until the context is cancelled.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ideavolution/coordinator/internal/config"
	"github.com/ideavolution/coordinator/internal/database"
	"github.com/ideavolution/coordinator/internal/handlers"
	"github.com/ideavolution/coordinator/internal/jobs"
	"github.com/ideavolution/coordinator/internal/logger"
	"github.com/ideavolution/coordinator/internal/middleware"
	"github.com/ideavolution/coordinator/internal/realtime"
	"github.com/ideavolution/coordinator/internal/realtime/relay"
	"github.com/ideavolution/coordinator/internal/services"
	slackutil "github.com/ideavolution/coordinator/internal/slack"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const shutdownTimeout = 10 * time.Second

// unauthenticated paths when a JWT secret is configured
var publicPaths = []string{"/health", "/api/health"}

// Server is the assembled coordinator
type Server struct {
	cfg *config.Config
	db  *gorm.DB

	hub       *realtime.Hub
	relay     *relay.Relay
	ops       *slackutil.OpsNotifier
	alerts    *services.AlertService
	scheduler *jobs.EscalationScheduler
	monitor   *jobs.AcceptedMonitor

	handler http.Handler
	stop    chan struct{}
	cancel  context.CancelFunc
}

// New wires every component over db. The redis relay is dialled when
// configured, so New may block briefly on the network.
func New(ctx context.Context, cfg *config.Config, db *gorm.DB) (*Server, error) {
	s := &Server{cfg: cfg, db: db, hub: realtime.NewHub(), stop: make(chan struct{})}

	var dispatcher realtime.Dispatcher = s.hub
	if cfg.RedisAddr != "" {
		r, err := relay.Dial(ctx, cfg.RedisAddr, cfg.RedisChannel, s.hub)
		if err != nil {
			return nil, err
		}
		s.relay = r
		dispatcher = r
		logger.InfoKV(ctx, "Realtime fanout relayed through redis", "addr", cfg.RedisAddr, "channel", cfg.RedisChannel)
	}

	// the fanout needs the service's deadline, the service needs the fanout
	fanout := realtime.NewFanout(dispatcher, func(a *database.Alert) time.Time {
		return s.alerts.Deadline(a)
	})
	notifiers := services.Notifiers{fanout}
	if cfg.SlackEnabled() {
		s.ops = slackutil.NewOpsNotifier(cfg.SlackBotToken, cfg.SlackOpsChannel)
		notifiers = append(notifiers, s.ops)
	}

	s.alerts = services.NewAlertService(db, services.AlertServiceConfig{
		EscalationWindow: cfg.EscalationWindow,
		DonationValidity: cfg.DonationValidity,
	}, notifiers)
	directory := services.NewDirectoryService(db, s.alerts)

	s.scheduler = jobs.NewEscalationScheduler(s.alerts)
	s.alerts.SetEscalator(s.scheduler)
	s.monitor = jobs.NewAcceptedMonitor(s.alerts, cfg.AcceptedTimeout)

	cors := middleware.NewCORSMiddleware(cfg.AllowedOrigins...)
	actor := middleware.NewActorMiddleware(cfg.JWTSecret, publicPaths...)
	if actor.Enforced() {
		logger.InfoKV(ctx, "Actor identity enforced via bearer tokens")
	} else {
		logger.WarnKV(ctx, "JWT_SECRET not set; actor headers are trusted as sent")
	}

	mux := http.NewServeMux()
	handlers.NewHTTPHandler(db).SetupRoutes(mux)
	handlers.NewAPIHandler(s.alerts, directory).SetupRoutes(mux)
	handlers.NewRealtimeWSHandler(s.hub, fanout, s.alerts, cors.Allows).SetupRoutes(mux)

	s.handler = middleware.RequestIDMiddleware(
		middleware.LoggingMiddleware(
			cors.Wrap(actor.Wrap(mux))))
	return s, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start launches the background workers and re-arms deadlines of alerts that
// were pending when the process last stopped
func (s *Server) Start(ctx context.Context) error {
	// Close cancels ctx so the relay goroutines exit even when Start fails
	ctx, s.cancel = context.WithCancel(ctx)
	if s.relay != nil {
		s.relay.Run(ctx)
		if err := s.relay.StartForwarder(ctx); err != nil {
			return err
		}
	}
	if s.ops != nil {
		// posting outlives ctx so notices raised during shutdown still go out
		s.ops.Start(logger.ToContext(context.Background(), logger.FromContext(ctx)))
	}

	if _, _, err := s.scheduler.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover escalation deadlines: %w", err)
	}

	go s.scheduler.Start(s.cfg.SweepInterval, s.stop)
	if s.monitor.Enabled() {
		go s.monitor.Start(s.cfg.SweepInterval, s.stop)
		logger.InfoKV(ctx, "Accepted monitor started", "timeout", s.cfg.AcceptedTimeout)
	}
	return nil
}

// Close stops the workers in dependency order
func (s *Server) Close() {
	close(s.stop)
	if s.cancel != nil {
		s.cancel()
	}
	s.scheduler.Stop()
	if s.ops != nil {
		s.ops.Stop()
	}
	if s.relay != nil {
		if err := s.relay.Close(); err != nil {
			logger.Logger().Warnw("Failed to close redis relay", "error", err)
		}
		s.relay.Wait()
	}
}

// Run opens the database, serves HTTP and blocks until ctx is cancelled
func Run(ctx context.Context, cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL, gormlogger.Warn)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := database.AutoMigrate(db); err != nil {
		return err
	}

	srv, err := New(ctx, cfg, db)
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		srv.Close()
		return err
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoKV(ctx, "Starting HTTP server", "port", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.InfoKV(ctx, "Received shutdown signal, cleaning up...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WarnKV(ctx, "Error shutting down HTTP server", "error", err)
	}
	logger.InfoKV(ctx, "Shutdown complete")
	return nil
}
