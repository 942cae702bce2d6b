package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	httpapi "github.com/immxrtalbeast/meetsync/internal/api/http"
	"github.com/immxrtalbeast/meetsync/internal/config"
	"github.com/immxrtalbeast/meetsync/internal/domain"
	"github.com/immxrtalbeast/meetsync/internal/repository"
	"github.com/immxrtalbeast/meetsync/internal/repository/model"
	"github.com/immxrtalbeast/meetsync/internal/service"
	"github.com/immxrtalbeast/meetsync/lib/logger/sl"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// App wires the meeting store, the services around it and the HTTP surface.
type App struct {
	cfg *config.Config
	log *slog.Logger

	srv     *http.Server
	clock   *service.ExpiryClock
	audit   *service.AuditTrail
	closeDB func() error
}

func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	auditRepo, closeDB, err := openAuditRepository(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("audit repository: %w", err)
	}

	store := repository.NewMeetingStore(log)
	sessions := service.NewSessionRegistry(log)
	audit := service.NewAuditTrail(auditRepo, cfg.Audit.Buffer, log)

	meetings := service.NewMeetingService(store, sessions, audit, log,
		service.WithDefaultSettings(domain.Settings{
			AllowJoin:       *cfg.Meetings.AllowJoin,
			RequireApproval: cfg.Meetings.RequireApproval,
			MaxParticipants: cfg.Meetings.MaxParticipants,
		}),
		service.WithListLimitMax(cfg.Meetings.ListLimitMax),
	)
	store.Observe(meetings)

	router := httpapi.SetupRouter(
		cfg.HTTP.AllowOrigins,
		httpapi.NewMeetingController(meetings, log),
		httpapi.NewWSController(meetings, httpapi.WSConfig{
			ReadLimit:  cfg.WS.ReadLimit,
			PingPeriod: cfg.WS.PingPeriod,
			PongWait:   cfg.WS.PongWait,
			WriteWait:  cfg.WS.WriteWait,
			SendBuffer: cfg.WS.SendBuffer,
		}, httpapi.AllowOrigin(cfg.HTTP.AllowOrigins), log),
		httpapi.NewRTCController(cfg.WebRTC.STUNServers),
	)

	srv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &App{
		cfg:     cfg,
		log:     log,
		srv:     srv,
		clock:   service.NewExpiryClock(meetings, cfg.Meetings.SweepInterval, log),
		audit:   audit,
		closeDB: closeDB,
	}, nil
}

// Run serves until ctx is canceled or a component fails, then shuts the
// server down and flushes the audit trail.
func (a *App) Run(ctx context.Context) error {
	const op = "app.run"
	log := a.log.With(slog.String("op", op))

	g, gctx := errgroup.WithContext(ctx)

	// Hijacked websocket connections outlive Shutdown, so their request
	// contexts hang off the group context instead.
	a.srv.BaseContext = func(net.Listener) context.Context { return gctx }

	auditCtx, stopAudit := context.WithCancel(context.WithoutCancel(ctx))
	defer stopAudit()

	g.Go(func() error {
		log.Info("starting http server", slog.String("addr", a.srv.Addr))
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: listen: %w", op, err)
		}
		return nil
	})

	g.Go(func() error {
		return a.clock.Run(gctx)
	})

	g.Go(func() error {
		return a.audit.Run(auditCtx)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()

		err := a.srv.Shutdown(shutdownCtx)
		stopAudit()
		if err != nil {
			return fmt.Errorf("%s: shutdown: %w", op, err)
		}
		return nil
	})

	err := g.Wait()
	if cerr := a.closeDB(); cerr != nil {
		log.Warn("failed to close database", sl.Err(cerr))
	}
	return err
}

// openAuditRepository picks postgres when a DSN is configured and falls back
// to the in-memory trail otherwise.
func openAuditRepository(cfg config.DatabaseConfig, log *slog.Logger) (repository.AuditRepository, func() error, error) {
	if cfg.DSN == "" {
		log.Info("database dsn is empty, audit trail kept in memory")
		return repository.NewInMemoryAuditRepository(), func() error { return nil }, nil
	}

	db, err := connectDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	return repository.NewPostgresAuditRepository(db), sqlDB.Close, nil
}

func connectDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&model.AuditEntry{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}
