package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aqylbek/ambulance-dispatch/config"
	httpserver "github.com/aqylbek/ambulance-dispatch/internal/adapter/http/server"
	wshandler "github.com/aqylbek/ambulance-dispatch/internal/adapter/http/ws"
	"github.com/aqylbek/ambulance-dispatch/internal/adapter/postgres"
	rabbitadapter "github.com/aqylbek/ambulance-dispatch/internal/adapter/rabbit"
	"github.com/aqylbek/ambulance-dispatch/internal/scheduler"
	"github.com/aqylbek/ambulance-dispatch/internal/service/admin"
	"github.com/aqylbek/ambulance-dispatch/internal/service/auth"
	"github.com/aqylbek/ambulance-dispatch/internal/service/dispatch"
	"github.com/aqylbek/ambulance-dispatch/internal/service/emergency"
	"github.com/aqylbek/ambulance-dispatch/internal/service/session"
	"github.com/aqylbek/ambulance-dispatch/pkg/clock"
	"github.com/aqylbek/ambulance-dispatch/pkg/logger"
	postgresclient "github.com/aqylbek/ambulance-dispatch/pkg/postgres"
	rabbitclient "github.com/aqylbek/ambulance-dispatch/pkg/rabbit"
	"github.com/aqylbek/ambulance-dispatch/pkg/trm"
	ws "github.com/aqylbek/ambulance-dispatch/pkg/wsHub"
)

// App wires the dispatch service together: storage, broker, the HTTP/WS
// surface, the reconciliation scheduler, and startup recovery.
type App struct {
	postgresDB *postgresclient.PostgreDB
	rabbitMQ   *rabbitclient.RabbitMQ
	httpServer *httpserver.API

	recovery *scheduler.Recovery
	sched    *scheduler.Scheduler
	consumer *rabbitadapter.OfferConsumer
	gateway  *wshandler.DriverGateway

	cfg config.Config
	log logger.Logger
}

func New(ctx context.Context, cfg config.Config, log logger.Logger) (*App, error) {
	db, err := postgresclient.New(ctx, cfg.Database)
	if err != nil {
		log.Error(ctx, "failed to setup database", err)
		return nil, err
	}

	rabbitMQ, err := rabbitclient.New(ctx, cfg.RabbitMQ.GetDSN(), log)
	if err != nil {
		log.Error(ctx, "failed to setup rabbitmq", err)
		db.Pool.Close()
		return nil, err
	}

	notifier := rabbitadapter.NewNotifier(rabbitMQ)
	if err := notifier.DeclareExchanges(); err != nil {
		log.Error(ctx, "failed to declare exchanges", err)
		db.Pool.Close()
		return nil, err
	}

	// repositories
	emergencyRepo := postgres.NewEmergencyRepo(db.Pool)
	assignmentRepo := postgres.NewAssignmentRepo(db.Pool)
	sessionRepo := postgres.NewSessionRepo(db.Pool)
	vehicleRepo := postgres.NewVehicleRepo(db.Pool)
	userRepo := postgres.NewUserRepo(db.Pool)

	txManager := trm.New(db.Pool)
	clk := clock.Real{}
	readiness := scheduler.NewReadiness()

	// services
	dispatcher := dispatch.New(
		emergencyRepo, assignmentRepo, sessionRepo, vehicleRepo,
		notifier, readiness, txManager, clk,
		dispatch.Config{
			ResponseWindow: cfg.Dispatch.ResponseWindow,
			StaleThreshold: cfg.Dispatch.StaleThreshold,
		},
		log,
	)

	sessionSvc := session.New(
		sessionRepo, userRepo, vehicleRepo,
		notifier, txManager, clk,
		session.Config{StaleThreshold: cfg.Dispatch.StaleThreshold},
		log,
	)

	emergencySvc := emergency.New(
		emergencyRepo, assignmentRepo, vehicleRepo, userRepo,
		sessionSvc, dispatcher, notifier, txManager, clk,
		emergency.Config{ConfirmationWindow: cfg.Dispatch.ConfirmationWindow},
		log,
	)

	adminSvc := admin.New(emergencyRepo, sessionRepo, vehicleRepo, txManager, log)

	tokenSvc := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, clk)
	authSvc := auth.NewAuthService(userRepo, tokenSvc, log)

	// realtime driver channel
	connHub := ws.NewConnHub(log)
	gateway := wshandler.NewDriverGateway(connHub, sessionSvc, log)
	consumer := rabbitadapter.NewOfferConsumer(rabbitMQ, log)

	// reconciliation
	recovery := scheduler.NewRecovery(emergencyRepo, assignmentRepo, vehicleRepo, readiness, txManager, clk, log)
	sched := scheduler.New(log,
		scheduler.NewConfirmationSweep(cfg.Dispatch.ConfirmationSweepPeriod, emergencyRepo, dispatcher, clk, log),
		scheduler.NewResponseTimeoutSweep(cfg.Dispatch.ResponseTimeoutSweepPeriod, emergencySvc, log),
		scheduler.NewStaleSessionSweep(cfg.Dispatch.StaleSessionSweepPeriod, sessionSvc, log),
		scheduler.NewInvariantRepairSweep(cfg.Dispatch.InvariantRepairSweepPeriod, emergencyRepo, assignmentRepo, vehicleRepo, txManager, clk, log),
	)

	httpServer, err := httpserver.New(cfg.Server, emergencySvc, sessionSvc, adminSvc, authSvc, readiness, gateway, log)
	if err != nil {
		log.Error(ctx, "failed to setup http server", err)
		db.Pool.Close()
		return nil, err
	}

	return &App{
		postgresDB: db,
		rabbitMQ:   rabbitMQ,
		httpServer: httpServer,
		recovery:   recovery,
		sched:      sched,
		consumer:   consumer,
		gateway:    gateway,
		cfg:        cfg,
		log:        log,
	}, nil
}

// Start runs startup recovery, opens the background workers, serves HTTP,
// and blocks until a shutdown signal or a server error.
func (a *App) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Recovery expires leftover offers before the service accepts traffic.
	if err := a.recovery.Run(ctx); err != nil {
		return err
	}

	a.sched.Start(ctx)

	go func() {
		if err := a.consumer.ConsumeAssignmentOffers(ctx, a.gateway.ForwardOffer); err != nil {
			a.log.Error(ctx, "offer consumer stopped", err)
		}
	}()

	errCh := make(chan error, 1)
	a.httpServer.Run(ctx, errCh)

	defer func() {
		cancel()
		a.close(context.Background())
		a.log.Info(ctx, "dispatch service closed")
	}()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	a.log.Info(ctx, "dispatch service started", "address", a.cfg.Server.Addr())

	select {
	case errRun := <-errCh:
		return errRun
	case sig := <-shutdownCh:
		a.log.Info(ctx, "shutting down application", "signal", sig.String())
		return nil
	}
}

func (a *App) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Warn(ctx, "failed to gracefully close http server", "error", err.Error())
	}

	a.sched.Wait()
	a.gateway.Close()

	if err := a.rabbitMQ.Close(ctx); err != nil {
		a.log.Warn(ctx, "failed to close rabbitmq connection", "error", err.Error())
	}

	a.postgresDB.Pool.Close()
}
