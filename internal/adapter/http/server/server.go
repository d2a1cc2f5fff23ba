package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aqylbek/ambulance-dispatch/config"
	"github.com/aqylbek/ambulance-dispatch/internal/adapter/http/handler"
	"github.com/aqylbek/ambulance-dispatch/internal/adapter/http/middleware"
	wshandler "github.com/aqylbek/ambulance-dispatch/internal/adapter/http/ws"
	"github.com/aqylbek/ambulance-dispatch/pkg/logger"
	wrap "github.com/aqylbek/ambulance-dispatch/pkg/logger/wrapper"
)

const serviceName = "ambulance-dispatch"

type API struct {
	mux    *http.ServeMux
	server *http.Server
	routes *handlers
	m      *middleware.Middleware

	addr string
	log  logger.Logger
}

type handlers struct {
	emergency *handler.Emergency
	driver    *handler.Driver
	admin     *handler.Admin
	auth      *handler.Auth
	health    *handler.Health
	driverWS  *wshandler.DriverGateway
}

func New(
	cfg config.ServerConfig,
	emergencyService handler.EmergencyService,
	sessionService handler.SessionService,
	adminService handler.AdminService,
	authService handler.AuthService,
	readiness handler.ReadinessGate,
	driverGateway *wshandler.DriverGateway,
	log logger.Logger,
) (*API, error) {
	if authService == nil {
		return nil, errors.New("auth service is required")
	}

	routes := &handlers{
		emergency: handler.NewEmergency(emergencyService, log),
		driver:    handler.NewDriver(sessionService, log),
		admin:     handler.NewAdmin(adminService, log),
		auth:      handler.NewAuth(authService, log),
		health:    handler.NewHealth(serviceName, readiness, log),
		driverWS:  driverGateway,
	}

	mid := middleware.NewMiddleware(authService, log)

	api := &API{
		mux:    http.NewServeMux(),
		routes: routes,
		m:      mid,
		addr:   cfg.Addr(),
		log:    log,
	}

	api.server = &http.Server{
		Addr:    api.addr,
		Handler: api.withMiddleware(),
	}

	api.setupRoutes()

	return api, nil
}

func (a *API) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ctx = wrap.WithAction(ctx, "http_server_stop")

	a.log.Debug(ctx, "shutting down HTTP server...", "address", a.addr)
	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	a.log.Debug(ctx, "shutting down HTTP server completed")

	return nil
}

func (a *API) Run(ctx context.Context, errCh chan<- error) {
	go func() {
		ctx = wrap.WithAction(ctx, "http_server_start")
		a.log.Info(ctx, "started http server", "address", a.addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start HTTP server: %w", err)
			return
		}
	}()
}

// withMiddleware applies the shared middleware chain to the mux.
func (a *API) withMiddleware() http.Handler {
	return a.m.Recover(a.m.RequestID(a.m.Metrics(a.m.Logging(a.m.Auth(a.mux)))))
}
