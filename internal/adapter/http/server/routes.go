package server

import (
	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/aqylbek/ambulance-dispatch/docs"
)

// setupRoutes wires every endpoint of the dispatch service.
func (a *API) setupRoutes() {
	// System
	a.mux.HandleFunc("/health", a.routes.health.HealthCheck)
	a.mux.Handle("/metrics", promhttp.Handler())
	a.mux.HandleFunc("/swagger/", httpSwagger.Handler(httpSwagger.InstanceName("dispatch")))

	// Auth
	a.mux.HandleFunc("POST /auth/login", a.routes.auth.Login)
	a.mux.Handle("GET /auth/me", a.m.RequireRoles(a.routes.auth.Profile))

	// Emergencies: requester side
	a.mux.Handle("POST /emergencies", a.m.RequireRoles(a.routes.emergency.Create, types.RoleRequester))
	a.mux.Handle("GET /emergencies/{emergency_id}", a.m.RequireRoles(a.routes.emergency.Get, types.RoleRequester, types.RoleAdmin))
	a.mux.Handle("POST /emergencies/{emergency_id}/cancel", a.m.RequireRoles(a.routes.emergency.Cancel, types.RoleRequester, types.RoleAdmin))
	a.mux.Handle("GET /emergencies/{emergency_id}/timeline", a.m.RequireRoles(a.routes.emergency.Timeline, types.RoleRequester, types.RoleDriver, types.RoleAdmin))

	// Emergencies: crew side
	a.mux.Handle("POST /emergencies/{emergency_id}/respond", a.m.RequireRoles(a.routes.emergency.Respond, types.RoleDriver))
	a.mux.Handle("POST /emergencies/{emergency_id}/at-patient", a.m.RequireRoles(a.routes.emergency.AtPatient, types.RoleDriver))
	a.mux.Handle("POST /emergencies/{emergency_id}/to-hospital", a.m.RequireRoles(a.routes.emergency.ToHospital, types.RoleDriver))
	a.mux.Handle("POST /emergencies/{emergency_id}/complete", a.m.RequireRoles(a.routes.emergency.Complete, types.RoleDriver))

	// Driver sessions
	a.mux.Handle("POST /drivers/{driver_id}/shift/start", a.m.RequireRoles(a.routes.driver.StartShift, types.RoleDriver))
	a.mux.Handle("POST /drivers/{driver_id}/shift/end", a.m.RequireRoles(a.routes.driver.EndShift, types.RoleDriver))
	a.mux.Handle("POST /drivers/{driver_id}/location", a.m.RequireRoles(a.routes.driver.UpdateLocation, types.RoleDriver))
	a.mux.Handle("POST /drivers/{driver_id}/heartbeat", a.m.RequireRoles(a.routes.driver.Heartbeat, types.RoleDriver))
	a.mux.HandleFunc("GET /ws/drivers/{driver_id}", a.routes.driverWS.HandleWS)

	// Admin
	a.mux.Handle("GET /admin/overview", a.m.RequireRoles(a.routes.admin.GetOverview, types.RoleAdmin))
	a.mux.Handle("GET /admin/emergencies/active", a.m.RequireRoles(a.routes.admin.GetActiveEmergencies, types.RoleAdmin))
}
