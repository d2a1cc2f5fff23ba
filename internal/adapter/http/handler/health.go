package handler

import (
	"net/http"

	"github.com/aqylbek/ambulance-dispatch/pkg/logger"
	wrap "github.com/aqylbek/ambulance-dispatch/pkg/logger/wrapper"
)

type ReadinessGate interface {
	IsReady() bool
}

type Health struct {
	serviceName string
	readiness   ReadinessGate
	log         logger.Logger
}

func NewHealth(serviceName string, readiness ReadinessGate, log logger.Logger) *Health {
	return &Health{
		serviceName: serviceName,
		readiness:   readiness,
		log:         log,
	}
}

// HealthCheck godoc
// @Summary      Health Check
// @Description  Returns the health status of the service
// @Tags         Health
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (a *Health) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "health_check")

	status := "available"
	if !a.readiness.IsReady() {
		status = "recovering"
	}

	response := envelope{
		"status": status,
		"system_info": map[string]string{
			"service-name": a.serviceName,
		},
	}

	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		a.log.Error(ctx, "healthcheck", err)
		return
	}
}
