package handler

import (
	"context"
	"net/http"

	"github.com/aqylbek/ambulance-dispatch/internal/adapter/http/handler/dto"
	"github.com/aqylbek/ambulance-dispatch/internal/domain/models"
	"github.com/aqylbek/ambulance-dispatch/pkg/logger"
	wrap "github.com/aqylbek/ambulance-dispatch/pkg/logger/wrapper"
)

type AdminService interface {
	Overview(ctx context.Context) (*models.Overview, error)
	ActiveEmergencies(ctx context.Context) ([]*models.Emergency, error)
}

type Admin struct {
	s AdminService
	l logger.Logger
}

func NewAdmin(s AdminService, l logger.Logger) *Admin {
	return &Admin{
		s: s,
		l: l,
	}
}

// GetOverview godoc
// @Summary      System overview
// @Description  Returns emergency, driver and vehicle counts
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  models.Overview
// @Security     BearerAuth
// @Router       /admin/overview [get]
func (h *Admin) GetOverview(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "admin_get_overview")

	overview, err := h.s.Overview(ctx)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to get overview", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"overview": overview}, nil); err != nil {
		h.l.Error(ctx, "failed to write response", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// GetActiveEmergencies godoc
// @Summary      Active emergencies
// @Description  Lists every non-terminal emergency
// @Tags         Admin
// @Produce      json
// @Success      200  {array}  dto.EmergencyResponse
// @Security     BearerAuth
// @Router       /admin/emergencies/active [get]
func (h *Admin) GetActiveEmergencies(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "admin_get_active_emergencies")

	emergencies, err := h.s.ActiveEmergencies(ctx)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to get active emergencies", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	out := make([]dto.EmergencyResponse, 0, len(emergencies))
	for _, e := range emergencies {
		out = append(out, dto.ToEmergencyResponse(e))
	}

	if err := writeJSON(w, http.StatusOK, envelope{"emergencies": out, "count": len(out)}, nil); err != nil {
		h.l.Error(ctx, "failed to write response", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}
