package handler

import (
	"context"
	"net/http"

	"github.com/aqylbek/ambulance-dispatch/internal/adapter/http/handler/dto"
	"github.com/aqylbek/ambulance-dispatch/internal/domain/models"
	"github.com/aqylbek/ambulance-dispatch/pkg/logger"
	wrap "github.com/aqylbek/ambulance-dispatch/pkg/logger/wrapper"
	"github.com/aqylbek/ambulance-dispatch/pkg/uuid"
	"github.com/aqylbek/ambulance-dispatch/pkg/validator"
)

type Driver struct {
	sessions SessionService
	l        logger.Logger
}

type SessionService interface {
	StartShift(ctx context.Context, driverID, vehicleID uuid.UUID) (*models.DriverSession, error)
	EndShift(ctx context.Context, driverID uuid.UUID) error
	UpdateLocation(ctx context.Context, driverID uuid.UUID, loc models.Location) error
	Heartbeat(ctx context.Context, driverID uuid.UUID) error
	GetActive(ctx context.Context, driverID uuid.UUID) (*models.DriverSession, error)
}

func NewDriver(sessions SessionService, l logger.Logger) *Driver {
	return &Driver{
		sessions: sessions,
		l:        l,
	}
}

// StartShift godoc
// @Summary      Start a shift
// @Description  Driver claims a vehicle and goes online
// @Tags         Drivers
// @Accept       json
// @Produce      json
// @Param        driver_id path string true "Driver ID"
// @Param        request body dto.StartShiftRequest true "Vehicle to claim"
// @Success      201  {object}  map[string]any
// @Security     BearerAuth
// @Router       /drivers/{driver_id}/shift/start [post]
func (h *Driver) StartShift(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "start_shift")

	driverID, ok := h.pathDriverID(ctx, w, r)
	if !ok {
		return
	}
	ctx = wrap.WithDriverID(ctx, driverID.String())

	var req dto.StartShiftRequest
	if err := readJSON(w, r, &req); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to read request JSON data", err)
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	v := validator.New()
	req.Validate(v)
	if !v.Valid() {
		h.l.Warn(ctx, "invalid request data")
		failedValidationResponse(w, v.Errors)
		return
	}

	session, err := h.sessions.StartShift(ctx, driverID, req.VehicleID)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to start shift", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	response := envelope{
		"session_id": session.ID,
		"status":     session.Status,
		"message":    "You are on shift and ready to take emergencies",
	}
	if err := writeJSON(w, http.StatusCreated, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}

	h.l.Info(ctx, "shift started", "driver_id", driverID, "vehicle_id", req.VehicleID)
}

// EndShift godoc
// @Summary      End a shift
// @Description  Driver releases the vehicle and goes offline. Not allowed mid-trip.
// @Tags         Drivers
// @Produce      json
// @Param        driver_id path string true "Driver ID"
// @Success      200  {object}  map[string]any
// @Security     BearerAuth
// @Router       /drivers/{driver_id}/shift/end [post]
func (h *Driver) EndShift(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "end_shift")

	driverID, ok := h.pathDriverID(ctx, w, r)
	if !ok {
		return
	}
	ctx = wrap.WithDriverID(ctx, driverID.String())

	if err := h.sessions.EndShift(ctx, driverID); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to end shift", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	response := envelope{"message": "Shift ended"}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}

	h.l.Info(ctx, "shift ended", "driver_id", driverID)
}

// UpdateLocation godoc
// @Summary      Update driver location
// @Description  Pushes a GPS fix; also counts as a heartbeat
// @Tags         Drivers
// @Accept       json
// @Produce      json
// @Param        driver_id path string true "Driver ID"
// @Param        request body dto.CoordinateUpdateRequest true "Coordinates"
// @Success      200  {object}  map[string]any
// @Security     BearerAuth
// @Router       /drivers/{driver_id}/location [post]
func (h *Driver) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "update_driver_location")

	driverID, ok := h.pathDriverID(ctx, w, r)
	if !ok {
		return
	}
	ctx = wrap.WithDriverID(ctx, driverID.String())

	var req dto.CoordinateUpdateRequest
	if err := readJSON(w, r, &req); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to read request JSON data", err)
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	v := validator.New()
	req.Validate(v)
	if !v.Valid() {
		failedValidationResponse(w, v.Errors)
		return
	}

	if err := h.sessions.UpdateLocation(ctx, driverID, req.Location()); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to update location", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	response := envelope{"message": "location updated"}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}
}

// Heartbeat godoc
// @Summary      Heartbeat
// @Description  Keeps the session fresh without a new GPS fix
// @Tags         Drivers
// @Produce      json
// @Param        driver_id path string true "Driver ID"
// @Success      200  {object}  map[string]any
// @Security     BearerAuth
// @Router       /drivers/{driver_id}/heartbeat [post]
func (h *Driver) Heartbeat(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "driver_heartbeat")

	driverID, ok := h.pathDriverID(ctx, w, r)
	if !ok {
		return
	}
	ctx = wrap.WithDriverID(ctx, driverID.String())

	if err := h.sessions.Heartbeat(ctx, driverID); err != nil {
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	response := envelope{"message": "heartbeat recorded"}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}
}

// pathDriverID parses the driver id from the path and rejects requests
// where the authenticated driver acts on someone else's behalf.
func (h *Driver) pathDriverID(ctx context.Context, w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	driverID, err := uuid.Parse(r.PathValue("driver_id"))
	if err != nil {
		h.l.Warn(ctx, "invalid driver uuid format")
		errorResponse(w, http.StatusBadRequest, "invalid driver uuid format")
		return uuid.Nil, false
	}

	caller := models.UserFromContext(ctx)
	if caller != nil && !caller.IsAnonymous() && caller.ID != driverID {
		errorResponse(w, http.StatusForbidden, "cannot act on behalf of another driver")
		return uuid.Nil, false
	}

	return driverID, true
}
