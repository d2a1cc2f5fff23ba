package handler

import (
	"context"
	"net/http"

	"github.com/aqylbek/ambulance-dispatch/internal/adapter/http/handler/dto"
	"github.com/aqylbek/ambulance-dispatch/internal/domain/models"
	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
	"github.com/aqylbek/ambulance-dispatch/pkg/logger"
	wrap "github.com/aqylbek/ambulance-dispatch/pkg/logger/wrapper"
	"github.com/aqylbek/ambulance-dispatch/pkg/uuid"
	"github.com/aqylbek/ambulance-dispatch/pkg/validator"
)

type Emergency struct {
	service EmergencyService
	l       logger.Logger
}

type EmergencyService interface {
	CreateEmergency(ctx context.Context, requesterID uuid.UUID, loc models.Location, emType types.EmergencyType, severity types.Severity) (*models.Emergency, error)
	GetEmergency(ctx context.Context, id uuid.UUID) (*models.Emergency, error)
	Cancel(ctx context.Context, emergencyID uuid.UUID, caller *models.User, reason string) error
	GetTimeline(ctx context.Context, emergencyID uuid.UUID) ([]models.TimelineEvent, error)
	Respond(ctx context.Context, emergencyID, driverID uuid.UUID, accepted bool) error
	ConfirmAtPatient(ctx context.Context, emergencyID, driverID uuid.UUID) error
	ConfirmToHospital(ctx context.Context, emergencyID, driverID uuid.UUID) error
	Complete(ctx context.Context, emergencyID, driverID uuid.UUID, hospital *models.Location) error
}

func NewEmergency(service EmergencyService, l logger.Logger) *Emergency {
	return &Emergency{
		service: service,
		l:       l,
	}
}

// Create godoc
// @Summary      Report an emergency
// @Description  Creates a new emergency request and dispatches the nearest available ambulance
// @Tags         Emergencies
// @Accept       json
// @Produce      json
// @Param        request body dto.CreateEmergencyRequest true "Emergency details"
// @Success      201  {object}  dto.EmergencyResponse
// @Failure      422  {object}  map[string]string
// @Security     BearerAuth
// @Router       /emergencies [post]
func (h *Emergency) Create(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "create_emergency")

	var req dto.CreateEmergencyRequest
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

	caller := models.UserFromContext(ctx)
	emergency, err := h.service.CreateEmergency(ctx, caller.ID, req.Location(), types.EmergencyType(req.Type), types.Severity(req.Severity))
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to create emergency", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	response := envelope{"emergency": dto.ToEmergencyResponse(emergency)}
	if err := writeJSON(w, http.StatusCreated, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}

	h.l.Info(ctx, "emergency created", "emergency_id", emergency.ID, "status", emergency.Status)
}

// Get godoc
// @Summary      Get an emergency
// @Tags         Emergencies
// @Produce      json
// @Param        emergency_id path string true "Emergency ID"
// @Success      200  {object}  dto.EmergencyResponse
// @Security     BearerAuth
// @Router       /emergencies/{emergency_id} [get]
func (h *Emergency) Get(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "get_emergency")

	emergencyID, ok := h.pathEmergencyID(ctx, w, r)
	if !ok {
		return
	}

	emergency, err := h.service.GetEmergency(ctx, emergencyID)
	if err != nil {
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	// Requesters see only their own emergencies.
	caller := models.UserFromContext(ctx)
	if caller.Role != types.RoleAdmin && emergency.RequesterID != caller.ID {
		errorResponse(w, http.StatusNotFound, types.ErrEmergencyNotFound.Error())
		return
	}

	response := envelope{"emergency": dto.ToEmergencyResponse(emergency)}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}
}

// Cancel godoc
// @Summary      Cancel an emergency
// @Description  Cancels a non-terminal emergency. Cancelling after an ambulance was assigned, or after the confirmation window, is penalized.
// @Tags         Emergencies
// @Accept       json
// @Produce      json
// @Param        emergency_id path string true "Emergency ID"
// @Param        request body dto.CancelEmergencyRequest true "Cancellation reason"
// @Success      200  {object}  map[string]string
// @Security     BearerAuth
// @Router       /emergencies/{emergency_id}/cancel [post]
func (h *Emergency) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "cancel_emergency")

	emergencyID, ok := h.pathEmergencyID(ctx, w, r)
	if !ok {
		return
	}

	var req dto.CancelEmergencyRequest
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

	caller := models.UserFromContext(ctx)
	if err := h.service.Cancel(ctx, emergencyID, caller, req.Reason); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to cancel emergency", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	response := envelope{"status": types.EmergencyCancelled.String()}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}

	h.l.Info(ctx, "emergency cancelled", "emergency_id", emergencyID)
}

// Timeline godoc
// @Summary      Get emergency timeline
// @Description  Returns the ordered event history of an emergency
// @Tags         Emergencies
// @Produce      json
// @Param        emergency_id path string true "Emergency ID"
// @Success      200  {array}  models.TimelineEvent
// @Security     BearerAuth
// @Router       /emergencies/{emergency_id}/timeline [get]
func (h *Emergency) Timeline(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "get_emergency_timeline")

	emergencyID, ok := h.pathEmergencyID(ctx, w, r)
	if !ok {
		return
	}

	timeline, err := h.service.GetTimeline(ctx, emergencyID)
	if err != nil {
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	response := envelope{"timeline": timeline}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}
}

// Respond godoc
// @Summary      Respond to an assignment offer
// @Description  The offered driver accepts or rejects the pending assignment
// @Tags         Emergencies
// @Accept       json
// @Produce      json
// @Param        emergency_id path string true "Emergency ID"
// @Param        request body dto.RespondRequest true "Response"
// @Success      200  {object}  map[string]string
// @Security     BearerAuth
// @Router       /emergencies/{emergency_id}/respond [post]
func (h *Emergency) Respond(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "respond_to_assignment")

	emergencyID, ok := h.pathEmergencyID(ctx, w, r)
	if !ok {
		return
	}

	var req dto.RespondRequest
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

	caller := models.UserFromContext(ctx)
	ctx = wrap.WithDriverID(ctx, caller.ID.String())

	if err := h.service.Respond(ctx, emergencyID, caller.ID, *req.Accepted); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to respond to assignment", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	result := "accepted"
	if !*req.Accepted {
		result = "rejected"
	}
	response := envelope{"result": result}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}

	h.l.Info(ctx, "driver responded to assignment", "emergency_id", emergencyID, "result", result)
}

// AtPatient godoc
// @Summary      Confirm arrival at the patient
// @Tags         Emergencies
// @Produce      json
// @Param        emergency_id path string true "Emergency ID"
// @Success      200  {object}  map[string]string
// @Security     BearerAuth
// @Router       /emergencies/{emergency_id}/at-patient [post]
func (h *Emergency) AtPatient(w http.ResponseWriter, r *http.Request) {
	h.advance(w, r, "confirm_at_patient", h.service.ConfirmAtPatient, types.EmergencyAtPatient)
}

// ToHospital godoc
// @Summary      Confirm transport to hospital started
// @Tags         Emergencies
// @Produce      json
// @Param        emergency_id path string true "Emergency ID"
// @Success      200  {object}  map[string]string
// @Security     BearerAuth
// @Router       /emergencies/{emergency_id}/to-hospital [post]
func (h *Emergency) ToHospital(w http.ResponseWriter, r *http.Request) {
	h.advance(w, r, "confirm_to_hospital", h.service.ConfirmToHospital, types.EmergencyToHospital)
}

func (h *Emergency) advance(w http.ResponseWriter, r *http.Request, action string, op func(ctx context.Context, emergencyID, driverID uuid.UUID) error, to types.EmergencyStatus) {
	ctx := wrap.WithAction(r.Context(), action)

	emergencyID, ok := h.pathEmergencyID(ctx, w, r)
	if !ok {
		return
	}

	caller := models.UserFromContext(ctx)
	ctx = wrap.WithDriverID(ctx, caller.ID.String())

	if err := op(ctx, emergencyID, caller.ID); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to advance emergency", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	response := envelope{"status": to.String()}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}

	h.l.Info(ctx, "emergency advanced", "emergency_id", emergencyID, "status", to)
}

// Complete godoc
// @Summary      Complete an emergency
// @Description  Finishes the trip, optionally recording the destination hospital
// @Tags         Emergencies
// @Accept       json
// @Produce      json
// @Param        emergency_id path string true "Emergency ID"
// @Param        request body dto.CompleteEmergencyRequest false "Hospital location"
// @Success      200  {object}  map[string]string
// @Security     BearerAuth
// @Router       /emergencies/{emergency_id}/complete [post]
func (h *Emergency) Complete(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "complete_emergency")

	emergencyID, ok := h.pathEmergencyID(ctx, w, r)
	if !ok {
		return
	}

	var req dto.CompleteEmergencyRequest
	if r.ContentLength > 0 {
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
	}

	caller := models.UserFromContext(ctx)
	ctx = wrap.WithDriverID(ctx, caller.ID.String())

	if err := h.service.Complete(ctx, emergencyID, caller.ID, req.Hospital()); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to complete emergency", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	response := envelope{"status": types.EmergencyCompleted.String()}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}

	h.l.Info(ctx, "emergency completed", "emergency_id", emergencyID)
}

func (h *Emergency) pathEmergencyID(ctx context.Context, w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	emergencyID, err := uuid.Parse(r.PathValue("emergency_id"))
	if err != nil {
		h.l.Warn(ctx, "invalid emergency uuid format")
		errorResponse(w, http.StatusBadRequest, "invalid emergency uuid format")
		return uuid.Nil, false
	}
	return emergencyID, true
}
