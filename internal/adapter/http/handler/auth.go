package handler

import (
	"context"
	"net/http"

	"github.com/aqylbek/ambulance-dispatch/internal/adapter/http/handler/dto"
	"github.com/aqylbek/ambulance-dispatch/internal/domain/models"
	"github.com/aqylbek/ambulance-dispatch/pkg/logger"
	wrap "github.com/aqylbek/ambulance-dispatch/pkg/logger/wrapper"
	"github.com/aqylbek/ambulance-dispatch/pkg/validator"
)

type Auth struct {
	service AuthService
	l       logger.Logger
}

type AuthService interface {
	Login(ctx context.Context, phone, password string) (*models.TokenPair, error)
	Verify(ctx context.Context, token string) (*models.User, error)
}

func NewAuth(service AuthService, l logger.Logger) *Auth {
	return &Auth{
		service: service,
		l:       l,
	}
}

// Login godoc
// @Summary      Login
// @Description  Exchanges phone and password for an access token
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        request body dto.LoginRequest true "Credentials"
// @Success      200  {object}  models.TokenPair
// @Failure      401  {object}  map[string]string
// @Router       /auth/login [post]
func (h *Auth) Login(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "login")

	var req dto.LoginRequest
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

	pair, err := h.service.Login(ctx, req.Phone, req.Password)
	if err != nil {
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	response := envelope{"tokens": pair}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}
}

// Profile godoc
// @Summary      Current account
// @Tags         Auth
// @Produce      json
// @Success      200  {object}  map[string]any
// @Security     BearerAuth
// @Router       /auth/me [get]
func (h *Auth) Profile(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "profile")

	user := models.UserFromContext(ctx)
	if user == nil || user.IsAnonymous() {
		errorResponse(w, http.StatusUnauthorized, "authorization required")
		return
	}

	response := envelope{
		"id":          user.ID,
		"name":        user.Name,
		"phone":       user.Phone,
		"role":        user.Role,
		"is_verified": user.IsVerified,
	}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}
}
