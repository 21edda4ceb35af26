package handler

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/smartpigdefi/smartpig/common"
	"github.com/smartpigdefi/smartpig/logger"
	"github.com/smartpigdefi/smartpig/service"
)

type SessionHandler struct {
	service *service.SessionService
}

func NewSessionHandler(service *service.SessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

// Status godoc
// @Summary      Show the session status
// @Description  Unauthenticated. The response carries the live access token so a
// @Description  restored session is reachable; the CORS origin list is the only
// @Description  limit on which browser pages can read it.
// @Tags         session
// @Produce      json
// @Success      200  {object}  model.SessionStatus
// @Router       /api/session [get]
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) *common.AppError {
	h.service.Capability(r.Context())
	common.WriteJSON(w, http.StatusOK, h.service.Status())
	return nil
}

// Register godoc
// @Summary      Create a passkey and a new savings account
// @Tags         session
// @Produce      json
// @Success      201  {object}  model.SessionStatus
// @Failure      409  {object}  common.AppError
// @Failure      422  {object}  common.AppError
// @Router       /api/session/register [post]
func (h *SessionHandler) Register(w http.ResponseWriter, r *http.Request) *common.AppError {
	logger.Log.Info("Register request received")

	status, err := h.service.Register(r.Context())
	if err != nil {
		return FromServiceError(err, "Could not register passkey")
	}

	logger.Log.WithFields(logrus.Fields{
		"account": status.Account.MaskedPublicKey(),
	}).Info("Account registered")
	common.WriteJSON(w, http.StatusCreated, status)
	return nil
}

// SignIn godoc
// @Summary      Sign in with an existing passkey
// @Tags         session
// @Produce      json
// @Success      200  {object}  model.SessionStatus
// @Failure      404  {object}  common.AppError
// @Router       /api/session/signin [post]
func (h *SessionHandler) SignIn(w http.ResponseWriter, r *http.Request) *common.AppError {
	logger.Log.Info("Sign-in request received")

	status, err := h.service.SignIn(r.Context())
	if err != nil {
		return FromServiceError(err, "Could not sign in")
	}

	common.WriteJSON(w, http.StatusOK, status)
	return nil
}

// Logout godoc
// @Summary      End the session and forget the stored account
// @Tags         session
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  model.SessionStatus
// @Router       /api/session/logout [post]
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) *common.AppError {
	logger.Log.WithField("account_key", accountKeyFrom(r)).Info("Logout request received")
	common.WriteJSON(w, http.StatusOK, h.service.Logout(r.Context()))
	return nil
}

// Lock godoc
// @Summary      Lock the session, keeping the account for the next sign-in
// @Tags         session
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  model.SessionStatus
// @Router       /api/session/lock [post]
func (h *SessionHandler) Lock(w http.ResponseWriter, r *http.Request) *common.AppError {
	status, err := h.service.Lock(r.Context())
	if err != nil {
		return FromServiceError(err, "Could not lock session")
	}
	common.WriteJSON(w, http.StatusOK, status)
	return nil
}
