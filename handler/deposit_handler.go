package handler

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/smartpigdefi/smartpig/common"
	"github.com/smartpigdefi/smartpig/logger"
	"github.com/smartpigdefi/smartpig/model"
	"github.com/smartpigdefi/smartpig/service"
)

type DepositHandler struct {
	service *service.DepositService
}

func NewDepositHandler(service *service.DepositService) *DepositHandler {
	return &DepositHandler{service: service}
}

// Submit godoc
// @Summary      Start a PIX deposit
// @Tags         deposits
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      model.DepositRequest  true  "Deposit amount"
// @Success      201      {object}  model.PaymentView
// @Failure      400      {object}  common.AppError
// @Failure      409      {object}  common.AppError
// @Router       /api/deposits [post]
func (h *DepositHandler) Submit(w http.ResponseWriter, r *http.Request) *common.AppError {
	var req model.DepositRequest
	if appErr := common.ValidateAndDecode(r, &req); appErr != nil {
		return appErr
	}

	amount := service.ParseAmount(req.Amount)
	log := logger.Log.WithFields(logrus.Fields{
		"account_key": accountKeyFrom(r),
		"amount":      amount.String(),
	})
	log.Info("Deposit request received")

	view, err := h.service.Submit(r.Context(), amount)
	if err != nil {
		log.WithError(err).Warn("Deposit request rejected")
		return FromServiceError(err, "Could not start deposit")
	}

	common.WriteJSON(w, http.StatusCreated, view)
	return nil
}

// Current godoc
// @Summary      Show the deposit in progress
// @Tags         deposits
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  model.PaymentView
// @Router       /api/deposits/current [get]
func (h *DepositHandler) Current(w http.ResponseWriter, r *http.Request) *common.AppError {
	common.WriteJSON(w, http.StatusOK, h.service.Current())
	return nil
}

// ConfirmPaid godoc
// @Summary      Report that the PIX payment was made
// @Tags         deposits
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  model.PaymentView
// @Failure      409  {object}  common.AppError
// @Router       /api/deposits/confirm [post]
func (h *DepositHandler) ConfirmPaid(w http.ResponseWriter, r *http.Request) *common.AppError {
	return h.respond(w, "confirm", h.service.ConfirmPaid)
}

// BackToInstrument godoc
// @Summary      Return to the payment instrument
// @Tags         deposits
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  model.PaymentView
// @Failure      409  {object}  common.AppError
// @Router       /api/deposits/back [post]
func (h *DepositHandler) BackToInstrument(w http.ResponseWriter, r *http.Request) *common.AppError {
	return h.respond(w, "back", h.service.BackToInstrument)
}

// Cancel godoc
// @Summary      Cancel the deposit in progress
// @Tags         deposits
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  model.PaymentView
// @Failure      404  {object}  common.AppError
// @Router       /api/deposits/cancel [post]
func (h *DepositHandler) Cancel(w http.ResponseWriter, r *http.Request) *common.AppError {
	return h.respond(w, "cancel", h.service.Cancel)
}

// Reset godoc
// @Summary      Clear a finished deposit
// @Tags         deposits
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  model.PaymentView
// @Failure      409  {object}  common.AppError
// @Router       /api/deposits/reset [post]
func (h *DepositHandler) Reset(w http.ResponseWriter, r *http.Request) *common.AppError {
	return h.respond(w, "reset", h.service.Reset)
}

func (h *DepositHandler) respond(w http.ResponseWriter, op string, fn func() (model.PaymentView, error)) *common.AppError {
	view, err := fn()
	if err != nil {
		logger.Log.WithFields(logrus.Fields{
			"operation": op,
			"step":      view.Step,
		}).WithError(err).Warn("Deposit operation rejected")
		return FromServiceError(err, "Could not update deposit")
	}
	common.WriteJSON(w, http.StatusOK, view)
	return nil
}
