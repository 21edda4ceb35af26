package handler

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/smartpigdefi/smartpig/common"
	"github.com/smartpigdefi/smartpig/logger"
	"github.com/smartpigdefi/smartpig/model"
	"github.com/smartpigdefi/smartpig/service"
)

type WithdrawHandler struct {
	service *service.WithdrawService
}

func NewWithdrawHandler(service *service.WithdrawService) *WithdrawHandler {
	return &WithdrawHandler{service: service}
}

// Submit godoc
// @Summary      Validate and quote a PIX withdrawal
// @Tags         withdrawals
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      model.WithdrawRequest  true  "Withdrawal amount and PIX key"
// @Success      201      {object}  model.PaymentView
// @Failure      400      {object}  common.AppError
// @Failure      409      {object}  common.AppError
// @Router       /api/withdrawals [post]
func (h *WithdrawHandler) Submit(w http.ResponseWriter, r *http.Request) *common.AppError {
	var req model.WithdrawRequest
	if appErr := common.ValidateAndDecode(r, &req); appErr != nil {
		return appErr
	}

	amount := service.ParseAmount(req.Amount)
	log := logger.Log.WithFields(logrus.Fields{
		"account_key": accountKeyFrom(r),
		"amount":      amount.String(),
	})
	log.Info("Withdrawal request received")

	view, err := h.service.Submit(r.Context(), amount, req.PixKey)
	if err != nil {
		log.WithError(err).Warn("Withdrawal request rejected")
		return FromServiceError(err, "Could not start withdrawal")
	}

	common.WriteJSON(w, http.StatusCreated, view)
	return nil
}

// Current godoc
// @Summary      Show the withdrawal in progress
// @Tags         withdrawals
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  model.PaymentView
// @Router       /api/withdrawals/current [get]
func (h *WithdrawHandler) Current(w http.ResponseWriter, r *http.Request) *common.AppError {
	common.WriteJSON(w, http.StatusOK, h.service.Current())
	return nil
}

// Confirm godoc
// @Summary      Confirm the quoted withdrawal and process it
// @Description  Blocks until the withdrawal settles or fails. Progress is also streamed on /ws.
// @Tags         withdrawals
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  model.PaymentView
// @Failure      409  {object}  common.AppError
// @Router       /api/withdrawals/confirm [post]
func (h *WithdrawHandler) Confirm(w http.ResponseWriter, r *http.Request) *common.AppError {
	logger.Log.WithField("account_key", accountKeyFrom(r)).Info("Withdrawal confirmed")

	// A client that disconnects must not abort a transfer half way.
	view, err := h.service.Confirm(context.WithoutCancel(r.Context()))
	if err != nil {
		return FromServiceError(err, "Could not process withdrawal")
	}
	common.WriteJSON(w, http.StatusOK, view)
	return nil
}

// Cancel godoc
// @Summary      Cancel a withdrawal that has not started processing
// @Tags         withdrawals
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  model.PaymentView
// @Failure      409  {object}  common.AppError
// @Router       /api/withdrawals/cancel [post]
func (h *WithdrawHandler) Cancel(w http.ResponseWriter, r *http.Request) *common.AppError {
	view, err := h.service.Cancel()
	if err != nil {
		return FromServiceError(err, "Could not cancel withdrawal")
	}
	common.WriteJSON(w, http.StatusOK, view)
	return nil
}

// Reset godoc
// @Summary      Clear a finished withdrawal
// @Tags         withdrawals
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  model.PaymentView
// @Failure      409  {object}  common.AppError
// @Router       /api/withdrawals/reset [post]
func (h *WithdrawHandler) Reset(w http.ResponseWriter, r *http.Request) *common.AppError {
	view, err := h.service.Reset()
	if err != nil {
		return FromServiceError(err, "Could not reset withdrawal")
	}
	common.WriteJSON(w, http.StatusOK, view)
	return nil
}
