package handler

import (
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/smartpigdefi/smartpig/client"
	"github.com/smartpigdefi/smartpig/common"
	"github.com/smartpigdefi/smartpig/logger"
	"github.com/smartpigdefi/smartpig/model"
	"github.com/smartpigdefi/smartpig/service"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// FeeSchedule holds the fee in basis points for each direction.
type FeeSchedule struct {
	DepositBps  int64
	WithdrawBps int64
}

type AccountHandler struct {
	savings *service.SavingsService
	journal *service.JournalService
	rates   client.RateSource
	fees    FeeSchedule
}

// NewAccountHandler builds the read-only account endpoints. journal may be
// nil when no database is configured.
func NewAccountHandler(savings *service.SavingsService, journal *service.JournalService, rates client.RateSource, fees FeeSchedule) *AccountHandler {
	return &AccountHandler{savings: savings, journal: journal, rates: rates, fees: fees}
}

// Quote godoc
// @Summary      Quote the fee and stable-asset value of an amount
// @Tags         account
// @Produce      json
// @Security     BearerAuth
// @Param        amount     query     string  true   "Gross amount in local currency"
// @Param        direction  query     string  false  "deposit or withdraw"  Enums(deposit, withdraw)
// @Success      200        {object}  model.Quote
// @Failure      400        {object}  common.AppError
// @Router       /api/quote [get]
func (h *AccountHandler) Quote(w http.ResponseWriter, r *http.Request) *common.AppError {
	q := r.URL.Query()

	feeBps := h.fees.DepositBps
	switch model.Direction(q.Get("direction")) {
	case "", model.DirectionDeposit:
	case model.DirectionWithdraw:
		feeBps = h.fees.WithdrawBps
	default:
		return &common.AppError{Code: http.StatusBadRequest, Message: "direction must be deposit or withdraw", Field: "direction"}
	}

	amount := service.ParseAmount(q.Get("amount"))
	if !amount.IsPositive() {
		return &common.AppError{Code: http.StatusBadRequest, Message: "enter an amount", Field: "amount"}
	}

	rate, err := h.rates.Rate(r.Context())
	if err != nil {
		return common.NewAppError(http.StatusServiceUnavailable, "Exchange rate unavailable", err)
	}

	common.WriteJSON(w, http.StatusOK, service.Quote(amount, feeBps, rate))
	return nil
}

// Savings godoc
// @Summary      Show the savings tier and estimated yield
// @Tags         account
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  model.SavingsSummary
// @Failure      401  {object}  common.AppError
// @Router       /api/savings [get]
func (h *AccountHandler) Savings(w http.ResponseWriter, r *http.Request) *common.AppError {
	summary, err := h.savings.Summary()
	if err != nil {
		return FromServiceError(err, "Could not load savings summary")
	}
	common.WriteJSON(w, http.StatusOK, summary)
	return nil
}

// History godoc
// @Summary      List settled payments of the signed-in account
// @Tags         account
// @Produce      json
// @Security     BearerAuth
// @Param        limit  query     int  false  "Maximum rows (1-100)"
// @Success      200    {array}   model.SettlementRecord
// @Router       /api/history [get]
func (h *AccountHandler) History(w http.ResponseWriter, r *http.Request) *common.AppError {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			return &common.AppError{Code: http.StatusBadRequest, Message: "limit must be between 1 and 100", Field: "limit"}
		}
		limit = n
	}

	if h.journal == nil {
		common.WriteJSON(w, http.StatusOK, []*model.SettlementRecord{})
		return nil
	}

	accountKey := accountKeyFrom(r)
	records, err := h.journal.History(r.Context(), accountKey, limit)
	if err != nil {
		return common.NewAppError(http.StatusInternalServerError, "Could not retrieve history", err)
	}
	if records == nil {
		records = []*model.SettlementRecord{}
	}

	logger.Log.WithFields(logrus.Fields{
		"account_key": accountKey,
		"count":       len(records),
	}).Debug("History listed")
	common.WriteJSON(w, http.StatusOK, records)
	return nil
}
