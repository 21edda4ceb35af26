package handler

import (
	"errors"
	"net/http"

	"github.com/smartpigdefi/smartpig/client"
	"github.com/smartpigdefi/smartpig/common"
	"github.com/smartpigdefi/smartpig/credential"
	"github.com/smartpigdefi/smartpig/service"
)

func ErrorHandlingMiddleware(next func(http.ResponseWriter, *http.Request) *common.AppError) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := next(w, r); err != nil {
			err.Send(w)
		}
	}
}

// FromServiceError maps an error returned by the service layer to the
// HTTP error sent to the caller. Unknown errors become a 500 with fallback
// as the message.
func FromServiceError(err error, fallback string) *common.AppError {
	var verr *common.ValidationError
	if errors.As(err, &verr) {
		return &common.AppError{Code: http.StatusBadRequest, Message: verr.Message, Field: verr.Field}
	}

	switch {
	case errors.Is(err, service.ErrNotAuthenticated),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrCredentialRejected):
		return common.NewAppError(http.StatusUnauthorized, err.Error(), nil)
	case errors.Is(err, service.ErrPaymentActive),
		errors.Is(err, service.ErrSubmissionInFlight),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrCancelNotAllowed),
		errors.Is(err, service.ErrAuthInProgress),
		errors.Is(err, service.ErrAlreadyAuthenticated),
		errors.Is(err, service.ErrSessionChanged),
		errors.Is(err, service.ErrAccountChanged):
		return common.NewAppError(http.StatusConflict, err.Error(), nil)
	case errors.Is(err, service.ErrNoActivePayment),
		errors.Is(err, service.ErrAccountNotFound),
		errors.Is(err, credential.ErrNotFound):
		return common.NewAppError(http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, service.ErrInsufficientFunds):
		return common.NewAppError(http.StatusUnprocessableEntity, err.Error(), nil)
	case errors.Is(err, service.ErrCapabilityUnavailable),
		errors.Is(err, credential.ErrNotSupported):
		return common.NewAppError(http.StatusUnprocessableEntity, service.ErrCapabilityUnavailable.Error(), nil)
	case errors.Is(err, credential.ErrUserCancelled):
		return common.NewAppError(http.StatusBadRequest, "The request was cancelled", nil)
	case errors.Is(err, client.ErrValidation):
		return common.NewAppError(http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, client.ErrServiceUnavailable):
		return common.NewAppError(http.StatusServiceUnavailable, "Settlement service unavailable", err)
	}
	return common.NewAppError(http.StatusInternalServerError, fallback, err)
}
