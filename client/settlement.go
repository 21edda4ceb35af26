package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrValidation         = errors.New("settlement request rejected")
	ErrServiceUnavailable = errors.New("settlement service unavailable")
)

// DepositStatus is the rail's view of a pending deposit.
type DepositStatus string

const (
	StatusPending   DepositStatus = "pending"
	StatusCompleted DepositStatus = "completed"
	StatusError     DepositStatus = "error"
)

// SettlementService is the external rail that creates and settles payments.
type SettlementService interface {
	CreateDeposit(ctx context.Context, req CreateDepositRequest) (*CreateDepositResult, error)
	GetDepositStatus(ctx context.Context, reference string) (*DepositStatusResult, error)
	CreateWithdrawal(ctx context.Context, req CreateWithdrawalRequest) (*CreateWithdrawalResult, error)
}

type CreateDepositRequest struct {
	AccountKey     string
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string
}

// CreateDepositResult carries the instrument for a new deposit. When
// InfoNeeded is set the rail wants more customer data first and only
// Reference and InteractiveURL are meaningful.
type CreateDepositResult struct {
	Reference      string
	Code           string
	ScanPayload    string
	InteractiveURL string
	ExpiresAt      time.Time
	InfoNeeded     bool
}

type DepositStatusResult struct {
	Status              DepositStatus
	SettlementReference string
}

type CreateWithdrawalRequest struct {
	AccountKey     string
	Amount         decimal.Decimal
	Destination    string
	Intent         string
	IdempotencyKey string
}

type CreateWithdrawalResult struct {
	Reference string
}

// ServiceError keeps the rail's message next to the error class.
type ServiceError struct {
	Kind       error
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Kind
}
