package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementRecord is a journal row for a settled payment.
type SettlementRecord struct {
	ID         int             `json:"id"`
	PaymentID  string          `json:"payment_id"`
	Direction  Direction       `json:"direction"`
	AccountKey string          `json:"account_key"`
	Amount     decimal.Decimal `json:"amount"`
	Reference  string          `json:"reference"`
	SettledAt  time.Time       `json:"settled_at"`
	CreatedAt  time.Time       `json:"created_at"`
}
