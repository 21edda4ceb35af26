package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionDeposit  Direction = "deposit"
	DirectionWithdraw Direction = "withdraw"
)

// PendingPayment is one deposit or withdrawal in flight. Lifecycle state is
// held next to it by the owning machine.
type PendingPayment struct {
	ID          uuid.UUID       `json:"id"`
	Direction   Direction       `json:"direction"`
	AccountKey  string          `json:"account_key"`
	Amount      decimal.Decimal `json:"amount"`
	Fee         decimal.Decimal `json:"fee"`
	Net         decimal.Decimal `json:"net"`
	Destination string          `json:"destination,omitempty"`
	ExpiresAt   time.Time       `json:"expires_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Instrument is the rail's representation of a pending deposit.
type Instrument struct {
	Reference      string    `json:"reference"`
	Code           string    `json:"code,omitempty"`
	ScanPayload    string    `json:"scan_payload,omitempty"`
	InteractiveURL string    `json:"interactive_url,omitempty"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Quote is a fee-adjusted breakdown of a gross local amount.
type Quote struct {
	Amount    decimal.Decimal `json:"amount"`
	FeeBps    int64           `json:"fee_bps"`
	Fee       decimal.Decimal `json:"fee"`
	Net       decimal.Decimal `json:"net"`
	Rate      decimal.Decimal `json:"rate"`
	StableNet decimal.Decimal `json:"stable_net"`
}

// SettlementEvent is emitted once when a payment settles.
type SettlementEvent struct {
	PaymentID  uuid.UUID       `json:"payment_id"`
	Direction  Direction       `json:"direction"`
	AccountKey string          `json:"account_key"`
	Amount     decimal.Decimal `json:"amount"`
	Reference  string          `json:"reference"`
	SettledAt  time.Time       `json:"settled_at"`
}
