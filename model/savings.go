package model

import "github.com/shopspring/decimal"

// SavingsSummary is the account overview: tier, yield estimate and
// quick-fill amounts.
type SavingsSummary struct {
	Account        string            `json:"account"`
	Balance        decimal.Decimal   `json:"balance"`
	Level          int               `json:"level"`
	NextLevelAt    *decimal.Decimal  `json:"next_level_at,omitempty"`
	APY            decimal.Decimal   `json:"apy"`
	DailyYield     decimal.Decimal   `json:"daily_yield"`
	DepositPresets []decimal.Decimal `json:"deposit_presets"`
	WithdrawFills  []FillOption      `json:"withdraw_fills"`
}

// FillOption is a quick-fill withdrawal amount as a share of the balance.
type FillOption struct {
	Percent int64           `json:"percent"`
	Amount  decimal.Decimal `json:"amount"`
}
