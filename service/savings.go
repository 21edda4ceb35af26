package service

import (
	"github.com/shopspring/decimal"

	"github.com/smartpigdefi/smartpig/model"
)

// Balance thresholds at which the savings pig grows a level.
var levelThresholds = []decimal.Decimal{
	decimal.NewFromInt(500),
	decimal.NewFromInt(2000),
	decimal.NewFromInt(5000),
	decimal.NewFromInt(15000),
}

var depositPresets = []decimal.Decimal{
	decimal.NewFromInt(100),
	decimal.NewFromInt(500),
	decimal.NewFromInt(1000),
	decimal.NewFromInt(5000),
}

var withdrawFillPercents = []int64{25, 50, 75, 100}

var daysPerYear = decimal.NewFromInt(365)

// PigLevel maps a balance to a tier from 1 to 5.
func PigLevel(balance decimal.Decimal) int {
	for i, t := range levelThresholds {
		if balance.LessThan(t) {
			return i + 1
		}
	}
	return len(levelThresholds) + 1
}

// NextLevelThreshold is the balance of the next tier; ok is false at the top.
func NextLevelThreshold(balance decimal.Decimal) (decimal.Decimal, bool) {
	for _, t := range levelThresholds {
		if balance.LessThan(t) {
			return t, true
		}
	}
	return decimal.Zero, false
}

func EstimatedDailyYield(balance, apy decimal.Decimal) decimal.Decimal {
	return balance.Mul(apy).Div(daysPerYear).Round(2)
}

// WithdrawFill is pct percent of balance, rounded down to cents and never
// more than the balance.
func WithdrawFill(balance decimal.Decimal, pct int64) decimal.Decimal {
	if pct <= 0 || !balance.IsPositive() {
		return decimal.Zero
	}
	if pct >= 100 {
		return balance
	}
	return balance.Mul(decimal.NewFromInt(pct)).Div(decimal.NewFromInt(100)).RoundFloor(2)
}

type SavingsService struct {
	ledger AccountLedger
	apy    decimal.Decimal
}

func NewSavingsService(ledger AccountLedger, apy float64) *SavingsService {
	return &SavingsService{ledger: ledger, apy: decimal.NewFromFloat(apy)}
}

func (s *SavingsService) Summary() (*model.SavingsSummary, error) {
	acc, err := s.ledger.CurrentAccount()
	if err != nil {
		return nil, err
	}

	summary := &model.SavingsSummary{
		Account:        acc.MaskedPublicKey(),
		Balance:        acc.Balance,
		Level:          PigLevel(acc.Balance),
		APY:            s.apy,
		DailyYield:     EstimatedDailyYield(acc.Balance, s.apy),
		DepositPresets: depositPresets,
		WithdrawFills:  make([]model.FillOption, 0, len(withdrawFillPercents)),
	}
	for _, pct := range withdrawFillPercents {
		summary.WithdrawFills = append(summary.WithdrawFills, model.FillOption{
			Percent: pct,
			Amount:  WithdrawFill(acc.Balance, pct),
		})
	}
	if next, ok := NextLevelThreshold(acc.Balance); ok {
		summary.NextLevelAt = &next
	}
	return summary, nil
}
