package service

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/smartpigdefi/smartpig/model"
)

// StableDecimals is the precision of the stable asset (USDC).
const StableDecimals = 6

var bpsDenominator = decimal.NewFromInt(10000)

// ComputeFee returns floor(amount*feeBps)/10000, truncated toward zero so
// the platform never takes more than its share.
func ComputeFee(amount decimal.Decimal, feeBps int64) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(feeBps)).Truncate(0).Div(bpsDenominator)
}

// NetAmount is amount minus fee, never below zero.
func NetAmount(amount, fee decimal.Decimal) decimal.Decimal {
	return decimal.Max(decimal.Zero, amount.Sub(fee))
}

// ToStableAsset converts local currency into stable units at rate. A
// non-positive rate yields zero.
func ToStableAsset(local, rate decimal.Decimal) decimal.Decimal {
	if !rate.IsPositive() {
		return decimal.Zero
	}
	return local.Div(rate).Truncate(StableDecimals)
}

func ToLocal(stable, rate decimal.Decimal) decimal.Decimal {
	return stable.Mul(rate)
}

// NormalizeAmount maps NaN, infinities and negatives to zero.
func NormalizeAmount(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

// ParseAmount reads user input such as "1.234,50" or "100,5". Anything
// unparsable or negative becomes zero.
func ParseAmount(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Quote bundles the fee breakdown of amount and its net stable equivalent.
func Quote(amount decimal.Decimal, feeBps int64, rate decimal.Decimal) model.Quote {
	fee := ComputeFee(amount, feeBps)
	net := NetAmount(amount, fee)
	return model.Quote{
		Amount:    amount,
		FeeBps:    feeBps,
		Fee:       fee,
		Net:       net,
		Rate:      rate,
		StableNet: ToStableAsset(net, rate),
	}
}
