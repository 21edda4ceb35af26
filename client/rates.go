package client

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/smartpigdefi/smartpig/logger"
)

// RateSource quotes how many local currency units one stable unit buys.
type RateSource interface {
	Rate(ctx context.Context) (decimal.Decimal, error)
}

// FixedRate always returns the same rate.
type FixedRate struct {
	Value decimal.Decimal
}

func NewFixedRate(value float64) FixedRate {
	return FixedRate{Value: decimal.NewFromFloat(value)}
}

func (f FixedRate) Rate(_ context.Context) (decimal.Decimal, error) {
	return f.Value, nil
}

// RateWithFallback asks Primary first and answers with Fallback when the
// primary fails or returns a non-positive rate.
type RateWithFallback struct {
	Primary  RateSource
	Fallback FixedRate
}

func (r RateWithFallback) Rate(ctx context.Context) (decimal.Decimal, error) {
	if r.Primary == nil {
		return r.Fallback.Value, nil
	}
	rate, err := r.Primary.Rate(ctx)
	if err != nil {
		logger.Log.WithError(err).Warn("Live rate unavailable, using fallback")
		return r.Fallback.Value, nil
	}
	if !rate.IsPositive() {
		logger.Log.WithField("rate", rate.String()).Warn("Live rate not positive, using fallback")
		return r.Fallback.Value, nil
	}
	return rate, nil
}
