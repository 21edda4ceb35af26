package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/smartpigdefi/smartpig/client"
	"github.com/smartpigdefi/smartpig/model"
)

const testAccountKey = "7YttLkHDoNj9wyDur5pM1ejNaAvT9X4eqaYcHQqtj2G5"

// mockSettlement is a mock implementation of client.SettlementService.
type mockSettlement struct{ mock.Mock }

func (m *mockSettlement) CreateDeposit(ctx context.Context, req client.CreateDepositRequest) (*client.CreateDepositResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*client.CreateDepositResult), args.Error(1)
}

func (m *mockSettlement) GetDepositStatus(ctx context.Context, reference string) (*client.DepositStatusResult, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*client.DepositStatusResult), args.Error(1)
}

func (m *mockSettlement) CreateWithdrawal(ctx context.Context, req client.CreateWithdrawalRequest) (*client.CreateWithdrawalResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*client.CreateWithdrawalResult), args.Error(1)
}

// mockLedger is a mock implementation of AccountLedger.
type mockLedger struct{ mock.Mock }

func (m *mockLedger) CurrentAccount() (*model.Account, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *mockLedger) Credit(ctx context.Context, accountKey string, amount decimal.Decimal) (*model.Account, error) {
	args := m.Called(ctx, accountKey, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *mockLedger) Debit(ctx context.Context, accountKey string, amount decimal.Decimal) (*model.Account, error) {
	args := m.Called(ctx, accountKey, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

// mockSessionStore is a mock implementation of repository.ISessionStore.
type mockSessionStore struct{ mock.Mock }

func (m *mockSessionStore) Save(ctx context.Context, snap *model.SessionSnapshot) error {
	return m.Called(ctx, snap).Error(0)
}

func (m *mockSessionStore) Load(ctx context.Context) (*model.SessionSnapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SessionSnapshot), args.Error(1)
}

func (m *mockSessionStore) Clear(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func testAccount(balance int64) *model.Account {
	return &model.Account{
		PublicKey:  testAccountKey,
		ContractID: "3Nf2wPB9mQ7sVfcXUz7k1hDa8xYtRUj5qLbZe4CwHnKd",
		Balance:    decimal.NewFromInt(balance),
	}
}

func decimalEq(want string) interface{} {
	w := decimal.RequireFromString(want)
	return mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(w) })
}
