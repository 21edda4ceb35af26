package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/smartpigdefi/smartpig/credential"
	"github.com/smartpigdefi/smartpig/model"
	"github.com/smartpigdefi/smartpig/repository"
)

func TestPaymentSlot(t *testing.T) {
	slot := NewPaymentSlot()
	a, b := uuid.New(), uuid.New()

	require.NoError(t, slot.Acquire(a, model.DirectionDeposit))
	require.NoError(t, slot.Acquire(a, model.DirectionDeposit))
	assert.ErrorIs(t, slot.Acquire(b, model.DirectionWithdraw), ErrPaymentActive)

	slot.Release(b)
	id, dir, active := slot.Active()
	assert.True(t, active)
	assert.Equal(t, a, id)
	assert.Equal(t, model.DirectionDeposit, dir)

	slot.Release(a)
	assert.NoError(t, slot.Acquire(b, model.DirectionWithdraw))
}

func TestEventBus(t *testing.T) {
	bus := NewEventBus()
	events, unsubscribe := bus.Subscribe(1)

	bus.Publish(Event{Type: EventSession, Step: "authenticated"})
	bus.Publish(Event{Type: EventSession, Step: "dropped"})

	ev := <-events
	assert.Equal(t, "authenticated", ev.Step)
	assert.False(t, ev.At.IsZero())

	unsubscribe()
	unsubscribe()
	_, open := <-events
	assert.False(t, open)

	var nilBus *EventBus
	assert.NotPanics(t, func() { nilBus.Publish(Event{}) })
}

func TestSolanaAccountDeriver(t *testing.T) {
	d := NewSolanaAccountDeriver()
	cred := &credential.Credential{ID: "c", RawID: []byte("0123456789abcdef")}

	a, err := d.Derive(cred)
	require.NoError(t, err)
	b, err := d.Derive(cred)
	require.NoError(t, err)

	assert.NotEqual(t, a.PublicKey, b.PublicKey, "every registration gets a fresh identity")
	assert.True(t, a.Balance.IsZero())
	assert.GreaterOrEqual(t, len(a.ContractID), 32)

	_, err = d.Derive(&credential.Credential{})
	assert.Error(t, err)
}

func TestSavings(t *testing.T) {
	levels := map[string]int{"0": 1, "499.99": 1, "500": 2, "1999": 2, "2000": 3, "4999": 3, "5000": 4, "14999.99": 4, "15000": 5, "100000": 5}
	for balance, want := range levels {
		assert.Equal(t, want, PigLevel(decimal.RequireFromString(balance)), "balance %s", balance)
	}

	next, ok := NextLevelThreshold(decimal.NewFromInt(600))
	assert.True(t, ok)
	assert.Equal(t, "2000", next.String())
	_, ok = NextLevelThreshold(decimal.NewFromInt(20000))
	assert.False(t, ok)

	assert.Equal(t, "1.92", EstimatedDailyYield(decimal.NewFromInt(10000), decimal.RequireFromString("0.07")).String())

	assert.Equal(t, "37.5", WithdrawFill(decimal.NewFromInt(150), 25).String())
	assert.Equal(t, "150", WithdrawFill(decimal.NewFromInt(150), 120).String())
	assert.True(t, WithdrawFill(decimal.NewFromInt(150), 0).IsZero())
	assert.Equal(t, "0.33", WithdrawFill(decimal.RequireFromString("0.67"), 50).String())
}

func TestSavingsService_Summary(t *testing.T) {
	ledger := new(mockLedger)
	ledger.On("CurrentAccount").Return(testAccount(2500), nil).Once()
	ledger.On("CurrentAccount").Return(nil, ErrNotAuthenticated).Once()
	svc := NewSavingsService(ledger, 0.07)

	summary, err := svc.Summary()
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Level)
	assert.Equal(t, "5000", summary.NextLevelAt.String())
	assert.Equal(t, "7YttLk…j2G5", summary.Account)
	assert.Len(t, summary.DepositPresets, 4)

	require.Len(t, summary.WithdrawFills, 4)
	for i, want := range []struct {
		pct    int64
		amount string
	}{{25, "625"}, {50, "1250"}, {75, "1875"}, {100, "2500"}} {
		assert.Equal(t, want.pct, summary.WithdrawFills[i].Percent)
		assert.Equal(t, want.amount, summary.WithdrawFills[i].Amount.String())
	}

	_, err = svc.Summary()
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

type mockSettlementRepo struct{ mock.Mock }

func (m *mockSettlementRepo) Record(ctx context.Context, ev *model.SettlementEvent) (*model.SettlementRecord, error) {
	args := m.Called(ctx, ev)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SettlementRecord), args.Error(1)
}

func (m *mockSettlementRepo) ListByAccount(ctx context.Context, accountKey string, limit int) ([]*model.SettlementRecord, error) {
	args := m.Called(ctx, accountKey, limit)
	return args.Get(0).([]*model.SettlementRecord), args.Error(1)
}

func TestJournalService_RecordsSettlements(t *testing.T) {
	repo := new(mockSettlementRepo)
	bus := NewEventBus()
	journal := NewJournalService(repo, bus)

	recorded := make(chan string, 2)
	repo.On("Record", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			recorded <- args.Get(1).(*model.SettlementEvent).Reference
		}).
		Return(&model.SettlementRecord{ID: 1}, nil).Once()
	repo.On("Record", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			recorded <- "duplicate"
		}).
		Return(nil, repository.ErrAlreadyRecorded).Once()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go journal.Run(ctx)

	// Wait until the journal has subscribed.
	require.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.subs) == 1
	}, time.Second, 5*time.Millisecond)

	bus.Publish(Event{Type: EventTransition, Step: "processing"})
	bus.Publish(Event{Type: EventSettled, Data: model.SettlementEvent{Reference: "tx-1"}})
	bus.Publish(Event{Type: EventSettled, Data: model.SettlementEvent{Reference: "tx-1"}})

	assert.Equal(t, "tx-1", <-recorded)
	assert.Equal(t, "duplicate", <-recorded)
	repo.AssertExpectations(t)
}

func TestJournalService_History(t *testing.T) {
	repo := new(mockSettlementRepo)
	repo.On("ListByAccount", mock.Anything, "GABC", 20).Return([]*model.SettlementRecord{{ID: 1}}, nil).Once()
	repo.On("ListByAccount", mock.Anything, "GABC", 5).Return([]*model.SettlementRecord{}, errors.New("db down")).Once()
	journal := NewJournalService(repo, NewEventBus())

	records, err := journal.History(context.Background(), "GABC", 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	_, err = journal.History(context.Background(), "GABC", 5)
	assert.Error(t, err)
}
