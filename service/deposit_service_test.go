package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/smartpigdefi/smartpig/client"
	"github.com/smartpigdefi/smartpig/common"
	"github.com/smartpigdefi/smartpig/model"
)

var depositNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func newTestDepositService(rail *mockSettlement, ledger *mockLedger, slot *PaymentSlot) *DepositService {
	svc := NewDepositService(DepositConfig{
		Minimum:       decimal.NewFromInt(10),
		Currency:      "BRL",
		PollInterval:  time.Hour,
		DefaultExpiry: 15 * time.Minute,
	}, rail, ledger, slot, NewEventBus())
	svc.now = func() time.Time { return depositNow }
	svc.autoTick = false
	return svc
}

func instrumentResult() *client.CreateDepositResult {
	return &client.CreateDepositResult{Reference: "dep-1", Code: "00020126580014br.gov.bcb.pix"}
}

// startPending submits 100 and confirms payment.
func startPending(t *testing.T, svc *DepositService, rail *mockSettlement) {
	t.Helper()
	rail.On("CreateDeposit", mock.Anything, mock.Anything).Return(instrumentResult(), nil).Once()
	view, err := svc.Submit(context.Background(), decimal.NewFromInt(100))
	require.NoError(t, err)
	require.Equal(t, model.StepAwaitingInstrument, view.Step)
	view, err = svc.ConfirmPaid()
	require.NoError(t, err)
	require.Equal(t, model.StepPendingSettlement, view.Step)
}

func TestDepositService_Submit(t *testing.T) {
	t.Run("below minimum stays in amount entry", func(t *testing.T) {
		rail, ledger := new(mockSettlement), new(mockLedger)
		ledger.On("CurrentAccount").Return(testAccount(0), nil)
		svc := newTestDepositService(rail, ledger, NewPaymentSlot())

		view, err := svc.Submit(context.Background(), decimal.RequireFromString("9.99"))

		var verr *common.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "amount", verr.Field)
		assert.Equal(t, model.StepAmountEntry, view.Step)
		rail.AssertNotCalled(t, "CreateDeposit", mock.Anything, mock.Anything)
	})

	t.Run("requires authentication", func(t *testing.T) {
		rail, ledger := new(mockSettlement), new(mockLedger)
		ledger.On("CurrentAccount").Return(nil, ErrNotAuthenticated)
		svc := newTestDepositService(rail, ledger, NewPaymentSlot())

		_, err := svc.Submit(context.Background(), decimal.NewFromInt(100))
		assert.ErrorIs(t, err, ErrNotAuthenticated)
	})

	t.Run("rail failure fails the payment", func(t *testing.T) {
		rail, ledger := new(mockSettlement), new(mockLedger)
		ledger.On("CurrentAccount").Return(testAccount(0), nil)
		rail.On("CreateDeposit", mock.Anything, mock.Anything).
			Return(nil, &client.ServiceError{Kind: client.ErrServiceUnavailable, Message: "anchor down"}).Once()
		slot := NewPaymentSlot()
		svc := newTestDepositService(rail, ledger, slot)

		view, err := svc.Submit(context.Background(), decimal.NewFromInt(100))
		require.NoError(t, err)
		assert.Equal(t, model.StepFailed, view.Step)
		assert.Contains(t, view.Reason, "anchor down")
		_, _, active := slot.Active()
		assert.False(t, active)

		// Retry starts a new payment.
		rail.On("CreateDeposit", mock.Anything, mock.Anything).Return(instrumentResult(), nil).Once()
		retry, err := svc.Submit(context.Background(), decimal.NewFromInt(100))
		require.NoError(t, err)
		assert.Equal(t, model.StepAwaitingInstrument, retry.Step)
		assert.NotEqual(t, view.Payment.ID, retry.Payment.ID)
	})

	t.Run("additional info needed waits for the customer", func(t *testing.T) {
		rail, ledger := new(mockSettlement), new(mockLedger)
		ledger.On("CurrentAccount").Return(testAccount(0), nil)
		rail.On("CreateDeposit", mock.Anything, mock.Anything).Return(&client.CreateDepositResult{
			Reference:      "dep-2",
			InteractiveURL: "https://anchor/kyc",
			InfoNeeded:     true,
		}, nil).Once()
		svc := newTestDepositService(rail, ledger, NewPaymentSlot())

		view, err := svc.Submit(context.Background(), decimal.NewFromInt(100))
		require.NoError(t, err)
		assert.Equal(t, model.StepAwaitingCustomerInfo, view.Step)
		assert.Equal(t, "https://anchor/kyc", view.Instrument.InteractiveURL)

		_, err = svc.ConfirmPaid()
		assert.ErrorIs(t, err, ErrInvalidTransition)

		view, err = svc.Cancel()
		require.NoError(t, err)
		assert.Equal(t, model.StepCancelled, view.Step)
	})
}

func TestDepositService_RapidDoubleSubmit(t *testing.T) {
	rail, ledger := new(mockSettlement), new(mockLedger)
	ledger.On("CurrentAccount").Return(testAccount(0), nil)
	release := make(chan time.Time)
	rail.On("CreateDeposit", mock.Anything, mock.Anything).WaitUntil(release).Return(instrumentResult(), nil).Once()
	svc := newTestDepositService(rail, ledger, NewPaymentSlot())

	done := make(chan model.PaymentView)
	go func() {
		view, _ := svc.Submit(context.Background(), decimal.NewFromInt(100))
		done <- view
	}()

	require.Eventually(t, func() bool {
		return svc.Current().Step == model.StepSubmitting
	}, time.Second, 5*time.Millisecond)

	_, err := svc.Submit(context.Background(), decimal.NewFromInt(200))
	assert.ErrorIs(t, err, ErrSubmissionInFlight)

	close(release)
	first := <-done
	assert.Equal(t, model.StepAwaitingInstrument, first.Step)
	assert.True(t, decimal.NewFromInt(100).Equal(svc.Current().Payment.Amount))
	rail.AssertNumberOfCalls(t, "CreateDeposit", 1)

	_, err = svc.Submit(context.Background(), decimal.NewFromInt(200))
	assert.ErrorIs(t, err, ErrPaymentActive)
}

func TestDepositService_ExpiresWithoutConfirmation(t *testing.T) {
	rail, ledger := new(mockSettlement), new(mockLedger)
	ledger.On("CurrentAccount").Return(testAccount(0), nil)
	rail.On("CreateDeposit", mock.Anything, mock.MatchedBy(func(req client.CreateDepositRequest) bool {
		return req.AccountKey == testAccountKey && req.Currency == "BRL" && req.Amount.Equal(decimal.NewFromInt(100)) && req.IdempotencyKey != ""
	})).Return(instrumentResult(), nil).Once()
	slot := NewPaymentSlot()
	svc := newTestDepositService(rail, ledger, slot)

	view, err := svc.Submit(context.Background(), decimal.NewFromInt(100))
	require.NoError(t, err)
	require.Equal(t, model.StepAwaitingInstrument, view.Step)
	assert.Equal(t, depositNow.Add(900*time.Second), view.Payment.ExpiresAt)
	assert.Equal(t, int64(900), view.RemainingSeconds)
	assert.Equal(t, "15:00", view.Countdown)
	assert.NotEmpty(t, view.Instrument.ScanPayload, "QR code generated from the copy-paste code")

	view = svc.Tick(depositNow.Add(899 * time.Second))
	assert.Equal(t, model.StepAwaitingInstrument, view.Step)
	assert.Equal(t, "0:01", view.Countdown)

	view = svc.Tick(depositNow.Add(900 * time.Second))
	assert.Equal(t, model.StepExpired, view.Step)

	_, _, active := slot.Active()
	assert.False(t, active)
	ledger.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything, mock.Anything)
}

func TestDepositService_SettlesAfterPolling(t *testing.T) {
	rail, ledger := new(mockSettlement), new(mockLedger)
	ledger.On("CurrentAccount").Return(testAccount(0), nil)
	ledger.On("Credit", mock.Anything, testAccountKey, decimalEq("100")).Return(testAccount(100), nil).Once()
	rail.On("GetDepositStatus", mock.Anything, "dep-1").Return(&client.DepositStatusResult{Status: client.StatusPending}, nil).Once()
	rail.On("GetDepositStatus", mock.Anything, "dep-1").Return(nil, errors.New("timeout")).Once()
	rail.On("GetDepositStatus", mock.Anything, "dep-1").
		Return(&client.DepositStatusResult{Status: client.StatusCompleted, SettlementReference: "tx-9"}, nil)

	svc := newTestDepositService(rail, ledger, NewPaymentSlot())
	svc.cfg.PollInterval = 10 * time.Millisecond
	events, unsubscribe := svc.bus.Subscribe(32)
	defer unsubscribe()

	startPending(t, svc, rail)

	require.Eventually(t, func() bool {
		return svc.Current().Step == model.StepSettled
	}, 2*time.Second, 5*time.Millisecond)

	view := svc.Current()
	require.NotNil(t, view.Settlement)
	assert.Equal(t, "tx-9", view.Settlement.Reference)
	assert.True(t, decimal.NewFromInt(100).Equal(view.Settlement.Amount))

	time.Sleep(50 * time.Millisecond)
	ledger.AssertNumberOfCalls(t, "Credit", 1)

	var settled int
	for len(events) > 0 {
		if ev := <-events; ev.Type == EventSettled {
			settled++
		}
	}
	assert.Equal(t, 1, settled)
}

func TestDepositService_DuplicateCompletedCreditsOnce(t *testing.T) {
	rail, ledger := new(mockSettlement), new(mockLedger)
	ledger.On("CurrentAccount").Return(testAccount(0), nil)
	ledger.On("Credit", mock.Anything, testAccountKey, decimalEq("100")).Return(testAccount(100), nil)
	release := make(chan time.Time)
	rail.On("GetDepositStatus", mock.Anything, "dep-1").WaitUntil(release).
		Return(&client.DepositStatusResult{Status: client.StatusCompleted, SettlementReference: "tx-1"}, nil)

	svc := newTestDepositService(rail, ledger, NewPaymentSlot())
	startPending(t, svc, rail)

	svc.mu.Lock()
	run := svc.run
	svc.mu.Unlock()

	// The poller's immediate poll plus two late duplicates.
	finished := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		go func() {
			svc.pollOnce(run.ctx, run)
			finished <- struct{}{}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	<-finished
	<-finished

	assert.Equal(t, model.StepSettled, svc.Current().Step)
	ledger.AssertNumberOfCalls(t, "Credit", 1)
}

func TestDepositService_ExpiryBeatsPendingPoll(t *testing.T) {
	rail, ledger := new(mockSettlement), new(mockLedger)
	ledger.On("CurrentAccount").Return(testAccount(0), nil)
	release := make(chan time.Time)
	rail.On("GetDepositStatus", mock.Anything, "dep-1").WaitUntil(release).
		Return(&client.DepositStatusResult{Status: client.StatusCompleted}, nil)

	svc := newTestDepositService(rail, ledger, NewPaymentSlot())
	startPending(t, svc, rail)

	// Let the immediate poll reach the rail.
	time.Sleep(20 * time.Millisecond)

	view := svc.Tick(depositNow.Add(15 * time.Minute))
	assert.Equal(t, model.StepExpired, view.Step)

	close(release)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, model.StepExpired, svc.Current().Step)
	ledger.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything, mock.Anything)
}

func TestDepositService_RailReportsError(t *testing.T) {
	rail, ledger := new(mockSettlement), new(mockLedger)
	ledger.On("CurrentAccount").Return(testAccount(0), nil)
	rail.On("GetDepositStatus", mock.Anything, "dep-1").Return(&client.DepositStatusResult{Status: client.StatusError}, nil)

	svc := newTestDepositService(rail, ledger, NewPaymentSlot())
	startPending(t, svc, rail)

	require.Eventually(t, func() bool {
		return svc.Current().Step == model.StepFailed
	}, time.Second, 5*time.Millisecond)
	ledger.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything, mock.Anything)
}

func TestDepositService_CancelDiscardsLateCreation(t *testing.T) {
	rail, ledger := new(mockSettlement), new(mockLedger)
	ledger.On("CurrentAccount").Return(testAccount(0), nil)
	release := make(chan time.Time)
	rail.On("CreateDeposit", mock.Anything, mock.Anything).WaitUntil(release).Return(instrumentResult(), nil).Once()
	slot := NewPaymentSlot()
	svc := newTestDepositService(rail, ledger, slot)

	done := make(chan model.PaymentView)
	go func() {
		view, _ := svc.Submit(context.Background(), decimal.NewFromInt(100))
		done <- view
	}()
	require.Eventually(t, func() bool {
		return svc.Current().Step == model.StepSubmitting
	}, time.Second, 5*time.Millisecond)

	view, err := svc.Cancel()
	require.NoError(t, err)
	assert.Equal(t, model.StepCancelled, view.Step)

	close(release)
	late := <-done
	assert.Equal(t, model.StepCancelled, late.Step)
	_, _, active := slot.Active()
	assert.False(t, active)
}

func TestDepositService_BackResetAndDispose(t *testing.T) {
	rail, ledger := new(mockSettlement), new(mockLedger)
	ledger.On("CurrentAccount").Return(testAccount(0), nil)
	rail.On("GetDepositStatus", mock.Anything, "dep-1").Return(&client.DepositStatusResult{Status: client.StatusPending}, nil)
	slot := NewPaymentSlot()
	svc := newTestDepositService(rail, ledger, slot)

	startPending(t, svc, rail)

	view, err := svc.BackToInstrument()
	require.NoError(t, err)
	assert.Equal(t, model.StepAwaitingInstrument, view.Step)
	_, err = svc.BackToInstrument()
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Reset()
	assert.ErrorIs(t, err, ErrInvalidTransition)

	svc.Dispose(context.Background())
	assert.Equal(t, model.StepAmountEntry, svc.Current().Step)
	_, _, active := slot.Active()
	assert.False(t, active)

	_, err = svc.Cancel()
	assert.ErrorIs(t, err, ErrNoActivePayment)
}

func TestDepositService_CountdownExpiresWhilePolling(t *testing.T) {
	rail, ledger := new(mockSettlement), new(mockLedger)
	ledger.On("CurrentAccount").Return(testAccount(0), nil)
	svc := newTestDepositService(rail, ledger, NewPaymentSlot())
	svc.now = time.Now
	svc.autoTick = true
	svc.cfg.PollInterval = 50 * time.Millisecond

	rail.On("CreateDeposit", mock.Anything, mock.Anything).Return(&client.CreateDepositResult{
		Reference: "dep-1",
		Code:      "00020126580014br.gov.bcb.pix",
		ExpiresAt: time.Now().Add(2500 * time.Millisecond),
	}, nil).Once()
	var polls atomic.Int32
	rail.On("GetDepositStatus", mock.Anything, "dep-1").
		Run(func(mock.Arguments) { polls.Add(1) }).
		Return(&client.DepositStatusResult{Status: client.StatusPending}, nil)

	view, err := svc.Submit(context.Background(), decimal.NewFromInt(100))
	require.NoError(t, err)
	require.Equal(t, model.StepAwaitingInstrument, view.Step)
	assert.Equal(t, int64(2), view.RemainingSeconds)

	view, err = svc.ConfirmPaid()
	require.NoError(t, err)
	require.Equal(t, model.StepPendingSettlement, view.Step)

	require.Eventually(t, func() bool {
		v := svc.Current()
		return v.Step == model.StepPendingSettlement && v.RemainingSeconds == 1
	}, 2*time.Second, 10*time.Millisecond, "countdown ticks down to one second")

	require.Eventually(t, func() bool {
		return svc.Current().Step == model.StepExpired
	}, 3*time.Second, 10*time.Millisecond)
	assert.Positive(t, polls.Load())

	// Let an in-flight poll drain, then polling must stay stopped.
	time.Sleep(100 * time.Millisecond)
	settled := polls.Load()
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, settled, polls.Load())
	assert.Equal(t, model.StepExpired, svc.Current().Step)
}
