package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/smartpigdefi/smartpig/client"
	"github.com/smartpigdefi/smartpig/common"
	"github.com/smartpigdefi/smartpig/logger"
	"github.com/smartpigdefi/smartpig/model"
)

const countdownInterval = time.Second

type DepositConfig struct {
	Minimum       decimal.Decimal
	FeeBps        int64
	Currency      string
	PollInterval  time.Duration
	DefaultExpiry time.Duration
}

// depositRun is one PendingPayment and the tasks it owns. Cancelling ctx
// stops the countdown and any poller.
type depositRun struct {
	payment    model.PendingPayment
	state      model.DepositState
	ctx        context.Context
	cancel     context.CancelFunc
	stopPoll   context.CancelFunc
	credited   bool
	instrument model.Instrument
}

// DepositService is the deposit lifecycle machine for the session's
// account. All transitions happen under mu; rail calls are made with mu
// released and their results dropped if the run moved on meanwhile.
type DepositService struct {
	mu     sync.Mutex
	cfg    DepositConfig
	rail   client.SettlementService
	ledger AccountLedger
	slot   *PaymentSlot
	bus    *EventBus
	now    func() time.Time

	// autoTick starts the 1s countdown task for each run. Tests drive
	// Tick directly instead.
	autoTick bool
	run      *depositRun
}

func NewDepositService(cfg DepositConfig, rail client.SettlementService, ledger AccountLedger, slot *PaymentSlot, bus *EventBus) *DepositService {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.DefaultExpiry <= 0 {
		cfg.DefaultExpiry = 15 * time.Minute
	}
	return &DepositService{
		cfg:      cfg,
		rail:     rail,
		ledger:   ledger,
		slot:     slot,
		bus:      bus,
		now:      time.Now,
		autoTick: true,
	}
}

// Current renders the active deposit, or AmountEntry when there is none.
func (s *DepositService) Current() model.PaymentView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *DepositService) viewLocked() model.PaymentView {
	if s.run == nil {
		return model.DescribeDeposit(nil, model.DepositAmountEntry{})
	}
	return model.DescribeDeposit(&s.run.payment, s.run.state)
}

func (s *DepositService) transitionLocked(run *depositRun, next model.DepositState) {
	logger.Log.WithFields(logrus.Fields{
		"payment_id": run.payment.ID.String(),
		"from":       run.state.Step(),
		"to":         next.Step(),
	}).Info("Deposit state changed")

	run.state = next
	view := model.DescribeDeposit(&run.payment, next)
	s.bus.Publish(Event{
		Type:      EventTransition,
		PaymentID: run.payment.ID.String(),
		Direction: model.DirectionDeposit,
		Step:      string(next.Step()),
		Data:      view,
	})
}

// finishLocked stops every task owned by run and frees the payment slot.
func (s *DepositService) finishLocked(run *depositRun) {
	run.cancel()
	s.slot.Release(run.payment.ID)
}

// current reports whether run is still the active run in a state with step.
func (s *DepositService) currentLocked(run *depositRun, step model.Step) bool {
	return s.run == run && run.state.Step() == step
}

// Submit starts a deposit of amount for the authenticated account.
// Rejections leave the machine untouched; rail failures are reported as
// the Failed state of the returned view.
func (s *DepositService) Submit(ctx context.Context, amount decimal.Decimal) (model.PaymentView, error) {
	acc, err := s.ledger.CurrentAccount()
	if err != nil {
		return s.Current(), err
	}

	s.mu.Lock()
	if s.run != nil && !s.run.state.Step().Terminal() {
		defer s.mu.Unlock()
		if _, ok := s.run.state.(model.DepositSubmitting); ok {
			return s.viewLocked(), ErrSubmissionInFlight
		}
		return s.viewLocked(), ErrPaymentActive
	}
	if !amount.IsPositive() || amount.LessThan(s.cfg.Minimum) {
		defer s.mu.Unlock()
		return s.viewLocked(), common.NewValidationError("amount",
			fmt.Sprintf("minimum deposit is %s", s.cfg.Minimum.StringFixed(2)))
	}

	id, err := uuid.NewV7()
	if err != nil {
		s.mu.Unlock()
		return s.Current(), fmt.Errorf("failed to generate payment id: %w", err)
	}
	if err := s.slot.Acquire(id, model.DirectionDeposit); err != nil {
		defer s.mu.Unlock()
		return s.viewLocked(), err
	}

	fee := ComputeFee(amount, s.cfg.FeeBps)
	runCtx, cancel := context.WithCancel(context.Background())
	run := &depositRun{
		payment: model.PendingPayment{
			ID:         id,
			Direction:  model.DirectionDeposit,
			AccountKey: acc.PublicKey,
			Amount:     amount,
			Fee:        fee,
			Net:        NetAmount(amount, fee),
			CreatedAt:  s.now(),
		},
		state:  model.DepositAmountEntry{},
		ctx:    runCtx,
		cancel: cancel,
	}
	s.run = run
	s.transitionLocked(run, model.DepositSubmitting{Amount: amount})
	s.mu.Unlock()

	callCtx, stop := joinContext(ctx, runCtx)
	res, err := s.rail.CreateDeposit(callCtx, client.CreateDepositRequest{
		AccountKey:     acc.PublicKey,
		Amount:         amount,
		Currency:       s.cfg.Currency,
		IdempotencyKey: id.String(),
	})
	stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.currentLocked(run, model.StepSubmitting) {
		logger.Log.WithField("payment_id", id.String()).Info("Discarding deposit creation result for a replaced payment")
		return s.viewLocked(), nil
	}
	if err != nil {
		s.transitionLocked(run, model.DepositFailed{Reason: err.Error()})
		s.finishLocked(run)
		return s.viewLocked(), nil
	}
	s.applyCreatedLocked(run, res)
	return s.viewLocked(), nil
}

func (s *DepositService) applyCreatedLocked(run *depositRun, res *client.CreateDepositResult) {
	if res.InfoNeeded {
		s.transitionLocked(run, model.DepositAwaitingCustomerInfo{
			Reference:      res.Reference,
			InteractiveURL: res.InteractiveURL,
		})
		return
	}

	now := s.now()
	expiresAt := res.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(s.cfg.DefaultExpiry)
	}
	scan := res.ScanPayload
	if scan == "" && res.Code != "" {
		generated, err := client.GenerateQRCode(res.Code)
		if err != nil {
			logger.Log.WithError(err).WithField("payment_id", run.payment.ID.String()).Warn("Could not render deposit QR code")
		}
		scan = generated
	}

	run.payment.ExpiresAt = expiresAt
	run.instrument = model.Instrument{
		Reference:      res.Reference,
		Code:           res.Code,
		ScanPayload:    scan,
		InteractiveURL: res.InteractiveURL,
		ExpiresAt:      expiresAt,
	}

	remaining := expiresAt.Sub(now).Truncate(time.Second)
	if remaining <= 0 {
		s.transitionLocked(run, model.DepositExpired{Reference: res.Reference})
		s.finishLocked(run)
		return
	}
	s.transitionLocked(run, model.DepositAwaitingInstrument{Instrument: run.instrument, Remaining: remaining})
	if s.autoTick {
		go s.countdown(run)
	}
}

func (s *DepositService) countdown(run *depositRun) {
	ticker := time.NewTicker(countdownInterval)
	defer ticker.Stop()

	for {
		select {
		case <-run.ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			s.tickLocked(run, s.now())
			s.mu.Unlock()
		}
	}
}

// Tick recomputes the countdown of the active deposit at now.
func (s *DepositService) Tick(now time.Time) model.PaymentView {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil {
		s.tickLocked(s.run, now)
	}
	return s.viewLocked()
}

func (s *DepositService) tickLocked(run *depositRun, now time.Time) {
	if s.run != run {
		return
	}
	remaining := run.payment.ExpiresAt.Sub(now).Truncate(time.Second)

	switch st := run.state.(type) {
	case model.DepositAwaitingInstrument:
		if remaining <= 0 {
			s.expireLocked(run)
			return
		}
		st.Remaining = remaining
		run.state = st
	case model.DepositPendingSettlement:
		if remaining <= 0 {
			s.expireLocked(run)
			return
		}
		st.Remaining = remaining
		run.state = st
	}
}

func (s *DepositService) expireLocked(run *depositRun) {
	s.transitionLocked(run, model.DepositExpired{Reference: run.instrument.Reference})
	s.finishLocked(run)
}

// ConfirmPaid records that the user has paid the instrument and starts
// polling the rail for settlement.
func (s *DepositService) ConfirmPaid() (model.PaymentView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run == nil {
		return s.viewLocked(), ErrNoActivePayment
	}
	run := s.run
	st, ok := run.state.(model.DepositAwaitingInstrument)
	if !ok {
		return s.viewLocked(), ErrInvalidTransition
	}

	s.transitionLocked(run, model.DepositPendingSettlement{Instrument: st.Instrument, Remaining: st.Remaining})

	pollCtx, stopPoll := context.WithCancel(run.ctx)
	run.stopPoll = stopPoll
	go s.poll(pollCtx, run)

	return s.viewLocked(), nil
}

// BackToInstrument returns to the payment instructions. Polling stops;
// the countdown keeps running.
func (s *DepositService) BackToInstrument() (model.PaymentView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run == nil {
		return s.viewLocked(), ErrNoActivePayment
	}
	run := s.run
	st, ok := run.state.(model.DepositPendingSettlement)
	if !ok {
		return s.viewLocked(), ErrInvalidTransition
	}
	if run.stopPoll != nil {
		run.stopPoll()
		run.stopPoll = nil
	}
	s.transitionLocked(run, model.DepositAwaitingInstrument{Instrument: st.Instrument, Remaining: st.Remaining})
	return s.viewLocked(), nil
}

// poll checks settlement status on a fixed interval, starting immediately,
// until ctx is cancelled.
func (s *DepositService) poll(ctx context.Context, run *depositRun) {
	b := backoff.WithContext(backoff.NewConstantBackOff(s.cfg.PollInterval), ctx)
	ticker := backoff.NewTicker(b)
	defer ticker.Stop()

	for range ticker.C {
		s.pollOnce(ctx, run)
	}
}

func (s *DepositService) pollOnce(ctx context.Context, run *depositRun) {
	log := logger.Log.WithFields(logrus.Fields{
		"payment_id": run.payment.ID.String(),
		"reference":  run.instrument.Reference,
	})

	res, err := s.rail.GetDepositStatus(ctx, run.instrument.Reference)

	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx.Err() != nil || !s.currentLocked(run, model.StepPendingSettlement) {
		log.Debug("Discarding status for a deposit that is no longer polling")
		return
	}
	if err != nil {
		log.WithError(err).Warn("Deposit status poll failed, retrying on next interval")
		return
	}
	s.applyStatusLocked(run, res)
}

func (s *DepositService) applyStatusLocked(run *depositRun, res *client.DepositStatusResult) {
	switch res.Status {
	case client.StatusCompleted:
		if run.credited {
			return
		}
		run.credited = true

		if _, err := s.ledger.Credit(run.ctx, run.payment.AccountKey, run.payment.Net); err != nil {
			s.transitionLocked(run, model.DepositFailed{Reason: fmt.Sprintf("could not credit account: %v", err)})
			s.finishLocked(run)
			return
		}

		ref := res.SettlementReference
		if ref == "" {
			ref = run.instrument.Reference
		}
		ev := model.SettlementEvent{
			PaymentID:  run.payment.ID,
			Direction:  model.DirectionDeposit,
			AccountKey: run.payment.AccountKey,
			Amount:     run.payment.Net,
			Reference:  ref,
			SettledAt:  s.now(),
		}
		s.transitionLocked(run, model.DepositSettled{Event: ev})
		s.bus.Publish(Event{
			Type:      EventSettled,
			PaymentID: run.payment.ID.String(),
			Direction: model.DirectionDeposit,
			Step:      string(model.StepSettled),
			Data:      ev,
		})
		s.finishLocked(run)
	case client.StatusError:
		s.transitionLocked(run, model.DepositFailed{Reason: "the payment rail reported an error for this deposit"})
		s.finishLocked(run)
	}
}

// Cancel abandons the active deposit. Late rail responses are discarded.
func (s *DepositService) Cancel() (model.PaymentView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run == nil || s.run.state.Step().Terminal() {
		return s.viewLocked(), ErrNoActivePayment
	}
	s.transitionLocked(s.run, model.DepositCancelled{})
	s.finishLocked(s.run)
	return s.viewLocked(), nil
}

// Reset discards a finished deposit so a new one can be entered.
func (s *DepositService) Reset() (model.PaymentView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != nil && !s.run.state.Step().Terminal() {
		return s.viewLocked(), ErrInvalidTransition
	}
	s.run = nil
	return s.viewLocked(), nil
}

// Dispose cancels and forgets any deposit, whatever its state.
func (s *DepositService) Dispose(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run == nil {
		return
	}
	if !s.run.state.Step().Terminal() {
		s.transitionLocked(s.run, model.DepositCancelled{})
	}
	s.finishLocked(s.run)
	s.run = nil
}

// joinContext returns a context cancelled when either parent is done.
func joinContext(ctx, owner context.Context) (context.Context, context.CancelFunc) {
	joined, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(owner, cancel)
	return joined, func() {
		stop()
		cancel()
	}
}
