package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/smartpigdefi/smartpig/client"
	"github.com/smartpigdefi/smartpig/common"
	"github.com/smartpigdefi/smartpig/logger"
	"github.com/smartpigdefi/smartpig/model"
)

const minDestinationLength = 5

// IntentSigner signs the withdrawal the user confirmed.
type IntentSigner interface {
	SignWithdrawalIntent(p *model.PendingPayment) (string, error)
}

type WithdrawConfig struct {
	Minimum decimal.Decimal
	FeeBps  int64
	// PacePhases holds each processing phase for at least its expected
	// duration so progress stays readable.
	PacePhases bool
}

// Expected duration of each processing phase.
var phaseDurations = map[model.WithdrawPhase]time.Duration{
	model.PhaseConversion:             600 * time.Millisecond,
	model.PhaseSigning:                800 * time.Millisecond,
	model.PhaseTransferSubmission:     700 * time.Millisecond,
	model.PhaseSettlementConfirmation: 900 * time.Millisecond,
}

type withdrawRun struct {
	payment model.PendingPayment
	state   model.WithdrawState
	ctx     context.Context
	cancel  context.CancelFunc
}

// withdrawJob carries values between processing phases.
type withdrawJob struct {
	quote     model.Quote
	stable    decimal.Decimal
	intent    string
	reference string
}

type withdrawPhase struct {
	name model.WithdrawPhase
	exec func(ctx context.Context, run *withdrawRun, job *withdrawJob) error
}

// WithdrawService is the withdrawal lifecycle machine. It follows the same
// locking rules as DepositService.
type WithdrawService struct {
	mu     sync.Mutex
	cfg    WithdrawConfig
	rail   client.SettlementService
	rates  client.RateSource
	signer IntentSigner
	ledger AccountLedger
	slot   *PaymentSlot
	bus    *EventBus
	now    func() time.Time
	phases []withdrawPhase
	run    *withdrawRun
}

func NewWithdrawService(cfg WithdrawConfig, rail client.SettlementService, rates client.RateSource, signer IntentSigner, ledger AccountLedger, slot *PaymentSlot, bus *EventBus) *WithdrawService {
	s := &WithdrawService{
		cfg:    cfg,
		rail:   rail,
		rates:  rates,
		signer: signer,
		ledger: ledger,
		slot:   slot,
		bus:    bus,
		now:    time.Now,
	}
	s.phases = []withdrawPhase{
		{name: model.PhaseConversion, exec: s.convert},
		{name: model.PhaseSigning, exec: s.sign},
		{name: model.PhaseTransferSubmission, exec: s.submitTransfer},
		{name: model.PhaseSettlementConfirmation, exec: s.confirmSettlement},
	}
	return s
}

func (s *WithdrawService) Current() model.PaymentView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *WithdrawService) viewLocked() model.PaymentView {
	if s.run == nil {
		return model.DescribeWithdraw(nil, model.WithdrawAmountEntry{})
	}
	return model.DescribeWithdraw(&s.run.payment, s.run.state)
}

func (s *WithdrawService) transitionLocked(run *withdrawRun, next model.WithdrawState) {
	fields := logrus.Fields{
		"payment_id": run.payment.ID.String(),
		"from":       run.state.Step(),
		"to":         next.Step(),
	}
	if p, ok := next.(model.WithdrawProcessing); ok {
		fields["phase"] = p.Phase
	}
	logger.Log.WithFields(fields).Info("Withdrawal state changed")

	run.state = next
	s.bus.Publish(Event{
		Type:      EventTransition,
		PaymentID: run.payment.ID.String(),
		Direction: model.DirectionWithdraw,
		Step:      string(next.Step()),
		Data:      model.DescribeWithdraw(&run.payment, next),
	})
}

func (s *WithdrawService) finishLocked(run *withdrawRun) {
	run.cancel()
	s.slot.Release(run.payment.ID)
}

func (s *WithdrawService) validate(acc *model.Account, amount decimal.Decimal, destination string) error {
	switch {
	case !amount.IsPositive():
		return common.NewValidationError("amount", "enter an amount")
	case amount.LessThan(s.cfg.Minimum):
		return common.NewValidationError("amount",
			fmt.Sprintf("below minimum: the minimum withdrawal is %s", s.cfg.Minimum.StringFixed(2)))
	case amount.GreaterThan(acc.Balance):
		return common.NewValidationError("amount", "exceeds balance")
	case len([]rune(destination)) < minDestinationLength:
		return common.NewValidationError("pix_key", "invalid destination handle")
	}
	return nil
}

// Submit validates a withdrawal and, when it passes, quotes it for the
// user to confirm.
func (s *WithdrawService) Submit(ctx context.Context, amount decimal.Decimal, destination string) (model.PaymentView, error) {
	acc, err := s.ledger.CurrentAccount()
	if err != nil {
		return s.Current(), err
	}
	destination = strings.TrimSpace(destination)

	s.mu.Lock()
	if s.run != nil && !s.run.state.Step().Terminal() {
		defer s.mu.Unlock()
		if _, ok := s.run.state.(model.WithdrawValidating); ok {
			return s.viewLocked(), ErrSubmissionInFlight
		}
		return s.viewLocked(), ErrPaymentActive
	}
	if err := s.validate(acc, amount, destination); err != nil {
		defer s.mu.Unlock()
		return s.viewLocked(), err
	}

	id, err := uuid.NewV7()
	if err != nil {
		s.mu.Unlock()
		return s.Current(), fmt.Errorf("failed to generate payment id: %w", err)
	}
	if err := s.slot.Acquire(id, model.DirectionWithdraw); err != nil {
		defer s.mu.Unlock()
		return s.viewLocked(), err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	run := &withdrawRun{
		payment: model.PendingPayment{
			ID:          id,
			Direction:   model.DirectionWithdraw,
			AccountKey:  acc.PublicKey,
			Amount:      amount,
			Destination: destination,
			CreatedAt:   s.now(),
		},
		state:  model.WithdrawAmountEntry{},
		ctx:    runCtx,
		cancel: cancel,
	}
	s.run = run
	s.transitionLocked(run, model.WithdrawValidating{Amount: amount, Destination: destination})
	s.mu.Unlock()

	callCtx, stop := joinContext(ctx, runCtx)
	rate, err := s.rates.Rate(callCtx)
	stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != run || run.state.Step() != model.StepValidating {
		return s.viewLocked(), nil
	}
	if err != nil {
		s.transitionLocked(run, model.WithdrawFailed{Reason: fmt.Sprintf("could not quote withdrawal: %v", err)})
		s.finishLocked(run)
		return s.viewLocked(), nil
	}

	quote := Quote(amount, s.cfg.FeeBps, rate)
	run.payment.Fee = quote.Fee
	run.payment.Net = quote.Net
	s.transitionLocked(run, model.WithdrawAwaitingConfirmation{Quote: quote, Destination: destination})
	return s.viewLocked(), nil
}

// Confirm runs the confirmed withdrawal through its processing phases and
// returns once it has settled or failed.
func (s *WithdrawService) Confirm(ctx context.Context) (model.PaymentView, error) {
	s.mu.Lock()
	if s.run == nil {
		defer s.mu.Unlock()
		return s.viewLocked(), ErrNoActivePayment
	}
	run := s.run
	st, ok := run.state.(model.WithdrawAwaitingConfirmation)
	if !ok {
		defer s.mu.Unlock()
		return s.viewLocked(), ErrInvalidTransition
	}
	job := &withdrawJob{quote: st.Quote}
	s.enterPhaseLocked(run, job, 0)
	s.mu.Unlock()

	callCtx, stop := joinContext(ctx, run.ctx)
	defer stop()

	for i, phase := range s.phases {
		if i > 0 {
			s.mu.Lock()
			if s.run != run || run.state.Step() != model.StepProcessing {
				defer s.mu.Unlock()
				return s.viewLocked(), nil
			}
			s.enterPhaseLocked(run, job, i)
			s.mu.Unlock()
		}

		started := s.now()
		err := phase.exec(callCtx, run, job)
		if err == nil && s.cfg.PacePhases {
			err = pace(callCtx, phaseDurations[phase.name]-s.now().Sub(started))
		}
		if err != nil {
			return s.failPhase(run, phase.name, err), nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != run || run.state.Step() != model.StepProcessing {
		return s.viewLocked(), nil
	}
	if _, err := s.ledger.Debit(run.ctx, run.payment.AccountKey, run.payment.Amount); err != nil {
		s.transitionLocked(run, model.WithdrawFailed{
			Reason: fmt.Sprintf("could not debit account: %v", err),
			Phase:  model.PhaseSettlementConfirmation,
		})
		s.finishLocked(run)
		return s.viewLocked(), nil
	}

	ev := model.SettlementEvent{
		PaymentID:  run.payment.ID,
		Direction:  model.DirectionWithdraw,
		AccountKey: run.payment.AccountKey,
		Amount:     run.payment.Net,
		Reference:  job.reference,
		SettledAt:  s.now(),
	}
	s.transitionLocked(run, model.WithdrawSettled{Event: ev})
	s.bus.Publish(Event{
		Type:      EventSettled,
		PaymentID: run.payment.ID.String(),
		Direction: model.DirectionWithdraw,
		Step:      string(model.StepSettled),
		Data:      ev,
	})
	s.finishLocked(run)
	return s.viewLocked(), nil
}

func (s *WithdrawService) enterPhaseLocked(run *withdrawRun, job *withdrawJob, i int) {
	s.transitionLocked(run, model.WithdrawProcessing{
		Quote:       job.quote,
		Destination: run.payment.Destination,
		Phase:       s.phases[i].name,
		PhaseIndex:  i,
		PhaseCount:  len(s.phases),
	})
}

func (s *WithdrawService) failPhase(run *withdrawRun, phase model.WithdrawPhase, err error) model.PaymentView {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != run || run.state.Step() != model.StepProcessing {
		return s.viewLocked()
	}
	logger.Log.WithError(err).WithFields(logrus.Fields{
		"payment_id": run.payment.ID.String(),
		"phase":      phase,
	}).Warn("Withdrawal phase failed")

	s.transitionLocked(run, model.WithdrawFailed{Reason: err.Error(), Phase: phase})
	s.finishLocked(run)
	return s.viewLocked()
}

// pace waits for d unless ctx ends first.
func pace(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *WithdrawService) convert(ctx context.Context, _ *withdrawRun, job *withdrawJob) error {
	rate, err := s.rates.Rate(ctx)
	if err != nil {
		return fmt.Errorf("conversion rate unavailable: %w", err)
	}
	if !rate.IsPositive() {
		return errors.New("conversion rate unavailable")
	}
	job.stable = ToStableAsset(job.quote.Net, rate)
	return nil
}

func (s *WithdrawService) sign(_ context.Context, run *withdrawRun, job *withdrawJob) error {
	intent, err := s.signer.SignWithdrawalIntent(&run.payment)
	if err != nil {
		return err
	}
	job.intent = intent
	return nil
}

func (s *WithdrawService) submitTransfer(ctx context.Context, run *withdrawRun, job *withdrawJob) error {
	res, err := s.rail.CreateWithdrawal(ctx, client.CreateWithdrawalRequest{
		AccountKey:     run.payment.AccountKey,
		Amount:         run.payment.Amount,
		Destination:    run.payment.Destination,
		Intent:         job.intent,
		IdempotencyKey: run.payment.ID.String(),
	})
	if err != nil {
		return err
	}
	job.reference = res.Reference
	return nil
}

func (s *WithdrawService) confirmSettlement(_ context.Context, run *withdrawRun, job *withdrawJob) error {
	if job.reference == "" {
		return errors.New("payment rail did not return a transfer reference")
	}
	acc, err := s.ledger.CurrentAccount()
	if err != nil {
		return err
	}
	if acc.PublicKey != run.payment.AccountKey {
		return ErrAccountChanged
	}
	if acc.Balance.LessThan(run.payment.Amount) {
		return ErrInsufficientFunds
	}
	return nil
}

// Cancel is allowed until processing starts.
func (s *WithdrawService) Cancel() (model.PaymentView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run == nil || s.run.state.Step().Terminal() {
		return s.viewLocked(), ErrNoActivePayment
	}
	if s.run.state.Step() == model.StepProcessing {
		return s.viewLocked(), ErrCancelNotAllowed
	}
	s.transitionLocked(s.run, model.WithdrawCancelled{})
	s.finishLocked(s.run)
	return s.viewLocked(), nil
}

func (s *WithdrawService) Reset() (model.PaymentView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != nil && !s.run.state.Step().Terminal() {
		return s.viewLocked(), ErrInvalidTransition
	}
	s.run = nil
	return s.viewLocked(), nil
}

// Dispose abandons any withdrawal, including one being processed; its
// in-flight calls are cancelled and their results discarded.
func (s *WithdrawService) Dispose(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run == nil {
		return
	}
	if !s.run.state.Step().Terminal() {
		s.transitionLocked(s.run, model.WithdrawCancelled{})
	}
	s.finishLocked(s.run)
	s.run = nil
}
