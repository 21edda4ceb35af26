package model

import "github.com/shopspring/decimal"

// WithdrawPhase names one ordered step of withdrawal processing.
type WithdrawPhase string

const (
	PhaseConversion             WithdrawPhase = "conversion"
	PhaseSigning                WithdrawPhase = "signing"
	PhaseTransferSubmission     WithdrawPhase = "transfer_submission"
	PhaseSettlementConfirmation WithdrawPhase = "settlement_confirmation"
)

// WithdrawState is one state of the withdrawal lifecycle.
type WithdrawState interface {
	Step() Step
	describe(v *PaymentView)
}

type WithdrawAmountEntry struct{}

type WithdrawValidating struct {
	Amount      decimal.Decimal
	Destination string
}

type WithdrawAwaitingConfirmation struct {
	Quote       Quote
	Destination string
}

type WithdrawProcessing struct {
	Quote       Quote
	Destination string
	Phase       WithdrawPhase
	PhaseIndex  int
	PhaseCount  int
}

type WithdrawSettled struct {
	Event SettlementEvent
}

type WithdrawFailed struct {
	Reason string
	Phase  WithdrawPhase
}

type WithdrawCancelled struct{}

func (WithdrawAmountEntry) Step() Step          { return StepAmountEntry }
func (WithdrawValidating) Step() Step           { return StepValidating }
func (WithdrawAwaitingConfirmation) Step() Step { return StepAwaitingConfirmation }
func (WithdrawProcessing) Step() Step           { return StepProcessing }
func (WithdrawSettled) Step() Step              { return StepSettled }
func (WithdrawFailed) Step() Step               { return StepFailed }
func (WithdrawCancelled) Step() Step            { return StepCancelled }

func (WithdrawAmountEntry) describe(*PaymentView) {}
func (WithdrawValidating) describe(*PaymentView)  {}
func (WithdrawCancelled) describe(*PaymentView)   {}

func (s WithdrawAwaitingConfirmation) describe(v *PaymentView) {
	q := s.Quote
	v.Quote = &q
}

func (s WithdrawProcessing) describe(v *PaymentView) {
	q := s.Quote
	v.Quote = &q
	v.Phase = s.Phase
	v.PhaseIndex = s.PhaseIndex
	v.PhaseCount = s.PhaseCount
}

func (s WithdrawSettled) describe(v *PaymentView) {
	ev := s.Event
	v.Settlement = &ev
}

func (s WithdrawFailed) describe(v *PaymentView) {
	v.Reason = s.Reason
	v.Phase = s.Phase
}

// DescribeWithdraw renders a withdrawal payment and its state.
func DescribeWithdraw(p *PendingPayment, s WithdrawState) PaymentView {
	if s == nil {
		s = WithdrawAmountEntry{}
	}
	v := PaymentView{Direction: DirectionWithdraw, Step: s.Step()}
	if p != nil {
		cp := *p
		v.Payment = &cp
	}
	s.describe(&v)
	return v
}
