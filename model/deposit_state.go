package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepositState is one state of the deposit lifecycle. Each variant carries
// only the fields that are valid in that state.
type DepositState interface {
	Step() Step
	describe(v *PaymentView)
}

type DepositAmountEntry struct{}

type DepositSubmitting struct {
	Amount decimal.Decimal
}

// DepositAwaitingCustomerInfo is entered when the rail asks for more
// customer information before it can issue an instrument.
type DepositAwaitingCustomerInfo struct {
	Reference      string
	InteractiveURL string
}

type DepositAwaitingInstrument struct {
	Instrument Instrument
	Remaining  time.Duration
}

type DepositPendingSettlement struct {
	Instrument Instrument
	Remaining  time.Duration
}

type DepositSettled struct {
	Event SettlementEvent
}

type DepositFailed struct {
	Reason string
}

type DepositExpired struct {
	Reference string
}

type DepositCancelled struct{}

func (DepositAmountEntry) Step() Step          { return StepAmountEntry }
func (DepositSubmitting) Step() Step           { return StepSubmitting }
func (DepositAwaitingCustomerInfo) Step() Step { return StepAwaitingCustomerInfo }
func (DepositAwaitingInstrument) Step() Step   { return StepAwaitingInstrument }
func (DepositPendingSettlement) Step() Step    { return StepPendingSettlement }
func (DepositSettled) Step() Step              { return StepSettled }
func (DepositFailed) Step() Step               { return StepFailed }
func (DepositExpired) Step() Step              { return StepExpired }
func (DepositCancelled) Step() Step            { return StepCancelled }

func (DepositAmountEntry) describe(*PaymentView) {}
func (DepositSubmitting) describe(*PaymentView)  {}
func (DepositCancelled) describe(*PaymentView)   {}

func (s DepositAwaitingCustomerInfo) describe(v *PaymentView) {
	v.Instrument = &Instrument{Reference: s.Reference, InteractiveURL: s.InteractiveURL}
}

func (s DepositAwaitingInstrument) describe(v *PaymentView) {
	inst := s.Instrument
	v.Instrument = &inst
	v.setRemaining(s.Remaining)
}

func (s DepositPendingSettlement) describe(v *PaymentView) {
	inst := s.Instrument
	v.Instrument = &inst
	v.setRemaining(s.Remaining)
}

func (s DepositSettled) describe(v *PaymentView) {
	ev := s.Event
	v.Settlement = &ev
}

func (s DepositFailed) describe(v *PaymentView) { v.Reason = s.Reason }

func (s DepositExpired) describe(v *PaymentView) {
	v.Reason = "instrument expired"
	if s.Reference != "" {
		v.Instrument = &Instrument{Reference: s.Reference}
	}
}

// DescribeDeposit renders a deposit payment and its state.
func DescribeDeposit(p *PendingPayment, s DepositState) PaymentView {
	if s == nil {
		s = DepositAmountEntry{}
	}
	v := PaymentView{Direction: DirectionDeposit, Step: s.Step()}
	if p != nil {
		cp := *p
		v.Payment = &cp
	}
	s.describe(&v)
	return v
}
