package model

import (
	"fmt"
	"time"
)

// Step names a lifecycle state on the wire and in logs.
type Step string

const (
	StepAmountEntry          Step = "amount_entry"
	StepSubmitting           Step = "submitting"
	StepAwaitingCustomerInfo Step = "awaiting_customer_info"
	StepAwaitingInstrument   Step = "awaiting_instrument"
	StepPendingSettlement    Step = "pending_settlement"
	StepValidating           Step = "validating"
	StepAwaitingConfirmation Step = "awaiting_confirmation"
	StepProcessing           Step = "processing"
	StepSettled              Step = "settled"
	StepFailed               Step = "failed"
	StepExpired              Step = "expired"
	StepCancelled            Step = "cancelled"
)

// Terminal reports whether no further automatic transition leaves the step.
func (s Step) Terminal() bool {
	switch s {
	case StepSettled, StepFailed, StepExpired, StepCancelled:
		return true
	}
	return false
}

// PaymentView is a read-only rendering of a lifecycle machine.
type PaymentView struct {
	Direction        Direction        `json:"direction"`
	Step             Step             `json:"step"`
	Payment          *PendingPayment  `json:"payment,omitempty"`
	Instrument       *Instrument      `json:"instrument,omitempty"`
	RemainingSeconds int64            `json:"remaining_seconds,omitempty"`
	Countdown        string           `json:"countdown,omitempty"`
	Quote            *Quote           `json:"quote,omitempty"`
	Phase            WithdrawPhase    `json:"phase,omitempty"`
	PhaseIndex       int              `json:"phase_index,omitempty"`
	PhaseCount       int              `json:"phase_count,omitempty"`
	Reason           string           `json:"reason,omitempty"`
	Settlement       *SettlementEvent `json:"settlement,omitempty"`
}

// FormatCountdown renders a remaining duration as m:ss.
func FormatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

func (v *PaymentView) setRemaining(d time.Duration) {
	v.RemainingSeconds = int64(d / time.Second)
	v.Countdown = FormatCountdown(d)
}
