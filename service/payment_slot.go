package service

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/smartpigdefi/smartpig/model"
)

var ErrPaymentActive = errors.New("another payment is already active for this account")

// PaymentSlot admits at most one active payment across both directions.
// One slot serves the single authenticated account.
type PaymentSlot struct {
	mu        sync.Mutex
	holder    uuid.UUID
	direction model.Direction
}

func NewPaymentSlot() *PaymentSlot {
	return &PaymentSlot{}
}

func (s *PaymentSlot) Acquire(id uuid.UUID, direction model.Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.holder != uuid.Nil && s.holder != id {
		return ErrPaymentActive
	}
	s.holder = id
	s.direction = direction
	return nil
}

// Release frees the slot if id holds it.
func (s *PaymentSlot) Release(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.holder == id {
		s.holder = uuid.Nil
		s.direction = ""
	}
}

func (s *PaymentSlot) Active() (uuid.UUID, model.Direction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holder, s.direction, s.holder != uuid.Nil
}
