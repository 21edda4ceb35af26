package model

import (
	"github.com/shopspring/decimal"
)

// Account is the authenticated user's savings account. Balance is held in
// local currency units.
type Account struct {
	PublicKey  string          `json:"public_key" validate:"required,min=32,max=64"`
	ContractID string          `json:"contract_id" validate:"required,min=32,max=64"`
	Balance    decimal.Decimal `json:"balance"`
}

// Clone returns a copy that callers can keep without sharing state.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// MaskedPublicKey renders the identity handle as first6…last4.
func (a *Account) MaskedPublicKey() string {
	if len(a.PublicKey) <= 10 {
		return a.PublicKey
	}
	return a.PublicKey[:6] + "…" + a.PublicKey[len(a.PublicKey)-4:]
}
