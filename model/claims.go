package model

import "github.com/golang-jwt/jwt/v5"

// AppClaims are carried by the access token issued when a session becomes
// authenticated.
type AppClaims struct {
	AccountKey string `json:"account_key"`
	ContractID string `json:"contract_id"`
	jwt.RegisteredClaims
}

// WithdrawalIntentClaims bind a withdrawal to the account that authorised it.
type WithdrawalIntentClaims struct {
	PaymentID   string `json:"payment_id"`
	Amount      string `json:"amount"`
	Destination string `json:"destination"`
	jwt.RegisteredClaims
}
