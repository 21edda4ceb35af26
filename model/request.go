// file: model/request.go

package model

// DepositRequest is the payload for starting a deposit.
type DepositRequest struct {
	Amount string `json:"amount" validate:"required,max=32"`
}

// WithdrawRequest is the payload for starting a withdrawal. The destination
// is a PIX key; only its shape is checked.
type WithdrawRequest struct {
	Amount string `json:"amount" validate:"required,max=32"`
	PixKey string `json:"pix_key" validate:"max=140"`
}
