package service

import (
	"crypto/sha256"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/smartpigdefi/smartpig/credential"
	"github.com/smartpigdefi/smartpig/model"
)

var smartWalletSeed = []byte("smart-wallet")

// AccountDeriver turns a freshly created credential into a new account.
type AccountDeriver interface {
	Derive(cred *credential.Credential) (*model.Account, error)
}

// SolanaAccountDeriver generates an identity keypair and derives the
// contract address as a program address seeded by the identity and the
// credential ID.
type SolanaAccountDeriver struct {
	programID solana.PublicKey
}

func NewSolanaAccountDeriver() *SolanaAccountDeriver {
	return &SolanaAccountDeriver{programID: solana.SystemProgramID}
}

func (d *SolanaAccountDeriver) Derive(cred *credential.Credential) (*model.Account, error) {
	if cred == nil || len(cred.RawID) == 0 {
		return nil, fmt.Errorf("cannot derive account: empty credential")
	}

	owner := solana.NewWallet().PublicKey()
	credSeed := sha256.Sum256(cred.RawID)

	contract, _, err := solana.FindProgramAddress(
		[][]byte{smartWalletSeed, owner.Bytes(), credSeed[:]},
		d.programID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to derive contract address: %w", err)
	}

	return &model.Account{
		PublicKey:  owner.String(),
		ContractID: contract.String(),
		Balance:    decimal.Zero,
	}, nil
}
