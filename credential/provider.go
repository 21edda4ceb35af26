// Package credential models the platform passkey capability and the
// challenges handed to it.
package credential

import (
	"context"
	"crypto/ed25519"
	"errors"
)

var (
	ErrNotSupported  = errors.New("platform credential capability not supported")
	ErrUserCancelled = errors.New("credential ceremony cancelled by user")
	ErrNotFound      = errors.New("no matching credential")
)

// RelyingParty identifies the application a credential is scoped to.
type RelyingParty struct {
	ID   string
	Name string
}

// Credential is the result of a create or get ceremony. Signature covers
// the challenge that was passed in.
type Credential struct {
	ID         string
	RawID      []byte
	PublicKey  ed25519.PublicKey
	UserHandle []byte
	Signature  []byte
}

// Provider is the device credential capability.
type Provider interface {
	Available(ctx context.Context) bool
	Create(ctx context.Context, rp RelyingParty, userHandle, challenge []byte) (*Credential, error)
	Get(ctx context.Context, allowedIDs []string, challenge []byte) (*Credential, error)
}

// Verify reports whether cred signed challenge.
func Verify(cred *Credential, challenge []byte) bool {
	if cred == nil || len(cred.PublicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(cred.PublicKey, challenge, cred.Signature)
}
