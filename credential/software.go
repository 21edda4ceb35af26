package credential

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/smartpigdefi/smartpig/logger"
)

// ConsentFunc asks the user to approve a ceremony. Returning an error
// aborts it; ErrUserCancelled is the usual answer.
type ConsentFunc func(ctx context.Context, op string) error

type storedCredential struct {
	id         uuid.UUID
	rpID       string
	userHandle []byte
	key        ed25519.PrivateKey
}

// SoftwareAuthenticator keeps credentials in memory and signs challenges
// with ed25519 keys. It stands in for a platform authenticator.
type SoftwareAuthenticator struct {
	mu        sync.Mutex
	supported bool
	consent   ConsentFunc
	creds     []*storedCredential
}

func NewSoftwareAuthenticator(supported bool, consent ConsentFunc) *SoftwareAuthenticator {
	return &SoftwareAuthenticator{
		supported: supported,
		consent:   consent,
	}
}

func (a *SoftwareAuthenticator) Available(_ context.Context) bool {
	return a.supported
}

func (a *SoftwareAuthenticator) Create(ctx context.Context, rp RelyingParty, userHandle, challenge []byte) (*Credential, error) {
	if !a.supported {
		return nil, ErrNotSupported
	}
	if err := a.ask(ctx, "create"); err != nil {
		return nil, err
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate credential key: %w", err)
	}

	stored := &storedCredential{
		id:         uuid.New(),
		rpID:       rp.ID,
		userHandle: slices.Clone(userHandle),
		key:        priv,
	}

	a.mu.Lock()
	a.creds = append(a.creds, stored)
	a.mu.Unlock()

	logger.Log.WithFields(logrus.Fields{
		"credential_id": stored.id.String(),
		"rp_id":         rp.ID,
	}).Info("Credential created")

	return stored.assert(challenge), nil
}

// Get signs challenge with the newest credential whose ID is in
// allowedIDs. An empty allow list accepts any credential.
func (a *SoftwareAuthenticator) Get(ctx context.Context, allowedIDs []string, challenge []byte) (*Credential, error) {
	if !a.supported {
		return nil, ErrNotSupported
	}
	if err := a.ask(ctx, "get"); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for i := len(a.creds) - 1; i >= 0; i-- {
		c := a.creds[i]
		if len(allowedIDs) == 0 || slices.Contains(allowedIDs, c.id.String()) {
			return c.assert(challenge), nil
		}
	}
	return nil, ErrNotFound
}

func (a *SoftwareAuthenticator) ask(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.consent == nil {
		return nil
	}
	return a.consent(ctx, op)
}

func (c *storedCredential) assert(challenge []byte) *Credential {
	raw := c.id
	return &Credential{
		ID:         c.id.String(),
		RawID:      raw[:],
		PublicKey:  c.key.Public().(ed25519.PublicKey),
		UserHandle: slices.Clone(c.userHandle),
		Signature:  ed25519.Sign(c.key, challenge),
	}
}
