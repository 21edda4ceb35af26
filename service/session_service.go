package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/smartpigdefi/smartpig/common"
	"github.com/smartpigdefi/smartpig/credential"
	"github.com/smartpigdefi/smartpig/logger"
	"github.com/smartpigdefi/smartpig/model"
	"github.com/smartpigdefi/smartpig/repository"
)

const deviceWarning = "Passkeys are not available on this device. Use a device with biometric or screen-lock support."

// AccountLedger is the view the payment machines have of the session's
// account. Credit and Debit fail with ErrAccountChanged when accountKey is
// not the current account.
type AccountLedger interface {
	CurrentAccount() (*model.Account, error)
	Credit(ctx context.Context, accountKey string, amount decimal.Decimal) (*model.Account, error)
	Debit(ctx context.Context, accountKey string, amount decimal.Decimal) (*model.Account, error)
}

// SessionService drives passkey registration and sign-in and owns the
// authenticated account.
type SessionService struct {
	mu         sync.Mutex
	provider   credential.Provider
	challenges *credential.ChallengeSource
	deriver    AccountDeriver
	store      repository.ISessionStore
	tokens     *TokenService
	bus        *EventBus
	rp         credential.RelyingParty

	state        model.AuthState
	account      *model.Account
	credentialID string
	accessToken  string
	sessionID    string
	lastError    string
	supported    bool
	warning      string
	busy         bool
	epoch        uint64
	onLogout     []func(ctx context.Context)
}

func NewSessionService(
	provider credential.Provider,
	challenges *credential.ChallengeSource,
	deriver AccountDeriver,
	store repository.ISessionStore,
	tokens *TokenService,
	bus *EventBus,
	rp credential.RelyingParty,
) *SessionService {
	return &SessionService{
		provider:   provider,
		challenges: challenges,
		deriver:    deriver,
		store:      store,
		tokens:     tokens,
		bus:        bus,
		rp:         rp,
		state:      model.AuthUnauthenticated,
		supported:  true,
	}
}

// OnLogout registers fn to run whenever the session ends. Hooks run
// without the session lock held.
func (s *SessionService) OnLogout(fn func(ctx context.Context)) {
	s.mu.Lock()
	s.onLogout = append(s.onLogout, fn)
	s.mu.Unlock()
}

// Capability asks the provider whether passkeys can be used here.
func (s *SessionService) Capability(ctx context.Context) bool {
	ok := s.provider.Available(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.supported = ok
	s.warning = ""
	if !ok {
		s.warning = deviceWarning
	}
	return ok
}

func (s *SessionService) Status() model.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *SessionService) statusLocked() model.SessionStatus {
	return model.SessionStatus{
		State:           s.state,
		Account:         s.account.Clone(),
		CredentialID:    s.credentialID,
		DeviceSupported: s.supported,
		Warning:         s.warning,
		Error:           s.lastError,
		AccessToken:     s.accessToken,
	}
}

func (s *SessionService) setStateLocked(next model.AuthState) {
	if s.state == next {
		return
	}
	logger.Log.WithFields(logrus.Fields{
		"from": s.state,
		"to":   next,
	}).Info("Session state changed")
	s.state = next
	s.bus.Publish(Event{Type: EventSession, Step: string(next)})
}

// begin moves into a ceremony state. It returns the epoch the ceremony
// must still match when it completes.
func (s *SessionService) begin(ctx context.Context, next model.AuthState) (uint64, error) {
	if !s.Capability(ctx) {
		return 0, ErrCapabilityUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return 0, ErrAuthInProgress
	}
	if s.state == model.AuthAuthenticated {
		return 0, ErrAlreadyAuthenticated
	}
	s.busy = true
	s.lastError = ""
	s.setStateLocked(next)
	return s.epoch, nil
}

// fail ends a ceremony in Failed; the next Register or SignIn starts over.
func (s *SessionService) fail(epoch uint64, err error) (model.SessionStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch {
		return s.statusLocked(), ErrSessionChanged
	}
	s.busy = false
	s.lastError = err.Error()
	s.setStateLocked(model.AuthFailed)
	logger.Log.WithError(err).Warn("Authentication failed")
	return s.statusLocked(), err
}

func (s *SessionService) authenticate(epoch uint64, acc *model.Account, credentialID string) (model.SessionStatus, error) {
	sessionID := uuid.NewString()
	token, err := s.tokens.IssueAccessToken(acc, sessionID)
	if err != nil {
		return s.fail(epoch, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch {
		return s.statusLocked(), ErrSessionChanged
	}
	s.busy = false
	s.account = acc
	s.credentialID = credentialID
	s.accessToken = token
	s.sessionID = sessionID
	s.lastError = ""
	s.setStateLocked(model.AuthAuthenticated)

	logger.Log.WithFields(logrus.Fields{
		"account":       acc.MaskedPublicKey(),
		"credential_id": credentialID,
	}).Info("Session authenticated")
	return s.statusLocked(), nil
}

func (s *SessionService) verified(cred *credential.Credential, challenge []byte) error {
	if err := s.challenges.Redeem(challenge); err != nil {
		return fmt.Errorf("%w: %v", ErrCredentialRejected, err)
	}
	if !credential.Verify(cred, challenge) {
		return ErrCredentialRejected
	}
	return nil
}

// Register creates a passkey and a new zero-balance account for it.
func (s *SessionService) Register(ctx context.Context) (model.SessionStatus, error) {
	epoch, err := s.begin(ctx, model.AuthRegistering)
	if err != nil {
		return s.Status(), err
	}

	challenge, err := s.challenges.Issue()
	if err != nil {
		return s.fail(epoch, err)
	}
	userHandle := uuid.New()

	cred, err := s.provider.Create(ctx, s.rp, userHandle[:], challenge)
	if err != nil {
		return s.fail(epoch, err)
	}
	if err := s.verified(cred, challenge); err != nil {
		return s.fail(epoch, err)
	}

	acc, err := s.deriver.Derive(cred)
	if err != nil {
		return s.fail(epoch, err)
	}

	if !s.ownsEpoch(epoch) {
		return s.Status(), ErrSessionChanged
	}
	snap := &model.SessionSnapshot{IsAuthenticated: true, Account: acc.Clone(), CredentialID: cred.ID}
	if err := s.store.Save(ctx, snap); err != nil {
		return s.fail(epoch, fmt.Errorf("failed to persist session: %w", err))
	}

	status, err := s.authenticate(epoch, acc, cred.ID)
	if errors.Is(err, ErrSessionChanged) {
		// A logout landed between Save and authenticate.
		s.mu.Lock()
		idle := !s.busy && s.state != model.AuthAuthenticated
		s.mu.Unlock()
		if idle {
			s.clearStore(ctx)
		}
	}
	return status, err
}

func (s *SessionService) ownsEpoch(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch == epoch
}

// SignIn asserts the stored passkey and resumes the stored account.
func (s *SessionService) SignIn(ctx context.Context) (model.SessionStatus, error) {
	epoch, err := s.begin(ctx, model.AuthSigningIn)
	if err != nil {
		return s.Status(), err
	}

	snap, err := s.loadSnapshot(ctx)
	if err != nil {
		return s.fail(epoch, err)
	}

	var allowed []string
	if snap != nil && snap.CredentialID != "" {
		allowed = []string{snap.CredentialID}
	}

	challenge, err := s.challenges.Issue()
	if err != nil {
		return s.fail(epoch, err)
	}
	cred, err := s.provider.Get(ctx, allowed, challenge)
	if err != nil {
		return s.fail(epoch, err)
	}
	if err := s.verified(cred, challenge); err != nil {
		return s.fail(epoch, err)
	}

	if snap == nil || (snap.CredentialID != "" && snap.CredentialID != cred.ID) {
		return s.fail(epoch, ErrAccountNotFound)
	}

	snap.IsAuthenticated = true
	snap.CredentialID = cred.ID
	if err := s.store.Save(ctx, snap); err != nil {
		logger.Log.WithError(err).Warn("Failed to persist session after sign-in")
	}

	return s.authenticate(epoch, snap.Account.Clone(), cred.ID)
}

// loadSnapshot returns the stored snapshot, nil when there is none, and
// discards a corrupt or invalid one.
func (s *SessionService) loadSnapshot(ctx context.Context) (*model.SessionSnapshot, error) {
	snap, err := s.store.Load(ctx)
	switch {
	case errors.Is(err, repository.ErrSessionNotFound):
		return nil, nil
	case errors.Is(err, repository.ErrSessionCorrupt):
		logger.Log.WithError(err).Warn("Discarding corrupt session")
		s.clearStore(ctx)
		return nil, nil
	case err != nil:
		return nil, err
	}

	if err := common.Validate(snap); err != nil {
		logger.Log.WithError(err).Warn("Discarding invalid session")
		s.clearStore(ctx)
		return nil, nil
	}
	if snap.Account.Balance.IsNegative() {
		logger.Log.WithField("balance", snap.Account.Balance.String()).Warn("Discarding session with a negative balance")
		s.clearStore(ctx)
		return nil, nil
	}
	return snap, nil
}

func (s *SessionService) clearStore(ctx context.Context) {
	if err := s.store.Clear(ctx); err != nil {
		logger.Log.WithError(err).Error("Failed to clear session store")
	}
}

// Restore resumes a persisted authenticated session without a passkey
// ceremony. Anything else leaves the controller unauthenticated.
func (s *SessionService) Restore(ctx context.Context) (model.SessionStatus, error) {
	s.Capability(ctx)

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return s.Status(), ErrAuthInProgress
	}
	if s.state == model.AuthAuthenticated {
		defer s.mu.Unlock()
		return s.statusLocked(), nil
	}
	epoch := s.epoch
	s.busy = true
	s.mu.Unlock()

	snap, err := s.loadSnapshot(ctx)
	if err != nil || snap == nil || !snap.IsAuthenticated {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.epoch == epoch {
			s.busy = false
			s.setStateLocked(model.AuthUnauthenticated)
		}
		return s.statusLocked(), err
	}

	return s.authenticate(epoch, snap.Account.Clone(), snap.CredentialID)
}

// Logout ends the session, disposes any active payment and forgets the
// stored credential reference and account.
func (s *SessionService) Logout(ctx context.Context) model.SessionStatus {
	hooks, _ := s.end()
	for _, fn := range hooks {
		fn(ctx)
	}
	s.clearStore(ctx)
	logger.Log.Info("Session logged out")
	return s.Status()
}

// Lock ends the session but keeps the stored account so SignIn can
// resume it.
func (s *SessionService) Lock(ctx context.Context) (model.SessionStatus, error) {
	hooks, snap := s.end()
	if snap == nil {
		return s.Status(), ErrNotAuthenticated
	}
	for _, fn := range hooks {
		fn(ctx)
	}
	if err := s.store.Save(ctx, snap); err != nil {
		logger.Log.WithError(err).Error("Failed to persist locked session")
	}
	return s.Status(), nil
}

// end drops the in-memory session. The returned snapshot is the locked
// form of the session that ended, or nil if none was authenticated.
func (s *SessionService) end() ([]func(ctx context.Context), *model.SessionSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var snap *model.SessionSnapshot
	if s.state == model.AuthAuthenticated && s.account != nil {
		snap = &model.SessionSnapshot{Account: s.account.Clone(), CredentialID: s.credentialID}
	}

	s.epoch++
	s.busy = false
	s.account = nil
	s.credentialID = ""
	s.accessToken = ""
	s.sessionID = ""
	s.lastError = ""
	s.setStateLocked(model.AuthUnauthenticated)
	return append([]func(ctx context.Context){}, s.onLogout...), snap
}

func (s *SessionService) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken
}

// VerifyAccessToken accepts only tokens issued to the current session.
// Tokens from before a logout or lock stay invalid after the same account
// signs in again.
func (s *SessionService) VerifyAccessToken(token string) (*model.AppClaims, error) {
	claims, err := s.tokens.ParseAccessToken(token)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != model.AuthAuthenticated || s.account == nil ||
		s.account.PublicKey != claims.AccountKey || claims.ID == "" || claims.ID != s.sessionID {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *SessionService) CurrentAccount() (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != model.AuthAuthenticated || s.account == nil {
		return nil, ErrNotAuthenticated
	}
	return s.account.Clone(), nil
}

func (s *SessionService) Credit(ctx context.Context, accountKey string, amount decimal.Decimal) (*model.Account, error) {
	return s.adjust(ctx, accountKey, amount)
}

func (s *SessionService) Debit(ctx context.Context, accountKey string, amount decimal.Decimal) (*model.Account, error) {
	return s.adjust(ctx, accountKey, amount.Neg())
}

func (s *SessionService) adjust(ctx context.Context, accountKey string, delta decimal.Decimal) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != model.AuthAuthenticated || s.account == nil {
		return nil, ErrNotAuthenticated
	}
	if s.account.PublicKey != accountKey {
		return nil, ErrAccountChanged
	}
	next := s.account.Balance.Add(delta)
	if next.IsNegative() {
		return nil, ErrInsufficientFunds
	}
	s.account.Balance = next

	logger.Log.WithFields(logrus.Fields{
		"account": s.account.MaskedPublicKey(),
		"delta":   delta.String(),
		"balance": next.String(),
	}).Info("Account balance updated")

	snap := &model.SessionSnapshot{IsAuthenticated: true, Account: s.account.Clone(), CredentialID: s.credentialID}
	if err := s.store.Save(ctx, snap); err != nil {
		logger.Log.WithError(err).Error("Failed to persist balance change")
	}
	return s.account.Clone(), nil
}
