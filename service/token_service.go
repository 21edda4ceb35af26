package service

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/smartpigdefi/smartpig/logger"
	"github.com/smartpigdefi/smartpig/model"
)

var ErrInvalidToken = errors.New("invalid or expired token")

const (
	tokenIssuer     = "smartpig"
	intentAudience  = "pix-withdraw"
	intentTTL       = 5 * time.Minute
	generatedSecret = 32
)

// TokenService issues the session access token and signs withdrawal
// intents, both as HS256 JWTs.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService falls back to a random per-process secret when secret
// is empty, so tokens do not survive a restart.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, generatedSecret)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate token secret: %w", err)
		}
		logger.Log.Warn("jwt.secret_key not set, using a random secret")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenService{secret: key, ttl: ttl, now: time.Now}, nil
}

// IssueAccessToken signs a token for acc. sessionID becomes the token ID so
// a token only verifies for the session it was issued to.
func (s *TokenService) IssueAccessToken(acc *model.Account, sessionID string) (string, error) {
	now := s.now()
	claims := &model.AppClaims{
		AccountKey: acc.PublicKey,
		ContractID: acc.ContractID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   acc.PublicKey,
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		logger.Log.WithError(err).WithField("account", acc.MaskedPublicKey()).Error("Failed to sign JWT")
		return "", fmt.Errorf("failed to sign token string: %w", err)
	}
	return signed, nil
}

func (s *TokenService) ParseAccessToken(tokenString string) (*model.AppClaims, error) {
	claims := &model.AppClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// SignWithdrawalIntent binds a withdrawal's amount and destination to the
// paying account.
func (s *TokenService) SignWithdrawalIntent(p *model.PendingPayment) (string, error) {
	now := s.now()
	claims := &model.WithdrawalIntentClaims{
		PaymentID:   p.ID.String(),
		Amount:      p.Amount.String(),
		Destination: p.Destination,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   p.AccountKey,
			Audience:  jwt.ClaimStrings{intentAudience},
			ID:        p.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(intentTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign withdrawal intent: %w", err)
	}
	return signed, nil
}
