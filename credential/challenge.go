package credential

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	ChallengeSize = 32

	defaultChallengeCache = 256
	defaultChallengeTTL   = 5 * time.Minute
)

var ErrChallengeRejected = errors.New("challenge unknown, expired or already used")

// ChallengeSource hands out random challenges and accepts each one back
// exactly once.
type ChallengeSource struct {
	issued *lru.Cache[string, time.Time]
	ttl    time.Duration
	now    func() time.Time
}

func NewChallengeSource() (*ChallengeSource, error) {
	cache, err := lru.New[string, time.Time](defaultChallengeCache)
	if err != nil {
		return nil, fmt.Errorf("failed to create challenge cache: %w", err)
	}
	return &ChallengeSource{
		issued: cache,
		ttl:    defaultChallengeTTL,
		now:    time.Now,
	}, nil
}

// Issue returns a fresh challenge. Random collisions are retried.
func (s *ChallengeSource) Issue() ([]byte, error) {
	for {
		challenge := make([]byte, ChallengeSize)
		if _, err := rand.Read(challenge); err != nil {
			return nil, fmt.Errorf("failed to read random challenge: %w", err)
		}
		key := base64.RawURLEncoding.EncodeToString(challenge)
		if ok, _ := s.issued.ContainsOrAdd(key, s.now()); !ok {
			return challenge, nil
		}
	}
}

// Redeem consumes challenge. It fails when the challenge was never
// issued, was already redeemed, was evicted or is older than the TTL.
func (s *ChallengeSource) Redeem(challenge []byte) error {
	key := base64.RawURLEncoding.EncodeToString(challenge)
	issuedAt, ok := s.issued.Peek(key)
	if !ok || !s.issued.Remove(key) {
		return ErrChallengeRejected
	}
	if s.now().Sub(issuedAt) > s.ttl {
		return ErrChallengeRejected
	}
	return nil
}
