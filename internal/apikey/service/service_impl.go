package service

import (
	"context"
	"crypto/subtle"
	"sync"

	"github.com/smallbiznis/taxverify/internal/apikey/domain"
	"github.com/smallbiznis/taxverify/internal/config"
	"github.com/smallbiznis/taxverify/internal/redact"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

const (
	// maxConcurrentBcrypt bounds the CPU unauthenticated callers can spend.
	maxConcurrentBcrypt = 2
	// maxRememberedTokens bounds the digest -> bcrypt hash cache.
	maxRememberedTokens = 256
)

type Params struct {
	fx.In

	Log    *zap.Logger
	Policy *config.PolicyHolder
}

type Service struct {
	log    *zap.Logger
	policy *config.PolicyHolder

	compare func(hash, token []byte) error
	slots   *semaphore.Weighted

	mu         sync.Mutex
	remembered map[string]string
}

func New(p Params) domain.Service {
	return newService(p, bcrypt.CompareHashAndPassword, maxConcurrentBcrypt)
}

func newService(p Params, compare func(hash, token []byte) error, slots int64) *Service {
	return &Service{
		log:        p.Log.Named("apikey.service"),
		policy:     p.Policy,
		compare:    compare,
		slots:      semaphore.NewWeighted(slots),
		remembered: make(map[string]string),
	}
}

// Authenticate checks the token against every credential in the current
// policy. SHA-256 entries compare in constant time; bcrypt entries are only
// tried when no hash matched.
func (s *Service) Authenticate(ctx context.Context, authorization string) (*domain.Credential, error) {
	token, ok := domain.BearerToken(authorization)
	if !ok {
		return nil, domain.ErrUnauthorized
	}

	creds := s.policy.Get().Credentials
	digest := config.HashToken(token)
	presented := []byte(digest)
	matched := -1
	for i, c := range creds {
		if c.TokenSHA256 == "" {
			continue
		}
		if subtle.ConstantTimeCompare(presented, []byte(c.TokenSHA256)) == 1 && matched < 0 {
			matched = i
		}
	}
	if matched < 0 {
		matched = s.matchBcrypt(ctx, creds, digest, token)
	}

	if matched < 0 {
		s.log.Debug("bearer token rejected", zap.String("token", redact.MaskSecret(token)))
		return nil, domain.ErrUnauthorized
	}
	return &domain.Credential{Environment: creds[matched].Environment}, nil
}

// matchBcrypt returns the index of the bcrypt entry token matches, or -1.
// A token that matched before is resolved from memory as long as its entry is
// still in the policy. Comparisons share a small fixed number of slots.
func (s *Service) matchBcrypt(ctx context.Context, creds []config.Credential, digest, token string) int {
	s.mu.Lock()
	known, ok := s.remembered[digest]
	s.mu.Unlock()
	if ok {
		for i, c := range creds {
			if c.TokenBcrypt != "" && c.TokenBcrypt == known {
				return i
			}
		}
	}

	hasBcrypt := false
	for _, c := range creds {
		if c.TokenBcrypt != "" {
			hasBcrypt = true
			break
		}
	}
	if !hasBcrypt {
		return -1
	}

	if err := s.slots.Acquire(ctx, 1); err != nil {
		return -1
	}
	defer s.slots.Release(1)

	for i, c := range creds {
		if c.TokenBcrypt == "" {
			continue
		}
		if s.compare([]byte(c.TokenBcrypt), []byte(token)) == nil {
			s.remember(digest, c.TokenBcrypt)
			return i
		}
	}
	return -1
}

func (s *Service) remember(digest, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.remembered) >= maxRememberedTokens {
		clear(s.remembered)
	}
	s.remembered[digest] = hash
}
