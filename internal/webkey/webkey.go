// Package webkey implements the one-time web-authentication exchange:
// a short-lived URL token bound to a user, exchanged exactly once for a
// long-lived session key. State machine per user:
// no-key -> token-issued -> key-validated.
package webkey

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/keshon/jukebox/internal/stats"
)

const (
	tokenTTL = 5 * time.Minute
	keyTTL   = 180 * 24 * time.Hour
)

var (
	ErrUnknownToken = errors.New("unknown token")
	ErrTokenExpired = errors.New("token expired")
)

// Store is the slice of the statistics database the service needs.
type Store interface {
	KeyStatusForUser(userID string) (*stats.KeyStatus, error)
	KeyStatusByToken(token string) (*stats.KeyStatus, error)
	CreateKey(userID, key, token string, tokenExpires, keyExpires time.Time) error
	RegenerateToken(id int64, token string, expires time.Time) error
	RotateKey(id int64, key string, expires time.Time) error
	ValidateKey(id int64) error
}

// Issued describes a token handed to a user.
type Issued struct {
	URL     string
	Resent  bool // existing live token re-sent, no state change
	Renewed bool // previous token or key replaced
}

// Service drives the state machine on top of the store.
type Service struct {
	store   Store
	baseURL string // e.g. "http://localhost:5000"
}

func NewService(store Store, baseURL string) *Service {
	return &Service{store: store, baseURL: baseURL}
}

// Issue hands the user a keygen URL, applying the re-issue rules: a
// live unvalidated token is re-sent as is; an expired one is
// regenerated; a validated or expired key rotates both key and token.
func (s *Service) Issue(userID string) (Issued, error) {
	status, err := s.store.KeyStatusForUser(userID)
	if err != nil {
		return Issued{}, err
	}

	now := time.Now()

	if status == nil {
		token, key := randomHex(16), randomHex(128)
		if err := s.store.CreateKey(userID, key, token, now.Add(tokenTTL), now.Add(keyTTL)); err != nil {
			return Issued{}, err
		}
		return Issued{URL: s.keygenURL(token)}, nil
	}

	if !status.Validated && status.TokenExpires.After(now) {
		return Issued{URL: s.keygenURL(status.RequestToken), Resent: true}, nil
	}

	if !status.Validated {
		token := randomHex(16)
		if err := s.store.RegenerateToken(status.ID, token, now.Add(tokenTTL)); err != nil {
			return Issued{}, err
		}
		return Issued{URL: s.keygenURL(token), Renewed: true}, nil
	}

	// Validated (or the key simply ran out): rotate both.
	token, key := randomHex(16), randomHex(128)
	if err := s.store.RotateKey(status.ID, key, now.Add(keyTTL)); err != nil {
		return Issued{}, err
	}
	if err := s.store.RegenerateToken(status.ID, token, now.Add(tokenTTL)); err != nil {
		return Issued{}, err
	}
	return Issued{URL: s.keygenURL(token), Renewed: true}, nil
}

// Exchange consumes a token once and returns the long-lived key.
// A token already validated returns the key again without mutation.
func (s *Service) Exchange(token string) (key string, alreadyValidated bool, err error) {
	status, err := s.store.KeyStatusByToken(token)
	if err != nil {
		return "", false, err
	}
	if status == nil {
		return "", false, ErrUnknownToken
	}
	if status.Validated {
		return status.Key, true, nil
	}
	if status.TokenExpires.Before(time.Now()) {
		return "", false, ErrTokenExpired
	}
	if err := s.store.ValidateKey(status.ID); err != nil {
		return "", false, err
	}
	return status.Key, false, nil
}

func (s *Service) keygenURL(token string) string {
	return fmt.Sprintf("%s/keygen/%s", s.baseURL, token)
}

func randomHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
