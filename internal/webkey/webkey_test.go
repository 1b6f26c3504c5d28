package webkey

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/jukebox/internal/stats"
)

// memStore is an in-memory stand-in for the sqlite-backed key table.
type memStore struct {
	nextID  int64
	byUser  map[string]*stats.KeyStatus
	userOf  map[int64]string
	rotated int
}

func newMemStore() *memStore {
	return &memStore{byUser: map[string]*stats.KeyStatus{}, userOf: map[int64]string{}}
}

func (m *memStore) KeyStatusForUser(userID string) (*stats.KeyStatus, error) {
	if ks, ok := m.byUser[userID]; ok {
		copied := *ks
		return &copied, nil
	}
	return nil, nil
}

func (m *memStore) KeyStatusByToken(token string) (*stats.KeyStatus, error) {
	for _, ks := range m.byUser {
		if ks.RequestToken == token {
			copied := *ks
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memStore) CreateKey(userID, key, token string, tokenExpires, keyExpires time.Time) error {
	m.nextID++
	m.byUser[userID] = &stats.KeyStatus{
		ID: m.nextID, Key: key, RequestToken: token,
		TokenExpires: tokenExpires, KeyExpires: keyExpires,
	}
	m.userOf[m.nextID] = userID
	return nil
}

func (m *memStore) RegenerateToken(id int64, token string, expires time.Time) error {
	ks := m.byUser[m.userOf[id]]
	ks.RequestToken = token
	ks.TokenExpires = expires
	return nil
}

func (m *memStore) RotateKey(id int64, key string, expires time.Time) error {
	ks := m.byUser[m.userOf[id]]
	ks.Key = key
	ks.KeyExpires = expires
	ks.Validated = false
	m.rotated++
	return nil
}

func (m *memStore) ValidateKey(id int64) error {
	m.byUser[m.userOf[id]].Validated = true
	return nil
}

func TestService_IssueFreshUser(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, "http://localhost:5000")

	issued, err := svc.Issue("u1")
	require.NoError(t, err)
	assert.False(t, issued.Resent)
	assert.False(t, issued.Renewed)
	assert.True(t, strings.HasPrefix(issued.URL, "http://localhost:5000/keygen/"))

	ks := store.byUser["u1"]
	require.NotNil(t, ks)
	assert.Len(t, ks.RequestToken, 32) // 16 random bytes, hex
	assert.Len(t, ks.Key, 256)         // 128 random bytes, hex
	assert.False(t, ks.Validated)
}

func TestService_IssueResendsLiveToken(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, "http://localhost:5000")

	first, err := svc.Issue("u1")
	require.NoError(t, err)

	second, err := svc.Issue("u1")
	require.NoError(t, err)
	assert.True(t, second.Resent)
	assert.Equal(t, first.URL, second.URL, "a live token is re-sent unchanged")
}

func TestService_IssueRegeneratesExpiredToken(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, "http://localhost:5000")

	first, err := svc.Issue("u1")
	require.NoError(t, err)

	store.byUser["u1"].TokenExpires = time.Now().Add(-time.Minute)
	oldKey := store.byUser["u1"].Key

	second, err := svc.Issue("u1")
	require.NoError(t, err)
	assert.True(t, second.Renewed)
	assert.NotEqual(t, first.URL, second.URL)
	assert.Equal(t, oldKey, store.byUser["u1"].Key, "an unvalidated key survives token renewal")
	assert.Zero(t, store.rotated)
}

func TestService_IssueRotatesValidatedKey(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, "http://localhost:5000")

	_, err := svc.Issue("u1")
	require.NoError(t, err)
	oldKey := store.byUser["u1"].Key
	store.byUser["u1"].Validated = true

	issued, err := svc.Issue("u1")
	require.NoError(t, err)
	assert.True(t, issued.Renewed)
	assert.NotEqual(t, oldKey, store.byUser["u1"].Key)
	assert.False(t, store.byUser["u1"].Validated, "rotation restarts the exchange")
	assert.Equal(t, 1, store.rotated)
}

func TestService_ExchangeConsumesTokenOnce(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, "http://localhost:5000")

	_, err := svc.Issue("u1")
	require.NoError(t, err)
	token := store.byUser["u1"].RequestToken

	key, already, err := svc.Exchange(token)
	require.NoError(t, err)
	assert.False(t, already)
	assert.Equal(t, store.byUser["u1"].Key, key)
	assert.True(t, store.byUser["u1"].Validated)

	// Second exchange with the same token: same key, no state change.
	key2, already, err := svc.Exchange(token)
	require.NoError(t, err)
	assert.True(t, already)
	assert.Equal(t, key, key2)
}

func TestService_ExchangeRejectsUnknownToken(t *testing.T) {
	svc := NewService(newMemStore(), "http://localhost:5000")

	_, _, err := svc.Exchange("deadbeef")
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestService_ExchangeRejectsExpiredToken(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, "http://localhost:5000")

	_, err := svc.Issue("u1")
	require.NoError(t, err)
	store.byUser["u1"].TokenExpires = time.Now().Add(-time.Second)

	_, _, err = svc.Exchange(store.byUser["u1"].RequestToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.False(t, store.byUser["u1"].Validated)
}
