package stats

import (
	"database/sql"
	"errors"
	"time"
)

// KeyStatus is one user's position in the web-key state machine:
// no row = no-key, row with validated=0 = token-issued, validated=1 =
// key-validated.
type KeyStatus struct {
	ID           int64
	Key          string
	RequestToken string
	Validated    bool
	TokenExpires time.Time
	KeyExpires   time.Time
}

// KeyStatusForUser returns the user's key record, or nil when none.
func (s *Store) KeyStatusForUser(userID string) (*KeyStatus, error) {
	return s.keyStatus(
		`SELECT wk.id, wk.key, wk.request_token, wk.validated, wk.token_expires, wk.key_expires
		 FROM web_keys wk JOIN users u ON u.id = wk.user WHERE u.discord_id = ?`, userID)
}

// KeyStatusByToken looks a record up by its one-time token.
func (s *Store) KeyStatusByToken(token string) (*KeyStatus, error) {
	return s.keyStatus(
		`SELECT id, key, request_token, validated, token_expires, key_expires
		 FROM web_keys WHERE request_token = ?`, token)
}

func (s *Store) keyStatus(query string, arg any) (*KeyStatus, error) {
	var ks KeyStatus
	err := s.db.QueryRow(query, arg).Scan(
		&ks.ID, &ks.Key, &ks.RequestToken, &ks.Validated, &ks.TokenExpires, &ks.KeyExpires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ks, nil
}

// CreateKey starts the state machine for a user: fresh key and token
// with their independent expirations.
func (s *Store) CreateKey(userID, key, token string, tokenExpires, keyExpires time.Time) error {
	user, err := s.ensureUser(userID, "")
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO web_keys (user, key, request_token, validated, token_expires, key_expires)
		 VALUES (?, ?, ?, 0, ?, ?)`,
		user, key, token, tokenExpires, keyExpires)
	return err
}

// RegenerateToken replaces an expired token, leaving the key as is.
func (s *Store) RegenerateToken(id int64, token string, expires time.Time) error {
	_, err := s.db.Exec(
		`UPDATE web_keys SET request_token = ?, token_expires = ? WHERE id = ?`,
		token, expires, id)
	return err
}

// RotateKey replaces the key and drops validation, restarting the
// exchange.
func (s *Store) RotateKey(id int64, key string, expires time.Time) error {
	_, err := s.db.Exec(
		`UPDATE web_keys SET key = ?, key_expires = ?, validated = 0 WHERE id = ?`,
		key, expires, id)
	return err
}

// ValidateKey marks the one-time exchange as consumed.
func (s *Store) ValidateKey(id int64) error {
	_, err := s.db.Exec(`UPDATE web_keys SET validated = 1 WHERE id = ?`, id)
	return err
}
