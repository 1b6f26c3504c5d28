// Package stats is the listening-statistics and audit store, backed by
// sqlite. All recording entry points are fire-and-forget for callers:
// a failure here must never block or fail playback.
package stats

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/keshon/jukebox/internal/music/track"
)

// Store wraps the statistics database.
type Store struct {
	db *sql.DB
}

// UserRef identifies a platform user for registration.
type UserRef struct {
	ID   string
	Name string
}

// TopSong is one row of a listening leaderboard.
type TopSong struct {
	Title   string
	VideoID string
	Plays   int
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open stats db: %w", err)
	}
	// sqlite tolerates a single writer; serialize through one conn.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply stats schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ensureUser returns the internal id for a platform user, creating the
// row when missing.
func (s *Store) ensureUser(id, name string) (int64, error) {
	if name == "" {
		name = id
	}
	if _, err := s.db.Exec(
		`INSERT OR IGNORE INTO users (discord_id, name) VALUES (?, ?)`, id, name); err != nil {
		return 0, err
	}
	var fk int64
	err := s.db.QueryRow(`SELECT id FROM users WHERE discord_id = ?`, id).Scan(&fk)
	return fk, err
}

func (s *Store) ensureServer(guildID string) (int64, error) {
	var fk int64
	err := s.db.QueryRow(`SELECT id FROM servers WHERE discord_id = ?`, guildID).Scan(&fk)
	if errors.Is(err, sql.ErrNoRows) {
		// Guild seen before its registration event; owner unknown yet.
		owner, oerr := s.ensureUser(guildID, guildID)
		if oerr != nil {
			return 0, oerr
		}
		if _, ierr := s.db.Exec(
			`INSERT OR IGNORE INTO servers (discord_id, name, owner) VALUES (?, ?, ?)`,
			guildID, guildID, owner); ierr != nil {
			return 0, ierr
		}
		err = s.db.QueryRow(`SELECT id FROM servers WHERE discord_id = ?`, guildID).Scan(&fk)
	}
	return fk, err
}

// RegisterUsers upserts platform users.
func (s *Store) RegisterUsers(users []UserRef) error {
	for _, u := range users {
		if _, err := s.ensureUser(u.ID, u.Name); err != nil {
			return err
		}
	}
	return nil
}

// RegisterServer upserts a guild with its owner.
func (s *Store) RegisterServer(guildID, name, ownerID string) error {
	owner, err := s.ensureUser(ownerID, "")
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO servers (discord_id, name, owner) VALUES (?, ?, ?)
		 ON CONFLICT(discord_id) DO UPDATE SET name = excluded.name, owner = excluded.owner`,
		guildID, name, owner)
	return err
}

// RegisterMemberships links users to a guild.
func (s *Store) RegisterMemberships(guildID string, userIDs []string) error {
	server, err := s.ensureServer(guildID)
	if err != nil {
		return err
	}
	for _, id := range userIDs {
		user, err := s.ensureUser(id, "")
		if err != nil {
			return err
		}
		if _, err := s.db.Exec(
			`INSERT OR IGNORE INTO user_membership (server_id, user_id) VALUES (?, ?)`,
			server, user); err != nil {
			return err
		}
	}
	return nil
}

// RemoveMembership unlinks a user from a guild.
func (s *Store) RemoveMembership(guildID, userID string) error {
	_, err := s.db.Exec(
		`DELETE FROM user_membership
		 WHERE server_id = (SELECT id FROM servers WHERE discord_id = ?)
		   AND user_id   = (SELECT id FROM users WHERE discord_id = ?)`,
		guildID, userID)
	return err
}

// RecordCommand logs one executed command.
func (s *Store) RecordCommand(text, userID, guildID string) error {
	user, err := s.ensureUser(userID, "")
	if err != nil {
		return err
	}
	server, err := s.ensureServer(guildID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO command_log (server, user, command, executed_at) VALUES (?, ?, ?, ?)`,
		server, user, text, time.Now())
	return err
}

// RecordTrackPlay logs a started track and returns its play id.
func (s *Store) RecordTrackPlay(t track.Track, userID, guildID string) (string, error) {
	user, err := s.ensureUser(userID, t.RequesterName)
	if err != nil {
		return "", err
	}
	server, err := s.ensureServer(guildID)
	if err != nil {
		return "", err
	}

	playID := uuid.NewString()
	_, err = s.db.Exec(
		`INSERT INTO songs (play_id, server, requestee, date_requested, video_id, video_name, video_len)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		playID, server, user, t.Requested, t.SourceID, t.Title, int(t.Duration.Seconds()))
	if err != nil {
		return "", err
	}
	return playID, nil
}

// RecordListeners attaches the channel occupants to a recorded play.
func (s *Store) RecordListeners(playID string, listenerIDs []string) error {
	var songID int64
	if err := s.db.QueryRow(`SELECT id FROM songs WHERE play_id = ?`, playID).Scan(&songID); err != nil {
		return err
	}
	for _, id := range listenerIDs {
		user, err := s.ensureUser(id, "")
		if err != nil {
			return err
		}
		if _, err := s.db.Exec(
			`INSERT INTO song_listeners (song_id, user) VALUES (?, ?)`, songID, user); err != nil {
			return err
		}
	}
	return nil
}

// TopScope selects a leaderboard flavor.
type TopScope string

const (
	TopLocal  TopScope = "local"  // one user in one guild
	TopGlobal TopScope = "global" // one user everywhere
	TopServer TopScope = "server" // everyone in one guild
)

// TopSongs returns the ten most-played songs for the given scope.
func (s *Store) TopSongs(scope TopScope, userID, guildID string) ([]TopSong, error) {
	base := `SELECT video_name, video_id, COUNT(*) AS plays FROM songs sng`
	var where string
	var args []any

	switch scope {
	case TopLocal:
		where = ` JOIN users u ON u.id = sng.requestee JOIN servers sv ON sv.id = sng.server
			WHERE u.discord_id = ? AND sv.discord_id = ?`
		args = []any{userID, guildID}
	case TopGlobal:
		where = ` JOIN users u ON u.id = sng.requestee WHERE u.discord_id = ?`
		args = []any{userID}
	case TopServer:
		where = ` JOIN servers sv ON sv.id = sng.server WHERE sv.discord_id = ?`
		args = []any{guildID}
	default:
		return nil, fmt.Errorf("unknown top scope %q", scope)
	}

	rows, err := s.db.Query(base+where+` GROUP BY video_id ORDER BY plays DESC LIMIT 10`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TopSong
	for rows.Next() {
		var ts TopSong
		if err := rows.Scan(&ts.Title, &ts.VideoID, &ts.Plays); err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}
