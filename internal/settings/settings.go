// Package settings persists per-guild configuration (command prefix,
// allow/deny lists, owner) in a JSON-file datastore.
package settings

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/keshon/datastore"
)

const fallbackPrefix = "+"

// GuildSettings is the stored per-guild record.
type GuildSettings struct {
	Prefix  string   `json:"prefix"`
	OwnerID string   `json:"owner_id"`
	Allowed []string `json:"allowed"` // users granted the elevated tier
	Denied  []string `json:"denied"`  // users barred from all commands
}

// Settings wraps the datastore, one record per guild id. defaultPrefix
// applies to guilds without an explicit override.
type Settings struct {
	ds            *datastore.DataStore
	developerID   string
	defaultPrefix string
}

func New(filePath, developerID, defaultPrefix string) (*Settings, error) {
	if defaultPrefix == "" {
		defaultPrefix = fallbackPrefix
	}
	ds, err := datastore.New(filePath)
	if err != nil {
		return nil, err
	}
	return &Settings{ds: ds, developerID: developerID, defaultPrefix: defaultPrefix}, nil
}

func (s *Settings) Close() error {
	return s.ds.Close()
}

// Guild returns the guild's settings, defaults when unset.
func (s *Settings) Guild(guildID string) GuildSettings {
	gs := GuildSettings{Prefix: s.defaultPrefix}

	data, ok := s.ds.Get(guildID)
	if !ok {
		return gs
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return gs
	}
	if err := json.Unmarshal(raw, &gs); err != nil {
		return gs
	}
	if gs.Prefix == "" {
		gs.Prefix = s.defaultPrefix
	}
	return gs
}

func (s *Settings) save(guildID string, gs GuildSettings) {
	s.ds.Add(guildID, gs)
}

// SetOwner records the guild owner; owners always pass elevated checks.
func (s *Settings) SetOwner(guildID, ownerID string) {
	gs := s.Guild(guildID)
	gs.OwnerID = ownerID
	s.save(guildID, gs)
}

// SetPrefix overrides the guild command prefix.
func (s *Settings) SetPrefix(guildID, prefix string) error {
	if prefix == "" {
		return fmt.Errorf("prefix must not be empty")
	}
	gs := s.Guild(guildID)
	gs.Prefix = prefix
	s.save(guildID, gs)
	return nil
}

// Allow grants a user the elevated command tier.
func (s *Settings) Allow(guildID, userID string) {
	gs := s.Guild(guildID)
	if !slices.Contains(gs.Allowed, userID) {
		gs.Allowed = append(gs.Allowed, userID)
	}
	gs.Denied = slices.DeleteFunc(gs.Denied, func(id string) bool { return id == userID })
	s.save(guildID, gs)
}

// Deny bars a user from all commands.
func (s *Settings) Deny(guildID, userID string) {
	gs := s.Guild(guildID)
	if !slices.Contains(gs.Denied, userID) {
		gs.Denied = append(gs.Denied, userID)
	}
	gs.Allowed = slices.DeleteFunc(gs.Allowed, func(id string) bool { return id == userID })
	s.save(guildID, gs)
}

// Remove discards a guild's record when the bot leaves.
func (s *Settings) Remove(guildID string) {
	s.ds.Delete(guildID)
}

// IsAllowed implements the router's permission check: denied users fail
// everything; the elevated tier requires guild owner, an allow-list
// entry, or the configured developer.
func (s *Settings) IsAllowed(guildID, userID string, elevated bool) bool {
	gs := s.Guild(guildID)
	if slices.Contains(gs.Denied, userID) {
		return false
	}
	if !elevated {
		return true
	}
	return userID == gs.OwnerID ||
		(s.developerID != "" && userID == s.developerID) ||
		slices.Contains(gs.Allowed, userID)
}
