// Package voice owns the connection to one voice channel per guild and
// streams a single active track over it. State machine:
// Disconnected -> Connecting -> Connected -> (Playing|Paused) -> Disconnected.
package voice

import (
	"errors"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/keshon/jukebox/internal/music/track"
)

var (
	ErrNotConnected = errors.New("voice session is not connected")
	ErrBusy         = errors.New("a stream is already active")
)

// Session wraps one discordgo voice connection. Public calls are
// serialized by the owning engine's lock; the internal mutex only
// shields state touched by the streaming goroutine.
type Session struct {
	dg      *discordgo.Session
	guildID string

	mu       sync.Mutex
	vc       *discordgo.VoiceConnection
	playing  bool
	paused   bool
	stop     chan struct{}
	stopOnce *sync.Once
}

func NewSession(dg *discordgo.Session, guildID string) *Session {
	return &Session{dg: dg, guildID: guildID}
}

// Connect joins the given voice channel. It is a no-op when already
// connected somewhere. If the gateway reports an inconsistent "already
// connected" state, the stale connection is forcibly dropped and the
// join retried exactly once before the failure surfaces.
func (s *Session) Connect(channelID string) error {
	s.mu.Lock()
	if s.vc != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	vc, err := s.dg.ChannelVoiceJoin(s.guildID, channelID, false, true)
	if err != nil {
		stale := s.dg.VoiceConnections[s.guildID]
		if stale == nil {
			return err
		}
		log.Warn().Str("guild", s.guildID).Str("channel", channelID).
			Msg("stale voice connection detected, resyncing and retrying join")
		_ = stale.Disconnect()
		vc, err = s.dg.ChannelVoiceJoin(s.guildID, channelID, false, true)
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.vc = vc
	s.mu.Unlock()
	return nil
}

// Play begins streaming the track and guarantees exactly one Completion
// on sink, whether the stream drains, is stopped, or errors.
func (s *Session) Play(t track.Track, sink chan<- Completion) error {
	s.mu.Lock()
	if s.vc == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	if s.playing {
		s.mu.Unlock()
		return ErrBusy
	}
	vc := s.vc
	stop := make(chan struct{})
	once := &sync.Once{}
	s.stop = stop
	s.stopOnce = once
	s.playing = true
	s.paused = false
	s.mu.Unlock()

	stream, cleanup, err := openStream(t.StreamURL, t.Seek)
	if err != nil {
		s.mu.Lock()
		s.playing = false
		s.mu.Unlock()
		return err
	}

	go func() {
		defer cleanup()
		_ = vc.Speaking(true)

		reason, serr := streamFrames(stream, vc, stop, s.isPaused)

		_ = vc.Speaking(false)
		s.mu.Lock()
		s.playing = false
		s.paused = false
		s.mu.Unlock()

		sink <- Completion{GuildID: s.guildID, Reason: reason, Err: serr}
	}()

	return nil
}

// Pause suspends frame delivery. No-op without an active stream.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing {
		s.paused = true
	}
}

// Resume reverses Pause. No-op without an active stream.
func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing {
		s.paused = false
	}
}

// Stop ends the active stream early. The completion still fires, with
// reason "stopped" and no error.
func (s *Session) Stop() {
	s.mu.Lock()
	once, stop := s.stopOnce, s.stop
	s.mu.Unlock()
	if once != nil && stop != nil {
		once.Do(func() { close(stop) })
	}
}

// Disconnect stops any active stream and tears the connection down.
// Further operations need a new Connect.
func (s *Session) Disconnect() {
	s.Stop()
	s.mu.Lock()
	vc := s.vc
	s.vc = nil
	s.mu.Unlock()
	if vc != nil {
		if err := vc.Disconnect(); err != nil {
			log.Warn().Err(err).Str("guild", s.guildID).Msg("voice disconnect failed")
		}
	}
}

// Drop forgets the connection without the disconnect handshake. Used
// when the platform already tore the connection down from its side.
func (s *Session) Drop() {
	s.Stop()
	s.mu.Lock()
	s.vc = nil
	s.mu.Unlock()
}

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vc != nil
}

func (s *Session) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing && !s.paused
}

func (s *Session) ChannelID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vc == nil {
		return ""
	}
	return s.vc.ChannelID
}

// Listeners counts occupants of the connected channel, the bot
// included. Zero when disconnected.
func (s *Session) Listeners() int {
	return len(s.ListenerIDs())
}

// ListenerIDs returns the user ids currently in the connected channel.
func (s *Session) ListenerIDs() []string {
	channelID := s.ChannelID()
	if channelID == "" {
		return nil
	}
	guild, err := s.dg.State.Guild(s.guildID)
	if err != nil || guild == nil {
		return nil
	}
	var ids []string
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID == channelID {
			ids = append(ids, vs.UserID)
		}
	}
	return ids
}

func (s *Session) isPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}
