// Package engine implements the per-guild playback state machine: one
// queue, zero-or-one voice session, and the continuation protocol that
// advances the queue when a track stops playing.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/keshon/jukebox/internal/music/queue"
	"github.com/keshon/jukebox/internal/music/track"
	"github.com/keshon/jukebox/internal/music/voice"
)

var (
	ErrNoVoiceChannel = errors.New("no voice channel to join")
	ErrNothingQueued  = errors.New("nothing in the queue")
)

// Session is the slice of the voice layer the engine drives.
type Session interface {
	Connect(channelID string) error
	Play(t track.Track, sink chan<- voice.Completion) error
	Pause()
	Resume()
	Stop()
	Disconnect()
	Drop()
	Connected() bool
	Playing() bool
	ChannelID() string
	Listeners() int
	ListenerIDs() []string
}

// SessionFactory builds a fresh voice session for the guild. Injected
// so tests can drive the engine without a gateway.
type SessionFactory func(guildID string) Session

// Recorder is the fire-and-forget statistics collaborator. Failures are
// logged and never block playback.
type Recorder interface {
	RecordTrackPlay(t track.Track, userID, guildID string) (string, error)
	RecordListeners(playID string, listenerIDs []string) error
}

// Options tune engine background behavior.
type Options struct {
	EvictionInterval time.Duration // idle sweep period
	HistoryWindow    int           // trailing played slots kept by eviction
}

func (o *Options) fill() {
	if o.EvictionInterval <= 0 {
		o.EvictionInterval = 2 * time.Minute
	}
	if o.HistoryWindow <= 0 {
		o.HistoryWindow = 4
	}
}

// Engine is the per-guild playback actor. All queue/session mutation
// happens under mu; track resolution happens in the callers, before the
// lock, so a slow resolver never blocks the guild's other commands.
type Engine struct {
	guildID    string
	newSession SessionFactory
	stats      Recorder
	opts       Options

	// continuation messages from the voice session; single consumer
	completions chan voice.Completion

	mu      sync.Mutex
	q       *queue.Queue
	session Session

	// one-shot flags, guarded by mu
	seeking         bool // suppresses seek-residue cleanup right after a seek restart
	skipping        bool // a skip is in flight; skipTarget holds its landing index
	userDisconnect  bool // operator/eviction initiated leave in progress
	forceDisconnect bool // platform kicked us out of voice

	skipTarget int
}

func New(guildID string, newSession SessionFactory, stats Recorder, opts Options) *Engine {
	opts.fill()
	return &Engine{
		guildID:     guildID,
		newSession:  newSession,
		stats:       stats,
		opts:        opts,
		completions: make(chan voice.Completion, 8),
		q:           queue.New(),
	}
}

// Run consumes continuation messages and drives the idle-eviction sweep
// until ctx is cancelled. It must run exactly once per engine; the
// registry owns its lifetime.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.opts.EvictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.teardown()
			return
		case c := <-e.completions:
			e.handleCompletion(c)
		case <-ticker.C:
			e.evictIdle()
		}
	}
}

// Play enqueues a track (when given) and starts playback if nothing is
// playing. channelID is the voice channel to join; empty means "stay
// where we are" and requires an existing session.
func (e *Engine) Play(requesterID string, t *track.Track, channelID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		if channelID == "" {
			return ErrNoVoiceChannel
		}
		e.session = e.newSession(e.guildID)
	}
	if !e.session.Connected() {
		if channelID == "" {
			return ErrNoVoiceChannel
		}
		if err := e.session.Connect(channelID); err != nil {
			return err
		}
	}

	if t != nil {
		e.q.Enqueue(*t)
		log.Info().Str("guild", e.guildID).Str("user", requesterID).
			Str("title", t.Title).Int("queue_len", e.q.Len()).Msg("track queued")
	}

	if e.session.Playing() {
		return nil
	}
	return e.startCurrentLocked()
}

// startCurrentLocked dequeues-and-starts the track at the cursor.
// Callers hold mu.
func (e *Engine) startCurrentLocked() error {
	cur, ok := e.q.Current()
	if !ok {
		return ErrNothingQueued
	}

	if err := e.session.Play(cur, e.completions); err != nil {
		log.Error().Err(err).Str("guild", e.guildID).Str("title", cur.Title).
			Msg("failed to start track")
		return err
	}

	now := time.Now()
	e.q.MarkPlayed(e.q.Cursor(), now)

	log.Info().Str("guild", e.guildID).Str("title", cur.Title).
		Str("requester", cur.RequesterName).
		Dur("requested_ago", now.Sub(cur.Requested).Truncate(time.Second)).
		Msg("playing track")

	// Seek restarts replay the same song; only count fresh starts.
	if cur.Seek == 0 && e.stats != nil {
		listeners := e.session.ListenerIDs()
		go e.recordPlay(cur, listeners)
	}
	return nil
}

func (e *Engine) recordPlay(t track.Track, listeners []string) {
	playID, err := e.stats.RecordTrackPlay(t, t.RequesterID, e.guildID)
	if err != nil {
		log.Warn().Err(err).Str("guild", e.guildID).Msg("failed to record track play")
		return
	}
	if err := e.stats.RecordListeners(playID, listeners); err != nil {
		log.Warn().Err(err).Str("guild", e.guildID).Msg("failed to record listeners")
	}
}

// Pause suspends the active stream; no-op on an exhausted queue.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil && !e.q.Exhausted() {
		e.session.Pause()
	}
}

// Resume reverses Pause; no-op on an exhausted queue.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil && !e.q.Exhausted() {
		e.session.Resume()
	}
}

// Skip moves n tracks forward (n may be negative to replay). The active
// stream is stopped so the continuation path, and only it, starts the
// next track. Skipping past the last playing track is allowed and
// exhausts the queue; skipping while nothing plays is a no-op.
func (e *Engine) Skip(n int) {
	e.mu.Lock()
	if e.session == nil || !e.session.Playing() {
		e.mu.Unlock()
		return
	}

	target := e.q.Cursor() + n
	switch {
	case target >= 0 && target < e.q.Len():
	case e.q.Cursor() == e.q.Len()-1 && n == 1:
		// Skipping the last track runs off the end and exhausts the queue.
	default:
		e.mu.Unlock()
		return
	}
	// The cursor stays on the playing slot; the continuation jumps
	// straight to the recorded target.
	e.skipping = true
	e.skipTarget = target
	session := e.session
	e.mu.Unlock()

	log.Info().Str("guild", e.guildID).Int("n", n).Msg("skipping")
	session.Stop()
}

// Seek restarts the current track at the parsed offset. Malformed
// timestamps are rejected without touching any state; offsets past the
// known duration clamp to zero. A copy of the current track carrying
// the offset is inserted right after the current slot and the stream is
// stopped, so the continuation advances into the seek-augmented copy.
func (e *Engine) Seek(stamp string) error {
	offset, err := parseTimestamp(stamp)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.session == nil || !e.session.Playing() {
		e.mu.Unlock()
		return nil
	}
	cur, ok := e.q.Current()
	if !ok {
		e.mu.Unlock()
		return nil
	}
	if cur.HasDuration() && offset > cur.Duration {
		offset = 0
	}
	e.q.InsertNext(cur.WithSeek(offset))
	e.seeking = true
	session := e.session
	e.mu.Unlock()

	log.Info().Str("guild", e.guildID).Str("title", cur.Title).
		Dur("offset", offset).Msg("seeking")
	session.Stop()
	return nil
}

// Shuffle permutes the upcoming tracks; history and the current track
// keep their order and positions.
func (e *Engine) Shuffle() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.q.ShuffleRemaining()
	log.Info().Str("guild", e.guildID).Msg("queue shuffled")
}

// ClearAll empties the queue and stops the active stream. Escape hatch
// for runaway state.
func (e *Engine) ClearAll() {
	e.mu.Lock()
	e.q.Clear()
	e.seeking = false
	e.skipping = false
	session := e.session
	e.mu.Unlock()

	log.Info().Str("guild", e.guildID).Msg("queue cleared")
	if session != nil {
		session.Stop()
	}
}

// Summary renders the queue; see queue.Summary.
func (e *Engine) Summary(now time.Time) []string {
	e.mu.Lock()
	seq := e.q.Summary(now)
	e.mu.Unlock()

	var lines []string
	for line := range seq {
		lines = append(lines, line)
	}
	return lines
}

// QueueState exposes cursor and length for status display.
func (e *Engine) QueueState() (cursor, length int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.q.Cursor(), e.q.Len()
}

// handleCompletion is the continuation protocol. It is only ever
// invoked from the Run goroutine.
func (e *Engine) handleCompletion(c voice.Completion) {
	if c.Err != nil {
		// A broken stream must not spin the queue.
		log.Error().Err(c.Err).Str("guild", e.guildID).Msg("stream ended with error, not advancing")
		return
	}

	e.mu.Lock()

	// Clear one-shot seek residue on the just-finished track, unless a
	// seek caused this very completion. The cursor only ever moves below,
	// so it still points at that track here. Residue goes first: it must
	// not outlive a kick or an eviction.
	if !e.seeking {
		e.q.ClearSeek(e.q.Cursor())
	} else {
		e.seeking = false
	}

	if e.forceDisconnect || e.userDisconnect {
		e.forceDisconnect = false
		e.skipping = false
		e.mu.Unlock()
		return
	}

	if e.skipping {
		e.skipping = false
		e.q.Skip(e.skipTarget - e.q.Cursor())
	} else {
		e.q.Advance()
	}

	next, inRange := e.q.Current()
	session := e.session
	e.mu.Unlock()

	if !inRange || session == nil || session.Listeners() <= 1 {
		return
	}

	// Start the next slot attributed to whoever queued it, not whoever
	// triggered this completion.
	go func() {
		if err := e.Play(next.RequesterID, nil, ""); err != nil {
			log.Warn().Err(err).Str("guild", e.guildID).Msg("continuation failed to start next track")
		}
	}()
}

// evictIdle trims played history and disconnects abandoned sessions.
// Either trigger alone suffices: an empty channel, or silence.
func (e *Engine) evictIdle() {
	e.mu.Lock()

	if removed := e.q.TrimBefore(e.q.Cursor() - e.opts.HistoryWindow); removed > 0 {
		if e.skipping {
			e.skipTarget = max(e.skipTarget-removed, 0)
		}
		log.Info().Str("guild", e.guildID).Int("removed", removed).Msg("trimmed played queue history")
	}

	session := e.session
	if session == nil || !session.Connected() {
		e.mu.Unlock()
		return
	}
	if session.Listeners() > 1 && session.Playing() {
		e.mu.Unlock()
		return
	}

	// Mark the leave as ours and synthesize the completion first, so
	// the continuation bookkeeping matches a real disconnect.
	e.userDisconnect = true
	channelID := session.ChannelID()
	e.mu.Unlock()

	session.Stop()
	session.Disconnect()

	e.mu.Lock()
	e.q.SkipToEnd()
	e.session = nil
	e.mu.Unlock()

	log.Info().Str("guild", e.guildID).Str("channel", channelID).Msg("idle voice session evicted")
}

// HandleVoiceDropped is called by the gateway layer when the bot's own
// voice state loses its channel. An unplanned drop becomes a forced
// disconnect so the continuation neither advances nor reconnects; a
// planned one just consumes the userDisconnect marker.
func (e *Engine) HandleVoiceDropped() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.userDisconnect {
		e.forceDisconnect = true
		if e.session != nil {
			e.session.Drop()
			e.session = nil
		}
		log.Warn().Str("guild", e.guildID).Msg("forcefully disconnected from voice")
		return
	}
	e.userDisconnect = false
}

// teardown releases the session on guild removal.
func (e *Engine) teardown() {
	e.mu.Lock()
	session := e.session
	e.session = nil
	e.userDisconnect = true
	e.mu.Unlock()

	if session != nil {
		session.Disconnect()
	}
}
