// Package queue implements the per-guild playback queue: an ordered
// track list plus a current-position cursor. The queue carries no lock
// of its own; it is owned by exactly one playback engine and mutated
// only inside that engine's lock.
package queue

import (
	"math/rand"
	"time"

	"github.com/keshon/jukebox/internal/music/track"
)

// Queue holds tracks in play order. The cursor partitions it into
// played / current / upcoming; cursor == Len() means exhausted.
type Queue struct {
	tracks []track.Track
	cur    int
}

func New() *Queue {
	return &Queue{}
}

func (q *Queue) Len() int { return len(q.tracks) }

// Cursor returns the current index. Invariant: 0 <= Cursor() <= Len().
func (q *Queue) Cursor() int { return q.cur }

// Exhausted reports whether nothing is at the cursor.
func (q *Queue) Exhausted() bool { return q.cur >= len(q.tracks) }

// Current returns the track at the cursor.
func (q *Queue) Current() (track.Track, bool) {
	if q.Exhausted() {
		return track.Track{}, false
	}
	return q.tracks[q.cur], true
}

// At returns the track at index i.
func (q *Queue) At(i int) (track.Track, bool) {
	if i < 0 || i >= len(q.tracks) {
		return track.Track{}, false
	}
	return q.tracks[i], true
}

// Enqueue appends a track to the end of the queue.
func (q *Queue) Enqueue(t track.Track) {
	q.tracks = append(q.tracks, t)
}

// InsertNext places a track immediately after the cursor. It is a no-op
// on an exhausted queue; seek-as-restart never targets one.
func (q *Queue) InsertNext(t track.Track) bool {
	if q.Exhausted() {
		return false
	}
	i := q.cur + 1
	q.tracks = append(q.tracks, track.Track{})
	copy(q.tracks[i+1:], q.tracks[i:])
	q.tracks[i] = t
	return true
}

// Advance moves the cursor forward by one; past the end it is a no-op
// and the queue stays exhausted.
func (q *Queue) Advance() {
	if q.cur < len(q.tracks) {
		q.cur++
	}
}

// Skip moves the cursor by n, clamped to [0, Len()].
func (q *Queue) Skip(n int) {
	q.cur += n
	if q.cur < 0 {
		q.cur = 0
	}
	if q.cur > len(q.tracks) {
		q.cur = len(q.tracks)
	}
}

// SkipToEnd exhausts the queue without touching its contents.
func (q *Queue) SkipToEnd() {
	q.cur = len(q.tracks)
}

// ShuffleRemaining uniformly permutes the tracks strictly after the
// cursor. Played tracks and the current one keep their positions.
func (q *Queue) ShuffleRemaining() {
	rest := q.tracks[min(q.cur+1, len(q.tracks)):]
	rand.Shuffle(len(rest), func(i, j int) {
		rest[i], rest[j] = rest[j], rest[i]
	})
}

// Clear removes all tracks and resets the queue to the exhausted state.
func (q *Queue) Clear() {
	q.tracks = nil
	q.cur = 0
}

// TrimBefore drops everything before index i and shifts the cursor
// accordingly. Returns the number of tracks removed. Used by idle
// eviction to bound memory on long-lived guilds; the caller guarantees
// i <= cursor so the current slot is never dropped.
func (q *Queue) TrimBefore(i int) int {
	if i <= 0 {
		return 0
	}
	if i > q.cur {
		i = q.cur
	}
	q.tracks = append(q.tracks[:0:0], q.tracks[i:]...)
	q.cur -= i
	return i
}

// MarkPlayed records when the track at index i first started playing.
func (q *Queue) MarkPlayed(i int, at time.Time) {
	if i >= 0 && i < len(q.tracks) {
		q.tracks[i].Played = at
	}
}

// ClearSeek removes leftover seek offset from the track at index i, so
// a replay of that slot starts from the beginning again.
func (q *Queue) ClearSeek(i int) {
	if i >= 0 && i < len(q.tracks) {
		q.tracks[i].Seek = 0
	}
}

// Tracks returns a copy of the queue contents, oldest first.
func (q *Queue) Tracks() []track.Track {
	out := make([]track.Track, len(q.tracks))
	copy(out, q.tracks)
	return out
}
