// Package track defines the resolved, playable audio item that flows
// through the queue and the voice session.
package track

import (
	"path"
	"strings"
	"time"
)

// Track is immutable once resolved. The queue that holds it owns the two
// bookkeeping fields (Played, Seek) and mutates them only under the
// owning engine's lock.
type Track struct {
	Title     string
	Duration  time.Duration // 0 means unknown
	StreamURL string
	SourceID  string // youtube video id, or the raw URL for direct media
	Thumbnail string

	Seek time.Duration // start offset, applied as an ffmpeg pre-seek

	RequesterID   string
	RequesterName string
	Requested     time.Time
	Played        time.Time // zero until first dequeued and started
}

// WithSeek returns a copy of t carrying a start offset, reset to a
// not-yet-played state. Used for seek-as-restart re-insertion.
func (t Track) WithSeek(offset time.Duration) Track {
	c := t
	c.Seek = offset
	c.Played = time.Time{}
	return c
}

// HasDuration reports whether the source exposed a usable duration.
func (t Track) HasDuration() bool {
	return t.Duration > 0
}

// TitleFromURL derives a display title for direct media links,
// e.g. "https://x/y/song.mp3" -> "song".
func TitleFromURL(rawURL string) string {
	base := path.Base(rawURL)
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	if base == "" || base == "/" || base == "." {
		return "<no title>"
	}
	return base
}
