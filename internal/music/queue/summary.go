package queue

import (
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/keshon/jukebox/internal/music/track"
)

const titleWidth = 40

// Summary renders the queue as human-readable lines, one per track,
// lazily. The returned sequence is finite and restartable; each range
// re-scans the queue state captured at call time.
//
// Each line carries the position relative to the cursor, a truncated
// title, the playback position for the current track, the duration (or
// an explicit unknown marker) and a cumulative start estimate for
// upcoming tracks. The estimate degrades to "n/a" for every track after
// the first one with unknown duration: once lost while scanning
// forward, duration integrity cannot recover.
func (q *Queue) Summary(now time.Time) iter.Seq[string] {
	tracks := q.Tracks()
	cur := q.cur

	return func(yield func(string) bool) {
		integrity := true
		var summed time.Duration

		for i, t := range tracks {
			var b strings.Builder

			fmt.Fprintf(&b, "%d: %s", i-cur, truncateTitle(t.Title))

			if i == cur && t.HasDuration() {
				fmt.Fprintf(&b, " - %s/", formatDuration(position(t, now)))
			} else {
				b.WriteString(" - ")
			}

			if t.HasDuration() {
				b.WriteString(formatDuration(t.Duration))
			} else {
				b.WriteString("<no duration>")
			}

			if i > cur {
				if integrity && t.HasDuration() {
					fmt.Fprintf(&b, " -> (est. %s)", formatDuration(summed))
				} else {
					b.WriteString(" -> (est. n/a)")
				}
			}

			if i == cur {
				b.WriteString(" ---playing---")
			}

			if !yield(b.String()) {
				return
			}

			if !t.HasDuration() && i >= cur {
				integrity = false
			}
			if integrity && i > cur {
				summed += t.Duration
			}
			if integrity && i == cur {
				summed += t.Duration - position(t, now)
			}
		}
	}
}

// position is the playback position of the current track: wall time
// since it started plus its pre-seek offset.
func position(t track.Track, now time.Time) time.Duration {
	elapsed := now.Sub(t.Played).Truncate(time.Second)
	if elapsed < 0 || t.Played.IsZero() {
		elapsed = 0
	}
	return elapsed + t.Seek
}

func truncateTitle(title string) string {
	if title == "" {
		title = "<no title>"
	}
	runes := []rune(title)
	if len(runes) <= titleWidth {
		return title
	}
	return string(runes[:titleWidth]) + "..."
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
