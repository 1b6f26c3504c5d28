package voice

// CompletionReason says why a stream stopped producing audio.
type CompletionReason string

const (
	ReasonFinished CompletionReason = "finished" // stream drained naturally
	ReasonStopped  CompletionReason = "stopped"  // Stop or Disconnect ended it early
	ReasonError    CompletionReason = "error"    // transport or decode failure
)

// Completion is the continuation message a session delivers exactly once
// per Play, into the owning engine's single-consumer channel. Carrying
// guild and reason explicitly (instead of a closure bound at play time)
// removes the stale-capture hazard when the queue has moved on by the
// time the stream ends.
type Completion struct {
	GuildID string
	Reason  CompletionReason
	Err     error
}
