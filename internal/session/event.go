package session

import (
	"time"
)

// EventKind classifies session output.
type EventKind int

const (
	// EventText is a visible transcript line.
	EventText EventKind = iota
	// EventArtifactReady announces an artifact path taken from the side channel.
	EventArtifactReady
	// EventArtifact carries the fetched bytes of an announced artifact.
	EventArtifact
	// EventClear asks the UI to clear its transcript.
	EventClear
)

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventArtifactReady:
		return "artifact_ready"
	case EventArtifact:
		return "artifact"
	case EventClear:
		return "clear"
	default:
		return "unknown"
	}
}

// Event is one unit of session output. Seq increases strictly in publish order.
type Event struct {
	Seq  uint64
	Time time.Time
	Kind EventKind
	Text string
	Path string
	Data []byte
	MIME string
}

// transcript is a ring buffer of the most recent Text events.
type transcript struct {
	limit  int
	events []Event
	start  int
}

func newTranscript(limit int) *transcript {
	if limit <= 0 {
		limit = DefaultTranscriptLimit
	}
	return &transcript{limit: limit}
}

func (t *transcript) add(event Event) {
	if len(t.events) < t.limit {
		t.events = append(t.events, event)
		return
	}
	t.events[t.start] = event
	t.start = (t.start + 1) % t.limit
}

func (t *transcript) reset() {
	t.events = nil
	t.start = 0
}

func (t *transcript) snapshot() []Event {
	out := make([]Event, 0, len(t.events))
	out = append(out, t.events[t.start:]...)
	out = append(out, t.events[:t.start]...)
	return out
}
