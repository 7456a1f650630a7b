// Package history keeps the bounded list of submitted commands and the recall
// cursor a console walks with the arrow keys.
package history

// DefaultLimit is the number of commands retained when no limit is given.
const DefaultLimit = 50

// notBrowsing is the cursor value outside recall mode.
const notBrowsing = -1

// History is a FIFO-bounded command list with a browsing cursor. It is not safe
// for concurrent use; owners serialize access.
type History struct {
	limit   int
	entries []string
	cursor  int
}

// New creates an empty history holding at most limit entries.
func New(limit int) *History {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &History{limit: limit, cursor: notBrowsing}
}

// Add appends command, evicting the oldest entries beyond the limit, and leaves
// recall mode.
func (h *History) Add(command string) {
	h.entries = append(h.entries, command)
	if over := len(h.entries) - h.limit; over > 0 {
		h.entries = append([]string(nil), h.entries[over:]...)
	}
	h.cursor = notBrowsing
}

// Seed replaces the entries, keeping only the newest that fit.
func (h *History) Seed(entries []string) {
	h.entries = append([]string(nil), entries...)
	if over := len(h.entries) - h.limit; over > 0 {
		h.entries = h.entries[over:]
	}
	h.cursor = notBrowsing
}

// Entries returns a copy, oldest first.
func (h *History) Entries() []string {
	return append([]string(nil), h.entries...)
}

// Len returns the number of stored entries.
func (h *History) Len() int {
	return len(h.entries)
}

// Limit returns the capacity.
func (h *History) Limit() int {
	return h.limit
}

// Cursor returns the browsing index, or -1 outside recall mode.
func (h *History) Cursor() int {
	return h.cursor
}

// Browsing reports whether the cursor points into the history.
func (h *History) Browsing() bool {
	return h.cursor != notBrowsing
}

// Up moves one entry further back. From outside recall mode it lands on the
// newest entry. It reports false when the history is empty.
func (h *History) Up() (string, bool) {
	if len(h.entries) == 0 {
		return "", false
	}
	switch {
	case h.cursor == notBrowsing:
		h.cursor = len(h.entries) - 1
	case h.cursor > 0:
		h.cursor--
	}
	return h.entries[h.cursor], true
}

// Down moves one entry forward. Stepping past the newest entry leaves recall
// mode and returns an empty line. It reports false when not browsing.
func (h *History) Down() (string, bool) {
	if h.cursor == notBrowsing {
		return "", false
	}
	if h.cursor >= len(h.entries)-1 {
		h.cursor = notBrowsing
		return "", true
	}
	h.cursor++
	return h.entries[h.cursor], true
}

// Reset leaves recall mode.
func (h *History) Reset() {
	h.cursor = notBrowsing
}
