package core

import "github.com/dkeye/Chat/internal/domain"

// History is a fixed-capacity FIFO ring of message records.
// Not safe for concurrent use; the owning Room serializes access.
type History struct {
	buf   []domain.MessageRecord
	start int
	n     int
}

func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{buf: make([]domain.MessageRecord, capacity)}
}

// Push appends rec, evicting the oldest record when full.
// It reports whether a record was evicted.
func (h *History) Push(rec domain.MessageRecord) bool {
	c := len(h.buf)
	if h.n < c {
		h.buf[(h.start+h.n)%c] = rec
		h.n++
		return false
	}
	h.buf[h.start] = rec
	h.start = (h.start + 1) % c
	return true
}

func (h *History) Len() int { return h.n }

// Snapshot returns the records oldest first.
func (h *History) Snapshot() []domain.MessageRecord {
	out := make([]domain.MessageRecord, 0, h.n)
	for i := 0; i < h.n; i++ {
		out = append(out, h.buf[(h.start+i)%len(h.buf)])
	}
	return out
}
