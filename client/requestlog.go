package client

import (
	"sync"
	"time"
)

const defaultRequestLogSize = 256

// RequestLogEntry records one HTTP attempt for diagnostics.
type RequestLogEntry struct {
	Method   string
	Path     string
	Status   int // zero when the attempt failed before a response arrived
	Err      string
	Duration time.Duration
	Attempt  int // 1-based attempt index within one logical request
	Time     time.Time
}

// requestLog is a bounded ring of attempt records. A module abandoned at its
// wall-clock ceiling can still issue requests through the client it shares
// with its successor, so the ring is guarded by a lock; RequestLog returns a
// copy for callers.
type requestLog struct {
	mu      sync.Mutex
	entries []RequestLogEntry
	next    int
	full    bool
	total   int // attempts ever recorded, including evicted ones
}

func newRequestLog(size int) *requestLog {
	if size <= 0 {
		size = defaultRequestLogSize
	}
	return &requestLog{entries: make([]RequestLogEntry, size)}
}

func (l *requestLog) append(e RequestLogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[l.next] = e
	l.next++
	l.total++
	if l.next == len(l.entries) {
		l.next = 0
		l.full = true
	}
}

// count returns the number of attempts ever recorded.
func (l *requestLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// snapshot returns the recorded entries, oldest first.
func (l *requestLog) snapshot() []RequestLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.full {
		out := make([]RequestLogEntry, l.next)
		copy(out, l.entries[:l.next])
		return out
	}
	out := make([]RequestLogEntry, 0, len(l.entries))
	out = append(out, l.entries[l.next:]...)
	out = append(out, l.entries[:l.next]...)
	return out
}
