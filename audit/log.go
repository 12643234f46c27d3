// Package audit holds append-only decision logs and their CSV export.
package audit

import (
	"io"
	"sync"
)

// Record is an audit entry that can render itself as one CSV row.
type Record interface {
	Row() []string
}

// Log is an append-only, concurrency-safe sequence of entries. Entries are
// read newest first. Appends are serialised, so an entry appended after
// another is always listed before it.
type Log[T Record] struct {
	header  []string
	entries []T
	seq     uint64
	mu      sync.RWMutex
}

// NewLog creates an empty log whose CSV export starts with header.
func NewLog[T Record](header []string) *Log[T] {
	h := make([]string, len(header))
	copy(h, header)
	return &Log[T]{header: h}
}

// Append adds e to the log and returns its sequence number, starting at 1.
func (l *Log[T]) Append(e T) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	l.entries = append(l.entries, e)
	return l.seq
}

// Entries returns a snapshot of the log, newest first.
func (l *Log[T]) Entries() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]T, len(l.entries))
	for i, e := range l.entries {
		out[len(l.entries)-1-i] = e
	}
	return out
}

// Len returns the number of entries.
func (l *Log[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Header returns the CSV column names.
func (l *Log[T]) Header() []string {
	h := make([]string, len(l.header))
	copy(h, l.header)
	return h
}

// WriteCSV exports the log, newest first, with a header row.
func (l *Log[T]) WriteCSV(w io.Writer) error {
	entries := l.Entries()
	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = e.Row()
	}
	return WriteCSV(w, l.header, rows)
}
