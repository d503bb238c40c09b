// Package dedup suppresses the server's echo of messages this client sent.
//
// Matching is by exact content inside a short window. Two distinct sends with
// identical text inside the window, or an echo that arrives after the window,
// are misclassified; this is a heuristic, not an exactly-once contract.
package dedup

import (
	"sync"
	"time"
)

const (
	DefaultWindow    = 5 * time.Second
	DefaultRetention = 10 * time.Second
)

// PendingSendRecord remembers one outbound chat line.
type PendingSendRecord struct {
	Fingerprint string
	SentAt      time.Time
}

// Filter is safe for concurrent use.
type Filter struct {
	window    time.Duration
	retention time.Duration

	mu      sync.Mutex
	pending map[string][]PendingSendRecord
}

// New creates a filter. Zero durations fall back to the defaults.
func New(window, retention time.Duration) *Filter {
	if window <= 0 {
		window = DefaultWindow
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if retention < window {
		retention = window
	}
	return &Filter{
		window:    window,
		retention: retention,
		pending:   make(map[string][]PendingSendRecord),
	}
}

// Fingerprint derives the lookup key for a piece of content.
func Fingerprint(content string) string {
	return content
}

// Record stores a send and evicts expired records.
func (f *Filter) Record(content string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.prune(at)
	fp := Fingerprint(content)
	f.pending[fp] = append(f.pending[fp], PendingSendRecord{Fingerprint: fp, SentAt: at})
}

// IsEcho reports whether content matches a send recorded within the window.
// A match consumes the record so each send suppresses at most one echo.
func (f *Filter) IsEcho(content string, at time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.prune(at)
	fp := Fingerprint(content)
	records := f.pending[fp]
	for i, rec := range records {
		if at.Sub(rec.SentAt) > f.window {
			continue
		}
		records = append(records[:i], records[i+1:]...)
		if len(records) == 0 {
			delete(f.pending, fp)
		} else {
			f.pending[fp] = records
		}
		return true
	}
	return false
}

// Len returns the number of retained records.
func (f *Filter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, records := range f.pending {
		n += len(records)
	}
	return n
}

// Reset drops every record.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = make(map[string][]PendingSendRecord)
}

func (f *Filter) prune(now time.Time) {
	for fp, records := range f.pending {
		kept := records[:0]
		for _, rec := range records {
			if now.Sub(rec.SentAt) <= f.retention {
				kept = append(kept, rec)
			}
		}
		if len(kept) == 0 {
			delete(f.pending, fp)
		} else {
			f.pending[fp] = kept
		}
	}
}
