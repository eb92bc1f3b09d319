package ingest

import (
	"strings"
	"sync"
	"unicode/utf8"

	"kismet-baro/internal/kismet"
)

// Rejected is a line the loop could not use, with the parse error when the
// line carried a known marker but bad fields.
type Rejected struct {
	Raw   string `json:"raw"`
	Error string `json:"error,omitempty"`
}

// rejectLog is a fixed-size ring of the most recent rejected lines.
type rejectLog struct {
	mu     sync.Mutex
	ring   []Rejected
	next   int
	full   bool
	rawCap int
}

func newRejectLog(size, rawCap int) *rejectLog {
	if size < 0 {
		size = 0
	}
	if rawCap <= 0 {
		rawCap = 512
	}
	return &rejectLog{ring: make([]Rejected, size), rawCap: rawCap}
}

func (r *rejectLog) add(u kismet.Unknown) {
	if r == nil || len(r.ring) == 0 {
		return
	}
	e := Rejected{Raw: clip(u.Raw, r.rawCap)}
	if u.Err != nil {
		e.Error = u.Err.Error()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.ring[r.next] = e
	r.next = (r.next + 1) % len(r.ring)
	if r.next == 0 {
		r.full = true
	}
}

// entries returns the stored lines, oldest first.
func (r *rejectLog) entries() []Rejected {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		return append([]Rejected(nil), r.ring[:r.next]...)
	}
	out := make([]Rejected, 0, len(r.ring))
	out = append(out, r.ring[r.next:]...)
	return append(out, r.ring[:r.next]...)
}

// clip replaces invalid UTF-8 and cuts s to at most n bytes on a rune
// boundary.
func clip(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
