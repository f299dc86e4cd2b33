package console

import (
	"bytes"
	"sync"
)

// Ring keeps the most recent log lines in a fixed-size buffer. It
// implements io.Writer so it can sit behind the application's slog
// TextHandler through an io.MultiWriter; every line it sees has already
// passed redaction.
type Ring struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

// NewRing creates a ring holding up to size lines.
func NewRing(size int) *Ring {
	if size < 1 {
		size = 1
	}
	return &Ring{lines: make([]string, size)}
}

// Write records each newline-terminated line in p. Partial trailing
// lines are kept too, so a writer that splits records never loses text.
func (r *Ring) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(p, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		r.append(string(line))
	}
	return len(p), nil
}

func (r *Ring) append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
}

// Last returns up to n of the most recent lines, oldest first.
func (r *Ring) Last(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.next
	if r.full {
		size = len(r.lines)
	}
	if n > size {
		n = size
	}
	if n <= 0 {
		return nil
	}

	out := make([]string, 0, n)
	start := r.next - n
	if start < 0 {
		start += len(r.lines)
	}
	for i := range n {
		out = append(out, r.lines[(start+i)%len(r.lines)])
	}
	return out
}

// Len returns the number of stored lines.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.lines)
	}
	return r.next
}
