// Package listen defines where user utterances come from. A Capturer returns
// one utterance per call, or "" when nothing usable was heard.
package listen

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
)

type Capturer interface {
	Listen(ctx context.Context) string
}

type CapturerFunc func(ctx context.Context) string

func (f CapturerFunc) Listen(ctx context.Context) string { return f(ctx) }

// Lines reads one utterance per line. At end of input it blocks until ctx
// is done, so the loop only ends through an exit phrase or cancellation.
type Lines struct {
	lines chan string
}

func NewLines(r io.Reader) *Lines {
	l := &Lines{lines: make(chan string)}
	go func() {
		defer close(l.lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			l.lines <- sc.Text()
		}
	}()
	return l
}

func (l *Lines) Listen(ctx context.Context) string {
	select {
	case line, ok := <-l.lines:
		if !ok {
			<-ctx.Done()
			return ""
		}
		return strings.TrimSpace(line)
	case <-ctx.Done():
		return ""
	}
}

// Queue hands out injected text before falling back to the wrapped Capturer.
type Queue struct {
	next Capturer

	mu      sync.Mutex
	pending []string
}

func NewQueue(next Capturer) *Queue {
	return &Queue{next: next}
}

// Inject schedules text as the next utterance. Blank text is ignored.
func (q *Queue) Inject(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	q.mu.Lock()
	q.pending = append(q.pending, text)
	q.mu.Unlock()
	return true
}

func (q *Queue) Listen(ctx context.Context) string {
	q.mu.Lock()
	if len(q.pending) > 0 {
		text := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()
		return text
	}
	q.mu.Unlock()

	if q.next == nil {
		return ""
	}
	return q.next.Listen(ctx)
}

// Gate keeps speech that is not part of a turn away from an open
// microphone. The zero value is ready; a nil Gate never blocks.
type Gate struct {
	mu sync.Mutex
}

// Capture runs fn with the gate held.
func (g *Gate) Capture(fn func()) {
	if g == nil {
		fn()
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	fn()
}

// Aside runs fn unless a capture is in progress and reports whether it
// ran. Speech started by fn must register as playing before fn returns,
// so that the next capture waits for it.
func (g *Gate) Aside(fn func()) bool {
	if g == nil {
		fn()
		return true
	}
	if !g.mu.TryLock() {
		return false
	}
	defer g.mu.Unlock()
	fn()
	return true
}
