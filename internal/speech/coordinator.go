// Package speech serializes text-to-speech playback. A Coordinator owns the
// single "is speaking" flag: at most one utterance plays at a time, and a
// request made while speaking is dropped, not queued.
package speech

import (
	"context"
	"errors"
	log "log/slog"
	"strings"
	"sync"
	"time"
)

const (
	DefaultGrace       = 200 * time.Millisecond
	DefaultWaitTimeout = 30 * time.Second
)

// Player renders text as audio and blocks until playback ends or ctx is
// cancelled.
type Player interface {
	Play(ctx context.Context, text string) error
}

type PlayerFunc func(ctx context.Context, text string) error

func (f PlayerFunc) Play(ctx context.Context, text string) error { return f(ctx, text) }

// Ducker lowers other audio while the assistant talks.
type Ducker interface {
	Duck(ctx context.Context) error
	Unduck(ctx context.Context) error
}

type Option func(*Coordinator)

// WithGrace sets how long Speak waits after handing off a request, giving
// the audio device time to start.
func WithGrace(d time.Duration) Option {
	return func(c *Coordinator) { c.grace = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func WithDucker(d Ducker) Option {
	return func(c *Coordinator) { c.ducker = d }
}

type Coordinator struct {
	player Player
	grace  time.Duration
	now    func() time.Time
	ducker Ducker

	mu       sync.Mutex
	speaking bool
	lastEnd  time.Time
	idle     chan struct{} // closed whenever not speaking
	cancel   context.CancelFunc
	closed   bool

	requests chan string
	done     chan struct{}
	stopped  chan struct{}
}

// New starts the playback actor. Call Close to stop it.
func New(p Player, opts ...Option) *Coordinator {
	c := &Coordinator{
		player:   p,
		grace:    DefaultGrace,
		now:      time.Now,
		idle:     make(chan struct{}),
		requests: make(chan string, 1),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	close(c.idle)
	for _, o := range opts {
		o(c)
	}

	go c.run()
	return c
}

// Speak starts playing text in the background and returns after the startup
// grace. It reports false, doing nothing, when text is blank, another
// utterance is playing, or the coordinator is closed.
func (c *Coordinator) Speak(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	if c.speaking {
		c.mu.Unlock()
		log.Debug("Already speaking, dropping utterance", "text", preview(text))
		return false
	}
	c.speaking = true
	c.idle = make(chan struct{})
	// Buffered and guarded by speaking: never blocks.
	c.requests <- text
	c.mu.Unlock()

	if c.grace > 0 {
		time.Sleep(c.grace)
	}
	return true
}

func (c *Coordinator) IsSpeaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

// LastSpeechEnd is when the previous utterance finished; zero before the first.
func (c *Coordinator) LastSpeechEnd() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastEnd
}

// WaitUntilFinished blocks until nothing is playing, the timeout elapses or
// ctx ends. It returns true only when speech actually finished. A timeout is
// logged and otherwise ignored; timeout <= 0 means DefaultWaitTimeout.
func (c *Coordinator) WaitUntilFinished(ctx context.Context, timeout time.Duration) bool {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return true
	default:
	}

	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-idle:
		return true
	case <-t.C:
		log.Warn("Speech still playing after timeout", "timeout", timeout)
		return false
	case <-ctx.Done():
		return false
	}
}

// Interrupt cuts the current utterance short. It reports whether anything
// was playing.
func (c *Coordinator) Interrupt() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return false
	}
	c.cancel()
	return true
}

// Close stops the actor, cutting off any playback in progress.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	close(c.done)
	<-c.stopped

	select {
	case <-c.requests:
		c.finish()
	default:
	}
}

func (c *Coordinator) run() {
	defer close(c.stopped)
	for {
		select {
		case <-c.done:
			return
		case text := <-c.requests:
			c.play(text)
		}
	}
}

func (c *Coordinator) play(text string) {
	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.cancel = cancel
	if c.closed {
		cancel()
	}
	c.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			log.Error("Playback panicked", "panic", r)
		}
		cancel()
		c.finish()
	}()

	if c.ducker != nil {
		if err := c.ducker.Duck(ctx); err != nil {
			log.Warn("Failed to duck other audio", "err", err)
		}
		defer func() {
			if err := c.ducker.Unduck(context.Background()); err != nil {
				log.Warn("Failed to restore other audio", "err", err)
			}
		}()
	}

	log.Info("Speaking", "text", preview(text))
	if err := c.player.Play(ctx, text); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Playback failed", "err", err)
	}
}

// finish returns to Idle. lastEnd never moves backwards.
func (c *Coordinator) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.speaking {
		return
	}
	end := c.now()
	if end.Before(c.lastEnd) {
		end = c.lastEnd
	}
	c.lastEnd = end
	c.speaking = false
	c.cancel = nil
	close(c.idle)
	log.Debug("Finished speaking", "at", end)
}

func preview(text string) string {
	r := []rune(text)
	if len(r) > 50 {
		return string(r[:50]) + "..."
	}
	return text
}
