package assistant

import (
	"context"
	"fmt"
	"io"
	log "log/slog"
	"strings"
	"sync/atomic"
	"time"

	"echomind/internal/actions"
	"echomind/internal/listen"
	"echomind/internal/memory"
	"echomind/internal/mood"
	"echomind/internal/prompt"
	"echomind/internal/router"
)

const (
	ExitFarewell   = "Goodbye Boss. See you next time."
	CancelFarewell = "Goodbye!"

	// GenerationFallback is spoken when the model can't answer.
	GenerationFallback = "Sorry Boss, my head's a bit foggy right now. Ask me again in a moment."

	confirmYouTube   = "Playing on YouTube."
	confirmBrowser   = "Opening browser."
	askWhatToPlay    = "Tell me what to play, Boss."
	failedLaunch     = "I couldn't open that application."
	confirmLaunchFmt = "Opening %s."
)

// Speaker is satisfied by *speech.Coordinator.
type Speaker interface {
	Speak(text string) bool
	LastSpeechEnd() time.Time
	WaitUntilFinished(ctx context.Context, timeout time.Duration) bool
	Interrupt() bool
}

type Launcher interface {
	Open(ctx context.Context, app string) error
}

type Browser interface {
	OpenURL(url string)
	PlaySearch(query string)
}

// HistoryStore persists the voice conversation between runs.
type HistoryStore interface {
	Load(ctx context.Context) ([]memory.Turn, error)
	Save(ctx context.Context, turns []memory.Turn) error
}

type Timing struct {
	QuietGap    time.Duration // silence required after the last utterance
	EmptyPause  time.Duration // after hearing nothing
	ActionPause time.Duration // after an action confirmation
	ErrorPause  time.Duration // after a failed turn
	SpeechWait  time.Duration // bound for each wait on speech, <= 0 uses the speaker default
}

// DefaultVoiceRecent is how many past turns a voice prompt carries when
// SessionConfig.RecentTurns is zero.
const DefaultVoiceRecent = 3

func DefaultTiming() Timing {
	return Timing{
		QuietGap:    800 * time.Millisecond,
		EmptyPause:  300 * time.Millisecond,
		ActionPause: time.Second,
		ErrorPause:  time.Second,
	}
}

// Deps are the collaborators of a voice session. History and Output are
// optional.
type Deps struct {
	Capture   listen.Capturer
	Speech    Speaker
	Router    *router.Router
	Responder *Responder
	Launcher  Launcher
	Browser   Browser
	Memory    memory.Store
	History   HistoryStore
	Clock     mood.Clock
	Output    io.Writer // You:/Echo: transcript
}

type SessionConfig struct {
	Timing       Timing
	Persona      string
	RecentTurns  int // history turns included in each prompt; 0 uses DefaultVoiceRecent, < 0 none
	MemoryLimit  int
	HistoryLimit int
}

// Session is the spoken conversation loop for one user. Run it once.
type Session struct {
	deps Deps
	cfg  SessionConfig

	state   atomic.Int32
	snap    memory.Snapshot
	history *memory.History
}

func NewSession(deps Deps, cfg SessionConfig) *Session {
	if deps.Router == nil {
		deps.Router = router.New(router.DefaultRules()...)
	}
	if deps.Clock == nil {
		deps.Clock = mood.System
	}
	if deps.Output == nil {
		deps.Output = io.Discard
	}
	if cfg.Timing == (Timing{}) {
		cfg.Timing = DefaultTiming()
	}
	switch {
	case cfg.RecentTurns == 0:
		cfg.RecentTurns = DefaultVoiceRecent
	case cfg.RecentTurns < 0:
		cfg.RecentTurns = 0
	}
	return &Session{deps: deps, cfg: cfg}
}

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Turns returns a copy of the conversation so far.
func (s *Session) Turns() []memory.Turn {
	if s.history == nil {
		return nil
	}
	return s.history.All()
}

// Run loops until an exit phrase is heard or ctx is cancelled. Either way
// a farewell is spoken and waited for before it returns.
func (s *Session) Run(ctx context.Context) error {
	s.snap = s.deps.Memory.Load(ctx)

	var turns []memory.Turn
	if s.deps.History != nil {
		var err error
		if turns, err = s.deps.History.Load(ctx); err != nil {
			log.Warn("Failed to load history, starting fresh", "err", err)
			turns = nil
		}
	}
	s.history = memory.NewHistory(turns, s.cfg.HistoryLimit)

	log.Info("Session started", "memory_keys", len(s.snap), "turns", s.history.Len())

	for {
		if ctx.Err() != nil {
			s.cancelled()
			return nil
		}
		if s.safeTurn(ctx) {
			return nil
		}
	}
}

// safeTurn runs one turn and reports whether the session is over.
func (s *Session) safeTurn(ctx context.Context) (exit bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Turn failed", "panic", r)
			sleep(ctx, s.cfg.Timing.ErrorPause)
			exit = false
		}
	}()
	return s.turn(ctx)
}

func (s *Session) turn(ctx context.Context) bool {
	s.setState(WaitForQuiet)
	s.waitForQuiet(ctx)
	if ctx.Err() != nil {
		return false
	}

	s.setState(Listening)
	text := strings.TrimSpace(s.deps.Capture.Listen(ctx))
	if ctx.Err() != nil {
		return false
	}
	if text == "" {
		sleep(ctx, s.cfg.Timing.EmptyPause)
		return false
	}
	fmt.Fprintf(s.deps.Output, "You: %s\n", text)

	if router.IsExit(text) {
		s.say(ExitFarewell)
		s.deps.Speech.WaitUntilFinished(context.WithoutCancel(ctx), s.cfg.Timing.SpeechWait)
		s.setState(Terminated)
		log.Info("Session ended", "reason", "exit phrase")
		return true
	}

	s.setState(Routing)
	d := s.deps.Router.Route(text)
	log.Debug("Routed", "kind", d.Kind, "app", d.App, "payload", d.Payload)

	if d.Kind == router.Generative {
		s.respond(ctx, text)
		return false
	}

	s.setState(Acting)
	reply := s.act(ctx, d)
	s.record(ctx, text, reply)

	s.setState(Speaking)
	s.say(reply)
	s.deps.Speech.WaitUntilFinished(ctx, s.cfg.Timing.SpeechWait)
	sleep(ctx, s.cfg.Timing.ActionPause)
	return false
}

func (s *Session) act(ctx context.Context, d router.Decision) string {
	switch d.Kind {
	case router.LaunchApp:
		if err := s.deps.Launcher.Open(ctx, d.App); err != nil {
			if actions.IsNotFound(err) {
				log.Warn("App not found", "app", d.App)
			} else {
				log.Error("Failed to launch app", "app", d.App, "err", err)
			}
			return failedLaunch
		}
		return fmt.Sprintf(confirmLaunchFmt, d.App)
	case router.BrowserAction:
		if d.Browser == router.PlayYouTube {
			if d.Payload == "" {
				return askWhatToPlay
			}
			s.deps.Browser.PlaySearch(d.Payload)
			return confirmYouTube
		}
		s.deps.Browser.OpenURL(d.Payload)
		return confirmBrowser
	}
	return ""
}

func (s *Session) respond(ctx context.Context, text string) {
	s.setState(Responding)

	limit := s.cfg.MemoryLimit
	if memory.Update(s.snap, text, limit) {
		if err := s.deps.Memory.Save(ctx, s.snap); err != nil {
			log.Warn("Failed to save memory", "err", err)
		}
	}

	p := prompt.Voice{
		Persona: s.cfg.Persona,
		Context: mood.Of(s.deps.Clock.Now()),
		Memory:  s.snap,
		Recent:  s.history.Recent(s.cfg.RecentTurns),
		Text:    text,
	}

	reply, err := s.deps.Responder.Respond(ctx, p.String())
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error("Failed to generate", "err", err)
		reply = GenerationFallback
	}

	fmt.Fprintf(s.deps.Output, "Echo: %s\n", reply)
	s.record(ctx, text, reply)

	s.setState(Speaking)
	s.say(reply)
}

func (s *Session) record(ctx context.Context, user, reply string) {
	s.history.Append(memory.Turn{User: user, Assistant: reply, Timestamp: s.deps.Clock.Now()})
	if s.deps.History == nil {
		return
	}
	if err := s.deps.History.Save(context.WithoutCancel(ctx), s.history.All()); err != nil {
		log.Warn("Failed to save history", "err", err)
	}
}

func (s *Session) waitForQuiet(ctx context.Context) {
	s.deps.Speech.WaitUntilFinished(ctx, s.cfg.Timing.SpeechWait)
	if gap := s.cfg.Timing.QuietGap - time.Since(s.deps.Speech.LastSpeechEnd()); gap > 0 {
		sleep(ctx, gap)
	}
}

// cancelled cuts off whatever is playing and says goodbye.
func (s *Session) cancelled() {
	ctx := context.Background()
	s.setState(Speaking)
	if s.deps.Speech.Interrupt() {
		s.deps.Speech.WaitUntilFinished(ctx, s.cfg.Timing.SpeechWait)
	}
	s.say(CancelFarewell)
	s.deps.Speech.WaitUntilFinished(ctx, s.cfg.Timing.SpeechWait)
	s.setState(Terminated)
	log.Info("Session ended", "reason", "cancelled")
}

func (s *Session) say(text string) {
	if !s.deps.Speech.Speak(text) {
		log.Debug("Speech dropped", "text", text)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
