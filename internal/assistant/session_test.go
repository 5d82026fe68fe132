package assistant

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echomind/internal/actions"
	"echomind/internal/listen"
	"echomind/internal/llm"
	"echomind/internal/memory"
	"echomind/internal/mood"
	"echomind/internal/speech"
)

type voice struct {
	mu     sync.Mutex
	spoken []string
	delay  time.Duration
}

func (v *voice) Play(ctx context.Context, text string) error {
	v.mu.Lock()
	v.spoken = append(v.spoken, text)
	delay := v.delay
	v.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (v *voice) said() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.spoken...)
}

// script hands out inputs in order and then says "exit".
func script(inputs ...string) listen.Capturer {
	var mu sync.Mutex
	return listen.CapturerFunc(func(context.Context) string {
		mu.Lock()
		defer mu.Unlock()
		if len(inputs) == 0 {
			return "exit"
		}
		in := inputs[0]
		inputs = inputs[1:]
		return in
	})
}

type launcher struct {
	opened []string
	err    error
}

func (l *launcher) Open(_ context.Context, app string) error {
	l.opened = append(l.opened, app)
	return l.err
}

type browser struct {
	urls     []string
	searches []string
}

func (b *browser) OpenURL(u string)        { b.urls = append(b.urls, u) }
func (b *browser) PlaySearch(query string) { b.searches = append(b.searches, query) }

type generator struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
}

func (g *generator) Generate(_ context.Context, prompt string, _ llm.Options) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return g.reply, g.err
}

func (g *generator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

type memStore struct {
	snap  memory.Snapshot
	saves int
}

func (m *memStore) Load(context.Context) memory.Snapshot {
	if m.snap == nil {
		return memory.Snapshot{}
	}
	return m.snap
}

func (m *memStore) Save(_ context.Context, s memory.Snapshot) error {
	m.snap = s.Clone()
	m.saves++
	return nil
}

type historyStore struct {
	saved []memory.Turn
}

func (h *historyStore) Load(context.Context) ([]memory.Turn, error) { return nil, errors.New("corrupt") }

func (h *historyStore) Save(_ context.Context, turns []memory.Turn) error {
	h.saved = turns
	return nil
}

type harness struct {
	voice    *voice
	speech   *speech.Coordinator
	launcher *launcher
	browser  *browser
	gen      *generator
	mem      *memStore
	history  *historyStore
	out      *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	v := &voice{}
	h := &harness{
		voice:    v,
		speech:   speech.New(v, speech.WithGrace(0)),
		launcher: &launcher{},
		browser:  &browser{},
		gen:      &generator{reply: "sure thing boss"},
		mem:      &memStore{},
		history:  &historyStore{},
		out:      &bytes.Buffer{},
	}
	t.Cleanup(h.speech.Close)
	return h
}

var fastTiming = Timing{
	QuietGap:    time.Millisecond,
	EmptyPause:  time.Millisecond,
	ActionPause: time.Millisecond,
	ErrorPause:  time.Millisecond,
	SpeechWait:  time.Second,
}

func (h *harness) session(capture listen.Capturer) *Session {
	return h.sessionWith(capture, SessionConfig{Timing: fastTiming, RecentTurns: 3})
}

func (h *harness) sessionWith(capture listen.Capturer, cfg SessionConfig) *Session {
	return NewSession(Deps{
		Capture:   capture,
		Speech:    h.speech,
		Responder: NewResponder(h.gen, llm.Options{MaxContextTokens: 2048}, time.Second),
		Launcher:  h.launcher,
		Browser:   h.browser,
		Memory:    h.mem,
		History:   h.history,
		Clock:     mood.Fixed(time.Date(2026, 1, 2, 19, 0, 0, 0, time.Local)),
		Output:    h.out,
	}, cfg)
}

func TestOpenChromeLaunchesWithoutGenerating(t *testing.T) {
	h := newHarness(t)
	s := h.session(script("open chrome"))

	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, []string{"chrome"}, h.launcher.opened)
	assert.Equal(t, []string{"Opening chrome.", ExitFarewell}, h.voice.said())
	assert.Zero(t, h.gen.calls())
	assert.Equal(t, Terminated, s.State())
}

func TestPlayOnYouTube(t *testing.T) {
	h := newHarness(t)
	s := h.session(script("Play lofi beats on YouTube"))

	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, []string{"lofi beats"}, h.browser.searches)
	assert.Equal(t, []string{confirmYouTube, ExitFarewell}, h.voice.said())
	assert.Zero(t, h.gen.calls())
}

func TestEmptyYouTubeQueryAsks(t *testing.T) {
	h := newHarness(t)
	s := h.session(script("play on youtube"))

	require.NoError(t, s.Run(context.Background()))

	assert.Empty(t, h.browser.searches)
	assert.Equal(t, []string{askWhatToPlay, ExitFarewell}, h.voice.said())
}

func TestOpenWebsite(t *testing.T) {
	h := newHarness(t)
	s := h.session(script("open github.com please"))

	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, []string{"https://github.com"}, h.browser.urls)
	assert.Equal(t, []string{confirmBrowser, ExitFarewell}, h.voice.said())
}

func TestExitSaysFarewellAndStops(t *testing.T) {
	h := newHarness(t)
	s := h.session(script())

	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, []string{ExitFarewell}, h.voice.said())
	assert.False(t, h.speech.IsSpeaking())
	assert.Empty(t, s.Turns())
}

func TestMissingAppIsReported(t *testing.T) {
	h := newHarness(t)
	h.launcher.err = &actions.NotFoundError{App: "notepad"}
	s := h.session(script("open notepad"))

	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, []string{failedLaunch, ExitFarewell}, h.voice.said())
	require.Len(t, s.Turns(), 1)
	assert.Equal(t, failedLaunch, s.Turns()[0].Assistant)
}

func TestGenerativeTurn(t *testing.T) {
	h := newHarness(t)
	s := h.session(script("", "I like jazz", "what now"))

	require.NoError(t, s.Run(context.Background()))

	require.Equal(t, 2, h.gen.calls())
	first := h.gen.prompts[0]
	assert.Contains(t, first, "Mood: playful\nTime: evening\n")
	assert.Contains(t, first, `Memory: {"preferences":["I like jazz"]}`)
	assert.Contains(t, first, "User: I like jazz\nEcho:")
	assert.Contains(t, h.gen.prompts[1], "Recent conversation:\nUser: I like jazz\nEcho: sure thing boss\n")

	assert.Equal(t, 1, h.mem.saves)
	assert.Equal(t, []string{"I like jazz"}, h.mem.snap.List(memory.KeyPreferences))

	assert.Equal(t, []string{"sure thing boss", "sure thing boss", ExitFarewell}, h.voice.said())
	assert.Len(t, h.history.saved, 2)
	assert.Contains(t, h.out.String(), "You: I like jazz\nEcho: sure thing boss\n")
}

func TestPromptCarriesHistoryByDefault(t *testing.T) {
	h := newHarness(t)
	s := h.sessionWith(script("tell me a joke", "another one"), SessionConfig{Timing: fastTiming})

	require.NoError(t, s.Run(context.Background()))

	require.Equal(t, 2, h.gen.calls())
	assert.NotContains(t, h.gen.prompts[0], "Recent conversation:")
	assert.Contains(t, h.gen.prompts[1], "Recent conversation:\nUser: tell me a joke\nEcho: sure thing boss\n")
}

func TestNegativeRecentTurnsDropsHistory(t *testing.T) {
	h := newHarness(t)
	s := h.sessionWith(script("tell me a joke", "another one"), SessionConfig{Timing: fastTiming, RecentTurns: -1})

	require.NoError(t, s.Run(context.Background()))

	require.Equal(t, 2, h.gen.calls())
	assert.NotContains(t, h.gen.prompts[1], "tell me a joke")
}

func TestCaptureWaitsForQuietGap(t *testing.T) {
	const gap = 200 * time.Millisecond

	h := newHarness(t)
	h.voice.delay = 50 * time.Millisecond

	inputs := []string{"open chrome", "open github.com", "tell me a joke"}
	var gaps []time.Duration
	capture := listen.CapturerFunc(func(context.Context) string {
		assert.False(t, h.speech.IsSpeaking(), "capture started while speaking")
		if end := h.speech.LastSpeechEnd(); !end.IsZero() {
			since := time.Since(end)
			assert.GreaterOrEqual(t, since, gap)
			gaps = append(gaps, since)
		}
		if len(inputs) == 0 {
			return "exit"
		}
		in := inputs[0]
		inputs = inputs[1:]
		return in
	})

	timing := fastTiming
	timing.QuietGap = gap
	timing.SpeechWait = 2 * time.Second
	s := h.sessionWith(capture, SessionConfig{Timing: timing})

	require.NoError(t, s.Run(context.Background()))

	assert.Len(t, gaps, 3)
	assert.Equal(t, []string{"Opening chrome.", confirmBrowser, "sure thing boss", ExitFarewell}, h.voice.said())
}

func TestGenerationFailureStillRecordsTurn(t *testing.T) {
	h := newHarness(t)
	h.gen.err = &llm.GenerationError{Model: "phi3", Err: errors.New("connection refused")}
	s := h.session(script("tell me a joke"))

	require.NoError(t, s.Run(context.Background()))

	turns := s.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, "tell me a joke", turns[0].User)
	assert.NotEmpty(t, turns[0].Assistant)
	assert.Equal(t, GenerationFallback, turns[0].Assistant)
	assert.Equal(t, []string{GenerationFallback, ExitFarewell}, h.voice.said())
	assert.Len(t, h.history.saved, 1)
}

func TestPanickingTurnDoesNotEndSession(t *testing.T) {
	h := newHarness(t)
	calls := 0
	capture := listen.CapturerFunc(func(context.Context) string {
		calls++
		if calls == 1 {
			panic("microphone on fire")
		}
		return "exit"
	})
	s := h.session(capture)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{ExitFarewell}, h.voice.said())
}

func TestCancellationSaysGoodbye(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	listening := make(chan struct{})
	capture := listen.CapturerFunc(func(ctx context.Context) string {
		close(listening)
		<-ctx.Done()
		return ""
	})
	s := h.session(capture)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	<-listening
	assert.Equal(t, Listening, s.State())
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}
	assert.Equal(t, []string{CancelFarewell}, h.voice.said())
	assert.Equal(t, Terminated, s.State())
	assert.Zero(t, h.gen.calls())
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "wait_for_quiet", WaitForQuiet.String())
	assert.Equal(t, "terminated", Terminated.String())
	assert.Equal(t, "unknown", State(42).String())
}
