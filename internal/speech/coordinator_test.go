package speech

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedPlayer blocks every Play until release is closed or ctx ends.
type gatedPlayer struct {
	mu      sync.Mutex
	played  []string
	started chan string
	release chan struct{}
	err     error
}

func newGatedPlayer() *gatedPlayer {
	return &gatedPlayer{started: make(chan string, 8), release: make(chan struct{})}
}

func (p *gatedPlayer) Play(ctx context.Context, text string) error {
	p.mu.Lock()
	p.played = append(p.played, text)
	p.mu.Unlock()
	p.started <- text
	select {
	case <-p.release:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *gatedPlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.played)
}

func waitStarted(t *testing.T, p *gatedPlayer) string {
	t.Helper()
	select {
	case s := <-p.started:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("playback never started")
		return ""
	}
}

func TestSpeakIsSingleFlight(t *testing.T) {
	p := newGatedPlayer()
	c := New(p, WithGrace(0))
	defer c.Close()

	require.True(t, c.Speak("hello there"))
	assert.Equal(t, "hello there", waitStarted(t, p))
	assert.True(t, c.IsSpeaking())

	assert.False(t, c.Speak("second"))
	assert.True(t, c.IsSpeaking())

	close(p.release)
	require.True(t, c.WaitUntilFinished(context.Background(), time.Second))
	assert.False(t, c.IsSpeaking())
	assert.Equal(t, 1, p.count())
}

func TestSpeakIgnoresBlankText(t *testing.T) {
	p := newGatedPlayer()
	c := New(p, WithGrace(0))
	defer c.Close()

	assert.False(t, c.Speak(""))
	assert.False(t, c.Speak("   \n"))
	assert.False(t, c.IsSpeaking())
	assert.Zero(t, p.count())
}

func TestLastSpeechEndRecordedAndMonotonic(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	var calls atomic.Int32
	clock := func() time.Time {
		// Second finish reports an earlier time than the first.
		if calls.Add(1) == 1 {
			return base
		}
		return base.Add(-time.Minute)
	}

	p := PlayerFunc(func(context.Context, string) error { return nil })
	c := New(p, WithGrace(0), WithClock(clock))
	defer c.Close()

	assert.True(t, c.LastSpeechEnd().IsZero())

	require.True(t, c.Speak("one"))
	require.True(t, c.WaitUntilFinished(context.Background(), time.Second))
	first := c.LastSpeechEnd()
	assert.True(t, base.Equal(first))

	require.True(t, c.Speak("two"))
	require.True(t, c.WaitUntilFinished(context.Background(), time.Second))
	assert.False(t, c.LastSpeechEnd().Before(first))
}

func TestLastSpeechEndNearCompletion(t *testing.T) {
	c := New(PlayerFunc(func(context.Context, string) error { return nil }), WithGrace(0))
	defer c.Close()

	before := time.Now()
	require.True(t, c.Speak("quick"))
	require.True(t, c.WaitUntilFinished(context.Background(), time.Second))
	end := c.LastSpeechEnd()
	assert.False(t, end.Before(before))
	assert.WithinDuration(t, time.Now(), end, time.Second)
}

func TestPlaybackErrorReturnsToIdle(t *testing.T) {
	p := newGatedPlayer()
	p.err = errors.New("device busy")
	close(p.release)
	c := New(p, WithGrace(0))
	defer c.Close()

	require.True(t, c.Speak("hi"))
	require.True(t, c.WaitUntilFinished(context.Background(), time.Second))
	assert.False(t, c.IsSpeaking())
	assert.True(t, c.Speak("again"))
}

func TestPlaybackPanicReturnsToIdle(t *testing.T) {
	c := New(PlayerFunc(func(context.Context, string) error { panic("boom") }), WithGrace(0))
	defer c.Close()

	require.True(t, c.Speak("hi"))
	require.True(t, c.WaitUntilFinished(context.Background(), time.Second))
	assert.False(t, c.IsSpeaking())
}

func TestWaitUntilFinishedTimesOut(t *testing.T) {
	p := newGatedPlayer()
	c := New(p, WithGrace(0))
	defer c.Close()

	require.True(t, c.Speak("a long story"))
	waitStarted(t, p)

	start := time.Now()
	assert.False(t, c.WaitUntilFinished(context.Background(), 50*time.Millisecond))
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, c.IsSpeaking())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, c.WaitUntilFinished(ctx, time.Minute))

	close(p.release)
	assert.True(t, c.WaitUntilFinished(context.Background(), time.Second))
}

func TestWaitWhenIdleReturnsImmediately(t *testing.T) {
	c := New(PlayerFunc(func(context.Context, string) error { return nil }), WithGrace(0))
	defer c.Close()
	assert.True(t, c.WaitUntilFinished(context.Background(), time.Millisecond))
}

func TestInterrupt(t *testing.T) {
	p := newGatedPlayer()
	c := New(p, WithGrace(0))
	defer c.Close()

	assert.False(t, c.Interrupt())
	require.True(t, c.Speak("a long story"))
	waitStarted(t, p)

	assert.True(t, c.Interrupt())
	require.True(t, c.WaitUntilFinished(context.Background(), time.Second))
	assert.False(t, c.IsSpeaking())
}

func TestCloseStopsPlaybackAndRejects(t *testing.T) {
	p := newGatedPlayer()
	c := New(p, WithGrace(0))

	require.True(t, c.Speak("bye"))
	waitStarted(t, p)
	c.Close()
	c.Close()

	assert.False(t, c.IsSpeaking())
	assert.False(t, c.Speak("after close"))
}

type countingDucker struct {
	ducks, unducks atomic.Int32
}

func (d *countingDucker) Duck(context.Context) error   { d.ducks.Add(1); return nil }
func (d *countingDucker) Unduck(context.Context) error { d.unducks.Add(1); return nil }

func TestDuckerWrapsPlayback(t *testing.T) {
	d := &countingDucker{}
	c := New(PlayerFunc(func(context.Context, string) error { return nil }), WithGrace(0), WithDucker(d))
	defer c.Close()

	require.True(t, c.Speak("hi"))
	require.True(t, c.WaitUntilFinished(context.Background(), time.Second))
	assert.EqualValues(t, 1, d.ducks.Load())
	assert.EqualValues(t, 1, d.unducks.Load())
}
