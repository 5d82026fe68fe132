package tts

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	got []byte
}

func (s *recordingSink) PlayEncoded(_ context.Context, data []byte) error {
	s.got = append([]byte(nil), data...)
	return nil
}

func TestCommandAppendsTextAsLastArgument(t *testing.T) {
	if _, err := exec.LookPath("echo"); err != nil {
		t.Skip("echo not available")
	}
	sink := &recordingSink{}
	c, err := NewCommand("echo -n RIFF", sink)
	require.NoError(t, err)

	require.NoError(t, c.Play(context.Background(), "hello boss"))
	assert.Equal(t, "RIFF hello boss", string(sink.got))
}

func TestCommandErrors(t *testing.T) {
	_, err := NewCommand("   ", nil)
	assert.Error(t, err)

	_, err = NewCommand("definitely-not-a-synthesizer-binary", nil)
	assert.Error(t, err)

	if _, err := exec.LookPath("true"); err == nil {
		c, err := NewCommand("true", &recordingSink{})
		require.NoError(t, err)
		_, err = c.Synthesize(context.Background(), "hi")
		assert.ErrorIs(t, err, ErrNoAudio)
	}

	if _, err := exec.LookPath("false"); err == nil {
		c, err := NewCommand("false", &recordingSink{})
		require.NoError(t, err)
		assert.Error(t, c.Play(context.Background(), "hi"))
	}
}

func TestMute(t *testing.T) {
	assert.NoError(t, Mute{}.Play(context.Background(), "x"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Mute{}.Play(ctx, "x"), context.Canceled)
}
