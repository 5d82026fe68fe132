// Package tts turns text into sound. Players here block for the whole
// utterance; the speech coordinator decides when they run.
package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"os/exec"
	"strings"
)

// DefaultCommand writes a WAV of the text to stdout.
const DefaultCommand = "espeak-ng --stdout"

// Sink plays one encoded clip (WAV or MP3) to completion.
type Sink interface {
	PlayEncoded(ctx context.Context, data []byte) error
}

var ErrNoAudio = errors.New("synthesizer produced no audio")

// Command runs an external synthesizer with the text as its last argument
// and plays what it prints on stdout. Anything that can write WAV or MP3 to
// stdout works, e.g. "espeak-ng --stdout" or
// "edge-tts --voice en-US-AriaNeural --write-media /dev/stdout --text".
type Command struct {
	argv []string
	sink Sink
}

func NewCommand(cmdline string, sink Sink) (*Command, error) {
	argv := strings.Fields(cmdline)
	if len(argv) == 0 {
		return nil, errors.New("empty synthesizer command")
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return nil, fmt.Errorf("synthesizer %q: %w", argv[0], err)
	}
	return &Command{argv: argv, sink: sink}, nil
}

// Synthesize returns the raw audio bytes for text.
func (c *Command) Synthesize(ctx context.Context, text string) ([]byte, error) {
	args := append(append([]string(nil), c.argv[1:]...), text)
	cmd := exec.CommandContext(ctx, c.argv[0], args...)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", c.argv[0], err, msg)
		}
		return nil, fmt.Errorf("%s: %w", c.argv[0], err)
	}
	if out.Len() == 0 {
		return nil, ErrNoAudio
	}
	return out.Bytes(), nil
}

func (c *Command) Play(ctx context.Context, text string) error {
	audio, err := c.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	log.Debug("Synthesized", "bytes", len(audio))
	return c.sink.PlayEncoded(ctx, audio)
}

// Mute satisfies the player contract without making a sound.
type Mute struct{}

func (Mute) Play(ctx context.Context, _ string) error { return ctx.Err() }
