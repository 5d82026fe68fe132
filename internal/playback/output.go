// Package playback owns the speaker. The beep speaker can only be
// initialized for one sample rate per process, so every sound the assistant
// makes goes through a single Output that resamples as needed.
package playback

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

const DefaultSampleRate = beep.SampleRate(44100)

type Output struct {
	rate beep.SampleRate

	mu    sync.Mutex
	ready bool
}

func NewOutput(rate beep.SampleRate) *Output {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	return &Output{rate: rate}
}

func (o *Output) init() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ready {
		return nil
	}
	if err := speaker.Init(o.rate, o.rate.N(time.Second/10)); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}
	o.ready = true
	return nil
}

// Play blocks until s is drained or ctx is cancelled, in which case whatever
// is queued on the speaker is cleared.
func (o *Output) Play(ctx context.Context, s beep.Streamer, format beep.Format) error {
	if err := o.init(); err != nil {
		return err
	}

	if format.SampleRate != o.rate {
		s = beep.Resample(4, format.SampleRate, o.rate, s)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

// PlayEncoded decodes a complete WAV or MP3 clip and plays it.
func (o *Output) PlayEncoded(ctx context.Context, data []byte) error {
	s, format, err := Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer s.Close()
	return o.Play(ctx, s, format)
}

var ErrUnknownFormat = errors.New("unknown audio format")

// Decode sniffs the container: RIFF is WAV, ID3 or an MPEG frame sync is MP3.
func Decode(r io.Reader) (beep.StreamSeekCloser, beep.Format, error) {
	br := bufio.NewReader(r)
	magic, _ := br.Peek(4)

	switch {
	case len(magic) == 4 && string(magic) == "RIFF":
		s, f, err := wav.Decode(br)
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("decode wav: %w", err)
		}
		return s, f, nil
	case len(magic) >= 3 && string(magic[:3]) == "ID3",
		len(magic) >= 2 && magic[0] == 0xFF && magic[1]&0xE0 == 0xE0:
		s, f, err := mp3.Decode(io.NopCloser(br))
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("decode mp3: %w", err)
		}
		return s, f, nil
	default:
		return nil, beep.Format{}, ErrUnknownFormat
	}
}
