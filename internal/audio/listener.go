package audio

import (
	"context"
	log "log/slog"
	"strings"
	"time"

	"echomind/internal/listen"
)

// Transcriber is satisfied by *stt.Transcriber.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm16k []float32) (string, error)
}

// Quiet is satisfied by *speech.Coordinator.
type Quiet interface {
	WaitUntilFinished(ctx context.Context, timeout time.Duration) bool
}

const (
	settleDelay = 300 * time.Millisecond
	minPeak     = 0.01
	minChars    = 2
)

// Listener captures one utterance from the microphone and transcribes it.
// It implements listen.Capturer.
type Listener struct {
	Recorder    *Recorder
	Transcriber Transcriber
	Quiet       Quiet
	Cue         func(ctx context.Context) // played right before recording, optional
	Gate        *listen.Gate              // held from the quiet wait until recording ends, optional
}

func (l *Listener) Listen(ctx context.Context) string {
	var (
		pcm []float32
		ok  bool
	)
	l.Gate.Capture(func() { pcm, ok = l.record(ctx) })
	if !ok {
		return ""
	}
	if peak := Peak(pcm); peak < minPeak {
		log.Debug("Too quiet", "peak", peak)
		return ""
	}

	log.Debug("Recorded", "samples", len(pcm))

	text, err := l.Transcriber.Transcribe(ctx, pcm)
	if err != nil {
		log.Warn("Failed to transcribe", "err", err)
		return ""
	}
	text = strings.TrimSpace(text)
	if len([]rune(text)) < minChars {
		return ""
	}

	log.Info("Transcribed", "text", text)
	return text
}

// record waits for our own speech to end, lets the room settle, cues the user
// and records one utterance.
func (l *Listener) record(ctx context.Context) ([]float32, bool) {
	if l.Quiet != nil {
		l.Quiet.WaitUntilFinished(ctx, 0)
	}

	select {
	case <-time.After(settleDelay):
	case <-ctx.Done():
		return nil, false
	}

	if l.Cue != nil {
		l.Cue(ctx)
	}

	log.Info("Listening")
	pcm, err := l.Recorder.RecordAuto(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("Failed to record", "err", err)
		}
		return nil, false
	}
	return pcm, true
}
