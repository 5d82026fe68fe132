// Package stt transcribes 16 kHz mono PCM with whisper.cpp.
package stt

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

type Options struct {
	Language      string // "auto", "en", ...
	TranslateToEn bool
	Threads       int    // <=0 => NumCPU()
	InitialPrompt string // biases decoding toward expected vocabulary
	BeamSize      int    // 0 = greedy
}

type Segment struct {
	Text     string
	StartSec float64
	EndSec   float64
}

type Result struct {
	Text     string
	Segments []Segment
	Language string
}

// Transcriber shares one loaded model. whisper contexts are not safe to run
// concurrently against the same model, so calls are serialized.
type Transcriber struct {
	model    whisper.Model
	defaults Options

	mu sync.Mutex
}

func NewTranscriber(modelPath string, defaults Options) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.New("empty model path")
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return &Transcriber{model: m, defaults: defaults}, nil
}

func (t *Transcriber) Close() error {
	if t.model == nil {
		return nil
	}
	return t.model.Close()
}

// Transcribe uses the options given at construction and returns only text.
func (t *Transcriber) Transcribe(ctx context.Context, pcm16k []float32) (string, error) {
	res, err := t.TranscribePCM(ctx, pcm16k, t.defaults)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// TranscribePCM expects mono 16 kHz float32 samples in [-1, 1].
func (t *Transcriber) TranscribePCM(ctx context.Context, pcm16k []float32, opt Options) (Result, error) {
	switch {
	case t.model == nil:
		return Result{}, errors.New("nil model")
	case len(pcm16k) == 0:
		return Result{}, errors.New("no audio samples provided")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	wctx, err := t.model.NewContext()
	if err != nil {
		return Result{}, fmt.Errorf("new context: %w", err)
	}
	if err := configure(wctx, opt); err != nil {
		return Result{}, err
	}
	if err := wctx.Process(pcm16k, nil, nil, nil); err != nil {
		return Result{}, fmt.Errorf("process: %w", err)
	}

	res, err := collect(ctx, wctx)
	if err != nil {
		return Result{}, err
	}
	if res.Language = wctx.DetectedLanguage(); res.Language == "" {
		res.Language = wctx.Language()
	}
	return res, nil
}

func configure(wctx whisper.Context, opt Options) error {
	lang := cmp.Or(opt.Language, "auto")
	if err := wctx.SetLanguage(lang); err != nil {
		return fmt.Errorf("set language %q: %w", lang, err)
	}
	wctx.SetTranslate(opt.TranslateToEn)
	wctx.SetThreads(uint(cmp.Or(max(opt.Threads, 0), runtime.NumCPU())))
	if opt.BeamSize > 0 {
		wctx.SetBeamSize(opt.BeamSize)
	}
	if opt.InitialPrompt != "" {
		wctx.SetInitialPrompt(opt.InitialPrompt)
	}
	return nil
}

// collect drains decoded segments. Text joins the non-blank ones.
func collect(ctx context.Context, wctx whisper.Context) (Result, error) {
	var (
		res  Result
		text strings.Builder
	)
	for ctx.Err() == nil {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			res.Text = text.String()
			return res, nil
		}
		if err != nil {
			return Result{}, fmt.Errorf("next segment: %w", err)
		}

		res.Segments = append(res.Segments, Segment{
			Text:     seg.Text,
			StartSec: seg.Start.Seconds(),
			EndSec:   seg.End.Seconds(),
		})
		if words := strings.TrimSpace(seg.Text); words != "" {
			if text.Len() > 0 {
				text.WriteByte(' ')
			}
			text.WriteString(words)
		}
	}
	return Result{}, ctx.Err()
}
