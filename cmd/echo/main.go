package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "log/slog"

	"echomind/internal/actions"
	"echomind/internal/assistant"
	"echomind/internal/audio"
	"echomind/internal/config"
	"echomind/internal/ipc"
	"echomind/internal/listen"
	"echomind/internal/llm"
	"echomind/internal/logging"
	"echomind/internal/memory"
	"echomind/internal/notify"
	"echomind/internal/playback"
	"echomind/internal/proxy"
	"echomind/internal/speech"
	"echomind/internal/tts"
	"echomind/pkg/stt"
)

func main() {
	cfg, err := config.ParseVoice(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := logging.Setup(os.Stderr, cfg.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		log.Error("Echo stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Voice) error {
	log.Info("Booting up")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient, err := proxy.NewHTTPClient(cfg.Proxy, 0)
	if err != nil {
		return fmt.Errorf("proxy: %w", err)
	}
	gen := llm.New(llm.Config{
		BaseURL:    cfg.LLMURL,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		Retries:    cfg.Retries,
		HTTPClient: httpClient,
	})
	responder := assistant.NewResponder(gen, llm.Options{
		MaxContextTokens: cfg.ContextTokens,
		Threads:          cfg.Threads,
	}, cfg.GenTimeout)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	avail := gen.Ping(pingCtx)
	cancel()
	responder.SetAvailability(avail)
	log.Debug("Loaded generator", "model", gen.Model(), "ready", avail.Ready)

	out := playback.NewOutput(playback.DefaultSampleRate)
	player, err := newPlayer(cfg, out)
	if err != nil {
		return err
	}

	opts := []speech.Option{}
	if cfg.Duck {
		opts = append(opts, speech.WithDucker(audio.NewDucker(audio.DefaultDuckConfig())))
	}
	voice := speech.New(player, opts...)
	defer voice.Close()

	var (
		capture listen.Capturer
		mic     *listen.Gate
	)
	if cfg.Text {
		capture = listen.NewLines(os.Stdin)
		log.Info("Reading utterances from stdin")
	} else {
		rec := audio.NewRecorder(audio.DefaultRecorderConfig())
		if err := rec.Init(); err != nil {
			return fmt.Errorf("init audio: %w", err)
		}
		defer rec.Close()
		log.Debug("Loaded recorder")

		whisper, err := stt.NewTranscriber(cfg.WhisperModel, stt.Options{Language: cfg.Language})
		if err != nil {
			return fmt.Errorf("init whisper: %w", err)
		}
		defer whisper.Close()
		log.Debug("Loaded whisper", "model", cfg.WhisperModel)

		cue := notify.NewCue(out, cfg.Cue)
		mic = &listen.Gate{}
		capture = &audio.Listener{
			Gate:        mic,
			Recorder:    rec,
			Transcriber: whisper,
			Quiet:       voice,
			Cue: func(ctx context.Context) {
				cue.Play(ctx)
				go notify.Desktop(ctx, "Listening...")
			},
		}
	}
	queue := listen.NewQueue(capture)

	session := assistant.NewSession(assistant.Deps{
		Capture:   queue,
		Speech:    voice,
		Responder: responder,
		Launcher:  actions.NewLauncher(),
		Browser:   actions.NewBrowser(),
		Memory:    memory.NewFileStore(cfg.MemoryFile),
		History:   &memory.HistoryFile{Path: cfg.HistoryFile},
		Output:    os.Stdout,
	}, assistant.SessionConfig{Timing: assistant.DefaultTiming()})

	if cfg.Socket != "" {
		srv, err := ipc.Listen(cfg.Socket, session.Control(queue, mic, stop))
		if err != nil {
			return fmt.Errorf("control socket: %w", err)
		}
		go srv.Serve(ctx)
		log.Debug("Control socket ready", "path", srv.Path())
	}

	log.Info("Boot up - successful")
	return session.Run(ctx)
}

func newPlayer(cfg config.Voice, out *playback.Output) (speech.Player, error) {
	switch {
	case cfg.Mute:
		return tts.Mute{}, nil
	case cfg.TTSCommand == "libespeak":
		p, err := tts.NewEspeak(cfg.Language, 0)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		p, err := tts.NewCommand(cfg.TTSCommand, out)
		if err != nil {
			log.Warn("Synthesizer unavailable, replies will only be printed", "err", err)
			return tts.Mute{}, nil
		}
		return p, nil
	}
}
