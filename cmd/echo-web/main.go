package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "log/slog"

	"echomind/internal/assistant"
	"echomind/internal/config"
	"echomind/internal/llm"
	"echomind/internal/logging"
	"echomind/internal/proxy"
	"echomind/internal/web"
	"echomind/pkg/audioconv"
	"echomind/pkg/stt"
)

func main() {
	cfg, err := config.ParseWeb(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := logging.Setup(os.Stderr, cfg.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		log.Error("Echo web stopped", "err", err)
		os.Exit(1)
	}
}

// clips decodes an uploaded recording and runs it through whisper.
type clips struct {
	whisper *stt.Transcriber
}

func (c clips) TranscribeClip(ctx context.Context, r io.Reader, name string) (string, error) {
	pcm, err := audioconv.Decode(ctx, r, name, audioconv.Options{})
	if err != nil {
		return "", err
	}
	return c.whisper.Transcribe(ctx, pcm)
}

func run(cfg config.Web) error {
	log.Info("Booting up")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := web.OpenStore(cfg.DB)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Debug("Opened database", "path", cfg.DB)

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
	log.Info("Generator", "model", gen.Model(), "ready", avail.Ready)

	srvCfg := web.Config{
		Store:   store,
		Auth:    web.NewAuth(store, 0),
		Chats:   assistant.NewChats(responder, store, nil, assistant.ChatConfig{SaveEvery: cfg.SaveEvery}),
		Uploads: cfg.Uploads,
		Static:  cfg.Static,
	}
	if cfg.WhisperModel != "" {
		whisper, err := stt.NewTranscriber(cfg.WhisperModel, stt.Options{Language: "auto"})
		if err != nil {
			return fmt.Errorf("init whisper: %w", err)
		}
		defer whisper.Close()
		srvCfg.Transcriber = clips{whisper: whisper}
		log.Debug("Loaded whisper", "model", cfg.WhisperModel)
	}

	srv, err := web.NewServer(srvCfg)
	if err != nil {
		return err
	}

	hs := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("Listening", "addr", cfg.Addr)
		errc <- hs.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := hs.Shutdown(shutCtx); err != nil {
		log.Warn("Failed to shut down cleanly", "err", err)
	}
	srv.Close(shutCtx)
	return nil
}
