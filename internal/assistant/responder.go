// Package assistant runs conversations: the spoken loop for one local user
// and the per-user chat service behind the web front end. Both share a
// Responder for generation.
package assistant

import (
	"context"
	log "log/slog"
	"time"

	"echomind/internal/llm"
)

const DefaultGenerateTimeout = 2 * time.Minute

// Responder bounds every generation with a timeout and remembers whether the
// backend answered at startup.
type Responder struct {
	gen     llm.Generator
	opts    llm.Options
	timeout time.Duration
	ready   bool
}

func NewResponder(gen llm.Generator, opts llm.Options, timeout time.Duration) *Responder {
	if timeout <= 0 {
		timeout = DefaultGenerateTimeout
	}
	return &Responder{gen: gen, opts: opts, timeout: timeout, ready: gen != nil}
}

// SetAvailability records the startup probe result.
func (r *Responder) SetAvailability(a llm.Availability) {
	r.ready = r.gen != nil && a.Ready
	if a.Err != nil {
		log.Warn("Generator unavailable", "err", a.Err)
	}
}

// Available reports whether generation is worth attempting.
func (r *Responder) Available() bool {
	return r != nil && r.ready
}

func (r *Responder) Respond(ctx context.Context, prompt string) (string, error) {
	if r == nil || r.gen == nil {
		return "", &llm.GenerationError{Model: "none", Err: llm.ErrEmptyResponse}
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	out, err := r.gen.Generate(ctx, prompt, r.opts)
	if err != nil {
		return "", err
	}
	log.Debug("Generated", "chars", len(out), "took", time.Since(start))
	return out, nil
}
