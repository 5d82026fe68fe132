// Package notify tells the user the assistant is about to listen.
package notify

import (
	"context"
	log "log/slog"
	"os"
	"os/exec"
)

// Player plays a complete encoded clip.
type Player interface {
	PlayEncoded(ctx context.Context, data []byte) error
}

// Cue is the listening sound. A missing or undecodable file only logs.
type Cue struct {
	player Player
	data   []byte
}

// NewCue loads path once. An empty path gives a silent cue.
func NewCue(player Player, path string) *Cue {
	c := &Cue{player: player}
	if path == "" {
		return c
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("Listening cue unavailable", "path", path, "err", err)
		return c
	}
	c.data = data
	return c
}

// Play blocks until the cue has finished.
func (c *Cue) Play(ctx context.Context) {
	if c == nil || c.player == nil || len(c.data) == 0 {
		return
	}
	if err := c.player.PlayEncoded(ctx, c.data); err != nil && ctx.Err() == nil {
		log.Warn("Failed to play cue", "err", err)
	}
}

// Desktop shows text as a desktop notification when notify-send exists.
func Desktop(ctx context.Context, text string) {
	bin, err := exec.LookPath("notify-send")
	if err != nil {
		return
	}
	if err := exec.CommandContext(ctx, bin, "-a", "Echo", "-t", "2000", text).Run(); err != nil {
		log.Debug("Failed to notify", "err", err)
	}
}
