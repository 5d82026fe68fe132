package notify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type player struct {
	clips [][]byte
	err   error
}

func (p *player) PlayEncoded(_ context.Context, data []byte) error {
	p.clips = append(p.clips, data)
	return p.err
}

func TestCuePlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beep.mp3")
	require.NoError(t, os.WriteFile(path, []byte("ID3clip"), 0o644))

	p := &player{}
	NewCue(p, path).Play(context.Background())
	assert.Equal(t, [][]byte{[]byte("ID3clip")}, p.clips)

	p.err = errors.New("no speaker")
	NewCue(p, path).Play(context.Background())
	assert.Len(t, p.clips, 2)
}

func TestMissingCueIsSilent(t *testing.T) {
	p := &player{}
	NewCue(p, filepath.Join(t.TempDir(), "missing.mp3")).Play(context.Background())
	NewCue(p, "").Play(context.Background())
	assert.Empty(t, p.clips)

	var c *Cue
	c.Play(context.Background())
}
