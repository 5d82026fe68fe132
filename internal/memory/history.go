package memory

import (
	"context"
	"errors"
	"os"
	"time"
)

// MaxTurns is how many turns any history retains.
const MaxTurns = 100

// Turn is one user input and the assistant's answer to it.
type Turn struct {
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
	Timestamp time.Time `json:"timestamp"`
}

// History is an insertion-ordered, bounded list of turns. It is owned by a
// single session and is not safe for concurrent use.
type History struct {
	turns []Turn
	max   int
}

// NewHistory seeds a history with previously persisted turns, keeping only
// the newest max (MaxTurns when max <= 0).
func NewHistory(turns []Turn, max int) *History {
	if max <= 0 {
		max = MaxTurns
	}
	h := &History{max: max}
	for _, t := range turns {
		h.Append(t)
	}
	return h
}

// Append adds t, dropping the oldest turn once the cap is reached.
func (h *History) Append(t Turn) {
	if h.max <= 0 {
		h.max = MaxTurns
	}
	if len(h.turns) >= h.max {
		n := copy(h.turns, h.turns[len(h.turns)-h.max+1:])
		h.turns = h.turns[:n]
	}
	h.turns = append(h.turns, t)
}

// Recent returns up to n of the newest turns, oldest first.
func (h *History) Recent(n int) []Turn {
	if n <= 0 || len(h.turns) == 0 {
		return nil
	}
	if n > len(h.turns) {
		n = len(h.turns)
	}
	return append([]Turn(nil), h.turns[len(h.turns)-n:]...)
}

func (h *History) All() []Turn {
	return append([]Turn{}, h.turns...)
}

func (h *History) Len() int { return len(h.turns) }

func (h *History) Clear() { h.turns = h.turns[:0] }

// HistoryFile persists turns as a JSON array.
type HistoryFile struct {
	Path string
}

// Load returns nil, nil when the file does not exist yet.
func (f *HistoryFile) Load(_ context.Context) ([]Turn, error) {
	var turns []Turn
	if err := readJSON(f.Path, &turns); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return turns, nil
}

// Save overwrites the file with the newest MaxTurns of turns.
func (f *HistoryFile) Save(_ context.Context, turns []Turn) error {
	if len(turns) > MaxTurns {
		turns = turns[len(turns)-MaxTurns:]
	}
	if turns == nil {
		turns = []Turn{}
	}
	return writeJSON(f.Path, turns)
}
