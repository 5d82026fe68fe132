//go:build !espeak

package tts

import (
	"context"
	"errors"
)

// ErrNoEspeak is returned when the binary was built without the espeak tag.
var ErrNoEspeak = errors.New("built without libespeak-ng (use -tags espeak)")

type Espeak struct {
	Language string
	Rate     int
}

func NewEspeak(string, int) (Espeak, error) { return Espeak{}, ErrNoEspeak }

func (Espeak) Play(context.Context, string) error { return ErrNoEspeak }
