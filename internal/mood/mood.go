// Package mood derives the assistant's coarse mood and the day-part from the
// wall clock. Everything here is a pure function of the time it is given.
package mood

import "time"

type Mood string

const (
	Sleepy  Mood = "sleepy"
	Focused Mood = "focused"
	Playful Mood = "playful"
	Tired   Mood = "tired"
)

type DayPart string

const (
	LateNight DayPart = "late night"
	Morning   DayPart = "morning"
	Afternoon DayPart = "afternoon"
	Evening   DayPart = "evening"
)

// MoodAt maps the local hour of t onto a mood.
func MoodAt(t time.Time) Mood {
	switch h := t.Hour(); {
	case h >= 6 && h < 10:
		return Sleepy
	case h >= 10 && h < 16:
		return Focused
	case h >= 16 && h < 21:
		return Playful
	default:
		return Tired
	}
}

// DayPartAt maps the local hour of t onto a day-part.
func DayPartAt(t time.Time) DayPart {
	switch h := t.Hour(); {
	case h < 6:
		return LateNight
	case h < 12:
		return Morning
	case h < 18:
		return Afternoon
	default:
		return Evening
	}
}

// Context is the mood and day-part for one instant.
type Context struct {
	Mood    Mood
	DayPart DayPart
}

func Of(t time.Time) Context {
	return Context{Mood: MoodAt(t), DayPart: DayPartAt(t)}
}

// Clock is injected wherever "now" matters so tests can pin the hour.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System is the wall clock.
var System Clock = systemClock{}

// Fixed always reports the same instant.
type Fixed time.Time

func (f Fixed) Now() time.Time { return time.Time(f) }
