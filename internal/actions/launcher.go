// Package actions carries out the non-generative intents: launching desktop
// applications and opening pages in the default browser.
package actions

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"os/exec"
	"runtime"
	"strings"
)

// NotFoundError means no launch candidate for App exists on this machine.
type NotFoundError struct {
	App string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("application %q not found", e.App)
}

// Candidates maps an app name to the command lines tried in order.
type Candidates map[string][][]string

var defaultCandidates = map[string]Candidates{
	"linux": {
		"chrome":     {{"google-chrome"}, {"google-chrome-stable"}, {"chromium"}, {"chromium-browser"}},
		"notepad":    {{"gnome-text-editor"}, {"gedit"}, {"kate"}, {"mousepad"}, {"xed"}},
		"calculator": {{"gnome-calculator"}, {"kcalc"}, {"galculator"}, {"qalculate-gtk"}},
	},
	"darwin": {
		"chrome":     {{"open", "-a", "Google Chrome"}},
		"notepad":    {{"open", "-a", "TextEdit"}},
		"calculator": {{"open", "-a", "Calculator"}},
	},
	"windows": {
		"chrome": {
			{`C:\Program Files\Google\Chrome\Application\chrome.exe`},
			{`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`},
		},
		"notepad":    {{"notepad.exe"}},
		"calculator": {{"calc.exe"}},
	},
}

// DefaultCandidates returns the table for the running OS.
func DefaultCandidates() Candidates {
	return defaultCandidates[runtime.GOOS]
}

// Launcher starts applications without waiting for them to exit.
type Launcher struct {
	Candidates Candidates
	LookPath   func(file string) (string, error)
	Start      func(ctx context.Context, path string, args []string) error
}

func NewLauncher() *Launcher {
	return &Launcher{
		Candidates: DefaultCandidates(),
		LookPath:   exec.LookPath,
		Start:      startDetached,
	}
}

// Open launches the first candidate for app that resolves on PATH.
func (l *Launcher) Open(ctx context.Context, app string) error {
	app = strings.ToLower(strings.TrimSpace(app))

	for _, argv := range l.Candidates[app] {
		if len(argv) == 0 {
			continue
		}
		path, err := l.LookPath(argv[0])
		if err != nil {
			continue
		}
		if err := l.Start(ctx, path, argv[1:]); err != nil {
			return fmt.Errorf("start %s: %w", app, err)
		}
		log.Info("Launched", "app", app, "path", path)
		return nil
	}
	return &NotFoundError{App: app}
}

// IsNotFound reports whether err came from a missing application.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func startDetached(_ context.Context, path string, args []string) error {
	// The launched app outlives the request, so it gets no context.
	cmd := exec.Command(path, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
