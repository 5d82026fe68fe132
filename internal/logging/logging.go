// Package logging installs the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	log "log/slog"
	"strings"

	"github.com/lmittmann/tint"
)

var levels = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func ParseLevel(name string) (log.Level, error) {
	l, ok := levels[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown log level %q", name)
	}
	return l, nil
}

// Setup makes a tint handler writing to w the default logger.
func Setup(w io.Writer, level string) error {
	l, err := ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetDefault(log.New(tint.NewHandler(w, &tint.Options{
		Level: l,
	})))
	return nil
}
