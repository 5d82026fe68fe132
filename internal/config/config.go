// Package config parses command-line flags for the echo binaries. Flags win;
// unset flags fall back to the environment, which may be seeded from an env
// file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"echomind/internal/ipc"
	"echomind/internal/llm"
	"echomind/internal/logging"
	"echomind/internal/tts"
)

// Common is shared by every binary that talks to the generator.
type Common struct {
	EnvFile       string
	LogLevel      string
	LLMURL        string
	Model         string
	APIKey        string
	Proxy         string
	ContextTokens int
	Threads       int
	GenTimeout    time.Duration
	Retries       int
}

type Voice struct {
	Common
	MemoryFile   string
	HistoryFile  string
	WhisperModel string
	Language     string
	TTSCommand   string
	Cue          string
	Duck         bool
	Text         bool
	Mute         bool
	Socket       string
}

type Web struct {
	Common
	Addr         string
	DB           string
	Uploads      string
	Static       string
	WhisperModel string
	SaveEvery    int
}

// env lists the fallback variable for each flag that has one.
var env = map[string]string{
	"llm-url":       "ECHO_LLM_URL",
	"model":         "ECHO_MODEL",
	"proxy":         "ECHO_PROXY",
	"whisper-model": "ECHO_WHISPER_MODEL",
	"addr":          "ECHO_ADDR",
	"db":            "ECHO_DB",
}

func addCommon(fs *cli.FlagSet, c *Common) {
	fs.StringVarP(&c.EnvFile, "env", "e", ".env", "Env file path")
	fs.StringVarP(&c.LogLevel, "log", "l", "info", "Log level (debug|info|warn|error)")
	fs.StringVar(&c.LLMURL, "llm-url", llm.DefaultBaseURL, "OpenAI-compatible API base URL")
	fs.StringVar(&c.Model, "model", llm.DefaultModel, "Model name")
	fs.StringVarP(&c.Proxy, "proxy", "p", "", "Socks5 proxy address for the generator, empty for direct")
	fs.IntVar(&c.ContextTokens, "ctx", 2048, "Context window in tokens")
	fs.IntVar(&c.Threads, "threads", 8, "Generator threads")
	fs.DurationVar(&c.GenTimeout, "gen-timeout", 2*time.Minute, "Timeout for one generation")
	fs.IntVar(&c.Retries, "retries", 2, "Retries for a failed generator request")
}

func ParseVoice(args []string) (Voice, error) {
	var v Voice
	fs := cli.NewFlagSet("echo", cli.ContinueOnError)
	addCommon(fs, &v.Common)
	fs.StringVar(&v.MemoryFile, "memory", "memory.json", "Memory file")
	fs.StringVar(&v.HistoryFile, "history", "conversation.json", "Conversation history file")
	fs.StringVar(&v.WhisperModel, "whisper-model", "models/ggml-base.en.bin", "Whisper model path")
	fs.StringVar(&v.Language, "lang", "en", "Speech language, or auto")
	fs.StringVar(&v.TTSCommand, "tts-cmd", tts.DefaultCommand, `Synthesizer writing WAV/MP3 to stdout, or "libespeak"`)
	fs.StringVar(&v.Cue, "cue", "beep.mp3", "Sound played before listening, empty for none")
	fs.BoolVar(&v.Duck, "duck", false, "Lower other audio while speaking")
	fs.BoolVarP(&v.Text, "text", "t", false, "Read utterances from stdin instead of the microphone")
	fs.BoolVar(&v.Mute, "mute", false, "Print replies without speaking them")
	fs.StringVar(&v.Socket, "socket", ipc.DefaultSocketPath, "Control socket path, empty to disable")

	if err := fs.Parse(args); err != nil {
		return Voice{}, err
	}
	if err := v.Common.load(fs); err != nil {
		return Voice{}, err
	}
	fromEnv(fs, "whisper-model", &v.WhisperModel)

	if !v.Text && v.WhisperModel == "" {
		return Voice{}, errors.New("--whisper-model is required unless --text is set")
	}
	return v, nil
}

func ParseWeb(args []string) (Web, error) {
	var w Web
	fs := cli.NewFlagSet("echo-web", cli.ContinueOnError)
	addCommon(fs, &w.Common)
	fs.StringVarP(&w.Addr, "addr", "a", ":5000", "Listen address")
	fs.StringVar(&w.DB, "db", "user_data/echomind.db", "SQLite database path")
	fs.StringVar(&w.Uploads, "uploads", "uploads", "Upload directory")
	fs.StringVar(&w.Static, "static", "", "Directory served under /static/, optional")
	fs.StringVar(&w.WhisperModel, "whisper-model", "", "Whisper model for server transcription, optional")
	fs.IntVar(&w.SaveEvery, "save-every", 5, "Persist a conversation after this many turns")

	if err := fs.Parse(args); err != nil {
		return Web{}, err
	}
	if err := w.Common.load(fs); err != nil {
		return Web{}, err
	}
	fromEnv(fs, "whisper-model", &w.WhisperModel)
	fromEnv(fs, "addr", &w.Addr)
	fromEnv(fs, "db", &w.DB)

	if w.SaveEvery <= 0 {
		return Web{}, fmt.Errorf("--save-every must be positive, got %d", w.SaveEvery)
	}
	return w, nil
}

// load reads the env file and applies fallbacks. A missing default env file
// is fine; a missing one named on the command line is not.
func (c *Common) load(fs *cli.FlagSet) error {
	if err := godotenv.Load(c.EnvFile); err != nil {
		if fs.Changed("env") || !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", c.EnvFile, err)
		}
	}

	fromEnv(fs, "llm-url", &c.LLMURL)
	fromEnv(fs, "model", &c.Model)
	fromEnv(fs, "proxy", &c.Proxy)
	c.APIKey = os.Getenv("OPENAI_API_KEY")
	if v := os.Getenv("ECHO_LOG"); v != "" && !fs.Changed("log") {
		c.LogLevel = v
	}
	if v := os.Getenv("ECHO_CTX"); v != "" && !fs.Changed("ctx") {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ECHO_CTX: %w", err)
		}
		c.ContextTokens = n
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch {
	case c.ContextTokens <= 0:
		return fmt.Errorf("--ctx must be positive, got %d", c.ContextTokens)
	case c.Threads <= 0:
		return fmt.Errorf("--threads must be positive, got %d", c.Threads)
	case c.GenTimeout <= 0:
		return fmt.Errorf("--gen-timeout must be positive, got %s", c.GenTimeout)
	case c.Retries < 0:
		return fmt.Errorf("--retries must not be negative, got %d", c.Retries)
	}
	return nil
}

func fromEnv(fs *cli.FlagSet, flag string, dst *string) {
	if fs.Changed(flag) {
		return
	}
	if v := os.Getenv(env[flag]); v != "" {
		*dst = v
	}
}
