package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echomind/internal/llm"
)

func TestVoiceDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	v, err := ParseVoice(nil)
	require.NoError(t, err)
	assert.Equal(t, llm.DefaultBaseURL, v.LLMURL)
	assert.Equal(t, "phi3", v.Model)
	assert.Equal(t, 2048, v.ContextTokens)
	assert.Equal(t, 2*time.Minute, v.GenTimeout)
	assert.Equal(t, "memory.json", v.MemoryFile)
	assert.Equal(t, "conversation.json", v.HistoryFile)
	assert.Equal(t, "/tmp/echo.sock", v.Socket)
	assert.False(t, v.Text)
}

func TestFlagsBeatEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("ECHO_MODEL=llama3\nECHO_DB=/var/echo.db\n"), 0o644))
	t.Setenv("ECHO_MODEL", "")
	t.Setenv("ECHO_DB", "")
	os.Unsetenv("ECHO_MODEL")
	os.Unsetenv("ECHO_DB")

	w, err := ParseWeb([]string{"--env", envFile, "--addr", ":8080"})
	require.NoError(t, err)
	assert.Equal(t, "llama3", w.Model)
	assert.Equal(t, "/var/echo.db", w.DB)
	assert.Equal(t, ":8080", w.Addr)
	assert.Equal(t, 5, w.SaveEvery)

	w, err = ParseWeb([]string{"--env", envFile, "--model", "mistral"})
	require.NoError(t, err)
	assert.Equal(t, "mistral", w.Model)
}

func TestValidation(t *testing.T) {
	cases := map[string][]string{
		"bad log level":   {"--log", "loud"},
		"zero ctx":        {"--ctx", "0"},
		"negative retry":  {"--retries", "-1"},
		"unknown flag":    {"--volume", "11"},
		"named env file":  {"--env", "/nonexistent/echo.env"},
		"zero save every": {"--save-every", "0"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			_, err := ParseWeb(args)
			assert.Error(t, err)
		})
	}
}

func TestVoiceNeedsModelUnlessText(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := ParseVoice([]string{"--whisper-model", ""})
	assert.Error(t, err)

	v, err := ParseVoice([]string{"--whisper-model", "", "--text"})
	require.NoError(t, err)
	assert.True(t, v.Text)
}
