package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func streamChunks(w http.ResponseWriter, parts ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for i, p := range parts {
		chunk := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion.chunk",
			"created": 1,
			"model":   "phi3",
			"choices": []map[string]any{{
				"index":         0,
				"delta":         map[string]any{"content": p},
				"finish_reason": nil,
			}},
		}
		if i == len(parts)-1 {
			chunk["choices"].([]map[string]any)[0]["finish_reason"] = "stop"
		}
		b, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", b)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func TestGenerateConcatenatesStream(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))
		streamChunks(w, "Hey ", "Boss", "... ", "good morning.")
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/v1/", Model: "phi3"})
	out, err := c.Generate(context.Background(), "hello", Options{MaxContextTokens: 2048, Threads: 8})
	require.NoError(t, err)
	assert.Equal(t, "Hey Boss... good morning.", out)

	assert.Equal(t, "phi3", body["model"])
	assert.Equal(t, true, body["stream"])
	opts, ok := body["options"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 2048, opts["num_ctx"])
	assert.EqualValues(t, 8, opts["num_thread"])
}

func TestGenerateBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"model not loaded"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/v1/", Retries: 0})
	_, err := c.Generate(context.Background(), "hello", Options{})
	require.Error(t, err)

	var gerr *GenerationError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, DefaultModel, gerr.Model)
}

func TestGenerateEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		streamChunks(w, "  ")
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL + "/v1/"}).Generate(context.Background(), "hello", Options{})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"id":"phi3","object":"model","created":1,"owned_by":"library"}]}`)
	}))
	defer srv.Close()

	a := New(Config{BaseURL: srv.URL + "/v1/"}).Ping(context.Background())
	assert.True(t, a.Ready)
	assert.NoError(t, a.Err)

	srv.Close()
	a = New(Config{BaseURL: srv.URL + "/v1/"}).Ping(context.Background())
	assert.False(t, a.Ready)
	assert.Error(t, a.Err)
}
