// Package web serves the multi-user chat front end: accounts, chat over
// HTTP and websocket, file uploads and voice helpers. Every piece of state is
// keyed by the logged-in user.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	log "log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"echomind/internal/assistant"
)

const (
	CookieName     = "echomind_session"
	MaxUploadBytes = 16 << 20
	maxJSONBytes   = 1 << 20
)

// ClipTranscriber turns an uploaded audio clip into text.
type ClipTranscriber interface {
	TranscribeClip(ctx context.Context, r io.Reader, name string) (string, error)
}

type Config struct {
	Store       *Store
	Auth        *Auth
	Chats       *assistant.Chats
	Uploads     string          // directory for uploaded files
	Static      string          // optional directory served under /static/
	Transcriber ClipTranscriber // optional
	Now         func() time.Time
}

type Server struct {
	store       *Store
	auth        *Auth
	chats       *assistant.Chats
	uploads     string
	static      string
	transcriber ClipTranscriber
	now         func() time.Time
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Uploads == "" {
		cfg.Uploads = "uploads"
	}
	if err := os.MkdirAll(cfg.Uploads, 0o755); err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Server{
		store:       cfg.Store,
		auth:        cfg.Auth,
		chats:       cfg.Chats,
		uploads:     cfg.Uploads,
		static:      cfg.Static,
		transcriber: cfg.Transcriber,
		now:         cfg.Now,
	}, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("GET /logout", s.handleLogout)
	mux.HandleFunc("GET /api/status", s.handleStatus)

	mux.Handle("GET /api/user/profile", s.requireUser(s.handleGetProfile))
	mux.Handle("PUT /api/user/profile", s.requireUser(s.handleUpdateProfile))

	mux.Handle("POST /api/chat", s.requireUser(s.handleChat))
	mux.Handle("GET /api/conversation", s.requireUser(s.handleConversation))
	mux.Handle("POST /api/clear", s.requireUser(s.handleClear))
	mux.Handle("GET /ws", s.requireUser(s.handleWebSocket))

	mux.Handle("GET /api/files", s.requireUser(s.handleListFiles))
	mux.Handle("POST /api/files/upload", s.requireUser(s.handleUpload))
	mux.Handle("GET /api/files/{id}", s.requireUser(s.handleGetFile))
	mux.Handle("GET /api/files/{id}/content", s.requireUser(s.handleFileContent))
	mux.Handle("POST /api/files/{id}/ask", s.requireUser(s.handleAskFile))
	mux.Handle("DELETE /api/files/{id}", s.requireUser(s.handleDeleteFile))

	mux.Handle("GET /api/voice/status", s.requireUser(s.handleVoiceStatus))
	mux.Handle("POST /api/voice/transcribe", s.requireUser(s.handleTranscribe))
	mux.Handle("POST /api/voice/synthesize", s.requireUser(s.handleSynthesize))

	if s.static != "" {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.static))))
		mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, filepath.Join(s.static, "index.html"))
		})
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})

	return mux
}

// Close persists every user's unsaved conversation.
func (s *Server) Close(ctx context.Context) {
	s.chats.FlushAll(ctx)
}

type ctxKey struct{}

func userFrom(ctx context.Context) *User {
	u, _ := ctx.Value(ctxKey{}).(*User)
	return u
}

func (s *Server) currentUser(r *http.Request) (*User, string) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return nil, ""
	}
	u, err := s.auth.UserForToken(r.Context(), c.Value)
	if err != nil {
		if !errors.Is(err, ErrNoSession) && !errors.Is(err, ErrUserNotFound) {
			log.Error("Failed to resolve session", "err", err)
		}
		return nil, ""
	}
	return u, c.Value
}

func (s *Server) requireUser(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, _ := s.currentUser(r)
		if u == nil {
			writeError(w, http.StatusUnauthorized, "Login required")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, u)))
	})
}

func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  s.now().Add(SessionTTL),
		MaxAge:   int(SessionTTL / time.Second),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("Failed to write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
