package web

import (
	"context"
	"errors"
	log "log/slog"
	"net/http"
	"strings"
	"time"

	ws "github.com/gorilla/websocket"

	"echomind/internal/assistant"
	"echomind/internal/memory"
	"echomind/internal/prompt"
)

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response  string    `json:"response"`
	Type      string    `json:"type"`
	Action    string    `json:"action,omitempty"`
	URL       string    `json:"url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func toResponse(r assistant.Reply) chatResponse {
	return chatResponse{
		Response:  r.Text,
		Type:      string(r.Type),
		Action:    r.Action,
		URL:       r.URL,
		Timestamp: r.Timestamp,
	}
}

// send routes one message for u. On failure it returns the HTTP status and
// the message to show the client.
func (s *Server) send(ctx context.Context, u *User, text string) (chatResponse, int, string) {
	text = strings.TrimSpace(text)
	log.Info("Chat", "user", u.Username, "text", text)

	reply, err := s.chats.Send(ctx, assistant.Message{
		UserID:   u.ID,
		Username: u.Username,
		Text:     text,
		Files:    s.referencedFiles(ctx, u.ID, text),
	})
	switch {
	case errors.Is(err, assistant.ErrEmptyMessage):
		return chatResponse{}, http.StatusBadRequest, "Empty message"
	case errors.Is(err, assistant.ErrBusy):
		return chatResponse{}, http.StatusTooManyRequests, "AI is busy"
	case err != nil:
		log.Error("Chat failed", "user", u.ID, "err", err)
		return chatResponse{}, http.StatusInternalServerError, "Chat failed"
	}
	return toResponse(reply), http.StatusOK, ""
}

func (s *Server) referencedFiles(ctx context.Context, userID, text string) []prompt.File {
	var files []prompt.File
	for _, id := range prompt.FileRefs(text) {
		f, err := s.store.File(ctx, userID, id)
		if err != nil {
			if !errors.Is(err, ErrFileNotFound) {
				log.Warn("Failed to load referenced file", "file", id, "err", err)
			}
			continue
		}
		files = append(files, prompt.File{Name: f.OriginalName, Summary: f.Summary, Text: f.Text})
	}
	return files
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, status, msg := s.send(r.Context(), userFrom(r.Context()), req.Message)
	if status != http.StatusOK {
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	turns := s.chats.History(r.Context(), userFrom(r.Context()).ID)
	if turns == nil {
		turns = []memory.Turn{}
	}
	writeJSON(w, http.StatusOK, turns)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	if err := s.chats.Clear(r.Context(), u.ID); err != nil {
		log.Error("Failed to clear conversation", "user", u.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to clear conversation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

var upgrader = ws.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

type wsError struct {
	Error string `json:"error"`
}

// handleWebSocket is the chat API over one long-lived connection. Each
// incoming {"message": ...} frame gets exactly one reply frame.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("Failed to upgrade websocket", "user", u.ID, "err", err)
		return
	}
	defer conn.Close()

	log.Debug("Websocket connected", "user", u.ID)
	conn.SetReadLimit(maxJSONBytes)

	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if isClosed(err) {
				log.Debug("Websocket closed", "user", u.ID)
			} else {
				log.Warn("Failed to read websocket", "user", u.ID, "err", err)
			}
			return
		}

		var out any
		resp, status, msg := s.send(r.Context(), u, req.Message)
		if status == http.StatusOK {
			out = resp
		} else {
			out = wsError{Error: msg}
		}
		if err := conn.WriteJSON(out); err != nil {
			log.Warn("Failed to write websocket", "user", u.ID, "err", err)
			return
		}
	}
}

func isClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
