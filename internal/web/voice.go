package web

import (
	"errors"
	log "log/slog"
	"net/http"
	"strings"
)

func (s *Server) handleVoiceStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"web_speech_supported": true,
		"server_transcription": s.transcriber != nil,
		"ai_loaded":            s.chats.Available(),
	})
}

// handleTranscribe turns an uploaded "audio" part into text when a server
// side transcriber is configured. Browsers otherwise use the Web Speech API.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.transcriber == nil {
		writeError(w, http.StatusServiceUnavailable, "Server transcription not available")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	clip, fh, err := r.FormFile("audio")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "Audio too large")
			return
		}
		writeError(w, http.StatusBadRequest, "No audio uploaded")
		return
	}
	defer clip.Close()

	text, err := s.transcriber.TranscribeClip(r.Context(), clip, fh.Filename)
	if err != nil {
		log.Warn("Failed to transcribe clip", "user", userFrom(r.Context()).ID, "name", fh.Filename, "err", err)
		writeError(w, http.StatusUnprocessableEntity, "Could not transcribe audio")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": strings.TrimSpace(text)})
}

type synthesizeRequest struct {
	Text string `json:"text"`
}

// handleSynthesize echoes the text back; the browser does the speaking.
func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "Text required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "text": req.Text})
}
