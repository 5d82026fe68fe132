package web

import (
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"echomind/internal/ingest"
	"echomind/internal/prompt"
)

const statusProcessed = "processed"

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	files, err := s.store.Files(r.Context(), u.ID)
	if err != nil {
		log.Error("Failed to list files", "user", u.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to list files")
		return
	}
	writeJSON(w, http.StatusOK, files)
}

// handleUpload accepts one or more "files" parts. Parts with a disallowed
// extension are skipped.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		writeError(w, http.StatusBadRequest, "No files uploaded")
		return
	}
	defer r.MultipartForm.RemoveAll()

	parts := r.MultipartForm.File["files"]
	if len(parts) == 0 {
		writeError(w, http.StatusBadRequest, "No files uploaded")
		return
	}

	uploaded := []File{}
	for _, fh := range parts {
		if fh.Filename == "" || !ingest.IsAllowed(fh.Filename) {
			log.Debug("Skipping upload", "user", u.ID, "name", fh.Filename)
			continue
		}
		f, err := s.saveUpload(r, u, fh)
		if err != nil {
			log.Error("Failed to save upload", "user", u.ID, "name", fh.Filename, "err", err)
			writeError(w, http.StatusInternalServerError, "Failed to save file")
			return
		}
		log.Info("Uploaded", "user", u.ID, "file", f.ID, "name", f.OriginalName, "size", f.Size)
		uploaded = append(uploaded, *f)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"files":   uploaded,
	})
}

func (s *Server) saveUpload(r *http.Request, u *User, fh *multipart.FileHeader) (*File, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}

	now := s.now()
	id := newID()
	saved := fmt.Sprintf("%s_%s_%s_%s", u.ID, now.Format("20060102_150405"), id, safeName(fh.Filename))
	if err := os.WriteFile(filepath.Join(s.uploads, saved), data, 0o644); err != nil {
		return nil, err
	}

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	content := ingest.Extract(fh.Filename, contentType, data)

	f := &File{
		ID:           id,
		UserID:       u.ID,
		OriginalName: fh.Filename,
		SavedName:    saved,
		ContentType:  contentType,
		Size:         int64(len(data)),
		UploadedAt:   now,
		Status:       statusProcessed,
		Summary:      content.Summary,
		Text:         content.Text,
	}
	if err := s.store.AddFile(r.Context(), f); err != nil {
		os.Remove(filepath.Join(s.uploads, saved))
		return nil, err
	}
	return f, nil
}

// safeName keeps the base name and replaces anything outside [A-Za-z0-9._-].
func safeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	name = strings.TrimLeft(name, "._")
	if name == "" {
		return "file"
	}
	return name
}

func (s *Server) fileOr404(w http.ResponseWriter, r *http.Request) *File {
	u := userFrom(r.Context())
	f, err := s.store.File(r.Context(), u.ID, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			writeError(w, http.StatusNotFound, "File not found")
		} else {
			log.Error("Failed to load file", "user", u.ID, "err", err)
			writeError(w, http.StatusInternalServerError, "Failed to load file")
		}
		return nil
	}
	return f
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	if f := s.fileOr404(w, r); f != nil {
		writeJSON(w, http.StatusOK, f)
	}
}

func (s *Server) handleFileContent(w http.ResponseWriter, r *http.Request) {
	f := s.fileOr404(w, r)
	if f == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"text":     f.Text,
		"filename": f.OriginalName,
		"summary":  f.Summary,
	})
}

type askRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleAskFile(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "Question required")
		return
	}

	f := s.fileOr404(w, r)
	if f == nil {
		return
	}

	answer := s.chats.AnswerFile(r.Context(), prompt.FileQuestion{
		Name:        f.OriginalName,
		ContentType: f.ContentType,
		Summary:     f.Summary,
		Content:     f.Text,
		Question:    req.Question,
	})
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	f := s.fileOr404(w, r)
	if f == nil {
		return
	}

	if err := os.Remove(filepath.Join(s.uploads, f.SavedName)); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to remove upload", "file", f.ID, "err", err)
	}
	if err := s.store.DeleteFile(r.Context(), f.UserID, f.ID); err != nil && !errors.Is(err, ErrFileNotFound) {
		log.Error("Failed to delete file", "file", f.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete file")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
