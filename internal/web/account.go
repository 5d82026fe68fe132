package web

import (
	"errors"
	log "log/slog"
	"net/http"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

var userErrors = map[error]string{
	ErrMissingFields:      "Username and password required",
	ErrShortUsername:      "Username must be at least 3 characters",
	ErrWeakPassword:       "Password must be at least 6 characters",
	ErrLongPassword:       "Password must be at most 72 bytes",
	ErrUserExists:         "Username exists",
	ErrInvalidCredentials: "Invalid credentials",
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeJSON(w, r, &req) {
		return
	}

	u, token, err := s.auth.Register(r.Context(), req.Username, req.Password, req.Email)
	if err != nil {
		if msg, ok := userErrors[err]; ok {
			writeError(w, http.StatusBadRequest, msg)
			return
		}
		log.Error("Failed to register", "err", err)
		writeError(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	log.Info("Registered", "user", u.ID, "username", u.Username)
	s.setSessionCookie(w, r, token)
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Registration successful",
		"user":    u,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeJSON(w, r, &req) {
		return
	}

	u, token, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, userErrors[err])
		case errors.Is(err, ErrMissingFields):
			writeError(w, http.StatusBadRequest, userErrors[err])
		default:
			log.Error("Failed to log in", "err", err)
			writeError(w, http.StatusInternalServerError, "Login failed")
		}
		return
	}

	s.setSessionCookie(w, r, token)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Login successful",
		"user":    u,
	})
}

// handleLogout saves the user's conversation before dropping the session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if u, token := s.currentUser(r); u != nil {
		s.chats.Forget(r.Context(), u.ID)
		if err := s.auth.Logout(r.Context(), token); err != nil {
			log.Warn("Failed to delete session", "user", u.ID, "err", err)
		}
	}
	clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	u, _ := s.currentUser(r)

	count, err := s.store.CountUsers(r.Context())
	if err != nil {
		log.Warn("Failed to count users", "err", err)
	}

	resp := map[string]any{
		"authenticated": u != nil,
		"username":      nil,
		"ai_loaded":     s.chats.Available(),
		"users_count":   count,
		"timestamp":     s.now(),
	}
	if u != nil {
		resp["username"] = u.Username
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userFrom(r.Context()))
}

type profileUpdate struct {
	Email       *string         `json:"email"`
	Preferences *map[string]any `json:"preferences"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileUpdate
	if !decodeJSON(w, r, &req) {
		return
	}

	u := userFrom(r.Context())
	if req.Email != nil {
		u.Email = *req.Email
	}
	if req.Preferences != nil {
		u.Preferences = *req.Preferences
	}

	if err := s.store.UpdateProfile(r.Context(), u); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		log.Error("Failed to update profile", "user", u.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to update profile")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
