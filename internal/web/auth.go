package web

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	SessionTTL     = 7 * 24 * time.Hour
	minUsernameLen = 3
	minPasswordLen = 6
	maxPasswordLen = 72 // bcrypt input limit in bytes
)

var (
	ErrMissingFields      = errors.New("username and password required")
	ErrShortUsername      = fmt.Errorf("username must be at least %d characters", minUsernameLen)
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", minPasswordLen)
	ErrLongPassword       = fmt.Errorf("password must be at most %d bytes", maxPasswordLen)
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Auth registers users and issues session tokens.
type Auth struct {
	store *Store
	cost  int
	ttl   time.Duration
	now   func() time.Time
}

func NewAuth(store *Store, cost int) *Auth {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &Auth{store: store, cost: cost, ttl: SessionTTL, now: time.Now}
}

// Register creates the account and logs it in.
func (a *Auth) Register(ctx context.Context, username, password, email string) (*User, string, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	switch {
	case username == "" || password == "":
		return nil, "", ErrMissingFields
	case len([]rune(username)) < minUsernameLen:
		return nil, "", ErrShortUsername
	case len(password) < minPasswordLen:
		return nil, "", ErrWeakPassword
	case len(password) > maxPasswordLen:
		return nil, "", ErrLongPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		ID:           newID(),
		Username:     username,
		PasswordHash: string(hash),
		Email:        strings.TrimSpace(email),
		CreatedAt:    a.now(),
		Preferences:  map[string]any{},
	}
	if err := a.store.CreateUser(ctx, u); err != nil {
		return nil, "", err
	}

	token, err := a.startSession(ctx, u.ID)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

func (a *Auth) Login(ctx context.Context, username, password string) (*User, string, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return nil, "", ErrMissingFields
	}

	u, err := a.store.UserByUsername(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := a.startSession(ctx, u.ID)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

func (a *Auth) Logout(ctx context.Context, token string) error {
	return a.store.DeleteSession(ctx, token)
}

// UserForToken resolves a session cookie to its user.
func (a *Auth) UserForToken(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrNoSession
	}
	id, err := a.store.SessionUser(ctx, token, a.now())
	if err != nil {
		return nil, err
	}
	return a.store.UserByID(ctx, id)
}

func (a *Auth) startSession(ctx context.Context, userID string) (string, error) {
	token := uuid.NewString()
	if err := a.store.CreateSession(ctx, token, userID, a.now().Add(a.ttl)); err != nil {
		return "", err
	}
	return token, nil
}

// newID is a dashless UUID, so it matches the [file:<hex>] reference syntax.
func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
