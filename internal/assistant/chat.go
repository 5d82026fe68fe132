package assistant

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"sync"
	"time"

	"echomind/internal/actions"
	"echomind/internal/memory"
	"echomind/internal/mood"
	"echomind/internal/prompt"
	"echomind/internal/router"
)

var (
	ErrBusy         = errors.New("AI is busy")
	ErrEmptyMessage = errors.New("empty message")
)

const (
	ChatFarewell      = "Goodbye! See you next time."
	declineLaunch     = "I can't open desktop apps from the browser, Boss. Try the voice assistant for that."
	DefaultSaveEvery  = 5
	DefaultChatRecent = 5
)

// ChatStore persists each user's conversation and memory.
type ChatStore interface {
	LoadTurns(ctx context.Context, userID string) ([]memory.Turn, error)
	SaveTurns(ctx context.Context, userID string, turns []memory.Turn) error
	LoadMemory(ctx context.Context, userID string) (memory.Snapshot, error)
	SaveMemory(ctx context.Context, userID string, s memory.Snapshot) error
}

// Message is one chat request from an authenticated user.
type Message struct {
	UserID   string
	Username string
	Text     string
	Files    []prompt.File // resolved [file:<id>] references
}

type ReplyType string

const (
	ReplyText   ReplyType = "text"
	ReplyAction ReplyType = "action"
)

// Reply is what the client renders. Action replies carry a URL for the
// browser to open.
type Reply struct {
	Text      string
	Type      ReplyType
	Action    string
	URL       string
	Timestamp time.Time
}

type ChatConfig struct {
	Persona     string
	SaveEvery   int // flush history after this many unsaved turns
	RecentTurns int
	MemoryLimit int
}

// Chats owns the state of every web user. Each user has their own lock, so
// one user's slow generation never blocks another user.
type Chats struct {
	responder *Responder
	router    *router.Router
	store     ChatStore
	clock     mood.Clock
	cfg       ChatConfig

	mu    sync.Mutex
	users map[string]*userChat
}

type userChat struct {
	mu      sync.Mutex // held for a whole turn; TryLock is the busy check
	loaded  bool
	history *memory.History
	memory  memory.Snapshot
	unsaved int
}

func NewChats(r *Responder, store ChatStore, clock mood.Clock, cfg ChatConfig) *Chats {
	if clock == nil {
		clock = mood.System
	}
	if cfg.SaveEvery <= 0 {
		cfg.SaveEvery = DefaultSaveEvery
	}
	if cfg.RecentTurns <= 0 {
		cfg.RecentTurns = DefaultChatRecent
	}
	return &Chats{
		responder: r,
		router:    router.New(router.DefaultRules()...),
		store:     store,
		clock:     clock,
		cfg:       cfg,
		users:     make(map[string]*userChat),
	}
}

func (c *Chats) user(id string) *userChat {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.users[id]
	if !ok {
		u = &userChat{}
		c.users[id] = u
	}
	return u
}

// load must be called with u.mu held.
func (c *Chats) load(ctx context.Context, id string, u *userChat) {
	if u.loaded {
		return
	}
	turns, err := c.store.LoadTurns(ctx, id)
	if err != nil {
		log.Warn("Failed to load conversation", "user", id, "err", err)
	}
	u.history = memory.NewHistory(turns, memory.MaxTurns)

	snap, err := c.store.LoadMemory(ctx, id)
	if err != nil {
		log.Warn("Failed to load memory", "user", id, "err", err)
	}
	if snap == nil {
		snap = memory.Defaults()
	}
	u.memory = snap
	u.loaded = true
}

// Send handles one chat message. It returns ErrBusy when the same user
// already has a message in flight.
func (c *Chats) Send(ctx context.Context, m Message) (Reply, error) {
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return Reply{}, ErrEmptyMessage
	}

	u := c.user(m.UserID)
	if !u.mu.TryLock() {
		return Reply{}, ErrBusy
	}
	defer u.mu.Unlock()

	c.load(ctx, m.UserID, u)
	now := c.clock.Now()

	reply := c.reply(ctx, m, u, text, now)
	reply.Timestamp = now

	c.record(ctx, m.UserID, u, memory.Turn{User: text, Assistant: reply.Text, Timestamp: now})
	return reply, nil
}

func (c *Chats) reply(ctx context.Context, m Message, u *userChat, text string, now time.Time) Reply {
	if router.IsExit(text) {
		return Reply{Text: ChatFarewell, Type: ReplyText}
	}

	switch d := c.router.Route(text); d.Kind {
	case router.BrowserAction:
		if d.Browser == router.PlayYouTube {
			if d.Payload == "" {
				return Reply{Text: askWhatToPlay, Type: ReplyText}
			}
			return Reply{Text: confirmYouTube, Type: ReplyAction, Action: d.Browser.String(), URL: actions.SearchURL(d.Payload)}
		}
		return Reply{Text: confirmBrowser, Type: ReplyAction, Action: d.Browser.String(), URL: d.Payload}
	case router.LaunchApp:
		return Reply{Text: declineLaunch, Type: ReplyText}
	}

	if !c.responder.Available() {
		return Reply{Text: SmartReply(text, m.Username, now), Type: ReplyText}
	}

	p := prompt.Chat{
		Persona:  c.cfg.Persona,
		Username: m.Username,
		Now:      now,
		Memory:   u.memory,
		Recent:   u.history.Recent(c.cfg.RecentTurns),
		Files:    m.Files,
		Text:     text,
	}
	out, err := c.responder.Respond(ctx, p.String())
	if err != nil {
		log.Error("Failed to generate", "user", m.UserID, "err", err)
		return Reply{Text: BusyReply(), Type: ReplyText}
	}

	changed := memory.TrackTopics(u.memory, text)
	if memory.Update(u.memory, text, c.cfg.MemoryLimit) {
		changed = true
	}
	if changed {
		if err := c.store.SaveMemory(ctx, m.UserID, u.memory); err != nil {
			log.Warn("Failed to save memory", "user", m.UserID, "err", err)
		}
	}
	return Reply{Text: out, Type: ReplyText}
}

func (c *Chats) record(ctx context.Context, id string, u *userChat, t memory.Turn) {
	u.history.Append(t)
	u.unsaved++
	if u.unsaved >= c.cfg.SaveEvery {
		c.flush(ctx, id, u)
	}
}

// flush must be called with u.mu held.
func (c *Chats) flush(ctx context.Context, id string, u *userChat) {
	if !u.loaded || u.unsaved == 0 {
		return
	}
	if err := c.store.SaveTurns(context.WithoutCancel(ctx), id, u.history.All()); err != nil {
		log.Warn("Failed to save conversation", "user", id, "err", err)
		return
	}
	u.unsaved = 0
}

// History returns the user's conversation, oldest first.
func (c *Chats) History(ctx context.Context, id string) []memory.Turn {
	u := c.user(id)
	u.mu.Lock()
	defer u.mu.Unlock()
	c.load(ctx, id, u)
	return u.history.All()
}

// Memory returns a copy of what is remembered about the user.
func (c *Chats) Memory(ctx context.Context, id string) memory.Snapshot {
	u := c.user(id)
	u.mu.Lock()
	defer u.mu.Unlock()
	c.load(ctx, id, u)
	return u.memory.Clone()
}

// Clear empties the user's conversation and persists that immediately.
func (c *Chats) Clear(ctx context.Context, id string) error {
	u := c.user(id)
	u.mu.Lock()
	defer u.mu.Unlock()
	c.load(ctx, id, u)

	u.history.Clear()
	u.unsaved = 0
	if err := c.store.SaveTurns(ctx, id, nil); err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}
	return nil
}

// Forget flushes the user's pending turns and drops their state from memory.
func (c *Chats) Forget(ctx context.Context, id string) {
	c.mu.Lock()
	u, ok := c.users[id]
	delete(c.users, id)
	c.mu.Unlock()
	if !ok {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	c.flush(ctx, id, u)
}

// FlushAll persists every user's pending turns.
func (c *Chats) FlushAll(ctx context.Context) {
	c.mu.Lock()
	users := make(map[string]*userChat, len(c.users))
	for id, u := range c.users {
		users[id] = u
	}
	c.mu.Unlock()

	for id, u := range users {
		u.mu.Lock()
		c.flush(ctx, id, u)
		u.mu.Unlock()
	}
}

// AnswerFile answers a question about one file, with the model when it is up
// and by keyword lookup otherwise.
func (c *Chats) AnswerFile(ctx context.Context, q prompt.FileQuestion) string {
	if !c.responder.Available() {
		return SimpleFileAnswer(q.Question, q.Content, q.Name, q.ContentType, q.Summary)
	}
	out, err := c.responder.Respond(ctx, q.String())
	if err != nil {
		log.Error("Failed to answer file question", "file", q.Name, "err", err)
		return "I couldn't process your question right now. Please try again."
	}
	return out
}

// Available reports whether replies come from the model.
func (c *Chats) Available() bool { return c.responder.Available() }
