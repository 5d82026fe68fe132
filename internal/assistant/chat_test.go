package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echomind/internal/llm"
	"echomind/internal/memory"
	"echomind/internal/mood"
	"echomind/internal/prompt"
)

type chatStore struct {
	mu        sync.Mutex
	turns     map[string][]memory.Turn
	memories  map[string]memory.Snapshot
	turnSaves int
}

func newChatStore() *chatStore {
	return &chatStore{turns: map[string][]memory.Turn{}, memories: map[string]memory.Snapshot{}}
}

func (s *chatStore) LoadTurns(_ context.Context, id string) ([]memory.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turns[id], nil
}

func (s *chatStore) SaveTurns(_ context.Context, id string, turns []memory.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[id] = turns
	s.turnSaves++
	return nil
}

func (s *chatStore) LoadMemory(_ context.Context, id string) (memory.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memories[id], nil
}

func (s *chatStore) SaveMemory(_ context.Context, id string, snap memory.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memories[id] = snap.Clone()
	return nil
}

func (s *chatStore) saved(id string) []memory.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turns[id]
}

var chatNow = mood.Fixed(time.Date(2026, 5, 1, 14, 5, 0, 0, time.Local))

func newChats(gen llm.Generator, store ChatStore) *Chats {
	r := NewResponder(gen, llm.Options{}, time.Second)
	return NewChats(r, store, chatNow, ChatConfig{SaveEvery: 2})
}

func ask(t *testing.T, c *Chats, user, text string) Reply {
	t.Helper()
	r, err := c.Send(context.Background(), Message{UserID: user, Username: user, Text: text})
	require.NoError(t, err)
	return r
}

func TestChatGenerativeReply(t *testing.T) {
	gen := &generator{reply: "hey ada"}
	store := newChatStore()
	c := newChats(gen, store)

	r := ask(t, c, "u1", "I love climbing mountains")
	assert.Equal(t, "hey ada", r.Text)
	assert.Equal(t, ReplyText, r.Type)
	assert.Equal(t, time.Time(chatNow), r.Timestamp)

	require.Equal(t, 1, gen.calls())
	assert.Contains(t, gen.prompts[0], "User: u1\nCurrent Time: 2026-05-01 14:05\n")
	assert.Contains(t, gen.prompts[0], "User says: I love climbing mountains")

	snap := c.Memory(context.Background(), "u1")
	assert.Equal(t, []string{"climbing", "mountains"}, snap.List(memory.KeyLastTopics))
	assert.Equal(t, []string{"I love climbing mountains"}, snap.List(memory.KeyPreferences))
	assert.Equal(t, snap.List(memory.KeyLastTopics), store.memories["u1"].List(memory.KeyLastTopics))
}

func TestChatPassesFileContext(t *testing.T) {
	gen := &generator{reply: "it's a list"}
	c := newChats(gen, newChatStore())

	_, err := c.Send(context.Background(), Message{
		UserID: "u1",
		Text:   "what is [file:abc]",
		Files:  []prompt.File{{Name: "todo.txt", Summary: "Text file with 3 words", Text: "milk eggs bread"}},
	})
	require.NoError(t, err)
	assert.Contains(t, gen.prompts[0], "[Referenced File: todo.txt]")
	assert.Contains(t, gen.prompts[0], "milk eggs bread...")
}

func TestChatExitAndActions(t *testing.T) {
	gen := &generator{reply: "unused"}
	c := newChats(gen, newChatStore())

	r := ask(t, c, "u1", "Goodbye")
	assert.Equal(t, ChatFarewell, r.Text)

	r = ask(t, c, "u1", "play rainy jazz on youtube")
	assert.Equal(t, ReplyAction, r.Type)
	assert.Equal(t, "youtube", r.Action)
	assert.Equal(t, "https://www.youtube.com/results?search_query=rainy+jazz", r.URL)

	r = ask(t, c, "u1", "open example.org")
	assert.Equal(t, ReplyAction, r.Type)
	assert.Equal(t, "open_url", r.Action)
	assert.Equal(t, "https://example.org", r.URL)

	r = ask(t, c, "u1", "open notepad")
	assert.Equal(t, ReplyText, r.Type)
	assert.Equal(t, declineLaunch, r.Text)

	assert.Zero(t, gen.calls())
	assert.Len(t, c.History(context.Background(), "u1"), 4)
}

func TestChatFallbacks(t *testing.T) {
	prev := pick
	pick = func(int) int { return 0 }
	defer func() { pick = prev }()

	failing := &generator{err: errors.New("down")}
	c := newChats(failing, newChatStore())
	r := ask(t, c, "u1", "tell me something")
	assert.Equal(t, busyReplies[0], r.Text)
	require.Len(t, c.History(context.Background(), "u1"), 1)

	offline := NewChats(NewResponder(nil, llm.Options{}, 0), newChatStore(), chatNow, ChatConfig{})
	assert.False(t, offline.Available())
	r, err := offline.Send(context.Background(), Message{UserID: "u2", Username: "bob", Text: "hey there"})
	require.NoError(t, err)
	assert.Equal(t, "Hello bob! How can I help you today?", r.Text)
}

func TestChatRejectsEmpty(t *testing.T) {
	c := newChats(&generator{}, newChatStore())
	_, err := c.Send(context.Background(), Message{UserID: "u1", Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

type blockingGen struct {
	started chan struct{}
	release chan struct{}
}

func (g *blockingGen) Generate(ctx context.Context, _ string, _ llm.Options) (string, error) {
	g.started <- struct{}{}
	select {
	case <-g.release:
		return "done", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestChatBusyIsPerUser(t *testing.T) {
	gen := &blockingGen{started: make(chan struct{}, 2), release: make(chan struct{})}
	c := newChats(gen, newChatStore())

	errs := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), Message{UserID: "alice", Text: "slow question"})
		errs <- err
	}()
	<-gen.started

	_, err := c.Send(context.Background(), Message{UserID: "alice", Text: "another"})
	assert.ErrorIs(t, err, ErrBusy)

	go func() {
		_, err := c.Send(context.Background(), Message{UserID: "bob", Text: "independent"})
		errs <- err
	}()
	select {
	case <-gen.started:
	case <-time.After(time.Second):
		t.Fatal("bob was blocked by alice")
	}

	close(gen.release)
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
}

func TestChatSavesInBatches(t *testing.T) {
	store := newChatStore()
	c := newChats(&generator{reply: "ok"}, store)
	ctx := context.Background()

	ask(t, c, "u1", "one")
	assert.Empty(t, store.saved("u1"))
	ask(t, c, "u1", "two")
	assert.Len(t, store.saved("u1"), 2)

	ask(t, c, "u1", "three")
	assert.Len(t, store.saved("u1"), 2)
	c.FlushAll(ctx)
	assert.Len(t, store.saved("u1"), 3)

	ask(t, c, "u1", "four")
	c.Forget(ctx, "u1")
	assert.Len(t, store.saved("u1"), 4)

	// a fresh state reloads what was persisted
	assert.Len(t, c.History(ctx, "u1"), 4)

	require.NoError(t, c.Clear(ctx, "u1"))
	assert.Empty(t, c.History(ctx, "u1"))
	assert.Empty(t, store.saved("u1"))
}

func TestAnswerFile(t *testing.T) {
	gen := &generator{reply: "forty two"}
	c := newChats(gen, newChatStore())
	q := prompt.FileQuestion{Name: "a.txt", ContentType: "text/plain", Content: "the answer is 42", Question: "what is the answer?"}

	assert.Equal(t, "forty two", c.AnswerFile(context.Background(), q))
	assert.Contains(t, gen.prompts[0], "Question: what is the answer?")

	offline := NewChats(nil, newChatStore(), chatNow, ChatConfig{})
	assert.Equal(t, "I found 'answer' in the file near: ...the answer is 42...", offline.AnswerFile(context.Background(), q))

	failing := newChats(&generator{err: errors.New("down")}, newChatStore())
	assert.NotEmpty(t, failing.AnswerFile(context.Background(), q))
}
