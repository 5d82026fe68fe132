package prompt

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"echomind/internal/memory"
	"echomind/internal/mood"
)

// Voice is the input for one spoken turn.
type Voice struct {
	Persona string // Persona when empty
	Context mood.Context
	Memory  memory.Snapshot
	Recent  []memory.Turn
	Text    string
}

// String renders the prompt. The model continues after "Echo:".
func (v Voice) String() string {
	var b strings.Builder

	b.WriteString(persona(v.Persona))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Mood: %s\n", v.Context.Mood)
	fmt.Fprintf(&b, "Time: %s\n", v.Context.DayPart)
	fmt.Fprintf(&b, "Memory: %s\n", v.Memory.String())

	if len(v.Recent) > 0 {
		b.WriteString("\nRecent conversation:\n")
		writeTurns(&b, v.Recent, "Echo")
	}

	fmt.Fprintf(&b, "\nUser: %s\nEcho:", strings.TrimSpace(v.Text))
	return b.String()
}

// Chat is the input for one web chat turn.
type Chat struct {
	Persona  string
	Username string
	Now      time.Time
	Memory   memory.Snapshot
	Recent   []memory.Turn
	Files    []File
	Text     string
}

func (c Chat) String() string {
	var b strings.Builder

	ctx := mood.Of(c.Now)

	b.WriteString(persona(c.Persona))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "User: %s\n", c.Username)
	fmt.Fprintf(&b, "Current Time: %s\n", c.Now.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Mood: %s\n", ctx.Mood)
	fmt.Fprintf(&b, "Time of day: %s\n", ctx.DayPart)

	b.WriteString("\nRecent Conversation:\n")
	writeTurns(&b, c.Recent, "Assistant")

	fmt.Fprintf(&b, "\nUser Memory: %s\n", c.Memory.String())

	text := strings.TrimSpace(c.Text)
	if fc := FileContext(c.Files); fc != "" {
		text += "\n\nUser has referenced these files:" + fc
	}
	fmt.Fprintf(&b, "\nUser says: %s\n\nAssistant:", text)
	return b.String()
}

// File is a stored upload referenced from a chat message.
type File struct {
	Name    string
	Summary string
	Text    string
}

const previewChars = 500

// FileContext describes each file with its summary and the start of its text.
func FileContext(files []File) string {
	var b strings.Builder
	for _, f := range files {
		fmt.Fprintf(&b, "\n\n[Referenced File: %s]\n", f.Name)
		summary := f.Summary
		if summary == "" {
			summary = "No summary"
		}
		fmt.Fprintf(&b, "File Summary: %s\n", summary)
		if f.Text != "" {
			fmt.Fprintf(&b, "File Content Preview:\n%s...\n", Truncate(f.Text, previewChars))
		}
	}
	return b.String()
}

var fileRefRe = regexp.MustCompile(`\[file:([a-f0-9]+)\]`)

// FileRefs returns the ids of every [file:<id>] reference in text, in order,
// without duplicates.
func FileRefs(text string) []string {
	var (
		ids  []string
		seen = map[string]bool{}
	)
	for _, m := range fileRefRe.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			ids = append(ids, m[1])
		}
	}
	return ids
}

const questionChars = 2000

// FileQuestion asks the model to answer from a single file's content.
type FileQuestion struct {
	Name        string
	ContentType string
	Summary     string
	Content     string
	Question    string
}

func (q FileQuestion) String() string {
	summary := q.Summary
	if summary == "" {
		summary = "No summary"
	}
	return fmt.Sprintf(`Based on the following file content, answer the user's question.

File: %s
File Type: %s
File Summary: %s

File Content:
%s

Question: %s

Answer concisely based only on the file content. If the answer is not in the file, say so.`,
		q.Name, q.ContentType, summary, Truncate(q.Content, questionChars), strings.TrimSpace(q.Question))
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func persona(p string) string {
	if p == "" {
		return Persona
	}
	return p
}

func writeTurns(b *strings.Builder, turns []memory.Turn, assistant string) {
	for _, t := range turns {
		fmt.Fprintf(b, "User: %s\n%s: %s\n", t.User, assistant, t.Assistant)
	}
}
