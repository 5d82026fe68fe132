package assistant

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"time"
	"unicode"
)

// Canned replies used when no model is available or it failed.
var (
	busyReplies = []string{
		"I'm processing that request. Give me a moment.",
		"Interesting! Let me think about that.",
		"I'm working on your question.",
		"Thanks for asking! Let me formulate a response.",
	}
	idleReplies = []string{
		"I understand. Tell me more about that.",
		"Interesting! What else would you like to discuss?",
		"I'm here to help. What would you like to know?",
		"Got it. Is there anything specific you'd like me to do?",
		"Thanks for sharing. How can I assist you further?",
	}
)

const helpReply = `I can help you with:
• Answering questions
• Opening websites (try: open youtube.com)
• Playing videos (try: play lofi on youtube)
• Uploading and analyzing files
• Remembering our conversations`

// pick chooses a canned reply. Tests replace it.
var pick = func(n int) int { return rand.IntN(n) }

// SmartReply answers common small talk without a model.
func SmartReply(text, username string, now time.Time) string {
	lower := strings.ToLower(text)
	words := strings.Fields(strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' {
			return r
		}
		return ' '
	}, lower))
	has := func(w string) bool {
		for _, x := range words {
			if x == w {
				return true
			}
		}
		return false
	}

	switch {
	case strings.Contains(lower, "time"):
		return fmt.Sprintf("The current time is %s.", now.Format("03:04 PM"))
	case strings.Contains(lower, "date") || has("day") || has("today"):
		return fmt.Sprintf("Today is %s.", now.Format("January 02, 2006"))
	case strings.Contains(lower, "help") || strings.Contains(lower, "what can you do"):
		return helpReply
	case strings.Contains(lower, "file") || strings.Contains(lower, "upload"):
		return "You can upload files from the Upload page. Once uploaded, you can ask me questions about them!"
	case has("hello") || has("hi") || has("hey"):
		if username == "" {
			username = "there"
		}
		return fmt.Sprintf("Hello %s! How can I help you today?", username)
	}
	return idleReplies[pick(len(idleReplies))]
}

// BusyReply stands in for a generation that failed.
func BusyReply() string {
	return busyReplies[pick(len(busyReplies))]
}

// SimpleFileAnswer answers a question about content by keyword lookup.
func SimpleFileAnswer(question, content, name, contentType, summary string) string {
	q := strings.ToLower(question)
	text := []rune(content)
	folded := foldRunes(content)
	wordCount := len(strings.Fields(content))

	if strings.Contains(q, "how many words") || strings.Contains(q, "word count") {
		return fmt.Sprintf("The file has approximately %d words.", wordCount)
	}
	if strings.Contains(q, "summary") || strings.Contains(q, "summarize") {
		if summary != "" {
			return summary
		}
		return fmt.Sprintf("This is a %s file named %s.", contentType, name)
	}

	for _, kw := range strings.Fields(q) {
		kw = strings.Trim(kw, "?!.,;:\"'")
		if len(kw) <= 3 {
			continue
		}
		pos := indexRunes(folded, foldRunes(kw))
		if pos < 0 {
			continue
		}
		start := max(0, pos-50)
		end := min(len(text), pos+100)
		return fmt.Sprintf("I found '%s' in the file near: ...%s...", kw, string(text[start:end]))
	}

	return fmt.Sprintf("I couldn't find specific information about '%s' in this file. The file contains %d words. You could try asking about specific topics or keywords.",
		strings.TrimSpace(question), wordCount)
}

// foldRunes lowercases s one rune at a time, so offsets into the result are
// offsets into []rune(s).
func foldRunes(s string) []rune {
	r := []rune(s)
	for i, c := range r {
		r[i] = unicode.ToLower(c)
	}
	return r
}

func indexRunes(s, sub []rune) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if slices.Equal(s[i:i+len(sub)], sub) {
			return i
		}
	}
	return -1
}
