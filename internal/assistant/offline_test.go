package assistant

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSmartReply(t *testing.T) {
	prev := pick
	pick = func(int) int { return 1 }
	defer func() { pick = prev }()

	now := time.Date(2026, 7, 4, 15, 4, 0, 0, time.UTC)
	cases := []struct {
		in, want string
	}{
		{"what time is it", "The current time is 03:04 PM."},
		{"what's the date", "Today is July 04, 2026."},
		{"what day is it today?", "Today is July 04, 2026."},
		{"help", helpReply},
		{"how do I upload stuff", "You can upload files from the Upload page. Once uploaded, you can ask me questions about them!"},
		{"Hi!", "Hello ada! How can I help you today?"},
		{"this is nice", idleReplies[1]},
		{"which is better", idleReplies[1]},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SmartReply(tc.in, "ada", now), tc.in)
	}
	assert.Equal(t, "Hello there! How can I help you today?", SmartReply("hey", "", now))
}

func TestSimpleFileAnswer(t *testing.T) {
	content := "Quarterly revenue grew by ten percent while costs stayed flat."

	assert.Equal(t, "The file has approximately 10 words.",
		SimpleFileAnswer("How many words?", content, "r.txt", "text/plain", ""))
	assert.Equal(t, "Text file with 10 words",
		SimpleFileAnswer("summarize it", content, "r.txt", "text/plain", "Text file with 10 words"))
	assert.Equal(t, "This is a text/plain file named r.txt.",
		SimpleFileAnswer("give me a summary", content, "r.txt", "text/plain", ""))
	assert.Contains(t,
		SimpleFileAnswer("what about costs?", content, "r.txt", "text/plain", ""),
		"I found 'costs'")
	assert.Contains(t,
		SimpleFileAnswer("zebra migration", content, "r.txt", "text/plain", ""),
		"I couldn't find specific information about 'zebra migration'")
}

func TestSimpleFileAnswerSnippetKeepsRunes(t *testing.T) {
	content := strings.Repeat("İ", 60) + " the budget is 42 dollars"

	got := SimpleFileAnswer("what is the budget?", content, "b.txt", "text/plain", "")

	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "I found 'budget' in the file near: ..."+strings.Repeat("İ", 49)+" the budget is 42 dollars...", got)
}
