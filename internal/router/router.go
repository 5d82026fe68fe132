// Package router decides which handler owns an utterance. Routing is plain
// case-insensitive substring matching over an ordered rule table: the first
// rule that matches wins.
package router

import (
	"regexp"
	"strings"
)

type Kind int

const (
	Generative Kind = iota
	LaunchApp
	BrowserAction
)

func (k Kind) String() string {
	switch k {
	case LaunchApp:
		return "launch_app"
	case BrowserAction:
		return "browser"
	default:
		return "generative"
	}
}

type BrowserKind int

const (
	OpenURL BrowserKind = iota + 1
	PlayYouTube
)

func (b BrowserKind) String() string {
	switch b {
	case OpenURL:
		return "open_url"
	case PlayYouTube:
		return "youtube"
	default:
		return ""
	}
}

// Decision is the outcome of routing one utterance.
type Decision struct {
	Kind    Kind
	App     string      // LaunchApp
	Browser BrowserKind // BrowserAction
	Payload string      // BrowserAction: URL or search query
}

func Fallback() Decision { return Decision{Kind: Generative} }

func App(name string) Decision { return Decision{Kind: LaunchApp, App: name} }

func Browse(kind BrowserKind, payload string) Decision {
	return Decision{Kind: BrowserAction, Browser: kind, Payload: payload}
}

// Rule is one row of the routing table. Match receives the lowercased input.
type Rule struct {
	Name  string
	Match func(lower string) (Decision, bool)
}

// Keyword matches when lower contains word and always yields d.
func Keyword(word string, d Decision) Rule {
	return Rule{
		Name: word,
		Match: func(lower string) (Decision, bool) {
			return d, strings.Contains(lower, word)
		},
	}
}

// YouTube matches any mention of youtube and extracts the search query by
// removing "play" and "on youtube" from the input.
func YouTube() Rule {
	return Rule{
		Name: "youtube",
		Match: func(lower string) (Decision, bool) {
			if !strings.Contains(lower, "youtube") {
				return Decision{}, false
			}
			q := strings.ReplaceAll(lower, "play", "")
			q = strings.ReplaceAll(q, "on youtube", "")
			return Browse(PlayYouTube, strings.TrimSpace(q)), true
		},
	}
}

var domainRe = regexp.MustCompile(`\bopen\s+((?:https?://)?(?:[a-z0-9-]+\.)+[a-z]{2,}(?:/\S*)?)`)

// Website matches "open example.com" style requests.
func Website() Rule {
	return Rule{
		Name: "website",
		Match: func(lower string) (Decision, bool) {
			m := domainRe.FindStringSubmatch(lower)
			if m == nil {
				return Decision{}, false
			}
			u := m[1]
			if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
				u = "https://" + u
			}
			return Browse(OpenURL, u), true
		},
	}
}

// DefaultRules is the priority order used by the assistant. Apps are checked
// before websites so "open chrome" never becomes a browser action.
func DefaultRules() []Rule {
	return []Rule{
		Keyword("chrome", App("chrome")),
		Keyword("notepad", App("notepad")),
		Keyword("calculator", App("calculator")),
		YouTube(),
		Website(),
	}
}

type Router struct {
	rules []Rule
}

// New builds a router over rules; with no rules it uses DefaultRules.
func New(rules ...Rule) *Router {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Router{rules: rules}
}

// Route never fails: anything no rule claims goes to the generative path.
func (r *Router) Route(text string) Decision {
	lower := strings.ToLower(text)
	for _, rule := range r.rules {
		if d, ok := rule.Match(lower); ok {
			return d
		}
	}
	return Fallback()
}

var exitPhrases = map[string]bool{
	"exit":    true,
	"quit":    true,
	"stop":    true,
	"goodbye": true,
}

// IsExit reports whether text is exactly one of the exit phrases.
func IsExit(text string) bool {
	return exitPhrases[strings.ToLower(strings.TrimSpace(text))]
}
