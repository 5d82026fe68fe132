// Package memory holds what the assistant remembers about its user: a loose
// key/value snapshot of preferences and topics, and the bounded conversation
// history.
package memory

import (
	"encoding/json"
	"strings"
	"unicode"
)

const (
	KeyPreferences = "preferences"
	KeyInterests   = "interests"
	KeyLastTopics  = "last_topics"

	// DefaultLimit caps every list-valued key.
	DefaultLimit = 50
)

// Snapshot is an arbitrary string-keyed map. List values are []string after
// any mutation through this package; values decoded from JSON may still be
// []any until touched.
type Snapshot map[string]any

// Defaults is the empty memory a new web user starts with.
func Defaults() Snapshot {
	return Snapshot{
		KeyInterests:  []string{},
		KeyLastTopics: []string{},
	}
}

// List returns the string list stored under key. Non-string elements and
// non-list values are ignored.
func (s Snapshot) List(key string) []string {
	switch v := s[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

// Append adds value to the list under key, evicting the oldest entries so at
// most limit remain. A limit <= 0 means DefaultLimit.
func (s Snapshot) Append(key, value string, limit int) {
	s.SetList(key, append(s.List(key), value), limit)
}

// SetList replaces the list under key, keeping the newest limit entries.
func (s Snapshot) SetList(key string, values []string, limit int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(values) > limit {
		values = values[len(values)-limit:]
	}
	s[key] = append([]string{}, values...)
}

// Clone returns a deep-enough copy for handing to another goroutine.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		switch l := v.(type) {
		case []string:
			out[k] = append([]string{}, l...)
		default:
			out[k] = v
		}
	}
	return out
}

// String renders the snapshot as compact JSON for prompts.
func (s Snapshot) String() string {
	if len(s) == 0 {
		return "{}"
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "{}"
	}
	return string(b)
}

var affinityMarkers = map[string]bool{
	"like": true, "likes": true,
	"love": true, "loves": true,
	"enjoy": true, "enjoys": true,
	"prefer": true, "prefers": true,
}

// Update records text as a preference when it carries an affinity marker
// ("I like jazz"). It reports whether the snapshot changed.
func Update(s Snapshot, text string, limit int) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	for _, w := range words(text) {
		if affinityMarkers[w] {
			s.Append(KeyPreferences, text, limit)
			return true
		}
	}
	return false
}

// TrackTopics replaces last_topics with the first five words longer than
// four characters. It reports whether the snapshot changed.
func TrackTopics(s Snapshot, text string) bool {
	var topics []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if len([]rune(w)) > 4 {
			topics = append(topics, w)
			if len(topics) == 5 {
				break
			}
		}
	}
	if len(topics) == 0 {
		return false
	}
	s.SetList(KeyLastTopics, topics, 5)
	return true
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}
