package actions

import (
	log "log/slog"
	"net/url"
	"strings"

	"github.com/pkg/browser"
)

const youtubeSearch = "https://www.youtube.com/results?search_query="

// Browser opens pages in the user's default browser. Failures are logged,
// never returned.
type Browser struct {
	Open func(url string) error
}

func NewBrowser() *Browser {
	return &Browser{Open: browser.OpenURL}
}

func (b *Browser) OpenURL(u string) {
	if err := b.Open(u); err != nil {
		log.Warn("Failed to open url", "url", u, "err", err)
	}
}

func (b *Browser) PlaySearch(query string) {
	b.OpenURL(SearchURL(query))
}

// SearchURL is the YouTube results page for query.
func SearchURL(query string) string {
	return youtubeSearch + url.QueryEscape(strings.TrimSpace(query))
}
