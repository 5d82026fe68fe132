// Package ingest pulls readable text out of uploaded files.
package ingest

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	MaxTextChars    = 10000
	truncatedSuffix = "... [truncated]"
)

// Allowed lists the upload extensions accepted, without the dot.
var Allowed = map[string]bool{
	"txt": true, "md": true, "csv": true, "json": true, "log": true,
	"html": true, "htm": true,
	"pdf": true, "doc": true, "docx": true,
	"png": true, "jpg": true, "jpeg": true, "gif": true,
}

// Ext is the lowercased extension of name without the dot.
func Ext(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

func IsAllowed(name string) bool { return Allowed[Ext(name)] }

// Content is what the assistant knows about a file.
type Content struct {
	Text    string
	Summary string
}

// Extract never fails: unreadable input comes back as explanatory text.
func Extract(name, contentType string, data []byte) Content {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var c Content
	switch ext := Ext(name); {
	case ext == "html" || ext == "htm" || strings.HasPrefix(contentType, "text/html"):
		text, err := htmlText(data)
		if err != nil {
			return Content{
				Text:    fmt.Sprintf("[Error extracting content: %v]", err),
				Summary: "Error processing file",
			}
		}
		c = Content{Text: text, Summary: fmt.Sprintf("HTML page with %d words", wordCount(text))}
	case isPlain(ext) || strings.HasPrefix(contentType, "text/"):
		text := toUTF8(data)
		c = Content{Text: text, Summary: fmt.Sprintf("%s file with %d words", kind(ext), wordCount(text))}
	default:
		c = Content{
			Text:    fmt.Sprintf("[File type %s - content extraction not available]", contentType),
			Summary: strings.ToUpper(contentType) + " file",
		}
	}

	c.Text = Truncate(c.Text)
	return c
}

// Truncate limits text to MaxTextChars runes, marking the cut.
func Truncate(text string) string {
	if utf8.RuneCountInString(text) <= MaxTextChars {
		return text
	}
	return string([]rune(text)[:MaxTextChars]) + truncatedSuffix
}

func isPlain(ext string) bool {
	switch ext {
	case "txt", "md", "csv", "json", "log":
		return true
	}
	return false
}

func kind(ext string) string {
	switch ext {
	case "md":
		return "Markdown"
	case "csv":
		return "CSV"
	case "json":
		return "JSON"
	case "log":
		return "Log"
	}
	return "Text"
}

func htmlText(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	var parts []string
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		parts = append(parts, title)
	}
	doc.Find("title").Remove()
	if body := strings.Join(strings.Fields(doc.Text()), " "); body != "" {
		parts = append(parts, body)
	}
	return strings.Join(parts, "\n\n"), nil
}

func toUTF8(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "")
}

func wordCount(s string) int { return len(strings.Fields(s)) }
