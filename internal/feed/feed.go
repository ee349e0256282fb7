// Package feed defines the canonical item model and converts heterogeneous
// wire formats (RSS/Atom, JSON, HTML) into it.
package feed

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source describes one configured content source.
type Source struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Type     string `json:"type"`               // rss, atom, json, html, or auto
	Selector string `json:"selector,omitempty"` // CSS selector hint for HTML sources
	Priority int    `json:"priority"`
	Enabled  bool   `json:"enabled"`
}

// NewsItem is the canonical, format-independent record for one content item.
type NewsItem struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Link        string            `json:"link,omitempty"`
	Description string            `json:"description,omitempty"`
	Content     string            `json:"content,omitempty"`
	Author      string            `json:"author,omitempty"`
	PublishedAt *time.Time        `json:"published_at,omitempty"`
	Categories  []string          `json:"categories,omitempty"`
	SourceID    string            `json:"source_id"`
	SourceName  string            `json:"source_name"`
	ImageURL    string            `json:"image_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// FeedInfo carries source-level metadata discovered during parsing.
type FeedInfo struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Link        string `json:"link,omitempty"`
}

// ParseResult is the outcome of normalizing one payload.
type ParseResult struct {
	Success     bool        `json:"success"`
	Items       []NewsItem  `json:"items"`
	ContentType ContentType `json:"content_type"`
	Error       string      `json:"error,omitempty"`
	Feed        *FeedInfo   `json:"feed,omitempty"`
}

// PlaceholderTitle is used when an item carries no title of its own.
const PlaceholderTitle = "Untitled"

// itemID derives a deterministic, non-empty identifier: the native id when
// present, else the link, else a name-based UUID of the title. Repeated
// parses of unchanged content yield identical ids.
func itemID(native, link, title string) string {
	if native = strings.TrimSpace(native); native != "" {
		return native
	}
	if link != "" {
		return link
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(title)).String()
}
