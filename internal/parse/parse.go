// ABOUTME: Feed parser adapter wrapping gofeed behind a two-event contract
// ABOUTME: Emits one feed metadata event, then entry events in document order

package parse

import (
	"io"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
)

// FeedInfo is the single metadata event emitted per parse.
type FeedInfo struct {
	Title    string
	Link     string
	Language string
}

// Item is one entry event.
type Item struct {
	UID          string
	Title        string
	Link         string
	Author       string
	Content      string
	PublishedAt  *time.Time
	PublishedRaw string
}

// Handler consumes the event stream produced by Walk. FeedInfo is called at
// most once, before any Item. Returning an error from either method stops the
// walk and fails the parse.
type Handler interface {
	FeedInfo(info FeedInfo) error
	Item(item Item) error
}

var stripPolicy = bluemonday.StrictPolicy()

// Walk parses RSS/Atom/JSON feed content from r and streams events to h.
// A parse error fails the whole cycle; no events follow it.
func Walk(r io.Reader, baseURL string, h Handler) error {
	parser := gofeed.NewParser()
	feed, err := parser.Parse(r)
	if err != nil {
		return err
	}

	info := FeedInfo{
		Title:    strip(feed.Title),
		Link:     feed.Link,
		Language: feed.Language,
	}
	if info.Link == "" {
		info.Link = baseURL
	}
	if err := h.FeedInfo(info); err != nil {
		return err
	}

	for _, item := range feed.Items {
		entry := Item{
			UID:          item.GUID,
			Title:        strip(item.Title),
			Link:         item.Link,
			PublishedRaw: item.Published,
		}

		// Fallback UID to link if the document carries no GUID
		if entry.UID == "" {
			entry.UID = item.Link
		}

		if item.Author != nil {
			entry.Author = strip(item.Author.Name)
		}

		// Prefer the published time, fall back to updated
		if item.PublishedParsed != nil {
			entry.PublishedAt = item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			entry.PublishedAt = item.UpdatedParsed
		}
		if entry.PublishedRaw == "" {
			entry.PublishedRaw = item.Updated
		}

		// Prefer full content over the summary
		if item.Content != "" {
			entry.Content = item.Content
		} else {
			entry.Content = item.Description
		}
		entry.Content = strings.TrimSpace(entry.Content)

		if err := h.Item(entry); err != nil {
			return err
		}
	}

	return nil
}

// strip removes html tags from single-line fields like titles and authors.
func strip(s string) string {
	return strings.TrimSpace(stripPolicy.Sanitize(s))
}
