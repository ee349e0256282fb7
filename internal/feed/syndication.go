package feed

import (
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

// SyndicationAdapter handles RSS and Atom documents via gofeed.
type SyndicationAdapter struct{}

func (a *SyndicationAdapter) Name() string { return "syndication" }

func (a *SyndicationAdapter) Formats() []ContentType {
	return []ContentType{TypeRSS, TypeAtom}
}

// CanParse judges the payload itself; a transport hint can lie, so only
// the sniffed markup decides.
func (a *SyndicationAdapter) CanParse(content []byte, _ string) bool {
	t := sniff(content)
	return t == TypeRSS || t == TypeAtom
}

func (a *SyndicationAdapter) Parse(content []byte, src Source) (*ParseResult, error) {
	fp := gofeed.NewParser()
	parsed, err := fp.ParseString(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	ct := TypeRSS
	if strings.Contains(strings.ToLower(parsed.FeedType), "atom") {
		ct = TypeAtom
	}

	res := &ParseResult{
		Success:     true,
		ContentType: ct,
		Feed: &FeedInfo{
			Title:       parsed.Title,
			Description: parsed.Description,
			Link:        parsed.Link,
		},
	}
	for _, it := range parsed.Items {
		item, ok := itemFromFeed(it, src)
		if !ok {
			continue
		}
		res.Items = append(res.Items, item)
	}
	return res, nil
}

// itemFromFeed maps one gofeed item onto the canonical record. Items with
// neither a link nor a title carry too little to be useful and are dropped.
func itemFromFeed(it *gofeed.Item, src Source) (NewsItem, bool) {
	title := strings.TrimSpace(it.Title)
	link := strings.TrimSpace(it.Link)
	if title == "" && link == "" {
		return NewsItem{}, false
	}

	item := NewsItem{
		ID:          itemID(it.GUID, link, title),
		Title:       title,
		Link:        link,
		Description: strings.TrimSpace(it.Description),
		Content:     strings.TrimSpace(it.Content),
		Categories:  it.Categories,
		SourceID:    src.ID,
		SourceName:  src.Name,
	}
	if item.Title == "" {
		item.Title = PlaceholderTitle
	}

	if it.PublishedParsed != nil {
		t := *it.PublishedParsed
		item.PublishedAt = &t
	} else if it.UpdatedParsed != nil {
		t := *it.UpdatedParsed
		item.PublishedAt = &t
	}

	if it.Author != nil && it.Author.Name != "" {
		item.Author = it.Author.Name
	}

	if it.Image != nil && it.Image.URL != "" {
		item.ImageURL = it.Image.URL
	} else {
		for _, enc := range it.Enclosures {
			if enc != nil && strings.HasPrefix(enc.Type, "image/") {
				item.ImageURL = enc.URL
				break
			}
		}
	}

	return item, true
}
