package feed

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// defaultItemSelectors are the common listing patterns tried in order when
// a source declares no selector of its own.
var defaultItemSelectors = []string{
	"article",
	".article",
	".post",
	".news-item",
	".entry",
	".story",
	"li.item",
}

// HTMLAdapter scrapes item listings out of HTML pages via goquery. A source
// may carry a CSS selector hint pointing at its item elements.
type HTMLAdapter struct{}

func (a *HTMLAdapter) Name() string { return "html" }

func (a *HTMLAdapter) Formats() []ContentType {
	return []ContentType{TypeHTML}
}

// CanParse judges the payload itself; a transport hint can lie, so only
// the sniffed markup decides.
func (a *HTMLAdapter) CanParse(content []byte, _ string) bool {
	return sniff(content) == TypeHTML
}

func (a *HTMLAdapter) Parse(content []byte, src Source) (*ParseResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	base, _ := url.Parse(src.URL)

	selectors := defaultItemSelectors
	if src.Selector != "" {
		selectors = []string{src.Selector}
	}

	var nodes *goquery.Selection
	for _, sel := range selectors {
		if found := doc.Find(sel); found.Length() > 0 {
			nodes = found
			break
		}
	}

	res := &ParseResult{
		Success:     true,
		ContentType: TypeHTML,
		Feed: &FeedInfo{
			Title: strings.TrimSpace(doc.Find("title").First().Text()),
			Link:  src.URL,
		},
	}
	if nodes == nil {
		return res, nil
	}

	seen := make(map[string]bool)
	nodes.Each(func(_ int, sel *goquery.Selection) {
		item, ok := itemFromSelection(sel, base, src)
		if !ok || seen[item.ID] {
			return
		}
		seen[item.ID] = true
		res.Items = append(res.Items, item)
	})
	return res, nil
}

func itemFromSelection(sel *goquery.Selection, base *url.URL, src Source) (NewsItem, bool) {
	title := firstText(sel, "h1", "h2", "h3", "h4", ".title", ".headline", "a")
	var link string
	if href, ok := sel.Find("a[href]").First().Attr("href"); ok {
		link = resolveLink(base, href)
	}
	if title == "" && link == "" {
		return NewsItem{}, false
	}

	item := NewsItem{
		ID:          itemID("", link, title),
		Title:       title,
		Link:        link,
		Description: firstText(sel, "p", ".summary", ".description", ".excerpt"),
		SourceID:    src.ID,
		SourceName:  src.Name,
	}
	if item.Title == "" {
		item.Title = PlaceholderTitle
	}

	if s, ok := sel.Find("time[datetime]").First().Attr("datetime"); ok {
		if t, ok := parseTimeString(s); ok {
			item.PublishedAt = &t
		}
	}
	if s, ok := sel.Find("img[src]").First().Attr("src"); ok {
		item.ImageURL = resolveLink(base, s)
	}
	if author := firstText(sel, ".author", ".byline", "[rel=author]"); author != "" {
		item.Author = author
	}

	return item, true
}

// firstText returns the text of the first matching, non-empty element.
func firstText(sel *goquery.Selection, selectors ...string) string {
	for _, s := range selectors {
		if text := strings.TrimSpace(sel.Find(s).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// resolveLink resolves href against the page URL so relative listing links
// stay usable.
func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
