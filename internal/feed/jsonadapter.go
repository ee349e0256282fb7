package feed

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonContainerKeys are the recognized item-array keys, tried in order.
var jsonContainerKeys = []string{"items", "articles", "entries", "posts", "stories", "results", "data"}

// JSONAdapter handles JSON payloads: arrays of objects, container objects
// holding an item array under a recognized key, and bare objects (treated
// as a single-item collection). Field names are resolved flexibly since no
// two JSON APIs agree on a schema.
type JSONAdapter struct{}

func (a *JSONAdapter) Name() string { return "json" }

func (a *JSONAdapter) Formats() []ContentType {
	return []ContentType{TypeJSON}
}

func (a *JSONAdapter) CanParse(content []byte, _ string) bool {
	s := strings.TrimSpace(string(trimToWindow(content)))
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}

func (a *JSONAdapter) Parse(content []byte, src Source) (*ParseResult, error) {
	var root any
	if err := jsonAPI.Unmarshal(content, &root); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	var (
		objects []map[string]any
		info    *FeedInfo
	)
	switch v := root.(type) {
	case []any:
		objects = objectSlice(v)
	case map[string]any:
		objects, info = objectsFromContainer(v)
	default:
		return nil, errors.New("json root is not an object or array")
	}

	res := &ParseResult{Success: true, ContentType: TypeJSON, Feed: info}
	for _, obj := range objects {
		item, ok := itemFromObject(obj, src)
		if !ok {
			continue
		}
		res.Items = append(res.Items, item)
	}
	return res, nil
}

// objectsFromContainer extracts the item objects from a top-level object.
// Without a recognized array key the object itself is the single item, and
// no feed-level metadata is derived from it.
func objectsFromContainer(obj map[string]any) ([]map[string]any, *FeedInfo) {
	for _, key := range jsonContainerKeys {
		arr, ok := obj[key].([]any)
		if !ok {
			continue
		}
		info := &FeedInfo{
			Title:       stringField(obj, "title", "name"),
			Description: stringField(obj, "description", "subtitle"),
			Link:        stringField(obj, "home_page_url", "link", "url"),
		}
		return objectSlice(arr), info
	}
	return []map[string]any{obj}, nil
}

// objectSlice keeps the object elements of a JSON array; anything else in
// the array is malformed for our purposes and skipped.
func objectSlice(arr []any) []map[string]any {
	out := make([]map[string]any, 0, len(arr))
	for _, e := range arr {
		if obj, ok := e.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

func itemFromObject(obj map[string]any, src Source) (NewsItem, bool) {
	title := stringField(obj, "title", "headline", "name")
	link := stringField(obj, "url", "link", "href", "permalink", "external_url")
	if title == "" && link == "" {
		return NewsItem{}, false
	}

	item := NewsItem{
		ID:          itemID(idField(obj), link, title),
		Title:       title,
		Link:        link,
		Description: stringField(obj, "description", "summary", "excerpt", "abstract"),
		Content:     stringField(obj, "content", "content_html", "content_text", "body", "text"),
		Author:      authorField(obj),
		Categories:  stringSlice(obj, "categories", "tags", "keywords"),
		SourceID:    src.ID,
		SourceName:  src.Name,
		ImageURL:    stringField(obj, "image", "image_url", "thumbnail", "banner_image"),
	}
	if item.Title == "" {
		item.Title = PlaceholderTitle
	}
	item.PublishedAt = timeField(obj,
		"published_at", "published", "publishedAt", "date_published",
		"pub_date", "pubDate", "date", "created_at", "updated_at", "timestamp")

	return item, true
}

// stringField returns the first non-empty string value among keys.
func stringField(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

// idField tolerates numeric ids alongside string ones.
func idField(obj map[string]any) string {
	for _, k := range []string{"id", "guid", "uuid"} {
		switch v := obj[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			if v != 0 {
				return fmt.Sprintf("%.0f", v)
			}
		}
	}
	return ""
}

func authorField(obj map[string]any) string {
	switch v := obj["author"].(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		return stringField(v, "name")
	}
	return stringField(obj, "creator", "byline", "by")
}

func stringSlice(obj map[string]any, keys ...string) []string {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case []any:
			var out []string
			for _, e := range v {
				if s, ok := e.(string); ok && s != "" {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		case string:
			if v != "" {
				return []string{v}
			}
		}
	}
	return nil
}

func timeField(obj map[string]any, keys ...string) *time.Time {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			if t, ok := parseTimeString(v); ok {
				return &t
			}
		case float64:
			if v <= 0 {
				continue
			}
			sec := int64(v)
			if sec > 1e12 { // epoch milliseconds
				sec /= 1000
			}
			t := time.Unix(sec, 0).UTC()
			return &t
		}
	}
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimeString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func trimToWindow(content []byte) []byte {
	if len(content) > sniffWindow {
		return content[:sniffWindow]
	}
	return content
}
