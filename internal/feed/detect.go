package feed

import "strings"

// ContentType identifies a wire format.
type ContentType string

const (
	TypeRSS     ContentType = "rss"
	TypeAtom    ContentType = "atom"
	TypeJSON    ContentType = "json"
	TypeHTML    ContentType = "html"
	TypeUnknown ContentType = "unknown"
)

// sniffWindow bounds how much of the payload the heuristics inspect.
const sniffWindow = 2048

// Detect classifies a payload. An explicit hint (a declared source type or
// a transport content type) wins when it names a known format; otherwise
// the leading bytes are sniffed.
func Detect(content []byte, hint string) ContentType {
	if t := typeFromHint(hint); t != TypeUnknown {
		return t
	}
	return sniff(content)
}

// typeFromHint matches the hint against the fixed set of format markers.
// A bare "xml" hint is ambiguous between RSS and Atom and falls through to
// sniffing.
func typeFromHint(hint string) ContentType {
	h := strings.ToLower(strings.TrimSpace(hint))
	switch {
	case h == "" || h == "auto":
		return TypeUnknown
	case strings.Contains(h, "atom"):
		return TypeAtom
	case strings.Contains(h, "rss"):
		return TypeRSS
	case strings.Contains(h, "json"):
		return TypeJSON
	case strings.Contains(h, "html"):
		return TypeHTML
	}
	return TypeUnknown
}

func sniff(content []byte) ContentType {
	head := content
	if len(head) > sniffWindow {
		head = head[:sniffWindow]
	}
	s := strings.ToLower(strings.TrimSpace(string(head)))

	switch {
	case s == "":
		return TypeUnknown
	case strings.HasPrefix(s, "{"), strings.HasPrefix(s, "["):
		return TypeJSON
	case strings.HasPrefix(s, "<?xml"), strings.HasPrefix(s, "<rss"),
		strings.HasPrefix(s, "<feed"), strings.HasPrefix(s, "<rdf"):
		if strings.Contains(s, "<feed") {
			return TypeAtom
		}
		if strings.Contains(s, "<rss") || strings.Contains(s, "<rdf") {
			return TypeRSS
		}
		return TypeUnknown
	case strings.Contains(s, "<!doctype html"), strings.Contains(s, "<html"),
		strings.Contains(s, "<body"):
		return TypeHTML
	}
	return TypeUnknown
}
